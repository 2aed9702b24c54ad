package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/bwmarrin/discordgo"
)

// createPingCommand creates the /utils ping subcommand
func createPingCommand() *discord.Command {
	return discord.NewCommand(
		"ping",
		"Comprueba la latencia del gateway y del almacenamiento",
		"utils",
		pingHandler,
	)
}

func pingHandler(ctx *discord.CommandContext) error {
	go func() {
		defer errors.RecoverMiddleware()()

		gateway := ctx.Client.Session.HeartbeatLatency()
		storage := "🔴 sin respuesta"
		if db := database.Get(); db != nil {
			c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			rtt, err := db.Ping(c)
			cancel()
			if err == nil {
				storage = fmt.Sprintf("%dms", rtt.Milliseconds())
			}
		}

		ctx.ReplyEmbed(&discordgo.MessageEmbed{
			Title: "🏓 Pong!",
			Color: latencyColor(gateway),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Gateway", Value: fmt.Sprintf("%dms", gateway.Milliseconds()), Inline: true},
				{Name: "Almacenamiento", Value: storage, Inline: true},
			},
		})
	}()
	return nil
}

// latencyColor goes green, yellow, red as the heartbeat degrades
func latencyColor(d time.Duration) int {
	switch {
	case d < 200*time.Millisecond:
		return 0x00FF00
	case d < 500*time.Millisecond:
		return 0xFFA500
	default:
		return 0xFF0000
	}
}
