package utils

import (
	"context"
	"fmt"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/config"
	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/bwmarrin/discordgo"
)

func createStatusCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"status",
		"Muestra el estado del núcleo de moderación",
		"utils",
		func(ctx *discord.CommandContext) error { return statusHandler(ctx, m) },
	)
}

func statusHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	go func() {
		defer errors.RecoverMiddleware()()

		dbStatus, ok := database.Status(context.Background(), database.Get())
		color := 0x00FF00
		if !ok {
			color = 0xFF0000
		}
		driver := config.Get().StorageDriver

		ctx.ReplyEmbed(&discordgo.MessageEmbed{
			Title: "🛡️ Estado de PancyModBot",
			Color: color,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Bot", Value: "🟢 | Online", Inline: true},
				{Name: "Almacenamiento (" + driver + ")", Value: dbStatus, Inline: true},
				{Name: "Temporizadores", Value: fmt.Sprintf("%d activos", m.Scheduler.Pending()), Inline: true},
				{Name: "Servidores", Value: fmt.Sprintf("%d", ctx.Client.GuildCount()), Inline: true},
			},
		})
	}()
	return nil
}
