package utils

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/config"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/hako/durafmt"
)

// botStats is a point-in-time view of the process
type botStats struct {
	Version    string
	Uptime     time.Duration
	HeapMB     float64
	Goroutines int
	Guilds     int
	Members    int
	Timers     int
}

func createStatsCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"stats",
		"Muestra estadísticas del bot",
		"utils",
		func(ctx *discord.CommandContext) error { return statsHandler(ctx, m) },
	)
}

func statsHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	go func() {
		defer errors.RecoverMiddleware()()

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		st := botStats{
			Version:    config.Version,
			Uptime:     time.Since(ctx.Client.StartTime),
			HeapMB:     float64(mem.Alloc) / 1024 / 1024,
			Goroutines: runtime.NumGoroutine(),
			Guilds:     ctx.Client.GuildCount(),
			Timers:     m.Scheduler.Pending(),
		}
		ctx.Session.State.RLock()
		for _, g := range ctx.Session.State.Guilds {
			st.Members += g.MemberCount
		}
		ctx.Session.State.RUnlock()

		embed := statsEmbed(st)
		embed.Footer.IconURL = ctx.Session.State.User.AvatarURL("")
		ctx.ReplyEmbed(embed)
	}()
	return nil
}

func statsEmbed(st botStats) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "📊 Estadísticas de PancyModBot",
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🤖 Versión", Value: st.Version, Inline: true},
			{Name: "🐹 Go / DiscordGo", Value: strings.TrimPrefix(runtime.Version(), "go") + " / " + discordgo.VERSION, Inline: true},
			{Name: "⏱ Uptime", Value: formatUptime(st.Uptime), Inline: true},
			{Name: "🖥 RAM", Value: fmt.Sprintf("%.2f MB", st.HeapMB), Inline: true},
			{Name: "⚙️ Goroutines", Value: fmt.Sprintf("%d", st.Goroutines), Inline: true},
			{Name: "🏠 Servidores", Value: fmt.Sprintf("%d (%d miembros)", st.Guilds, st.Members), Inline: true},
			{Name: "⏳ Sanciones temporales", Value: fmt.Sprintf("%d pendientes", st.Timers), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: "💫 - Developed by PancyStudios"},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// formatUptime renders the uptime down to the second
func formatUptime(dur time.Duration) string {
	return durafmt.Parse(dur.Truncate(time.Second)).String()
}
