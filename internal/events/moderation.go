package events

import (
	"fmt"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

// RegisterModerationEvents keeps the timeout registry in line with
// sanctions lifted outside the bot
func RegisterModerationEvents(client *discord.ExtendedClient, m *moderation.Moderator) {
	client.EventHandler.OnGuildBanRemove(func(s *discordgo.Session, b *discordgo.GuildBanRemove) {
		logger.Debug(fmt.Sprintf("✅ Baneo retirado para %s en %s", b.User.Username, b.GuildID), "Moderation")
		go forget(m, b.GuildID, b.User.ID, models.ActionBan)
	})
}
