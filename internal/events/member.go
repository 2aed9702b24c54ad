// Package events provides event handlers for member events
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

const eventTimeout = 15 * time.Second

// RegisterMemberEvents registers all member-related event handlers
func RegisterMemberEvents(client *discord.ExtendedClient, m *moderation.Moderator) {
	client.EventHandler.OnGuildMemberAdd(func(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
		go onGuildMemberAdd(m, e)
	})
	client.EventHandler.OnGuildMemberUpdate(func(s *discordgo.Session, e *discordgo.GuildMemberUpdate) {
		if !timeoutLifted(e.BeforeUpdate, e.Member) {
			return
		}
		go forget(m, e.GuildID, e.User.ID, models.ActionMute)
	})
	client.EventHandler.OnGuildMemberRemove(onGuildMemberRemove)
}

// onGuildMemberAdd puts an active mute back on a user who left and re-joined
func onGuildMemberAdd(m *moderation.Moderator, e *discordgo.GuildMemberAdd) {
	defer errors.RecoverMiddleware()()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	reapplied, err := m.Reapply(ctx, e.GuildID, e.User.ID)
	if err != nil {
		logger.Error(fmt.Sprintf("Error reaplicando silencio a %s en %s: %v", e.User.ID, e.GuildID, err), "Member")
		return
	}
	if reapplied {
		logger.Info(fmt.Sprintf("🔇 Silencio reaplicado a %s en %s", e.User.Username, e.GuildID), "Member")
	}
}

// timeoutLifted reports whether a running communication timeout was removed
// in this update. Needs the member cached in state before the update.
func timeoutLifted(before, after *discordgo.Member) bool {
	if before == nil || after == nil || before.CommunicationDisabledUntil == nil {
		return false
	}
	if !before.CommunicationDisabledUntil.After(time.Now()) {
		return false
	}
	return after.CommunicationDisabledUntil == nil || !after.CommunicationDisabledUntil.After(time.Now())
}

// forget drops a timeout that was lifted by hand so its timer does not fire
func forget(m *moderation.Moderator, serverID, userID string, action models.ActionType) {
	defer errors.RecoverMiddleware()()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if _, err := m.Forget(ctx, serverID, userID, action); err != nil {
		logger.Error(fmt.Sprintf("Error descartando %s de %s en %s: %v", action, userID, serverID, err), "Member")
	}
}

// onGuildMemberRemove is called when a member leaves the server
func onGuildMemberRemove(s *discordgo.Session, e *discordgo.GuildMemberRemove) {
	logger.Debug(fmt.Sprintf("👋 %s salió del servidor %s", e.User.Username, e.GuildID), "Member")
}
