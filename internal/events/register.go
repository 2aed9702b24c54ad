// Package events provides a registry for organizing bot events.
// Events are organized by category (ready, guild, member, moderation)
package events

import (
	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
)

// RegisterAll registers all events with the Discord client
func RegisterAll(client *discord.ExtendedClient, m *moderation.Moderator) {
	logger.System("📋 Registrando eventos del bot...", "Events")

	// Ready event (bot startup, timeout recovery) and gateway state
	RegisterReadyEvents(client, m)

	// Guild events (server join/leave)
	RegisterGuildEvents(client)

	// Member events (re-joins of muted users, manual timeout removal)
	RegisterMemberEvents(client, m)

	// Moderation events (manual unbans)
	RegisterModerationEvents(client, m)

	logger.Success("✅ Todos los eventos registrados correctamente", "Events")
}
