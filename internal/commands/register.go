// Package commands provides a registry for organizing bot commands.
// Commands are organized in subdirectories by category (utils, mod, dev)
package commands

import (
	"github.com/PancyStudios/PancyModBot/internal/commands/dev"
	"github.com/PancyStudios/PancyModBot/internal/commands/mod"
	"github.com/PancyStudios/PancyModBot/internal/commands/utils"
	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
)

// RegisterAll registers all commands with the Discord client
func RegisterAll(client *discord.ExtendedClient, m *moderation.Moderator) {
	// Utility commands (/utils ping, /utils status, ...)
	utils.RegisterUtilsCommands(client, m)

	// Moderation commands (/mod warn, /mod mute, /mod ban, /mod warnrule ...)
	mod.RegisterModCommands(client, m)

	// Dev commands, only registered in the dev guild
	dev.Register(client, m)
}
