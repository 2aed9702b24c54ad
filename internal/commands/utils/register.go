package utils

import (
	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
)

// RegisterUtilsCommands registers the /utils subcommands
func RegisterUtilsCommands(client *discord.ExtendedClient, m *moderation.Moderator) {
	// Build the /utils command group with all subcommands
	utilsGroup := client.CommandHandler.BuildCommandGroup(
		"utils",
		"Comandos de utilidad",
		createPingCommand(),
		createStatusCommand(m),
		createHelpCommand(client),
		createStatsCommand(m),
	)

	// Register the command group
	client.CommandHandler.AddGlobalCommand(utilsGroup)
}
