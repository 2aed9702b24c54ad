package mod

import (
	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
)

// RegisterModCommands registers all moderation commands as /mod subcommands
func RegisterModCommands(client *discord.ExtendedClient, m *moderation.Moderator) {
	// Build the /mod command group with all subcommands
	modGroup := client.CommandHandler.BuildCommandGroup(
		"mod",
		"Comandos de moderación",
		createWarnCommand(m),
		createMuteCommand(m),
		createUnmuteCommand(m),
		createKickCommand(m),
		createBanCommand(m),
		createUnbanCommand(m),
		createWarningsCommand(m),
		createCaseCommand(m),
		createRemoveWarnCommand(m),
		createModLogCommand(m),
	)

	// /mod warnrule add|list|reset
	warnRuleGroup := client.CommandHandler.BuildSubcommandGroup(
		"mod",
		"warnrule",
		"Sanciones automáticas por advertencias",
		createWarnRuleAddCommand(m),
		createWarnRuleListCommand(m),
		createWarnRuleResetCommand(m),
	)
	modGroup.Options = append(modGroup.Options, warnRuleGroup)

	dm := false
	modGroup.DMPermission = &dm

	// Register the command group
	client.CommandHandler.AddGlobalCommand(modGroup)
}
