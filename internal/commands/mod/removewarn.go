// Package mod - /mod removewarn command
package mod

import (
	"context"
	"fmt"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/bwmarrin/discordgo"
)

// createRemoveWarnCommand creates the /mod removewarn subcommand
func createRemoveWarnCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"removewarn",
		"Elimina una advertencia por su número de caso",
		"mod",
		func(ctx *discord.CommandContext) error { return removeWarnHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "caso",
			Description: "Número del caso de la advertencia",
			Required:    true,
			MinValue:    &minCaseID,
		},
	).WithUserPermissions(discordgo.PermissionModerateMembers).
		InGuild()
}

// removeWarnHandler handles the /mod removewarn command
func removeWarnHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	caseID := ctx.GetIntOption("caso")
	serverID := ctx.Interaction.GuildID

	return runDeferred(ctx, "removewarn", func(c context.Context) (*discordgo.MessageEmbed, error) {
		removed, err := m.Ledger.DeleteWarn(c, serverID, caseID)
		if err != nil {
			return nil, err
		}
		if !removed {
			return errorEmbed(fmt.Sprintf("El caso #%d no existe o no es una advertencia.", caseID)), nil
		}
		return &discordgo.MessageEmbed{
			Description: fmt.Sprintf("✅ Advertencia #%d eliminada.", caseID),
			Color:       0x00FF00,
			Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		}, nil
	})
}
