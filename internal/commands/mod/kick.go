// Package mod - /mod kick command
package mod

import (
	"context"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

// createKickCommand creates the /mod kick subcommand
func createKickCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"kick",
		"Expulsa a un usuario del servidor",
		"mod",
		func(ctx *discord.CommandContext) error { return kickHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "usuario",
			Description: "Usuario a expulsar",
			Required:    true,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "razon",
			Description: "Razón de la expulsión",
			Required:    false,
		},
	).WithUserPermissions(discordgo.PermissionKickMembers).
		WithBotPermissions(discordgo.PermissionKickMembers).
		InGuild()
}

// kickHandler handles the /mod kick command
func kickHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	user, problem := userOption(ctx)
	if user == nil {
		return ctx.ReplyEphemeral("❌ " + problem)
	}

	sanction := moderation.Sanction{
		ServerID:    ctx.Interaction.GuildID,
		ModeratorID: ctx.User().ID,
		UserID:      user.ID,
		Action:      models.ActionKick,
		Reason:      reasonPtr(ctx),
	}

	return runDeferred(ctx, "kick", func(c context.Context) (*discordgo.MessageEmbed, error) {
		out, err := m.Punish(c, sanction)
		if err != nil {
			return nil, err
		}
		return caseEmbed(out.Case, 0), nil
	})
}
