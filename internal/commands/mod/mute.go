// Package mod - /mod mute and /mod unmute commands
package mod

import (
	"context"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

var durationOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "duracion",
	Description: "Duración (ej: 30m, 12h, 7d). Sin duración es permanente",
	Required:    false,
}

// createMuteCommand creates the /mod mute subcommand
func createMuteCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"mute",
		"Silencia a un usuario",
		"mod",
		func(ctx *discord.CommandContext) error { return sanctionHandler(ctx, m, models.ActionMute) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "usuario",
			Description: "Usuario a silenciar",
			Required:    true,
		},
		durationOption,
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "razon",
			Description: "Razón del silencio",
			Required:    false,
		},
	).WithUserPermissions(discordgo.PermissionModerateMembers).
		WithBotPermissions(discordgo.PermissionModerateMembers).
		InGuild()
}

// createUnmuteCommand creates the /mod unmute subcommand
func createUnmuteCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"unmute",
		"Quita el silencio a un usuario",
		"mod",
		func(ctx *discord.CommandContext) error { return revokeHandler(ctx, m, models.ActionMute) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "usuario",
			Description: "Usuario al que quitar el silencio",
			Required:    true,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "razon",
			Description: "Razón",
			Required:    false,
		},
	).WithUserPermissions(discordgo.PermissionModerateMembers).
		WithBotPermissions(discordgo.PermissionModerateMembers).
		InGuild()
}

// sanctionHandler runs /mod mute and /mod ban, which share their options
func sanctionHandler(ctx *discord.CommandContext, m *moderation.Moderator, action models.ActionType) error {
	user, problem := userOption(ctx)
	if user == nil {
		return ctx.ReplyEphemeral("❌ " + problem)
	}

	var duration *time.Duration
	if raw := ctx.GetStringOption("duracion"); raw != "" {
		d, err := parseDuration(raw)
		if err != nil {
			return ctx.ReplyEphemeral("❌ Duración inválida: " + err.Error())
		}
		if muteTooLong(action, d) {
			return ctx.ReplyEphemeral(muteLimitMessage)
		}
		duration = &d
	}

	sanction := moderation.Sanction{
		ServerID:    ctx.Interaction.GuildID,
		ModeratorID: ctx.User().ID,
		UserID:      user.ID,
		Action:      action,
		Reason:      reasonPtr(ctx),
		Duration:    duration,
	}

	return runDeferred(ctx, string(action), func(c context.Context) (*discordgo.MessageEmbed, error) {
		out, err := m.Punish(c, sanction)
		if err != nil {
			return nil, err
		}
		embed := caseEmbed(out.Case, out.EndTime)
		if duration == nil {
			embed.Description = "Sanción permanente."
		}
		return embed, nil
	})
}

// revokeHandler runs /mod unmute and /mod unban
func revokeHandler(ctx *discord.CommandContext, m *moderation.Moderator, action models.ActionType) error {
	user := ctx.GetUserOption("usuario")
	if user == nil {
		return ctx.ReplyEphemeral("❌ Debes especificar un usuario.")
	}

	serverID := ctx.Interaction.GuildID
	moderatorID := ctx.User().ID
	reason := reasonPtr(ctx)

	return runDeferred(ctx, "un"+string(action), func(c context.Context) (*discordgo.MessageEmbed, error) {
		revoked, err := m.Revoke(c, serverID, moderatorID, user.ID, action, reason)
		if err != nil {
			return nil, err
		}
		return caseEmbed(*revoked, 0), nil
	})
}
