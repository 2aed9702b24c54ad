// Package mod - /mod warn command
package mod

import (
	"context"
	"fmt"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

// createWarnCommand creates the /mod warn subcommand
func createWarnCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"warn",
		"Advierte a un usuario",
		"mod",
		func(ctx *discord.CommandContext) error { return warnHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "usuario",
			Description: "Usuario a advertir",
			Required:    true,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "razon",
			Description: "Razón de la advertencia",
			Required:    false,
		},
	).WithUserPermissions(discordgo.PermissionModerateMembers).
		WithBotPermissions(discordgo.PermissionModerateMembers).
		InGuild()
}

// warnHandler handles the /mod warn command
func warnHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	user, problem := userOption(ctx)
	if user == nil {
		return ctx.ReplyEphemeral("❌ " + problem)
	}

	sanction := moderation.Sanction{
		ServerID:    ctx.Interaction.GuildID,
		ModeratorID: ctx.User().ID,
		UserID:      user.ID,
		Action:      models.ActionWarn,
		Reason:      reasonPtr(ctx),
	}

	return runDeferred(ctx, "warn", func(c context.Context) (*discordgo.MessageEmbed, error) {
		out, err := m.Punish(c, sanction)
		if err != nil {
			return nil, err
		}

		embed := caseEmbed(out.Case, out.EndTime)
		if count, err := m.Ledger.CountWarns(c, sanction.ServerID, user.ID); err == nil {
			embed.Description = fmt.Sprintf("%s ahora tiene **%d** advertencia(s).", user.Mention(), count)
		}
		switch {
		case out.Escalation != nil:
			embed.Fields = append(embed.Fields, escalationField(out.Escalation))
		case out.EscalationErr != nil:
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Escalado",
				Value: "⚠️ La advertencia se registró, pero no se pudo aplicar la sanción automática.",
			})
		}
		return embed, nil
	})
}

func escalationField(out *moderation.Outcome) *discordgo.MessageEmbedField {
	style := actionStyle[out.Case.Action]
	value := fmt.Sprintf("%s %s aplicado automáticamente (caso #%d)", style.emoji, style.label, out.Case.CaseID)
	if out.EndTime > 0 {
		value += fmt.Sprintf(", termina <t:%d:R>", out.EndTime)
	}
	return &discordgo.MessageEmbedField{Name: "Escalado", Value: value}
}
