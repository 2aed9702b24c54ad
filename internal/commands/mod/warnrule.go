// Package mod - /mod warnrule add|list|reset commands
package mod

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

var minThreshold = 1.0

// createWarnRuleAddCommand creates /mod warnrule add
func createWarnRuleAddCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"add",
		"Añade una sanción automática al alcanzar un número de advertencias",
		"mod",
		func(ctx *discord.CommandContext) error { return warnRuleAddHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "advertencias",
			Description: "Número de advertencias que activa la regla",
			Required:    true,
			MinValue:    &minThreshold,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "accion",
			Description: "Sanción a aplicar",
			Required:    true,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "Silenciar", Value: string(models.ActionMute)},
				{Name: "Expulsar", Value: string(models.ActionKick)},
				{Name: "Banear", Value: string(models.ActionBan)},
			},
		},
		durationOption,
	).WithUserPermissions(discordgo.PermissionManageGuild).
		InGuild()
}

// warnRuleAddHandler handles /mod warnrule add
func warnRuleAddHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	threshold := int(ctx.GetIntOption("advertencias"))
	action, err := models.ParseActionType(ctx.GetStringOption("accion"))
	if err != nil {
		return ctx.ReplyEphemeral("❌ Acción inválida.")
	}

	var duration *int64
	if raw := ctx.GetStringOption("duracion"); raw != "" {
		if !action.Reversible() {
			return ctx.ReplyEphemeral("❌ Solo los silencios y baneos pueden tener duración.")
		}
		d, err := parseDuration(raw)
		if err != nil {
			return ctx.ReplyEphemeral("❌ Duración inválida: " + err.Error())
		}
		if muteTooLong(action, d) {
			return ctx.ReplyEphemeral(muteLimitMessage)
		}
		duration = models.Int64Ptr(int64(d / time.Second))
	}
	serverID := ctx.Interaction.GuildID

	return runDeferred(ctx, "warnrule add", func(c context.Context) (*discordgo.MessageEmbed, error) {
		if err := m.Policy.Add(c, serverID, threshold, action, duration); err != nil {
			return nil, err
		}
		return &discordgo.MessageEmbed{
			Description: "✅ Regla añadida: " + ruleText(models.WarnEscalationRule{WarnThreshold: threshold, Action: action, DurationSeconds: duration}),
			Color:       0x00FF00,
			Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		}, nil
	})
}

// createWarnRuleListCommand creates /mod warnrule list
func createWarnRuleListCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"list",
		"Muestra las sanciones automáticas del servidor",
		"mod",
		func(ctx *discord.CommandContext) error { return warnRuleListHandler(ctx, m) },
	).WithUserPermissions(discordgo.PermissionModerateMembers).
		InGuild()
}

// warnRuleListHandler handles /mod warnrule list
func warnRuleListHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	serverID := ctx.Interaction.GuildID

	return runDeferred(ctx, "warnrule list", func(c context.Context) (*discordgo.MessageEmbed, error) {
		rules, err := m.Policy.List(c, serverID)
		if err != nil {
			return nil, err
		}

		embed := &discordgo.MessageEmbed{
			Title:  "📜 Sanciones automáticas",
			Color:  0x3498DB,
			Footer: &discordgo.MessageEmbedFooter{Text: footerText},
		}
		if len(rules) == 0 {
			embed.Description = "No hay reglas configuradas."
			return embed, nil
		}
		lines := make([]string, 0, len(rules))
		for _, r := range rules {
			lines = append(lines, "• "+ruleText(r))
		}
		embed.Description = strings.Join(lines, "\n")
		return embed, nil
	})
}

// createWarnRuleResetCommand creates /mod warnrule reset
func createWarnRuleResetCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"reset",
		"Elimina todas las sanciones automáticas del servidor",
		"mod",
		func(ctx *discord.CommandContext) error { return warnRuleResetHandler(ctx, m) },
	).WithUserPermissions(discordgo.PermissionManageGuild).
		InGuild()
}

// warnRuleResetHandler handles /mod warnrule reset
func warnRuleResetHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	serverID := ctx.Interaction.GuildID

	return runDeferred(ctx, "warnrule reset", func(c context.Context) (*discordgo.MessageEmbed, error) {
		if err := m.Policy.ResetAll(c, serverID); err != nil {
			return nil, err
		}
		return &discordgo.MessageEmbed{
			Description: "✅ Se eliminaron todas las sanciones automáticas.",
			Color:       0x00FF00,
			Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		}, nil
	})
}

func ruleText(r models.WarnEscalationRule) string {
	style := actionStyle[r.Action]
	text := fmt.Sprintf("**%d** advertencias → %s %s", r.WarnThreshold, style.emoji, style.label)
	if r.DurationSeconds != nil {
		text += " durante " + formatDuration(time.Duration(*r.DurationSeconds)*time.Second)
	} else if r.Action.Reversible() {
		text += " permanente"
	}
	return text
}
