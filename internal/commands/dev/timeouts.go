package dev

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

const timeoutsPerEmbed = 10

// CreateTimeoutsCommand creates the /dev timeouts command
func CreateTimeoutsCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"timeouts",
		"Lista las sanciones temporales activas (Solo desarrolladores)",
		"dev",
		func(ctx *discord.CommandContext) error { return timeoutsHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "servidor",
			Description: "ID del servidor a consultar",
			Required:    false,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "tipo",
			Description: "Filtrar por tipo de sanción",
			Required:    false,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "Silencios", Value: string(models.ActionMute)},
				{Name: "Baneos", Value: string(models.ActionBan)},
			},
		},
	).WithUserPermissions(discordgo.PermissionAdministrator)
}

func timeoutsHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	go func() {
		defer errors.RecoverMiddleware()()

		serverID := ctx.GetStringOption("servidor")
		actionFilter := models.ActionType(ctx.GetStringOption("tipo"))

		c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var (
			timeouts []models.ActiveTimeout
			err      error
		)
		if serverID != "" {
			timeouts, err = m.Registry.ListServer(c, serverID)
		} else {
			timeouts, err = m.Registry.LoadAll(c)
		}
		if err != nil {
			logger.Error(fmt.Sprintf("Error obteniendo timeouts: %v", err), "DevTimeouts")
			ctx.ReplyEphemeral("❌ Error al obtener las sanciones activas.")
			return
		}

		filtered := filterTimeouts(timeouts, actionFilter)
		embeds := timeoutEmbeds(filtered, m.Scheduler.Pending())

		if err := ctx.ReplyEphemeralEmbed(embeds[0]); err != nil {
			logger.Error(fmt.Sprintf("Error enviando respuesta: %v", err), "DevTimeouts")
			return
		}

		for _, embed := range embeds[1:] {
			if err := ctx.FollowUpEmbed(embed, true); err != nil {
				logger.Error(fmt.Sprintf("Error enviando follow-up: %v", err), "DevTimeouts")
				break
			}
			time.Sleep(100 * time.Millisecond) // rate limits
		}
	}()
	return nil
}

// filterTimeouts keeps the entries of one action, soonest to end first
func filterTimeouts(timeouts []models.ActiveTimeout, action models.ActionType) []models.ActiveTimeout {
	out := make([]models.ActiveTimeout, 0, len(timeouts))
	for _, t := range timeouts {
		if action != "" && t.Action != action {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndTime < out[j].EndTime })
	return out
}

// timeoutEmbeds always returns at least one embed
func timeoutEmbeds(timeouts []models.ActiveTimeout, pending int) []*discordgo.MessageEmbed {
	summary := fmt.Sprintf("%d sanciones registradas · %d temporizadores armados", len(timeouts), pending)
	if len(timeouts) == 0 {
		return []*discordgo.MessageEmbed{{
			Title:       "⏳ Sanciones temporales",
			Description: "No hay sanciones activas.\n" + summary,
			Color:       0xFFFF00,
			Timestamp:   time.Now().Format(time.RFC3339),
		}}
	}

	var embeds []*discordgo.MessageEmbed
	for i := 0; i < len(timeouts); i += timeoutsPerEmbed {
		end := i + timeoutsPerEmbed
		if end > len(timeouts) {
			end = len(timeouts)
		}

		embed := &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("⏳ Sanciones temporales (%d-%d de %d)", i+1, end, len(timeouts)),
			Description: summary,
			Color:       0x00BFFF,
			Timestamp:   time.Now().Format(time.RFC3339),
		}
		for _, t := range timeouts[i:end] {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%s · %s", t.Action, t.SubjectUserID),
				Value: fmt.Sprintf("Servidor `%s` · termina <t:%d:R> · timer #%d", t.ServerID, t.EndTime, t.Handle),
			})
		}
		embeds = append(embeds, embed)
	}
	return embeds
}
