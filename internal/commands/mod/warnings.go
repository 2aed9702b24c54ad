// Package mod - /mod warns and /mod case commands
package mod

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

// maxListedCases keeps the history embed under Discord's size limits
const maxListedCases = 15

// createWarningsCommand creates the /mod warns subcommand
func createWarningsCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"warns",
		"Muestra el historial de sanciones de un usuario",
		"mod",
		func(ctx *discord.CommandContext) error { return warningsHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "usuario",
			Description: "Usuario a consultar",
			Required:    true,
		},
	).WithUserPermissions(discordgo.PermissionModerateMembers).
		InGuild()
}

// warningsHandler handles the /mod warns command
func warningsHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	user := ctx.GetUserOption("usuario")
	if user == nil {
		return ctx.ReplyEphemeral("❌ Debes especificar un usuario.")
	}
	serverID := ctx.Interaction.GuildID

	return runDeferred(ctx, "warns", func(c context.Context) (*discordgo.MessageEmbed, error) {
		cases, err := m.Ledger.Cases(c, serverID, user.ID)
		if err != nil {
			return nil, err
		}
		warns, err := m.Ledger.CountWarns(c, serverID, user.ID)
		if err != nil {
			return nil, err
		}

		embed := &discordgo.MessageEmbed{
			Title:     "📋 Historial de " + user.Username,
			Color:     0x3498DB,
			Thumbnail: &discordgo.MessageEmbedThumbnail{URL: user.AvatarURL("128")},
			Footer:    &discordgo.MessageEmbedFooter{Text: footerText},
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if len(cases) == 0 {
			embed.Description = "✅ Este usuario no tiene sanciones registradas."
			return embed, nil
		}

		// newest first
		var lines []string
		for i := len(cases) - 1; i >= 0 && len(lines) < maxListedCases; i-- {
			lines = append(lines, caseLine(cases[i]))
		}
		if hidden := len(cases) - len(lines); hidden > 0 {
			lines = append(lines, fmt.Sprintf("*... y %d caso(s) más*", hidden))
		}
		embed.Description = fmt.Sprintf("**Advertencias:** %d · **Casos:** %d\n\n%s", warns, len(cases), strings.Join(lines, "\n"))
		return embed, nil
	})
}

func caseLine(c models.ModerationCase) string {
	return fmt.Sprintf("`#%d` <t:%d:d> %s **%s** · %s", c.CaseID, c.Timestamp, actionStyle[c.Action].emoji, c.Action, reasonText(c.Reason))
}

// createCaseCommand creates the /mod case subcommand
func createCaseCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"case",
		"Muestra un caso de moderación",
		"mod",
		func(ctx *discord.CommandContext) error { return caseHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "caso",
			Description: "Número del caso",
			Required:     true,
			MinValue:     &minCaseID,
			Autocomplete: true,
		},
	).WithUserPermissions(discordgo.PermissionModerateMembers).
		WithAutoComplete(func(ctx *discord.CommandContext) { caseAutoComplete(ctx, m) }).
		InGuild()
}

var minCaseID = 1.0

// maxCaseChoices is Discord's cap on autocomplete results
const maxCaseChoices = 25

// caseAutoComplete suggests the newest case numbers matching what has been typed
func caseAutoComplete(ctx *discord.CommandContext, m *moderation.Moderator) {
	typed := ""
	if opt := ctx.GetOption("caso"); opt != nil && opt.Value != nil {
		typed = strings.TrimSpace(fmt.Sprint(opt.Value))
	}

	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	last, err := m.Ledger.LastCaseID(c, ctx.Interaction.GuildID)
	if err != nil {
		logger.Debug(fmt.Sprintf("Error sugiriendo casos: %v", err), "CMD-Mod")
		last = 0
	}

	choices := caseChoices(last, typed)
	if err := ctx.Session.InteractionRespond(ctx.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		logger.Debug(fmt.Sprintf("Error respondiendo autocompletado: %v", err), "CMD-Mod")
	}
}

// caseChoices lists case numbers from last downwards whose digits start with prefix
func caseChoices(last int64, prefix string) []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxCaseChoices)
	for id := last; id >= 1 && len(choices) < maxCaseChoices; id-- {
		name := strconv.FormatInt(id, 10)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: "#" + name, Value: id})
	}
	return choices
}

// caseHandler handles the /mod case command
func caseHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	caseID := ctx.GetIntOption("caso")
	serverID := ctx.Interaction.GuildID

	return runDeferred(ctx, "case", func(c context.Context) (*discordgo.MessageEmbed, error) {
		found, err := m.Ledger.Case(c, serverID, caseID)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return errorEmbed(fmt.Sprintf("No existe el caso #%d.", caseID)), nil
		}
		return caseEmbed(*found, 0), nil
	})
}
