// Package mod - /mod modlog command and the mod-log reporter
package mod

import (
	"context"
	"fmt"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

// createModLogCommand creates the /mod modlog subcommand
func createModLogCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"modlog",
		"Configura el canal donde se registran los casos",
		"mod",
		func(ctx *discord.CommandContext) error { return modLogHandler(ctx, m) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "canal",
			Description:  "Canal de registros. Vacío para desactivarlo",
			Required:     false,
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
		},
	).WithUserPermissions(discordgo.PermissionManageGuild).
		InGuild()
}

// modLogHandler handles the /mod modlog command
func modLogHandler(ctx *discord.CommandContext, m *moderation.Moderator) error {
	serverID := ctx.Interaction.GuildID

	var channelID *string
	if ctx.GetOption("canal") != nil {
		ch := ctx.GetChannelOption("canal")
		if ch == nil {
			return ctx.ReplyEphemeral("❌ Canal inválido.")
		}
		channelID = &ch.ID
	}

	return runDeferred(ctx, "modlog", func(c context.Context) (*discordgo.MessageEmbed, error) {
		if err := m.Ledger.SetModLogChannel(c, serverID, channelID); err != nil {
			return nil, err
		}
		description := "✅ Registro de casos desactivado."
		if channelID != nil {
			description = fmt.Sprintf("✅ Los casos se registrarán en <#%s>.", *channelID)
		}
		return &discordgo.MessageEmbed{
			Description: description,
			Color:       0x00FF00,
			Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		}, nil
	})
}

// channelSender is the part of *discordgo.Session the notifier uses
type channelSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ModLogNotifier posts every new case to the server's mod-log channel
type ModLogNotifier struct {
	sender channelSender
	ledger *moderation.CaseLedger
}

// NewModLogNotifier creates a notifier for the given session
func NewModLogNotifier(s *discordgo.Session, ledger *moderation.CaseLedger) *ModLogNotifier {
	return &ModLogNotifier{sender: s, ledger: ledger}
}

// NotifyCase sends the case embed when the server has a mod-log channel
func (n *ModLogNotifier) NotifyCase(ctx context.Context, c models.ModerationCase, endTime int64) {
	channelID, ok, err := n.ledger.ModLogChannel(ctx, c.ServerID)
	if err != nil {
		logger.Warn(fmt.Sprintf("No se pudo leer el canal de registros de %s: %v", c.ServerID, err), "ModLog")
		return
	}
	if !ok {
		return
	}
	if _, err := n.sender.ChannelMessageSendEmbed(channelID, caseEmbed(c, endTime), discordgo.WithContext(ctx)); err != nil {
		logger.Warn(fmt.Sprintf("No se pudo enviar el caso #%d a %s: %v", c.CaseID, channelID, err), "ModLog")
	}
}
