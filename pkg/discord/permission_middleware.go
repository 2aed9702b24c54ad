package discord

import (
	"fmt"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/bwmarrin/discordgo"
)

// errDenied stops a command before it runs; the user already got an answer
var errDenied = fmt.Errorf("command denied")

// hasPermissions reports whether granted contains every bit of required.
// Administrators pass every check.
func hasPermissions(granted, required int64) bool {
	if granted&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return granted&required == required
}

func deniedEmbed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       0xFF0000,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

// PermissionMiddleware checks that a command runs inside a server and that
// both the member and the bot hold the permissions it declares
func (c *ExtendedClient) PermissionMiddleware(ctx *CommandContext, cmd *Command) error {
	if cmd.UserPermissions == 0 && cmd.BotPermissions == 0 && !cmd.GuildOnly {
		return nil
	}

	member := ctx.Member()
	if ctx.Interaction.GuildID == "" || member == nil {
		ctx.ReplyEphemeralEmbed(deniedEmbed("🚫 Solo en servidores", "Este comando solo puede usarse dentro de un servidor."))
		return errDenied
	}

	if cmd.UserPermissions != 0 && !hasPermissions(member.Permissions, cmd.UserPermissions) {
		ctx.ReplyEphemeralEmbed(deniedEmbed("🚫 Permisos insuficientes", "No tienes permisos para usar este comando."))
		logger.Warn(fmt.Sprintf("%s intentó usar %s sin permisos en %s", member.User.ID, cmd.Name, ctx.Interaction.GuildID), "PermissionMiddleware")
		return errDenied
	}

	if cmd.BotPermissions != 0 && !hasPermissions(ctx.Interaction.AppPermissions, cmd.BotPermissions) {
		ctx.ReplyEphemeralEmbed(deniedEmbed("🚫 Me faltan permisos", "No tengo los permisos necesarios para ejecutar este comando."))
		return errDenied
	}

	return nil
}
