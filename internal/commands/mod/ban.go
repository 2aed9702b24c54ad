// Package mod - /mod ban and /mod unban commands
package mod

import (
	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

// createBanCommand creates the /mod ban subcommand
func createBanCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"ban",
		"Banea a un usuario del servidor",
		"mod",
		func(ctx *discord.CommandContext) error { return sanctionHandler(ctx, m, models.ActionBan) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "usuario",
			Description: "Usuario a banear",
			Required:    true,
		},
		durationOption,
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "razon",
			Description: "Razón del baneo",
			Required:    false,
		},
	).WithUserPermissions(discordgo.PermissionBanMembers).
		WithBotPermissions(discordgo.PermissionBanMembers).
		InGuild()
}

// createUnbanCommand creates the /mod unban subcommand
func createUnbanCommand(m *moderation.Moderator) *discord.Command {
	return discord.NewCommand(
		"unban",
		"Retira el baneo de un usuario",
		"mod",
		func(ctx *discord.CommandContext) error { return revokeHandler(ctx, m, models.ActionBan) },
	).WithOptions(
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "usuario",
			Description: "Usuario a desbanear (ID)",
			Required:    true,
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "razon",
			Description: "Razón",
			Required:    false,
		},
	).WithUserPermissions(discordgo.PermissionBanMembers).
		WithBotPermissions(discordgo.PermissionBanMembers).
		InGuild()
}
