package dev

import (
	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
)

// Register adds the /dev group, synced only to the dev guild
func Register(client *discord.ExtendedClient, m *moderation.Moderator) {
	devGroup := client.CommandHandler.BuildCommandGroup(
		"dev",
		"Diagnóstico del núcleo de moderación",
		CreateTimeoutsCommand(m),
	)
	client.CommandHandler.AddDevCommand(devGroup)
}
