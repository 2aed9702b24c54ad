// Package main syncs PancyModBot's slash commands with Discord without
// starting the moderation core.
//
// Usage:
//
//	go run ./cmd/sync-commands [-diff | -list | -clean] [-dev | -guild <id>]
//
// With no action flag the commands defined in code replace the remote ones.
// -dev targets the configured dev guild with the dev commands.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/PancyStudios/PancyModBot/internal/commands"
	"github.com/PancyStudios/PancyModBot/pkg/config"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
)

const prefix = "SyncCommands"

type target struct {
	guildID string
	dev     bool
}

func (t target) String() string {
	if t.guildID == "" {
		return "globales"
	}
	return "del servidor " + t.guildID
}

func main() {
	diff := flag.Bool("diff", false, "Show what a sync would add and remove")
	list := flag.Bool("list", false, "List the commands Discord has")
	clean := flag.Bool("clean", false, "Remove every command of the target")
	dev := flag.Bool("dev", false, "Target the dev guild from the configuration")
	guildID := flag.String("guild", "", "Target a specific guild with the dev commands")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.ErrorWebhook, cfg.LogsWebhook)
	defer log.Close()

	t := target{guildID: *guildID, dev: *guildID != ""}
	if *dev {
		if cfg.DevGuildID == "" {
			logger.Critical("-dev requiere devGuildId en la configuración", prefix)
			os.Exit(1)
		}
		t = target{guildID: cfg.DevGuildID, dev: true}
	}

	client, err := discord.NewClient(cfg.BotToken)
	if err != nil {
		logger.Critical(fmt.Sprintf("Error creando el cliente de Discord: %v", err), prefix)
		os.Exit(1)
	}
	if err := client.Session.Open(); err != nil {
		logger.Critical(fmt.Sprintf("Error conectando a Discord: %v", err), prefix)
		os.Exit(1)
	}
	defer client.Session.Close()

	// handlers never run here, only the definitions matter
	commands.RegisterAll(client, nil)

	switch {
	case *list:
		err = listCommands(client, t)
	case *diff:
		err = diffCommands(client, t)
	case *clean:
		err = client.CommandHandler.UnregisterGuildCommands(t.guildID)
		if err == nil {
			logger.Success("🧹 Comandos "+t.String()+" eliminados", prefix)
		}
	case t.dev:
		err = client.CommandHandler.SyncGuildCommands(t.guildID)
	default:
		err = client.CommandHandler.SyncCommands()
	}
	if err != nil {
		logger.Error(fmt.Sprintf("Operación fallida: %v", err), prefix)
		os.Exit(1)
	}
}

func listCommands(client *discord.ExtendedClient, t target) error {
	cmds, err := client.CommandHandler.ListGuildCommands(t.guildID)
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		logger.Info("No hay comandos "+t.String(), prefix)
		return nil
	}

	logger.Info(fmt.Sprintf("📋 %d comandos %s:", len(cmds), t), prefix)
	for _, cmd := range cmds {
		logger.Info(fmt.Sprintf("  /%s - %s (ID: %s)", cmd.Name, cmd.Description, cmd.ID), prefix)
	}
	return nil
}

func diffCommands(client *discord.ExtendedClient, t target) error {
	remote, err := client.CommandHandler.ListGuildCommands(t.guildID)
	if err != nil {
		return err
	}

	d := discord.DiffCommands(client.CommandHandler.Definitions(t.dev), remote)
	logger.Info(fmt.Sprintf("Comandos %s: %d sin cambios", t, len(d.Kept)), prefix)
	if len(d.Missing) > 0 {
		logger.Info("  + "+strings.Join(d.Missing, ", "), prefix)
	}
	if len(d.Stale) > 0 {
		logger.Warn("  - "+strings.Join(d.Stale, ", "), prefix)
	}
	if len(d.Missing) == 0 && len(d.Stale) == 0 {
		logger.Success("Todo sincronizado", prefix)
	}
	return nil
}
