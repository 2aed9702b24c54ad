// Package main is the entry point for the PancyModBot application.
// It initializes all systems and starts the Discord bot.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/commands"
	"github.com/PancyStudios/PancyModBot/internal/commands/mod"
	"github.com/PancyStudios/PancyModBot/internal/events"
	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/config"
	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/mqtt"
	"github.com/PancyStudios/PancyModBot/pkg/web"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.Init(cfg.ErrorWebhook, cfg.LogsWebhook)
	defer log.Close()

	logger.System("Iniciando PancyModBot...", "Main")
	logger.Info(fmt.Sprintf("Directorio de trabajo: %s", getCurrentDir()), "Main")

	// Initialize error handler
	var discordClient *discord.ExtendedClient
	var moderator *moderation.Moderator
	errHandler := errors.Init(cfg.ErrorWebhook, func() {
		if moderator != nil {
			moderator.Stop()
		}
		if discordClient != nil {
			if err := discordClient.Stop(); err != nil {
				logger.Error(fmt.Sprintf("Error cerrando la sesión de Discord: %v", err), "Main")
			}
		}
	})
	defer errHandler.Stop()

	// Initialize storage; the moderation core cannot run without it
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Init(ctx, database.Options{
		Driver:     cfg.StorageDriver,
		SQLitePath: cfg.SQLitePath,
		MongoURL:   cfg.MongoDBURL,
		DBName:     cfg.DBName,
	})
	cancel()
	if err != nil {
		logger.Critical(fmt.Sprintf("Error abriendo el almacenamiento: %v", err), "Main")
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error(fmt.Sprintf("Error cerrando el almacenamiento: %v", err), "Main")
		}
	}()

	// Initialize MQTT
	var mqttClient *mqtt.MqttCommunicator
	if cfg.MQTTHost != "" {
		mqttClientID := "pancymodbot"
		if !cfg.IsProd() {
			mqttClientID = "pancymodbot_canary"
		}
		mqttClient = mqtt.Init(
			cfg.MQTTHost,
			cfg.MQTTPort,
			cfg.MQTTUser,
			cfg.MQTTPassword,
			mqttClientID,
		)
		defer mqttClient.Destroy()
	} else {
		logger.Warn("MQTT no configurado, los eventos de moderación no se publicarán", "Main")
	}

	// Initialize Discord client
	discordClient, err = discord.Init(cfg.BotToken)
	if err != nil {
		logger.Critical(fmt.Sprintf("Error creating Discord client: %v", err), "Main")
		os.Exit(1)
	}

	// Moderation core
	opts := moderation.Options{
		Store:    db,
		Executor: discord.NewExecutor(discordClient.Session),
		Alerter:  errHandler,
		Retry: moderation.RetryPolicy{
			MaxTries:        cfg.ExpiryMaxTries,
			InitialInterval: cfg.ExpiryInitialBackoff,
			MaxInterval:     cfg.ExpiryMaxBackoff,
		},
		CacheSize: cfg.ModLogCacheSize,
	}
	if mqttClient != nil {
		opts.Publisher = mqttClient
	}
	moderator, err = moderation.New(opts)
	if err != nil {
		logger.Critical(fmt.Sprintf("Error creando el núcleo de moderación: %v", err), "Main")
		os.Exit(1)
	}
	defer moderator.Stop()
	moderator.SetNotifier(mod.NewModLogNotifier(discordClient.Session, moderator.Ledger))

	if mqttClient != nil {
		mqttClient.RegisterModerationHandlers(moderator.Registry, moderator.Ledger)
	}

	// Initialize web server
	webServer := web.Init(cfg.LogsWebServerHook)
	web.SetupAPIRoutes(webServer, &web.API{Store: db, Moderator: moderator, Bot: discordClient})
	webServer.StartAsync(cfg.Port)

	// Register commands using the commands package
	commands.RegisterAll(discordClient, moderator)

	// Register events using the events package
	events.RegisterAll(discordClient, moderator)

	// Start the bot
	if err := discordClient.Start(); err != nil {
		logger.Critical(fmt.Sprintf("Error starting Discord client: %v", err), "Main")
		os.Exit(1)
	}
	defer func() {
		if err := discordClient.Stop(); err != nil {
			logger.Error(fmt.Sprintf("Error cerrando la sesión de Discord: %v", err), "Main")
		}
	}()

	logger.Success("PancyModBot iniciado correctamente!", "Main")

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.System("Apagando PancyModBot...", "Main")
}

// getCurrentDir returns the current working directory
func getCurrentDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "unknown"
	}
	return dir
}
