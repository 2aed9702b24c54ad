// Package config provides configuration management for the bot.
// It loads environment variables and makes them available throughout the application.
package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	BotToken   string
	DevGuildID string

	// Storage
	StorageDriver string
	SQLitePath    string
	MongoDBURL    string
	DBName        string

	// MQTT
	MQTTHost     string
	MQTTPort     string
	MQTTUser     string
	MQTTPassword string

	// Web Server
	Port string

	// Environment
	Environment string

	// Webhooks
	ErrorWebhook      string
	LogsWebhook       string
	LogsWebServerHook string
	GuildsWebhook     string

	// Moderation
	ExpiryMaxTries       uint
	ExpiryInitialBackoff time.Duration
	ExpiryMaxBackoff     time.Duration
	ModLogCacheSize      int
}

var (
	Version   = "Dev-Local"
	BuildTime = "Hoy"
)

var (
	cfg     *Config
	cfgOnce sync.Once
)

// resetForTesting resets the configuration for testing purposes.
// This function should only be called from test code.
func resetForTesting() {
	cfg = nil
	cfgOnce = sync.Once{}
}

func loadConfig() {
	// Load .env file if it exists (ignoring error if it doesn't)
	_ = godotenv.Load()

	cfg = &Config{
		BotToken:   getEnv("botToken", ""),
		DevGuildID: getEnv("devGuildId", ""),

		StorageDriver: getEnv("storageDriver", "sqlite"),
		SQLitePath:    getEnv("sqlitePath", "./data/moderation.db"),
		MongoDBURL:    getEnv("mongodbUrl", "mongodb://localhost:27017"),
		DBName:        getEnv("dbName", "PancyModBot"),

		MQTTHost:     getEnv("MQTT_Host", "localhost"),
		MQTTPort:     getEnv("MQTT_Port", "1883"),
		MQTTUser:     getEnv("MQTT_User", ""),
		MQTTPassword: getEnv("MQTT_Password", ""),

		Port: getEnv("PORT", "3000"),

		Environment: getEnv("enviroment", "dev"),

		ErrorWebhook:      getEnv("errorWebhook", ""),
		LogsWebhook:       getEnv("logsWebhook", ""),
		LogsWebServerHook: getEnv("logsWebServerWebhook", ""),
		GuildsWebhook:     getEnv("guildsWebhook", ""),

		ExpiryMaxTries:       uint(getEnvInt("expiryMaxTries", 5)),
		ExpiryInitialBackoff: getEnvDuration("expiryInitialBackoff", 2*time.Second),
		ExpiryMaxBackoff:     getEnvDuration("expiryMaxBackoff", time.Minute),
		ModLogCacheSize:      getEnvInt("modLogCacheSize", 512),
	}
}

// Load initializes the configuration from environment variables
func Load() (*Config, error) {
	cfgOnce.Do(loadConfig)
	return cfg, nil
}

// Get returns the current configuration
func Get() *Config {
	cfgOnce.Do(loadConfig)
	return cfg
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt reads a positive integer, falling back on missing or bad values
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// getEnvDuration reads a Go duration such as "2s" or "1m30s"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// IsProd returns true if the environment is production
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
