// Package discord provides the Discord bot client and related structures.
// It wraps discordgo with additional functionality for command and event handling.
package discord

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/bwmarrin/discordgo"
)

// discordgo.Logger is a package-level func; route it through our logger
// keeping its severity
func init() {
	discordgo.Logger = func(msgL int, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			logger.Error(msg, "DiscordGo")
		case discordgo.LogWarning:
			logger.Warn(msg, "DiscordGo")
		default:
			logger.Debug(msg, "DiscordGo")
		}
	}
}

// ExtendedClient wraps discordgo.Session with additional functionality
type ExtendedClient struct {
	Session        *discordgo.Session
	Commands       *CommandCollection
	CommandHandler *CommandHandler
	EventHandler   *EventHandler
	StartTime      time.Time
	mu             sync.RWMutex
	isReady        bool
	syncOnce       sync.Once
}

// CommandCollection holds registered commands
type CommandCollection struct {
	commands map[string]*Command
	mu       sync.RWMutex
}

// NewCommandCollection creates a new CommandCollection
func NewCommandCollection() *CommandCollection {
	return &CommandCollection{
		commands: make(map[string]*Command),
	}
}

// Set adds or updates a command
func (cc *CommandCollection) Set(name string, cmd *Command) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.commands[name] = cmd
}

// Get retrieves a command by name
func (cc *CommandCollection) Get(name string) (*Command, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	cmd, ok := cc.commands[name]
	return cmd, ok
}

// Size returns the number of commands
func (cc *CommandCollection) Size() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.commands)
}

var (
	client *ExtendedClient
	once   sync.Once
)

// Init initializes the global Discord client
func Init(token string) (*ExtendedClient, error) {
	var err error
	once.Do(func() {
		client, err = NewClient(token)
	})
	return client, err
}

// Get returns the global Discord client
func Get() *ExtendedClient {
	return client
}

// NewClient creates a new ExtendedClient
func NewClient(token string) (*ExtendedClient, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans

	// Configure session
	session.ShardCount = 1 // Auto sharding equivalent
	session.SyncEvents = false
	session.StateEnabled = true
	session.LogLevel = discordgo.LogWarning

	c := &ExtendedClient{
		Session:  session,
		Commands: NewCommandCollection(),
		isReady:  false,
	}

	// Initialize handlers
	c.CommandHandler = NewCommandHandler(c)
	c.EventHandler = NewEventHandler(c)

	return c, nil
}

// Start checks that commands and events are in place and opens the gateway.
// Commands are pushed to Discord on the first Ready only; later Ready events
// after a reconnect reuse them.
func (c *ExtendedClient) Start() error {
	if err := c.CommandHandler.LoadCommands(); err != nil {
		return fmt.Errorf("load commands: %w", err)
	}
	if err := c.EventHandler.LoadEvents(); err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	c.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		c.mu.Lock()
		c.isReady = true
		c.mu.Unlock()

		logger.Success(fmt.Sprintf("Bot conectado como %s en %d servidores", r.User.Username, len(r.Guilds)), "Client")
		c.syncOnce.Do(func() {
			go c.CommandHandler.RegisterCommands()
		})
	})
	c.Session.AddHandler(func(s *discordgo.Session, d *discordgo.Disconnect) {
		c.mu.Lock()
		c.isReady = false
		c.mu.Unlock()
	})
	c.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Resumed) {
		c.mu.Lock()
		c.isReady = true
		c.mu.Unlock()
	})
	c.Session.AddHandler(c.handleInteraction)

	c.StartTime = time.Now()
	return c.Session.Open()
}

// commandPath builds the registry key of an invocation: "name",
// "name.sub" or "name.group.sub"
func commandPath(data discordgo.ApplicationCommandInteractionData) string {
	if len(data.Options) == 0 {
		return data.Name
	}
	opt := data.Options[0]
	switch opt.Type {
	case discordgo.ApplicationCommandOptionSubCommandGroup:
		if len(opt.Options) > 0 {
			return data.Name + "." + opt.Name + "." + opt.Options[0].Name
		}
	case discordgo.ApplicationCommandOptionSubCommand:
		return data.Name + "." + opt.Name
	}
	return data.Name
}

// handleInteraction routes slash commands and autocomplete requests to the
// registered command, recovering from panics in command code
func (c *ExtendedClient) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand && i.Type != discordgo.InteractionApplicationCommandAutocomplete {
		return
	}
	defer errors.RecoverMiddleware()()

	path := commandPath(i.ApplicationCommandData())
	cmd, ok := c.Commands.Get(path)
	if !ok {
		if i.Type == discordgo.InteractionApplicationCommand {
			logger.Warn("Comando no encontrado: "+path, "Client")
		}
		return
	}

	ctx := &CommandContext{Session: s, Interaction: i, Client: c}

	if i.Type == discordgo.InteractionApplicationCommandAutocomplete {
		if cmd.AutoComplete != nil {
			cmd.AutoComplete(ctx)
		}
		return
	}

	if err := c.PermissionMiddleware(ctx, cmd); err != nil {
		return
	}

	started := time.Now()
	if err := cmd.Run(ctx); err != nil {
		logger.Error(fmt.Sprintf("Error ejecutando /%s: %v", strings.ReplaceAll(path, ".", " "), err), "Client")
		return
	}
	logger.Debug(fmt.Sprintf("/%s ejecutado por %s en %v", strings.ReplaceAll(path, ".", " "), ctx.User().ID, time.Since(started)), "Client")
}

// Stop stops the bot and closes the session
func (c *ExtendedClient) Stop() error {
	c.mu.Lock()
	c.isReady = false
	c.mu.Unlock()

	if c.Session != nil {
		return c.Session.Close()
	}
	return nil
}

// IsReady returns true if the bot is ready
func (c *ExtendedClient) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isReady
}

// GuildCount returns the number of guilds the bot is in
func (c *ExtendedClient) GuildCount() int {
	if c.Session == nil || c.Session.State == nil {
		return 0
	}
	c.Session.State.RLock()
	defer c.Session.State.RUnlock()
	return len(c.Session.State.Guilds)
}

