// Package discord provides the command handler for building and syncing slash commands.
package discord

import (
	"fmt"
	"sort"

	"github.com/PancyStudios/PancyModBot/pkg/config"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/bwmarrin/discordgo"
)

// CommandHandler keeps the slash command definitions and pushes them to Discord
type CommandHandler struct {
	client           *ExtendedClient
	slashCommands    []*discordgo.ApplicationCommand
	slashCommandsDev []*discordgo.ApplicationCommand
}

// NewCommandHandler creates a new CommandHandler
func NewCommandHandler(client *ExtendedClient) *CommandHandler {
	return &CommandHandler{
		client:           client,
		slashCommands:    make([]*discordgo.ApplicationCommand, 0),
		slashCommandsDev: make([]*discordgo.ApplicationCommand, 0),
	}
}

// LoadCommands reports the commands registered so far. Commands are added
// programmatically before Start.
func (ch *CommandHandler) LoadCommands() error {
	if ch.client.Commands.Size() == 0 {
		return fmt.Errorf("no commands registered")
	}
	logger.System(fmt.Sprintf("Comandos cargados: %d (%d globales, %d de desarrollo)",
		ch.client.Commands.Size(), len(ch.slashCommands), len(ch.slashCommandsDev)), "CommandHandler")
	return nil
}

func subcommandOptions(prefix string, collection *CommandCollection, subcommands []*Command) []*discordgo.ApplicationCommandOption {
	options := make([]*discordgo.ApplicationCommandOption, 0, len(subcommands))
	for _, cmd := range subcommands {
		collection.Set(prefix+"."+cmd.Name, cmd)
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        cmd.Name,
			Description: cmd.Description,
			Options:     cmd.Options,
		})
	}
	return options
}

// BuildCommandGroup creates a top-level command whose subcommands dispatch as "name.sub"
func (ch *CommandHandler) BuildCommandGroup(name, description string, subcommands ...*Command) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        name,
		Description: description,
		Options:     subcommandOptions(name, ch.client.Commands, subcommands),
	}
}

// BuildSubcommandGroup creates a subcommand group dispatching as "group.name.sub"
func (ch *CommandHandler) BuildSubcommandGroup(groupName, name, description string, subcommands ...*Command) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
		Name:        name,
		Description: description,
		Options:     subcommandOptions(groupName+"."+name, ch.client.Commands, subcommands),
	}
}

// AddGlobalCommand adds a command to the global command list
func (ch *CommandHandler) AddGlobalCommand(cmd *discordgo.ApplicationCommand) {
	ch.slashCommands = append(ch.slashCommands, cmd)
}

// AddDevCommand adds a command to the dev guild command list
func (ch *CommandHandler) AddDevCommand(cmd *discordgo.ApplicationCommand) {
	ch.slashCommandsDev = append(ch.slashCommandsDev, cmd)
}

// Definitions returns the global or dev command definitions held in code
func (ch *CommandHandler) Definitions(dev bool) []*discordgo.ApplicationCommand {
	if dev {
		return ch.slashCommandsDev
	}
	return ch.slashCommands
}

func (ch *CommandHandler) appID() string {
	return ch.client.Session.State.User.ID
}

// RegisterCommands pushes the global commands and, when a dev guild is
// configured, the dev commands. Stale commands are dropped by the overwrite.
func (ch *CommandHandler) RegisterCommands() {
	if err := ch.SyncCommands(); err != nil {
		logger.Error("Error registrando comandos globales: "+err.Error(), "CommandHandler")
	}

	devGuild := config.Get().DevGuildID
	if devGuild == "" || len(ch.slashCommandsDev) == 0 {
		return
	}
	if err := ch.SyncGuildCommands(devGuild); err != nil {
		logger.Error("Error registrando comandos de desarrollo: "+err.Error(), "CommandHandler")
	}
}

// ListGlobalCommands returns the global commands Discord currently has
func (ch *CommandHandler) ListGlobalCommands() ([]*discordgo.ApplicationCommand, error) {
	return ch.client.Session.ApplicationCommands(ch.appID(), "")
}

// ListGuildCommands returns the commands registered in one guild
func (ch *CommandHandler) ListGuildCommands(guildID string) ([]*discordgo.ApplicationCommand, error) {
	return ch.client.Session.ApplicationCommands(ch.appID(), guildID)
}

// UnregisterCommands removes every global command
func (ch *CommandHandler) UnregisterCommands() error {
	return ch.UnregisterGuildCommands("")
}

// UnregisterGuildCommands removes every command of guildID, or the global
// ones when guildID is empty
func (ch *CommandHandler) UnregisterGuildCommands(guildID string) error {
	_, err := ch.client.Session.ApplicationCommandBulkOverwrite(ch.appID(), guildID, []*discordgo.ApplicationCommand{})
	return err
}

// SyncCommands replaces the global commands with the ones defined in code
func (ch *CommandHandler) SyncCommands() error {
	created, err := ch.client.Session.ApplicationCommandBulkOverwrite(ch.appID(), "", ch.slashCommands)
	if err != nil {
		return err
	}
	logger.Success(fmt.Sprintf("✅ %d comandos globales sincronizados", len(created)), "CommandHandler")
	return nil
}

// SyncGuildCommands replaces the commands of guildID with the dev commands
func (ch *CommandHandler) SyncGuildCommands(guildID string) error {
	created, err := ch.client.Session.ApplicationCommandBulkOverwrite(ch.appID(), guildID, ch.slashCommandsDev)
	if err != nil {
		return err
	}
	logger.Success(fmt.Sprintf("✅ %d comandos de desarrollo sincronizados en %s", len(created), guildID), "CommandHandler")
	return nil
}

// CommandDiff lists what a sync would change on Discord
type CommandDiff struct {
	Missing []string
	Stale   []string
	Kept    []string
}

// DiffCommands compares the local definitions against what Discord has, by name
func DiffCommands(local, remote []*discordgo.ApplicationCommand) CommandDiff {
	want := make(map[string]bool, len(local))
	for _, c := range local {
		want[c.Name] = true
	}

	var d CommandDiff
	have := make(map[string]bool, len(remote))
	for _, c := range remote {
		have[c.Name] = true
		if want[c.Name] {
			d.Kept = append(d.Kept, c.Name)
		} else {
			d.Stale = append(d.Stale, c.Name)
		}
	}
	for name := range want {
		if !have[name] {
			d.Missing = append(d.Missing, name)
		}
	}

	sort.Strings(d.Missing)
	sort.Strings(d.Stale)
	sort.Strings(d.Kept)
	return d
}
