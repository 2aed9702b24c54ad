package discord

import (
	"reflect"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func noop(ctx *CommandContext) error { return nil }

// TestCommandBuilder verifies the builder methods used by the /mod commands
func TestCommandBuilder(t *testing.T) {
	option := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "usuario",
		Description: "Usuario",
		Required:    true,
	}

	cmd := NewCommand("ban", "Banea", "mod", noop).
		WithOptions(option).
		WithUserPermissions(discordgo.PermissionBanMembers).
		WithBotPermissions(discordgo.PermissionBanMembers).
		InGuild()

	if cmd.Name != "ban" || cmd.Category != "mod" || cmd.Run == nil {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if len(cmd.Options) != 1 || cmd.Options[0].Name != "usuario" {
		t.Errorf("Options = %v", cmd.Options)
	}
	if cmd.UserPermissions != discordgo.PermissionBanMembers || cmd.BotPermissions != discordgo.PermissionBanMembers {
		t.Errorf("permissions = %d/%d", cmd.UserPermissions, cmd.BotPermissions)
	}
	if !cmd.GuildOnly {
		t.Error("InGuild() should mark the command guild only")
	}
	if cmd.IsDev {
		t.Error("command should not be dev only")
	}
	if !NewCommand("timeouts", "", "dev", noop).AsDev().IsDev {
		t.Error("AsDev() should mark the command dev only")
	}
}

// TestToApplicationCommandPermissions verifies that permissions and guild
// scope reach the registered command
func TestToApplicationCommandPermissions(t *testing.T) {
	cmd := NewCommand("ban", "Ban", "mod", noop).
		WithUserPermissions(discordgo.PermissionBanMembers).
		InGuild()

	appCmd := cmd.ToApplicationCommand()

	if appCmd.DefaultMemberPermissions == nil || *appCmd.DefaultMemberPermissions != discordgo.PermissionBanMembers {
		t.Errorf("DefaultMemberPermissions = %v, want %v", appCmd.DefaultMemberPermissions, discordgo.PermissionBanMembers)
	}
	if appCmd.DMPermission == nil || *appCmd.DMPermission {
		t.Error("guild-only commands must not be usable in DMs")
	}

	plain := NewCommand("ping", "Ping", "utils", noop).ToApplicationCommand()
	if plain.DefaultMemberPermissions != nil || plain.DMPermission != nil {
		t.Error("plain commands should not restrict permissions")
	}
}

func TestBuildCommandGroupRegistersPaths(t *testing.T) {
	client := &ExtendedClient{Commands: NewCommandCollection()}
	ch := NewCommandHandler(client)

	group := ch.BuildCommandGroup("mod", "Moderación",
		NewCommand("warn", "Advierte", "mod", noop),
		NewCommand("ban", "Banea", "mod", noop),
	)
	rules := ch.BuildSubcommandGroup("mod", "warnrule", "Reglas",
		NewCommand("add", "Añade", "mod", noop),
	)
	group.Options = append(group.Options, rules)
	ch.AddGlobalCommand(group)

	for _, path := range []string{"mod.warn", "mod.ban", "mod.warnrule.add"} {
		if _, ok := client.Commands.Get(path); !ok {
			t.Errorf("command %q not registered", path)
		}
	}
	if client.Commands.Size() != 3 {
		t.Errorf("Size() = %d, want 3", client.Commands.Size())
	}
	if rules.Type != discordgo.ApplicationCommandOptionSubCommandGroup || len(rules.Options) != 1 {
		t.Errorf("unexpected subcommand group %+v", rules)
	}
	if got := ch.Definitions(false); len(got) != 1 || got[0].Name != "mod" {
		t.Errorf("Definitions(false) = %v", got)
	}
	if got := ch.Definitions(true); len(got) != 0 {
		t.Errorf("Definitions(true) = %v", got)
	}
	if err := ch.LoadCommands(); err != nil {
		t.Errorf("LoadCommands() error = %v", err)
	}
}

func TestLoadCommandsEmpty(t *testing.T) {
	ch := NewCommandHandler(&ExtendedClient{Commands: NewCommandCollection()})
	if err := ch.LoadCommands(); err == nil {
		t.Error("expected an error without commands")
	}
}

func TestCommandPath(t *testing.T) {
	tests := []struct {
		name string
		data discordgo.ApplicationCommandInteractionData
		want string
	}{
		{
			name: "top level",
			data: discordgo.ApplicationCommandInteractionData{Name: "ping"},
			want: "ping",
		},
		{
			name: "subcommand",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "mod",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "warn", Type: discordgo.ApplicationCommandOptionSubCommand},
				},
			},
			want: "mod.warn",
		},
		{
			name: "subcommand group",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "mod",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name: "warnrule",
						Type: discordgo.ApplicationCommandOptionSubCommandGroup,
						Options: []*discordgo.ApplicationCommandInteractionDataOption{
							{Name: "list", Type: discordgo.ApplicationCommandOptionSubCommand},
						},
					},
				},
			},
			want: "mod.warnrule.list",
		},
		{
			name: "plain option",
			data: discordgo.ApplicationCommandInteractionData{
				Name: "help",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "tema", Type: discordgo.ApplicationCommandOptionString},
				},
			},
			want: "help",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandPath(tt.data); got != tt.want {
				t.Errorf("commandPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiffCommands(t *testing.T) {
	local := []*discordgo.ApplicationCommand{{Name: "mod"}, {Name: "utils"}}
	remote := []*discordgo.ApplicationCommand{{Name: "utils"}, {Name: "music"}, {Name: "premium"}}

	got := DiffCommands(local, remote)
	want := CommandDiff{
		Missing: []string{"mod"},
		Stale:   []string{"music", "premium"},
		Kept:    []string{"utils"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiffCommands() = %+v, want %+v", got, want)
	}

	if d := DiffCommands(nil, nil); d.Missing != nil || d.Stale != nil || d.Kept != nil {
		t.Errorf("empty diff = %+v", d)
	}
}

func TestHasPermissions(t *testing.T) {
	tests := []struct {
		name     string
		granted  int64
		required int64
		want     bool
	}{
		{"exact", discordgo.PermissionBanMembers, discordgo.PermissionBanMembers, true},
		{"superset", discordgo.PermissionBanMembers | discordgo.PermissionKickMembers, discordgo.PermissionKickMembers, true},
		{"missing", discordgo.PermissionKickMembers, discordgo.PermissionBanMembers, false},
		{"partial", discordgo.PermissionKickMembers, discordgo.PermissionKickMembers | discordgo.PermissionBanMembers, false},
		{"administrator", discordgo.PermissionAdministrator, discordgo.PermissionManageGuild, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasPermissions(tt.granted, tt.required); got != tt.want {
				t.Errorf("hasPermissions() = %v, want %v", got, tt.want)
			}
		})
	}
}
