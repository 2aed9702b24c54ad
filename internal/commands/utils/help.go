package utils

import (
	"fmt"
	"strings"

	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/bwmarrin/discordgo"
)

const durationHelp = "Duraciones: `30m`, `12h`, `7d`, `1w2d`. Sin duración la sanción es permanente."

// createHelpCommand creates the /utils help subcommand. The text is built
// from the registered definitions, so it never lists a command that is gone.
func createHelpCommand(client *discord.ExtendedClient) *discord.Command {
	return discord.NewCommand(
		"help",
		"Muestra información de ayuda",
		"utils",
		func(ctx *discord.CommandContext) error {
			return ctx.ReplyEphemeralEmbed(helpEmbed(client.CommandHandler.Definitions(false)))
		},
	)
}

func helpEmbed(defs []*discordgo.ApplicationCommand) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:  "📖 Ayuda de PancyModBot",
		Color:  0x00AE86,
		Footer: &discordgo.MessageEmbedFooter{Text: durationHelp},
	}
	for _, def := range defs {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "/" + def.Name,
			Value: strings.Join(helpLines("/"+def.Name, def.Options), "\n"),
		})
	}
	return embed
}

// helpLines renders one "• `/mod warn <usuario> [razón]` - description" line
// per subcommand, descending into subcommand groups
func helpLines(path string, options []*discordgo.ApplicationCommandOption) []string {
	var lines []string
	for _, opt := range options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommandGroup:
			lines = append(lines, helpLines(path+" "+opt.Name, opt.Options)...)
		case discordgo.ApplicationCommandOptionSubCommand:
			lines = append(lines, fmt.Sprintf("• `%s` - %s", usage(path+" "+opt.Name, opt.Options), opt.Description))
		}
	}
	return lines
}

func usage(path string, args []*discordgo.ApplicationCommandOption) string {
	var b strings.Builder
	b.WriteString(path)
	for _, arg := range args {
		if arg.Required {
			fmt.Fprintf(&b, " <%s>", arg.Name)
		} else {
			fmt.Fprintf(&b, " [%s]", arg.Name)
		}
	}
	return b.String()
}
