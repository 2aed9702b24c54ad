// Package mod provides the moderation commands, organized as subcommands
// under /mod, plus the mod-log channel reporter.
package mod

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/discord"
	"github.com/PancyStudios/PancyModBot/pkg/errors"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
	"github.com/hako/durafmt"
)

const (
	footerText     = "💫 - Developed by PancyStudios"
	commandTimeout = 15 * time.Second
)

var spanishUnits = mustUnits("año:años,semana:semanas,día:días,hora:horas,minuto:minutos,segundo:segundos,milisegundo:milisegundos,microsegundo:microsegundos")

func mustUnits(s string) durafmt.Units {
	units, err := durafmt.DefaultUnitsCoder.Decode(s)
	if err != nil {
		panic(fmt.Sprintf("mod: unidades de duración inválidas: %v", err))
	}
	return units
}

var unitSizes = map[rune]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// parseDuration reads durations such as "30m", "12h", "7d" or "1w2d".
// A bare number counts as minutes. Values that do not fit a time.Duration
// are rejected instead of wrapping around.
func parseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("duración vacía")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("la duración debe ser positiva")
		}
		return scaleDuration(n, time.Minute)
	}

	var total time.Duration
	num := ""
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			num += string(r)
		case unitSizes[r] != 0:
			if num == "" {
				return 0, fmt.Errorf("falta el número antes de %q", r)
			}
			n, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return 0, errDurationTooLong
			}
			part, err := scaleDuration(n, unitSizes[r])
			if err != nil {
				return 0, err
			}
			if total > math.MaxInt64-part {
				return 0, errDurationTooLong
			}
			total += part
			num = ""
		default:
			return 0, fmt.Errorf("unidad desconocida %q", r)
		}
	}
	if num != "" {
		return 0, fmt.Errorf("falta la unidad después de %s", num)
	}
	if total <= 0 {
		return 0, fmt.Errorf("la duración debe ser positiva")
	}
	return total, nil
}

var errDurationTooLong = stderrors.New("la duración es demasiado larga")

func scaleDuration(n int64, unit time.Duration) (time.Duration, error) {
	if n > math.MaxInt64/int64(unit) {
		return 0, errDurationTooLong
	}
	return time.Duration(n) * unit, nil
}

var muteLimitMessage = "❌ Un silencio no puede durar más de " + formatDuration(moderation.MaxMuteDuration) + "."

// muteTooLong reports whether d exceeds the longest timeout Discord accepts
func muteTooLong(action models.ActionType, d time.Duration) bool {
	return action == models.ActionMute && d > moderation.MaxMuteDuration
}

// formatDuration renders d in Spanish, e.g. "2 horas 30 minutos"
func formatDuration(d time.Duration) string {
	return durafmt.Parse(d).LimitFirstN(2).Format(spanishUnits)
}

// reasonPtr keeps "no reason" distinct from an empty reason
func reasonPtr(ctx *discord.CommandContext) *string {
	opt := ctx.GetOption("razon")
	if opt == nil {
		return nil
	}
	r := opt.StringValue()
	return &r
}

func reasonText(reason *string) string {
	if reason == nil || *reason == "" {
		return "Sin razón especificada"
	}
	return *reason
}

var actionStyle = map[models.ActionType]struct {
	emoji string
	label string
	color int
}{
	models.ActionWarn:   {"⚠️", "Advertencia", 0xFFA500},
	models.ActionMute:   {"🔇", "Silencio", 0xE67E22},
	models.ActionKick:   {"👢", "Expulsión", 0xE74C3C},
	models.ActionBan:    {"🔨", "Baneo", 0xC0392B},
	models.ActionUnmute: {"🔊", "Fin de silencio", 0x2ECC71},
	models.ActionUnban:  {"🕊️", "Desbaneo", 0x2ECC71},
}

// caseEmbed renders a case for replies and the mod-log channel
func caseEmbed(c models.ModerationCase, endTime int64) *discordgo.MessageEmbed {
	style := actionStyle[c.Action]
	fields := []*discordgo.MessageEmbedField{
		{Name: "Usuario", Value: fmt.Sprintf("<@%s> (`%s`)", c.SubjectUserID, c.SubjectUserID), Inline: true},
		{Name: "Moderador", Value: fmt.Sprintf("<@%s>", c.ModeratorID), Inline: true},
		{Name: "Razón", Value: reasonText(c.Reason)},
	}
	if c.DurationSeconds != nil {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Duración",
			Value:  formatDuration(time.Duration(*c.DurationSeconds) * time.Second),
			Inline: true,
		})
	}
	if endTime > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Termina",
			Value:  fmt.Sprintf("<t:%d:R>", endTime),
			Inline: true,
		})
	}

	return &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("%s %s | Caso #%d", style.emoji, style.label, c.CaseID),
		Color:     style.color,
		Fields:    fields,
		Timestamp: time.Unix(c.Timestamp, 0).Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: footerText},
	}
}

func errorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Description: "❌ " + message,
		Color:       0xFF0000,
	}
}

// runDeferred acknowledges the interaction and runs fn off the gateway
// goroutine. fn returns the embed that replaces the deferred answer.
func runDeferred(ctx *discord.CommandContext, name string, fn func(c context.Context) (*discordgo.MessageEmbed, error)) error {
	if err := ctx.Defer(); err != nil {
		return err
	}

	go func() {
		defer errors.RecoverMiddleware()()

		c, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		embed, err := fn(c)
		if err != nil {
			logger.Error(fmt.Sprintf("Error en /mod %s: %v", name, err), "CMD-Mod")
			embed = errorEmbed(userMessage(err))
		}
		if err := ctx.EditReplyEmbed(embed); err != nil {
			logger.Error(fmt.Sprintf("Error respondiendo /mod %s: %v", name, err), "CMD-Mod")
		}
	}()
	return nil
}

// userMessage turns an error into something a moderator can act on
func userMessage(err error) string {
	var restErr *discordgo.RESTError
	switch {
	case stderrors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == 403:
		return "No tengo permisos suficientes sobre ese usuario."
	case stderrors.Is(err, moderation.ErrInvalidSanction):
		return "Los datos de la sanción no son válidos."
	case stderrors.Is(err, models.ErrInvalidRecord):
		return "Los datos indicados no son válidos."
	}
	return "Ocurrió un error inesperado, inténtalo de nuevo."
}

// userOption returns the target user, refusing bots and the caller
func userOption(ctx *discord.CommandContext) (*discordgo.User, string) {
	user := ctx.GetUserOption("usuario")
	if user == nil {
		return nil, "Debes especificar un usuario."
	}
	if user.ID == ctx.User().ID {
		return nil, "No puedes sancionarte a ti mismo."
	}
	if ctx.Session.State != nil && ctx.Session.State.User != nil && user.ID == ctx.Session.State.User.ID {
		return nil, "No puedo sancionarme a mí mismo."
	}
	return user, ""
}
