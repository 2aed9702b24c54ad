package mod

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"30", 30 * time.Minute},
		{"45s", 45 * time.Second},
		{"30m", 30 * time.Minute},
		{"12h", 12 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1w2d", 9 * 24 * time.Hour},
		{" 1H30M ", 90 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationRejects(t *testing.T) {
	for _, input := range []string{"", "0", "-5", "0m", "h", "10x", "12h30", "1.5h"} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			_, err := parseDuration(input)
			assert.Error(t, err)
		})
	}
}

func TestParseDurationOverflow(t *testing.T) {
	for _, input := range []string{
		"307445734561825861",
		"153722868",
		"15251w",
		"106752d",
		"2562048h",
		"9223372037s",
		"106751d106751d",
	} {
		t.Run(input, func(t *testing.T) {
			got, err := parseDuration(input)
			assert.Error(t, err, "got %v", got)
		})
	}

	got, err := parseDuration("15000w")
	require.NoError(t, err)
	assert.Equal(t, 15000*7*24*time.Hour, got)
}

func TestMuteTooLong(t *testing.T) {
	assert.False(t, muteTooLong(models.ActionMute, 28*24*time.Hour))
	assert.True(t, muteTooLong(models.ActionMute, 28*24*time.Hour+time.Second))
	assert.False(t, muteTooLong(models.ActionBan, 365*24*time.Hour))
	assert.Equal(t, "❌ Un silencio no puede durar más de 4 semanas.", muteLimitMessage)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "2 horas 30 minutos", formatDuration(150*time.Minute))
	assert.Equal(t, "1 día", formatDuration(24*time.Hour))
	assert.Equal(t, "1 semana 2 días", formatDuration(9*24*time.Hour+3*time.Hour))
}

func TestRuleText(t *testing.T) {
	day := int64(86400)
	assert.Equal(t, "**3** advertencias → 🔇 Silencio durante 1 día",
		ruleText(models.WarnEscalationRule{WarnThreshold: 3, Action: models.ActionMute, DurationSeconds: &day}))
	assert.Equal(t, "**5** advertencias → 🔨 Baneo permanente",
		ruleText(models.WarnEscalationRule{WarnThreshold: 5, Action: models.ActionBan}))
	assert.Equal(t, "**4** advertencias → 👢 Expulsión",
		ruleText(models.WarnEscalationRule{WarnThreshold: 4, Action: models.ActionKick}))
}

func TestCaseEmbed(t *testing.T) {
	d := int64(3600)
	c := models.ModerationCase{
		ServerID:        "S",
		CaseID:          7,
		ModeratorID:     "M",
		SubjectUserID:   "U",
		Action:          models.ActionMute,
		DurationSeconds: &d,
		Timestamp:       1_700_000_000,
	}

	embed := caseEmbed(c, 1_700_003_600)
	assert.Equal(t, "🔇 Silencio | Caso #7", embed.Title)
	require.Len(t, embed.Fields, 5)
	assert.Equal(t, "Sin razón especificada", embed.Fields[2].Value)
	assert.Equal(t, "1 hora", embed.Fields[3].Value)
	assert.Equal(t, "<t:1700003600:R>", embed.Fields[4].Value)

	empty := ""
	c.Reason = &empty
	c.DurationSeconds = nil
	embed = caseEmbed(c, 0)
	assert.Len(t, embed.Fields, 3)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Los datos de la sanción no son válidos.",
		userMessage(fmt.Errorf("punish: %w", moderation.ErrInvalidSanction)))
	assert.Equal(t, "Ocurrió un error inesperado, inténtalo de nuevo.",
		userMessage(errors.New("boom")))
}

func TestCaseChoices(t *testing.T) {
	choices := caseChoices(40, "")
	require.Len(t, choices, maxCaseChoices)
	assert.Equal(t, "#40", choices[0].Name)
	assert.Equal(t, int64(16), choices[len(choices)-1].Value)

	choices = caseChoices(40, "3")
	require.Len(t, choices, 11)
	assert.Equal(t, int64(39), choices[0].Value)
	assert.Equal(t, int64(3), choices[10].Value)

	assert.Empty(t, caseChoices(0, ""))
}
