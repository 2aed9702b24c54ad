package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PancyStudios/PancyModBot/internal/moderation"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/bwmarrin/discordgo"
)

// MaxTimeout is the longest communication timeout Discord accepts
const MaxTimeout = moderation.MaxMuteDuration

// guildAPI is the part of *discordgo.Session the executor calls
type guildAPI interface {
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
}

// Executor applies moderation actions through the Discord API.
// A MUTE is a member timeout capped at MaxTimeout. Longer and permanent mutes
// are applied at the cap.
type Executor struct {
	api guildAPI
	now func() time.Time
}

// NewExecutor creates an executor on top of a session
func NewExecutor(s *discordgo.Session) *Executor {
	return &Executor{api: s, now: time.Now}
}

// muteUntil caps the timeout end to what Discord accepts
func (e *Executor) muteUntil(until time.Time) time.Time {
	limit := e.now().Add(MaxTimeout - time.Minute)
	if until.IsZero() || until.After(limit) {
		return limit
	}
	return until
}

// Apply performs action on userID
func (e *Executor) Apply(ctx context.Context, action models.ActionType, userID, serverID string, opts moderation.ApplyOptions) error {
	reqOpts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if opts.Reason != "" {
		reqOpts = append(reqOpts, discordgo.WithAuditLogReason(opts.Reason))
	}

	switch action {
	case models.ActionMute:
		until := e.muteUntil(opts.Until)
		return e.api.GuildMemberTimeout(serverID, userID, &until, reqOpts...)
	case models.ActionBan:
		return e.api.GuildBanCreateWithReason(serverID, userID, opts.Reason, 0, reqOpts...)
	case models.ActionKick:
		return e.api.GuildMemberDeleteWithReason(serverID, userID, opts.Reason, reqOpts...)
	}
	return fmt.Errorf("%w: apply %s", moderation.ErrUnsupportedAction, action)
}

// Reverse lifts a MUTE or BAN. A member that already left or a ban that is
// already gone counts as lifted.
func (e *Executor) Reverse(ctx context.Context, action models.ActionType, userID, serverID string) error {
	var err error
	switch action {
	case models.ActionMute:
		err = e.api.GuildMemberTimeout(serverID, userID, nil, discordgo.WithContext(ctx))
		if isRESTCode(err, discordgo.ErrCodeUnknownMember) {
			return nil
		}
	case models.ActionBan:
		err = e.api.GuildBanDelete(serverID, userID, discordgo.WithContext(ctx))
		if isRESTCode(err, discordgo.ErrCodeUnknownBan) {
			return nil
		}
	default:
		return fmt.Errorf("%w: reverse %s", moderation.ErrUnsupportedAction, action)
	}
	return err
}

func isRESTCode(err error, code int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	return restErr.Message.Code == code
}
