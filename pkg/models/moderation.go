package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRecord is returned when a row read from or written to storage
// does not satisfy the invariants of its table.
var ErrInvalidRecord = errors.New("invalid moderation record")

// ActionType is the kind of moderation action recorded in a case
type ActionType string

const (
	ActionWarn   ActionType = "WARN"
	ActionMute   ActionType = "MUTE"
	ActionKick   ActionType = "KICK"
	ActionBan    ActionType = "BAN"
	ActionUnmute ActionType = "UNMUTE"
	ActionUnban  ActionType = "UNBAN"
)

// ParseActionType converts user or storage input into an ActionType
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(strings.ToUpper(strings.TrimSpace(s)))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: unknown action type %q", ErrInvalidRecord, s)
	}
	return a, nil
}

// IsValid reports whether the action is one of the known types
func (a ActionType) IsValid() bool {
	switch a {
	case ActionWarn, ActionMute, ActionKick, ActionBan, ActionUnmute, ActionUnban:
		return true
	}
	return false
}

// Reversible reports whether the action can be time-bound and undone later
func (a ActionType) Reversible() bool {
	return a == ActionMute || a == ActionBan
}

// Reversal returns the action logged when a sanction of type a is undone.
func (a ActionType) Reversal() (ActionType, bool) {
	switch a {
	case ActionMute:
		return ActionUnmute, true
	case ActionBan:
		return ActionUnban, true
	}
	return "", false
}

// ModerationCase is one entry of a server's case ledger.
// Reason is nil when no reason was given; an empty string is kept as is.
type ModerationCase struct {
	ServerID        string     `bson:"serverId" json:"serverId"`
	CaseID          int64      `bson:"caseId" json:"caseId"`
	ModeratorID     string     `bson:"modId" json:"modId"`
	SubjectUserID   string     `bson:"userId" json:"userId"`
	Action          ActionType `bson:"type" json:"type"`
	Reason          *string    `bson:"reason" json:"reason"`
	DurationSeconds *int64     `bson:"timeout" json:"timeout"`
	Timestamp       int64      `bson:"timestamp" json:"timestamp"`
}

// Validate checks the invariants every stored case must hold
func (c ModerationCase) Validate() error {
	switch {
	case c.ServerID == "":
		return fmt.Errorf("%w: case without server id", ErrInvalidRecord)
	case c.CaseID <= 0:
		return fmt.Errorf("%w: case id %d must be positive", ErrInvalidRecord, c.CaseID)
	case c.ModeratorID == "" || c.SubjectUserID == "":
		return fmt.Errorf("%w: case %d missing moderator or subject", ErrInvalidRecord, c.CaseID)
	case !c.Action.IsValid():
		return fmt.Errorf("%w: case %d has action %q", ErrInvalidRecord, c.CaseID, c.Action)
	case c.DurationSeconds != nil && *c.DurationSeconds <= 0:
		return fmt.Errorf("%w: case %d has non-positive duration", ErrInvalidRecord, c.CaseID)
	}
	return nil
}

// TimerHandle identifies an armed timer inside the running process
type TimerHandle int64

// ActiveTimeout is a time-bound sanction that still has to be reversed
type ActiveTimeout struct {
	ServerID      string      `bson:"serverId" json:"serverId"`
	SubjectUserID string      `bson:"userId" json:"userId"`
	Action        ActionType  `bson:"type" json:"type"`
	EndTime       int64       `bson:"endTime" json:"endTime"`
	Handle        TimerHandle `bson:"timerId" json:"timerId"`
}

// Validate checks the invariants every stored timeout must hold
func (t ActiveTimeout) Validate() error {
	switch {
	case t.ServerID == "" || t.SubjectUserID == "":
		return fmt.Errorf("%w: timeout missing server or user", ErrInvalidRecord)
	case !t.Action.Reversible():
		return fmt.Errorf("%w: action %q cannot be time-bound", ErrInvalidRecord, t.Action)
	case t.EndTime <= 0:
		return fmt.Errorf("%w: timeout end time %d", ErrInvalidRecord, t.EndTime)
	}
	return nil
}

// WarnEscalationRule maps a warn count to an automatic follow-up action.
// A nil duration means the action is permanent.
type WarnEscalationRule struct {
	ServerID        string     `bson:"serverId" json:"serverId"`
	WarnThreshold   int        `bson:"numWarns" json:"numWarns"`
	Action          ActionType `bson:"type" json:"type"`
	DurationSeconds *int64     `bson:"duration" json:"duration"`
}

// Validate checks the invariants every stored rule must hold
func (r WarnEscalationRule) Validate() error {
	switch {
	case r.ServerID == "":
		return fmt.Errorf("%w: rule without server id", ErrInvalidRecord)
	case r.WarnThreshold <= 0:
		return fmt.Errorf("%w: warn threshold %d must be positive", ErrInvalidRecord, r.WarnThreshold)
	case r.Action != ActionMute && r.Action != ActionKick && r.Action != ActionBan:
		return fmt.Errorf("%w: escalation to %q is not supported", ErrInvalidRecord, r.Action)
	case r.DurationSeconds != nil && !r.Action.Reversible():
		return fmt.Errorf("%w: %s cannot carry a duration", ErrInvalidRecord, r.Action)
	case r.DurationSeconds != nil && *r.DurationSeconds <= 0:
		return fmt.Errorf("%w: rule duration must be positive", ErrInvalidRecord)
	}
	return nil
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string { return &s }

// Int64Ptr returns a pointer to v
func Int64Ptr(v int64) *int64 { return &v }
