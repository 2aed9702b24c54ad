package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/models"
)

var (
	// ErrUnsupportedAction is returned for actions the executor cannot apply or undo
	ErrUnsupportedAction = errors.New("unsupported moderation action")
	// ErrReversalExhausted is returned when every attempt to undo a sanction failed
	ErrReversalExhausted = errors.New("sanction reversal retries exhausted")
	// ErrInvalidSanction is returned for malformed Punish or Revoke requests
	ErrInvalidSanction = errors.New("invalid sanction")
)

// MaxMuteDuration is the longest MUTE the platform can enforce
const MaxMuteDuration = 28 * 24 * time.Hour

// ApplyOptions carries the optional parts of a platform action
type ApplyOptions struct {
	Reason string
	// Until is zero for permanent sanctions
	Until time.Time
}

// ActionExecutor performs sanctions on the chat platform
type ActionExecutor interface {
	Apply(ctx context.Context, action models.ActionType, userID, serverID string, opts ApplyOptions) error
	Reverse(ctx context.Context, action models.ActionType, userID, serverID string) error
}

// EventPublisher broadcasts moderation events to other services
type EventPublisher interface {
	Publish(topic string, payload interface{}) error
}

// Alerter raises an operator alert for failures nobody will see in a channel
type Alerter interface {
	Alert(title, message string)
}

// CaseNotifier reports a recorded case to the server's mod-log channel.
// endTime is zero unless the case is a time-bound sanction.
type CaseNotifier interface {
	NotifyCase(ctx context.Context, c models.ModerationCase, endTime int64)
}

// Event topics
const (
	TopicCase    = "pancy/moderation/case"
	TopicExpired = "pancy/moderation/expired"
	TopicAlert   = "pancy/moderation/alert"
)

// CaseEvent is published for every recorded case
type CaseEvent struct {
	Case    models.ModerationCase `json:"case"`
	EndTime int64                 `json:"endTime,omitempty"`
}

// ExpiryEvent is published when a timeout ends, or fails to end
type ExpiryEvent struct {
	ServerID string            `json:"serverId"`
	UserID   string            `json:"userId"`
	Action   models.ActionType `json:"type"`
	EndTime  int64             `json:"endTime"`
	CaseID   int64             `json:"caseId,omitempty"`
	Error    string            `json:"error,omitempty"`
}
