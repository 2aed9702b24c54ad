package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
)

// EscalationPolicy maps a user's warn count to an automatic follow-up action.
// Several rules may share a threshold; the first one added is the one applied.
type EscalationPolicy struct {
	store database.Gateway
}

// NewEscalationPolicy creates a policy on top of store
func NewEscalationPolicy(store database.Gateway) *EscalationPolicy {
	return &EscalationPolicy{store: store}
}

// Lookup returns the rule whose threshold equals warnCount exactly
func (p *EscalationPolicy) Lookup(ctx context.Context, serverID string, warnCount int) (*models.WarnEscalationRule, error) {
	return p.store.FindWarnRule(ctx, serverID, warnCount)
}

// Add stores a rule. A nil duration makes the action permanent.
func (p *EscalationPolicy) Add(ctx context.Context, serverID string, threshold int, action models.ActionType, duration *int64) error {
	if action == models.ActionMute && duration != nil && *duration > int64(MaxMuteDuration/time.Second) {
		return fmt.Errorf("%w: mute longer than %v", models.ErrInvalidRecord, MaxMuteDuration)
	}
	rule := models.WarnEscalationRule{
		ServerID:        serverID,
		WarnThreshold:   threshold,
		Action:          action,
		DurationSeconds: duration,
	}
	if err := p.store.InsertWarnRule(ctx, rule); err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("Regla de escalado añadida en %s: %d advertencias -> %s", serverID, threshold, action), "Escalation")
	return nil
}

// List returns the rules of a server ordered by threshold, then insertion
func (p *EscalationPolicy) List(ctx context.Context, serverID string) ([]models.WarnEscalationRule, error) {
	return p.store.ListWarnRules(ctx, serverID)
}

// ResetAll removes every rule of the server
func (p *EscalationPolicy) ResetAll(ctx context.Context, serverID string) error {
	n, err := p.store.DeleteWarnRules(ctx, serverID)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("%d reglas de escalado eliminadas en %s", n, serverID), "Escalation")
	return nil
}
