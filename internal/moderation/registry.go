package moderation

import (
	"context"
	"fmt"

	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
)

// TimeoutRegistry is the durable record of active time-bound sanctions,
// one row per (server, user, action).
type TimeoutRegistry struct {
	store database.Gateway
}

// NewTimeoutRegistry creates a registry on top of store
func NewTimeoutRegistry(store database.Gateway) *TimeoutRegistry {
	return &TimeoutRegistry{store: store}
}

func newTimeout(endTime int64, userID string, action models.ActionType, serverID string, h models.TimerHandle) models.ActiveTimeout {
	return models.ActiveTimeout{
		ServerID:      serverID,
		SubjectUserID: userID,
		Action:        action,
		EndTime:       endTime,
		Handle:        h,
	}
}

// Put stores a timeout. When the key already exists only the handle is
// replaced and the stored end time is kept.
func (r *TimeoutRegistry) Put(ctx context.Context, endTime int64, userID string, action models.ActionType, serverID string, h models.TimerHandle) error {
	t := newTimeout(endTime, userID, action, serverID, h)
	if err := r.store.UpsertTimeout(ctx, t, database.KeepEndTime); err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("Timeout %s de %s en %s registrado (timer #%d)", action, userID, serverID, h), "Timeouts")
	return nil
}

// Replace stores a timeout, overwriting both end time and handle of an
// existing row. Used when a sanction is applied again with a new duration.
func (r *TimeoutRegistry) Replace(ctx context.Context, endTime int64, userID string, action models.ActionType, serverID string, h models.TimerHandle) error {
	t := newTimeout(endTime, userID, action, serverID, h)
	if err := r.store.UpsertTimeout(ctx, t, database.RefreshEndTime); err != nil {
		return err
	}
	logger.Debug(fmt.Sprintf("Timeout %s de %s en %s reemplazado (timer #%d)", action, userID, serverID, h), "Timeouts")
	return nil
}

// Remove deletes the timeout and returns the handle it carried.
// found is false when there was nothing to remove.
func (r *TimeoutRegistry) Remove(ctx context.Context, userID string, action models.ActionType, serverID string) (h models.TimerHandle, found bool, err error) {
	t, err := r.store.TakeTimeout(ctx, serverID, userID, action)
	if err != nil {
		return 0, false, err
	}
	if t == nil {
		return 0, false, nil
	}
	return t.Handle, true, nil
}

// Get returns the stored timeout, or nil
func (r *TimeoutRegistry) Get(ctx context.Context, userID string, action models.ActionType, serverID string) (*models.ActiveTimeout, error) {
	return r.store.GetTimeout(ctx, serverID, userID, action)
}

// LoadAll returns every stored timeout ordered by server, user and action
func (r *TimeoutRegistry) LoadAll(ctx context.Context) ([]models.ActiveTimeout, error) {
	return r.store.ListTimeouts(ctx, "")
}

// ListServer returns the timeouts of one server
func (r *TimeoutRegistry) ListServer(ctx context.Context, serverID string) ([]models.ActiveTimeout, error) {
	return r.store.ListTimeouts(ctx, serverID)
}
