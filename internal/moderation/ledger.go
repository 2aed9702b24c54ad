package moderation

import (
	"context"
	"fmt"

	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// channelEntry caches a mod-log lookup, including "no channel"
type channelEntry struct {
	channelID string
	ok        bool
}

// CaseLedger is the per-server log of moderation actions
type CaseLedger struct {
	store    database.Gateway
	locks    *keyedMutex
	channels *lru.Cache[string, channelEntry]
}

// NewCaseLedger creates a ledger. cacheSize bounds the mod-log channel cache.
func NewCaseLedger(store database.Gateway, cacheSize int) (*CaseLedger, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	channels, err := lru.New[string, channelEntry](cacheSize)
	if err != nil {
		return nil, err
	}
	return &CaseLedger{
		store:    store,
		locks:    newKeyedMutex(),
		channels: channels,
	}, nil
}

// Record appends a case and returns its id. Ids of one server are handed out
// one writer at a time: last id + 1, starting at 1.
func (l *CaseLedger) Record(
	ctx context.Context,
	serverID, moderatorID, subjectID string,
	action models.ActionType,
	timestamp int64,
	reason *string,
	duration *int64,
) (int64, error) {
	unlock := l.locks.Lock(serverID)
	defer unlock()

	caseID, err := l.store.InsertCase(ctx, models.ModerationCase{
		ServerID:        serverID,
		ModeratorID:     moderatorID,
		SubjectUserID:   subjectID,
		Action:          action,
		Reason:          reason,
		DurationSeconds: duration,
		Timestamp:       timestamp,
	})
	if err != nil {
		return 0, err
	}

	logger.Info(fmt.Sprintf("Caso #%d (%s) registrado en %s para %s", caseID, action, serverID, subjectID), "Ledger")
	return caseID, nil
}

// LastCaseID returns the highest case id of the server, 0 if none
func (l *CaseLedger) LastCaseID(ctx context.Context, serverID string) (int64, error) {
	return l.store.LastCaseID(ctx, serverID)
}

// CountWarns counts the WARN cases of a user
func (l *CaseLedger) CountWarns(ctx context.Context, serverID, userID string) (int, error) {
	return l.store.CountCases(ctx, serverID, userID, models.ActionWarn)
}

// DeleteWarn removes a WARN case. It reports false when the case does not
// exist or is not a warn. Other case ids are left untouched.
func (l *CaseLedger) DeleteWarn(ctx context.Context, serverID string, caseID int64) (bool, error) {
	unlock := l.locks.Lock(serverID)
	defer unlock()

	ok, err := l.store.DeleteCase(ctx, serverID, caseID, models.ActionWarn)
	if err != nil {
		return false, err
	}
	if ok {
		logger.Info(fmt.Sprintf("Advertencia #%d eliminada en %s", caseID, serverID), "Ledger")
	}
	return ok, nil
}

// Case returns one case, or nil
func (l *CaseLedger) Case(ctx context.Context, serverID string, caseID int64) (*models.ModerationCase, error) {
	return l.store.GetCase(ctx, serverID, caseID)
}

// Cases returns the history of a user ordered by case id
func (l *CaseLedger) Cases(ctx context.Context, serverID, userID string) ([]models.ModerationCase, error) {
	return l.store.ListCases(ctx, serverID, userID)
}

// ModLogChannel returns the channel where cases of the server are reported
func (l *CaseLedger) ModLogChannel(ctx context.Context, serverID string) (string, bool, error) {
	if e, ok := l.channels.Get(serverID); ok {
		return e.channelID, e.ok, nil
	}

	channelID, ok, err := l.store.GetModLogChannel(ctx, serverID)
	if err != nil {
		return "", false, err
	}
	l.channels.Add(serverID, channelEntry{channelID: channelID, ok: ok})
	return channelID, ok, nil
}

// SetModLogChannel sets the report channel; nil clears it
func (l *CaseLedger) SetModLogChannel(ctx context.Context, serverID string, channelID *string) error {
	unlock := l.locks.Lock(serverID)
	defer unlock()

	// drop the cached value first so a failed write never leaves it stale
	l.channels.Remove(serverID)
	return l.store.SetModLogChannel(ctx, serverID, channelID)
}
