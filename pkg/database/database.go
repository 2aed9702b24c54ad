// Package database provides durable storage for the moderation core.
// Every component reaches the store through the Gateway interface; each
// method is one logical operation and runs atomically on the backend.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
)

// UpsertMode selects what a timeout upsert does on a key collision
type UpsertMode int

const (
	// KeepEndTime only replaces the timer handle of an existing row
	KeepEndTime UpsertMode = iota
	// RefreshEndTime replaces both the end time and the timer handle
	RefreshEndTime
)

// Gateway is the transactional access layer to the moderation tables.
// "Not found" is reported through nil/false results, never as an error.
type Gateway interface {
	// InsertCase assigns the next case id of c.ServerID (highest existing
	// id + 1) and stores the case in the same atomic unit.
	InsertCase(ctx context.Context, c models.ModerationCase) (int64, error)
	LastCaseID(ctx context.Context, serverID string) (int64, error)
	GetCase(ctx context.Context, serverID string, caseID int64) (*models.ModerationCase, error)
	ListCases(ctx context.Context, serverID, userID string) ([]models.ModerationCase, error)
	CountCases(ctx context.Context, serverID, userID string, action models.ActionType) (int, error)
	// DeleteCase removes the case only when its type matches action
	DeleteCase(ctx context.Context, serverID string, caseID int64, action models.ActionType) (bool, error)

	GetModLogChannel(ctx context.Context, serverID string) (string, bool, error)
	SetModLogChannel(ctx context.Context, serverID string, channelID *string) error

	InsertWarnRule(ctx context.Context, r models.WarnEscalationRule) error
	// FindWarnRule returns the first inserted rule for the exact threshold
	FindWarnRule(ctx context.Context, serverID string, numWarns int) (*models.WarnEscalationRule, error)
	ListWarnRules(ctx context.Context, serverID string) ([]models.WarnEscalationRule, error)
	DeleteWarnRules(ctx context.Context, serverID string) (int64, error)

	UpsertTimeout(ctx context.Context, t models.ActiveTimeout, mode UpsertMode) error
	GetTimeout(ctx context.Context, serverID, userID string, action models.ActionType) (*models.ActiveTimeout, error)
	// TakeTimeout reads and deletes the row in one atomic unit
	TakeTimeout(ctx context.Context, serverID, userID string, action models.ActionType) (*models.ActiveTimeout, error)
	// ListTimeouts lists one server's timeouts, or all of them when serverID is empty
	ListTimeouts(ctx context.Context, serverID string) ([]models.ActiveTimeout, error)

	Ping(ctx context.Context) (time.Duration, error)
	Close() error
}

// Driver names accepted by Open
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Options describes how to reach the store
type Options struct {
	Driver     string
	SQLitePath string
	MongoURL   string
	DBName     string
}

var (
	gateway Gateway
	dbOnce  sync.Once
)

// Init opens the global gateway once
func Init(ctx context.Context, opts Options) (Gateway, error) {
	var err error
	dbOnce.Do(func() {
		gateway, err = Open(ctx, opts)
	})
	return gateway, err
}

// Get returns the global gateway, nil before Init
func Get() Gateway {
	return gateway
}

// Open connects to the backend named by opts.Driver
func Open(ctx context.Context, opts Options) (Gateway, error) {
	logger.System(fmt.Sprintf("Abriendo almacenamiento (%s)...", opts.Driver), "DB")

	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.SQLitePath)
	case DriverMongo:
		return OpenMongo(ctx, opts.MongoURL, opts.DBName)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

// Status returns a human readable connection status for g
func Status(ctx context.Context, g Gateway) (string, bool) {
	if g == nil {
		return "🔴 | Desconectado", false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := g.Ping(ctx); err != nil {
		return "🔴 | Desconectado", false
	}
	return "🟢 | En linea", true
}

// validateAll checks rows read from storage before they leave the package
func validateAll[T interface{ Validate() error }](rows []T) error {
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
