package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteGateway implements Gateway on a single SQLite file.
// The pool holds one connection, so transactions never race each other.
type SQLiteGateway struct {
	db *sql.DB
}

// Ensure SQLiteGateway implements the interface at compile time.
var _ Gateway = (*SQLiteGateway)(nil)

// OpenSQLite opens (and creates if needed) the database at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteGateway, error) {
	if path == "" {
		path = filepath.Join(".", "data", "moderation.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	logger.Success("Base de datos SQLite lista: "+path, "DB")
	return &SQLiteGateway{db: db}, nil
}

// withTx runs fn inside one transaction and commits when it returns nil
func (s *SQLiteGateway) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ========== Cases ==========

func (s *SQLiteGateway) InsertCase(ctx context.Context, c models.ModerationCase) (int64, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var last int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(caseId), 0) FROM moderationLogs WHERE serverId = ?`,
			c.ServerID,
		).Scan(&last)
		if err != nil {
			return fmt.Errorf("read last case id: %w", err)
		}

		c.CaseID = last + 1
		if err := c.Validate(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO moderationLogs (serverId, caseId, modId, userId, type, reason, timeout, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ServerID, c.CaseID, c.ModeratorID, c.SubjectUserID, string(c.Action),
			nullString(c.Reason), nullInt64(c.DurationSeconds), c.Timestamp)
		if err != nil {
			return fmt.Errorf("insert case: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return c.CaseID, nil
}

func (s *SQLiteGateway) LastCaseID(ctx context.Context, serverID string) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(caseId), 0) FROM moderationLogs WHERE serverId = ?`, serverID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read last case id: %w", err)
	}
	return last, nil
}

const caseColumns = `serverId, caseId, modId, userId, type, reason, timeout, timestamp`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (models.ModerationCase, error) {
	var c models.ModerationCase
	var action string
	var reason sql.NullString
	var timeout sql.NullInt64
	if err := row.Scan(&c.ServerID, &c.CaseID, &c.ModeratorID, &c.SubjectUserID,
		&action, &reason, &timeout, &c.Timestamp); err != nil {
		return c, err
	}
	c.Action = models.ActionType(action)
	if reason.Valid {
		c.Reason = &reason.String
	}
	if timeout.Valid {
		c.DurationSeconds = &timeout.Int64
	}
	return c, c.Validate()
}

func (s *SQLiteGateway) GetCase(ctx context.Context, serverID string, caseID int64) (*models.ModerationCase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM moderationLogs WHERE serverId = ? AND caseId = ?`,
		serverID, caseID)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteGateway) ListCases(ctx context.Context, serverID, userID string) ([]models.ModerationCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+caseColumns+` FROM moderationLogs WHERE serverId = ? AND userId = ? ORDER BY caseId`,
		serverID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []models.ModerationCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (s *SQLiteGateway) CountCases(ctx context.Context, serverID, userID string, action models.ActionType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM moderationLogs WHERE serverId = ? AND userId = ? AND type = ?`,
		serverID, userID, string(action),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return n, nil
}

func (s *SQLiteGateway) DeleteCase(ctx context.Context, serverID string, caseID int64, action models.ActionType) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM moderationLogs WHERE serverId = ? AND caseId = ? AND type = ?`,
		serverID, caseID, string(action))
	if err != nil {
		return false, fmt.Errorf("delete case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ========== Settings ==========

func (s *SQLiteGateway) GetModLogChannel(ctx context.Context, serverID string) (string, bool, error) {
	var channel sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT channelId FROM moderationSettings WHERE serverId = ?`, serverID,
	).Scan(&channel)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read mod log channel: %w", err)
	}
	return channel.String, channel.Valid, nil
}

func (s *SQLiteGateway) SetModLogChannel(ctx context.Context, serverID string, channelID *string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderationSettings (serverId, channelId) VALUES (?, ?)
		ON CONFLICT(serverId) DO UPDATE SET channelId = excluded.channelId
	`, serverID, nullString(channelID))
	if err != nil {
		return fmt.Errorf("set mod log channel: %w", err)
	}
	return nil
}

// ========== Warn escalation ==========

func (s *SQLiteGateway) InsertWarnRule(ctx context.Context, r models.WarnEscalationRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderationWarnSettings (serverId, numWarns, type, duration) VALUES (?, ?, ?, ?)`,
		r.ServerID, r.WarnThreshold, string(r.Action), nullInt64(r.DurationSeconds))
	if err != nil {
		return fmt.Errorf("insert warn rule: %w", err)
	}
	return nil
}

func scanRule(row rowScanner) (models.WarnEscalationRule, error) {
	var r models.WarnEscalationRule
	var action string
	var duration sql.NullInt64
	if err := row.Scan(&r.ServerID, &r.WarnThreshold, &action, &duration); err != nil {
		return r, err
	}
	r.Action = models.ActionType(action)
	if duration.Valid {
		r.DurationSeconds = &duration.Int64
	}
	return r, r.Validate()
}

func (s *SQLiteGateway) FindWarnRule(ctx context.Context, serverID string, numWarns int) (*models.WarnEscalationRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT serverId, numWarns, type, duration FROM moderationWarnSettings
		WHERE serverId = ? AND numWarns = ? ORDER BY id LIMIT 1
	`, serverID, numWarns)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteGateway) ListWarnRules(ctx context.Context, serverID string) ([]models.WarnEscalationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT serverId, numWarns, type, duration FROM moderationWarnSettings
		WHERE serverId = ? ORDER BY numWarns, id
	`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.WarnEscalationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *SQLiteGateway) DeleteWarnRules(ctx context.Context, serverID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM moderationWarnSettings WHERE serverId = ?`, serverID)
	if err != nil {
		return 0, fmt.Errorf("delete warn rules: %w", err)
	}
	return res.RowsAffected()
}

// ========== Timeouts ==========

func (s *SQLiteGateway) UpsertTimeout(ctx context.Context, t models.ActiveTimeout, mode UpsertMode) error {
	if err := t.Validate(); err != nil {
		return err
	}

	onConflict := `timerId = excluded.timerId`
	if mode == RefreshEndTime {
		onConflict = `timerId = excluded.timerId, endTime = excluded.endTime`
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moderationTimeouts (serverId, userId, type, endTime, timerId) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(serverId, userId, type) DO UPDATE SET `+onConflict,
		t.ServerID, t.SubjectUserID, string(t.Action), t.EndTime, int64(t.Handle))
	if err != nil {
		return fmt.Errorf("upsert timeout: %w", err)
	}
	return nil
}

const timeoutColumns = `serverId, userId, type, endTime, timerId`

func scanTimeout(row rowScanner) (models.ActiveTimeout, error) {
	var t models.ActiveTimeout
	var action string
	var handle int64
	if err := row.Scan(&t.ServerID, &t.SubjectUserID, &action, &t.EndTime, &handle); err != nil {
		return t, err
	}
	t.Action = models.ActionType(action)
	t.Handle = models.TimerHandle(handle)
	return t, t.Validate()
}

func (s *SQLiteGateway) GetTimeout(ctx context.Context, serverID, userID string, action models.ActionType) (*models.ActiveTimeout, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+timeoutColumns+` FROM moderationTimeouts WHERE serverId = ? AND userId = ? AND type = ?`,
		serverID, userID, string(action))
	t, err := scanTimeout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteGateway) TakeTimeout(ctx context.Context, serverID, userID string, action models.ActionType) (*models.ActiveTimeout, error) {
	var taken *models.ActiveTimeout
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+timeoutColumns+` FROM moderationTimeouts WHERE serverId = ? AND userId = ? AND type = ?`,
			serverID, userID, string(action))
		t, err := scanTimeout(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM moderationTimeouts WHERE serverId = ? AND userId = ? AND type = ?`,
			serverID, userID, string(action))
		if err != nil {
			return fmt.Errorf("delete timeout: %w", err)
		}
		taken = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

func (s *SQLiteGateway) ListTimeouts(ctx context.Context, serverID string) ([]models.ActiveTimeout, error) {
	query := `SELECT ` + timeoutColumns + ` FROM moderationTimeouts`
	var args []any
	if serverID != "" {
		query += ` WHERE serverId = ?`
		args = append(args, serverID)
	}
	query += ` ORDER BY serverId, userId, type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timeouts []models.ActiveTimeout
	for rows.Next() {
		t, err := scanTimeout(rows)
		if err != nil {
			return nil, err
		}
		timeouts = append(timeouts, t)
	}
	return timeouts, rows.Err()
}

// ========== Connection ==========

func (s *SQLiteGateway) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := s.db.PingContext(ctx)
	return time.Since(start), err
}

func (s *SQLiteGateway) Close() error {
	logger.Warn("La base de datos ha sido desconectada", "DB")
	return s.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
