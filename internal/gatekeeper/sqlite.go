package gatekeeper

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/promptspeak/internal/model"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const (
	holdSchemaVersion  = 1
	defaultBusyTimeout = 5000
)

// holdSchemaStatements are executed in order. All use IF NOT EXISTS for
// idempotent re-application.
var holdSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS holds (
		hold_id             TEXT    PRIMARY KEY,
		agent_id            TEXT    NOT NULL,
		tool                TEXT    NOT NULL,
		frame               TEXT    NOT NULL DEFAULT '',
		arguments           TEXT    NOT NULL DEFAULT '{}',
		reason              TEXT    NOT NULL DEFAULT '',
		status              TEXT    NOT NULL,
		created_at          INTEGER NOT NULL,
		expires_at          INTEGER NOT NULL DEFAULT 0,
		resolved_at         INTEGER,
		approval_expires_at INTEGER
	)`,

	`CREATE INDEX IF NOT EXISTS idx_holds_status ON holds(status, created_at)`,

	`CREATE INDEX IF NOT EXISTS idx_holds_agent_tool ON holds(agent_id, tool, status)`,
}

// SQLiteHoldStore persists holds in a SQLite database.
type SQLiteHoldStore struct {
	db *sql.DB
}

// OpenSQLiteHoldStore opens (or creates) the database at path.
// The database uses WAL mode, a 5 s busy timeout, and a single connection.
func OpenSQLiteHoldStore(path string) (*SQLiteHoldStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrateHolds(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteHoldStore{db: db}, nil
}

func migrateHolds(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current >= holdSchemaVersion {
		return nil
	}

	for _, stmt := range holdSchemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", holdSchemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}
	return nil
}

const holdColumns = `hold_id, agent_id, tool, frame, arguments, reason, status,
	created_at, expires_at, resolved_at, approval_expires_at`

func (s *SQLiteHoldStore) Create(ctx context.Context, hold model.HoldRequest) error {
	args, err := json.Marshal(hold.Arguments)
	if err != nil {
		return fmt.Errorf("sqlite: marshal arguments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO holds (`+holdColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hold.HoldID, hold.AgentID, hold.Tool, hold.Frame, string(args), hold.Reason, string(hold.Status),
		hold.CreatedAt.UnixNano(), unixNanoOrZero(hold.ExpiresAt),
		nullTime(hold.ResolvedAt), nullTime(hold.ApprovalExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert hold: %w", err)
	}
	return nil
}

func (s *SQLiteHoldStore) Get(ctx context.Context, id string) (model.HoldRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM holds WHERE hold_id = ?`, id)
	return scanHold(row)
}

func (s *SQLiteHoldStore) Resolve(ctx context.Context, id string, status model.HoldStatus, ttl time.Duration, now time.Time) (model.HoldRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.HoldRequest{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	h, err := scanHold(tx.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM holds WHERE hold_id = ?`, id))
	if err != nil {
		return model.HoldRequest{}, err
	}
	if err := resolveHold(&h, status, ttl, now); err != nil {
		return h, err
	}
	if err := updateStatus(ctx, tx, h); err != nil {
		return model.HoldRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.HoldRequest{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return h, nil
}

func (s *SQLiteHoldStore) ConsumeApproved(ctx context.Context, agentID, tool string, now time.Time) (model.HoldRequest, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.HoldRequest{}, false, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	h, err := scanHold(tx.QueryRowContext(ctx, `
		SELECT `+holdColumns+` FROM holds
		WHERE status = ? AND agent_id = ? AND tool = ?
		  AND (approval_expires_at IS NULL OR approval_expires_at > ?)
		ORDER BY created_at, hold_id
		LIMIT 1`,
		string(model.HoldApproved), agentID, tool, now.UnixNano(),
	))
	if errors.Is(err, ErrHoldNotFound) {
		return model.HoldRequest{}, false, nil
	}
	if err != nil {
		return model.HoldRequest{}, false, err
	}

	h.Status = model.HoldConsumed
	t := now
	h.ResolvedAt = &t
	if err := updateStatus(ctx, tx, h); err != nil {
		return model.HoldRequest{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return model.HoldRequest{}, false, fmt.Errorf("sqlite: commit: %w", err)
	}
	return h, true, nil
}

func (s *SQLiteHoldStore) List(ctx context.Context, status model.HoldStatus) ([]model.HoldRequest, error) {
	query := `SELECT ` + holdColumns + ` FROM holds`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, hold_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list holds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var holds []model.HoldRequest
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list holds rows: %w", err)
	}
	return holds, nil
}

func (s *SQLiteHoldStore) Expire(ctx context.Context, now time.Time) (int, error) {
	ts := now.UnixNano()
	res, err := s.db.ExecContext(ctx, `
		UPDATE holds SET status = ?
		WHERE (status = ? AND expires_at > 0 AND expires_at < ?)
		   OR (status = ? AND approval_expires_at IS NOT NULL AND approval_expires_at < ?)`,
		string(model.HoldExpired),
		string(model.HoldPending), ts,
		string(model.HoldApproved), ts,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: expire holds: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: expire holds: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database.
func (s *SQLiteHoldStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHold(row rowScanner) (model.HoldRequest, error) {
	var (
		h                   model.HoldRequest
		args, status        string
		createdAt, expires  int64
		resolved, approvalX sql.NullInt64
	)
	err := row.Scan(&h.HoldID, &h.AgentID, &h.Tool, &h.Frame, &args, &h.Reason, &status,
		&createdAt, &expires, &resolved, &approvalX)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HoldRequest{}, ErrHoldNotFound
	}
	if err != nil {
		return model.HoldRequest{}, fmt.Errorf("sqlite: scan hold: %w", err)
	}
	if args != "" && args != "null" {
		if err := json.Unmarshal([]byte(args), &h.Arguments); err != nil {
			return model.HoldRequest{}, fmt.Errorf("sqlite: unmarshal arguments: %w", err)
		}
	}
	h.Status = model.HoldStatus(status)
	h.CreatedAt = time.Unix(0, createdAt).UTC()
	if expires > 0 {
		h.ExpiresAt = time.Unix(0, expires).UTC()
	}
	h.ResolvedAt = timeFromNull(resolved)
	h.ApprovalExpiresAt = timeFromNull(approvalX)
	return h, nil
}

func updateStatus(ctx context.Context, tx *sql.Tx, h model.HoldRequest) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE holds SET status = ?, resolved_at = ?, approval_expires_at = ?
		WHERE hold_id = ?`,
		string(h.Status), nullTime(h.ResolvedAt), nullTime(h.ApprovalExpiresAt), h.HoldID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update hold: %w", err)
	}
	return nil
}

func unixNanoOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
