package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at path. An empty
// path yields an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS warden_sessions (
    instance     TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    port         INTEGER NOT NULL,
    is_primary   INTEGER NOT NULL,
    security     TEXT NOT NULL,
    visibility   TEXT NOT NULL,
    pid          INTEGER NOT NULL,
    start_unix   INTEGER NOT NULL,
    reboot_mode  TEXT NOT NULL,
    artifact_id  TEXT NOT NULL,
    updated_at   TIMESTAMP NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create warden_sessions table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO warden_sessions
    (instance, access_token, port, is_primary, security, visibility, pid, start_unix, reboot_mode, artifact_id, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(instance) DO UPDATE SET
    access_token = excluded.access_token,
    port         = excluded.port,
    is_primary   = excluded.is_primary,
    security     = excluded.security,
    visibility   = excluded.visibility,
    pid          = excluded.pid,
    start_unix   = excluded.start_unix,
    reboot_mode  = excluded.reboot_mode,
    artifact_id  = excluded.artifact_id,
    updated_at   = excluded.updated_at`,
		rec.Instance, rec.AccessToken, rec.Port, rec.Primary,
		string(rec.Security), string(rec.Visibility), rec.PID, rec.StartUnix,
		string(rec.RebootMode), rec.ArtifactID, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save record for %q: %w", rec.Instance, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, instance string) (Record, bool, error) {
	var rec Record
	var security, visibility, rebootMode string
	err := s.db.QueryRowContext(ctx, `
SELECT instance, access_token, port, is_primary, security, visibility, pid, start_unix, reboot_mode, artifact_id, updated_at
FROM warden_sessions WHERE instance = ?`, instance).
		Scan(&rec.Instance, &rec.AccessToken, &rec.Port, &rec.Primary,
			&security, &visibility, &rec.PID, &rec.StartUnix, &rebootMode, &rec.ArtifactID, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("load record for %q: %w", instance, err)
	}
	rec.Security = SecurityLevel(security)
	rec.Visibility = Visibility(visibility)
	rec.RebootMode = RebootMode(rebootMode)
	return rec, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, instance string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM warden_sessions WHERE instance = ?`, instance); err != nil {
		return fmt.Errorf("delete record for %q: %w", instance, err)
	}
	return nil
}
