package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tapedeck/internal/refresher"
)

// Store is the SQLite-backed appliance state.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the state database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// PlayerState is the last saved position for one collection.
type PlayerState struct {
	Collection string
	Date       string
	Identifier string
	Track      int
	UpdatedAt  time.Time
}

// SavePlayerState upserts the position for the state's collection.
func (s *Store) SavePlayerState(ctx context.Context, state PlayerState) error {
	if state.Collection == "" {
		return errors.New("player state: collection required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}
	err := s.execWithRetry(ctx, `
		INSERT INTO player_state (collection, date, identifier, track, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			date = excluded.date,
			identifier = excluded.identifier,
			track = excluded.track,
			updated_at = excluded.updated_at`,
		state.Collection, state.Date, state.Identifier, state.Track,
		state.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save player state: %w", err)
	}
	return nil
}

// LoadPlayerState returns the saved position for a collection, reporting
// whether one exists.
func (s *Store) LoadPlayerState(ctx context.Context, collection string) (PlayerState, bool, error) {
	var (
		state   PlayerState
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT collection, date, identifier, track, updated_at
		FROM player_state WHERE collection = ?`, collection).
		Scan(&state.Collection, &state.Date, &state.Identifier, &state.Track, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return PlayerState{}, false, nil
	}
	if err != nil {
		return PlayerState{}, false, fmt.Errorf("load player state: %w", err)
	}
	if t, parseErr := time.Parse(time.RFC3339, updated); parseErr == nil {
		state.UpdatedAt = t
	}
	return state, true, nil
}

// RecordRefresh appends one refresh run to the history.
func (s *Store) RecordRefresh(ctx context.Context, result refresher.Result) error {
	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	err := s.execWithRetry(ctx, `
		INSERT INTO refresh_runs (run_id, started_at, finished_at, added, error)
		VALUES (?, ?, ?, ?, ?)`,
		result.RunID,
		result.Started.UTC().Format(time.RFC3339),
		result.Finished.UTC().Format(time.RFC3339),
		result.Added, errText)
	if err != nil {
		return fmt.Errorf("record refresh run: %w", err)
	}
	return nil
}

// LastSuccessfulRefresh returns the finish time of the newest run without
// an error, or the zero time when none exists.
func (s *Store) LastSuccessfulRefresh(ctx context.Context) (time.Time, error) {
	var finished string
	err := s.db.QueryRowContext(ctx, `
		SELECT finished_at FROM refresh_runs
		WHERE error = '' ORDER BY finished_at DESC LIMIT 1`).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load last refresh: %w", err)
	}
	t, err := time.Parse(time.RFC3339, finished)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse refresh time %q: %w", finished, err)
	}
	return t, nil
}

// RefreshRun is one row of the refresh history.
type RefreshRun struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Added    int
	Error    string
}

// RecentRefreshes returns up to limit runs, newest first.
func (s *Store) RecentRefreshes(ctx context.Context, limit int) ([]RefreshRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, added, error
		FROM refresh_runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []RefreshRun
	for rows.Next() {
		var (
			r                 RefreshRun
			started, finished string
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Added, &r.Error); err != nil {
			return nil, fmt.Errorf("scan refresh run: %w", err)
		}
		if t, parseErr := time.Parse(time.RFC3339, started); parseErr == nil {
			r.Started = t
		}
		if t, parseErr := time.Parse(time.RFC3339, finished); parseErr == nil {
			r.Finished = t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh runs: %w", err)
	}
	return runs, nil
}
