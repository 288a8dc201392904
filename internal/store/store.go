// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/tapas/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for attempts and calibrations.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			preset TEXT NOT NULL,
			tempo REAL NOT NULL,
			timeline_length INTEGER NOT NULL,
			latency_us INTEGER NOT NULL,
			device TEXT NOT NULL,
			source TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			matched INTEGER NOT NULL,
			misses INTEGER NOT NULL,
			extras INTEGER NOT NULL,
			mean_error REAL NOT NULL,
			mean_abs_error REAL NOT NULL,
			error_variance REAL NOT NULL,
			miss_rate REAL NOT NULL,
			extra_rate REAL NOT NULL,
			score REAL NOT NULL,
			zero_confidence INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_pairs (
			attempt_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			event_index INTEGER NOT NULL,
			onset_index INTEGER NOT NULL,
			expected REAL NOT NULL,
			detected REAL NOT NULL,
			error REAL NOT NULL,
			PRIMARY KEY (attempt_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS calibrations (
			device TEXT PRIMARY KEY,
			latency_us INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_preset ON attempts(preset);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertAttempt stores a scored attempt and its pairs.
func (s *Store) InsertAttempt(ctx context.Context, a model.Attempt) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	m := a.Metrics
	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempts (id, created_at, preset, tempo, timeline_length, latency_us, device, source, duration_ms,
			matched, misses, extras, mean_error, mean_abs_error, error_variance, miss_rate, extra_rate, score, zero_confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.CreatedAt.UTC().Format(timeLayout),
		a.PresetName,
		a.Tempo,
		a.TimelineLength,
		a.Latency.Microseconds(),
		a.Device,
		a.Source,
		a.DurationMs,
		m.Matched,
		m.Misses,
		m.Extras,
		m.MeanError,
		m.MeanAbsError,
		m.ErrorVariance,
		m.MissRate,
		m.ExtraRate,
		m.Score,
		boolInt(m.ZeroConfidence),
	)
	if err != nil {
		return err
	}

	if len(a.Pairs) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO attempt_pairs (attempt_id, seq, kind, event_index, onset_index, expected, detected, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, p := range a.Pairs {
			if _, err = stmt.ExecContext(ctx, a.ID, i, p.Kind.String(), p.EventIndex, p.OnsetIndex, p.Expected, p.Detected, p.Error); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

// ListAttempts returns attempts oldest first, filtered by cfg. Pairs are not loaded.
func (s *Store) ListAttempts(ctx context.Context, cfg model.HistoryConfig) ([]model.Attempt, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Preset != "" {
		clauses = append(clauses, "preset = ?")
		args = append(args, cfg.Preset)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	limit := ""
	if cfg.Last > 0 {
		limit = "LIMIT ?"
		args = append(args, cfg.Last)
	}
	query := fmt.Sprintf(`SELECT id, created_at, preset, tempo, timeline_length, latency_us, device, source, duration_ms,
			matched, misses, extras, mean_error, mean_abs_error, error_variance, miss_rate, extra_rate, score, zero_confidence
		FROM attempts
		WHERE %s
		ORDER BY created_at DESC
		%s`, strings.Join(clauses, " AND "), limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		var createdAt string
		var latencyUs int64
		var zero int
		m := &a.Metrics
		if err := rows.Scan(&a.ID, &createdAt, &a.PresetName, &a.Tempo, &a.TimelineLength, &latencyUs, &a.Device, &a.Source, &a.DurationMs,
			&m.Matched, &m.Misses, &m.Extras, &m.MeanError, &m.MeanAbsError, &m.ErrorVariance, &m.MissRate, &m.ExtraRate, &m.Score, &zero); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, err
		}
		a.CreatedAt = parsed
		a.Latency = time.Duration(latencyUs) * time.Microsecond
		m.ZeroConfidence = zero != 0
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(attempts)-1; i < j; i, j = i+1, j-1 {
		attempts[i], attempts[j] = attempts[j], attempts[i]
	}
	return attempts, nil
}

// ListPairs returns the stored pairs of one attempt in order.
func (s *Store) ListPairs(ctx context.Context, attemptID string) ([]model.MatchedPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, event_index, onset_index, expected, detected, error
		 FROM attempt_pairs WHERE attempt_id = ? ORDER BY seq`, attemptID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var pairs []model.MatchedPair
	for rows.Next() {
		var p model.MatchedPair
		var kind string
		if err := rows.Scan(&kind, &p.EventIndex, &p.OnsetIndex, &p.Expected, &p.Detected, &p.Error); err != nil {
			return nil, err
		}
		k, err := parseKind(kind)
		if err != nil {
			return nil, err
		}
		p.Kind = k
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// SaveLatency stores the calibrated latency of device, replacing any previous value.
func (s *Store) SaveLatency(ctx context.Context, device string, latency time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibrations (device, latency_us, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(device) DO UPDATE SET latency_us = excluded.latency_us, updated_at = excluded.updated_at`,
		device, latency.Microseconds(), time.Now().UTC().Format(timeLayout))
	return err
}

// LoadLatency returns the stored latency of device. ok is false when the device was never calibrated.
func (s *Store) LoadLatency(ctx context.Context, device string) (time.Duration, bool, error) {
	var us int64
	err := s.db.QueryRowContext(ctx, `SELECT latency_us FROM calibrations WHERE device = ?`, device).Scan(&us)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return time.Duration(us) * time.Microsecond, true, nil
}

func parseKind(s string) (model.PairKind, error) {
	switch s {
	case "match":
		return model.PairMatch, nil
	case "miss":
		return model.PairMiss, nil
	case "extra":
		return model.PairExtra, nil
	default:
		return 0, fmt.Errorf("unknown pair kind %q", s)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
