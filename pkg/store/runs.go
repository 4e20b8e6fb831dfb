package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rmax-ai/sirsim/pkg/aggregate"
)

// ErrRunNotFound is returned by GetRun and DeleteRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// SaveRun writes a run and, when present, its weekly and age rows in one
// transaction. Saving an existing id replaces it.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	artifacts, err := json.Marshal(run.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to marshal artifacts: %w", err)
	}
	var summary []byte
	if run.Summary != nil {
		if summary, err = json.Marshal(run.Summary); err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
	}
	config := run.Config
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"weekly_cases", "age_distribution", "runs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("failed to replace run: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, created_at, status, fingerprint, config, run_type,
			n_trajectories, seed, elapsed_ms, attack_rate, artifacts, error, summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UTC(), string(run.Status), run.Fingerprint, string(config), run.RunType,
		run.NTrajectories, run.Seed, run.ElapsedMS, run.AttackRate, string(artifacts), run.Error, nullable(summary))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if run.Summary != nil {
		if err := insertSummaryRows(ctx, tx, run.ID, run.Summary); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func insertSummaryRows(ctx context.Context, tx *sql.Tx, runID string, s *aggregate.Summary) error {
	for i, w := range s.Weekly {
		var normalized float64
		if i < len(s.WeeklyNormalized) {
			normalized = s.WeeklyNormalized[i].Value
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO weekly_cases (run_id, window_index, start_step, end_step, cases, normalized)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, w.Window, w.StartStep, w.EndStep, w.Value, normalized); err != nil {
			return fmt.Errorf("failed to insert weekly cases: %w", err)
		}
	}
	for i, b := range s.AgeDistribution {
		var normalized float64
		if i < len(s.AgeNormalized) {
			normalized = s.AgeNormalized[i].Value
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO age_distribution (run_id, bin, age_lo, age_hi, cases, normalized)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, i, b.Lo, b.Hi, b.Value, normalized); err != nil {
			return fmt.Errorf("failed to insert age distribution: %w", err)
		}
	}
	return nil
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

const runColumns = `run_id, created_at, status, fingerprint, config, run_type,
	n_trajectories, seed, elapsed_ms, attack_rate, artifacts, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner, extra ...any) (*Run, error) {
	var (
		r         Run
		status    string
		config    string
		artifacts sql.NullString
		errText   sql.NullString
	)
	dest := append([]any{&r.ID, &r.CreatedAt, &status, &r.Fingerprint, &config, &r.RunType,
		&r.NTrajectories, &r.Seed, &r.ElapsedMS, &r.AttackRate, &artifacts, &errText}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.Config = json.RawMessage(config)
	r.Error = errText.String
	if artifacts.Valid && artifacts.String != "" && artifacts.String != "null" {
		if err := json.Unmarshal([]byte(artifacts.String), &r.Artifacts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifacts: %w", err)
		}
	}
	return &r, nil
}

// GetRun loads a run with its summary.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var summary sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+`, summary FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row, &summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if summary.Valid {
		run.Summary = &aggregate.Summary{}
		if err := json.Unmarshal([]byte(summary.String), run.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
	}
	return run, nil
}

// ListRuns returns runs newest first, without summaries.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, run_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// LatestByFingerprint returns the newest completed run of a config, or nil.
func (s *Store) LatestByFingerprint(ctx context.Context, fingerprint string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE fingerprint = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1
	`, fingerprint, string(RunStatusCompleted))
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query run by fingerprint: %w", err)
	}
	return run, nil
}

// WeeklyCases reads back the stored weekly rows of a run.
func (s *Store) WeeklyCases(ctx context.Context, id string) (aggregate.WeeklyCaseSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT window_index, start_step, end_step, cases
		FROM weekly_cases WHERE run_id = ? ORDER BY window_index
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly cases: %w", err)
	}
	defer rows.Close()

	out := aggregate.WeeklyCaseSeries{}
	for rows.Next() {
		var w aggregate.WeeklyCase
		if err := rows.Scan(&w.Window, &w.StartStep, &w.EndStep, &w.Value); err != nil {
			return nil, fmt.Errorf("failed to scan weekly cases: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its rows.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
