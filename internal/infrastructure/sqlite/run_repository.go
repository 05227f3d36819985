package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/sift/internal/history"
)

const runColumns = `id, question, mode, outcome, error, payload, state,
	cache_hit, bytes_read, started_at, finished_at`

// runRepository implements history.RunRepository using SQLite.
type runRepository struct {
	db *sql.DB
}

func newRunRepository(db *sql.DB) *runRepository {
	return &runRepository{db: db}
}

var _ history.RunRepository = (*runRepository)(nil)

func scanRun(scanner interface{ Scan(...any) error }) (*RunModel, error) {
	var model RunModel
	err := scanner.Scan(
		&model.ID, &model.Question, &model.Mode, &model.Outcome,
		&model.Error, &model.Payload, &model.State,
		&model.CacheHit, &model.BytesRead, &model.StartedAt, &model.FinishedAt,
	)
	return &model, err
}

// Save inserts the run or replaces an existing row with the same ID.
func (r *runRepository) Save(ctx context.Context, run *history.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	model, err := toRunModel(run)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question, mode = excluded.mode, outcome = excluded.outcome,
			error = excluded.error, payload = excluded.payload, state = excluded.state,
			cache_hit = excluded.cache_hit, bytes_read = excluded.bytes_read,
			started_at = excluded.started_at, finished_at = excluded.finished_at`,
		model.ID, model.Question, model.Mode, model.Outcome,
		model.Error, model.Payload, model.State,
		model.CacheHit, model.BytesRead, model.StartedAt, model.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
// Returns RunNotFoundError if no matching run exists.
func (r *runRepository) Get(ctx context.Context, id string) (*history.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	model, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &history.RunNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return model.toDomain()
}

// List returns runs newest first.
func (r *runRepository) List(ctx context.Context, limit int) ([]*history.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*history.Run
	for rows.Next() {
		model, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := model.toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Delete removes a run by ID.
// Returns RunNotFoundError if no matching run exists.
func (r *runRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return &history.RunNotFoundError{ID: id}
	}
	return nil
}
