package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Firing records one execution of a scheduled task.
type Firing struct {
	App      string
	JobID    string
	Method   string
	UniqueID string
	Rule     string
	FiredAt  time.Time
	Error    string
}

type FiringPersister interface {
	Save(ctx context.Context, firing Firing) error
}

type PostgresFiringRepository struct {
	db *pgxpool.Pool
}

func NewPostgresFiringRepository(db *pgxpool.Pool) *PostgresFiringRepository {
	return &PostgresFiringRepository{db: db}
}

func FiringToRowParams(firing Firing) []any {
	return []any{
		firing.App,
		firing.JobID,
		firing.Method,
		firing.UniqueID,
		firing.Rule,
		firing.FiredAt,
		firing.Error,
	}
}

func (r *PostgresFiringRepository) Save(ctx context.Context, firing Firing) error {
	const firingQuery = `
	INSERT INTO task_firing (app, job_id, method, unique_id, rule, fired_at, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, firingQuery, FiringToRowParams(firing)...)
	if err != nil {
		return fmt.Errorf("failed to execute firing query: %w", err)
	}
	return nil
}

// List returns the most recent firings of an app, newest first.
// An empty method matches every method.
func (r *PostgresFiringRepository) List(ctx context.Context, app, method string, limit int) ([]Firing, error) {
	const listQuery = `
	SELECT app, job_id, method, unique_id, rule, fired_at, error
	FROM task_firing
	WHERE app = $1 AND ($2 = '' OR method = $2)
	ORDER BY fired_at DESC, id DESC
	LIMIT $3
	`

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, listQuery, app, method, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query firings: %w", err)
	}

	firings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Firing, error) {
		var f Firing
		err := row.Scan(&f.App, &f.JobID, &f.Method, &f.UniqueID, &f.Rule, &f.FiredAt, &f.Error)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan firings: %w", err)
	}
	return firings, nil
}

var _ FiringPersister = (*PostgresFiringRepository)(nil)
