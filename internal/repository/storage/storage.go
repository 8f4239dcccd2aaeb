package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luismateoh/Aldebaran-sub001/internal/entities"
)

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

// RecordEnqueue inserts the journal row for a new optimization request.
func (s *dbStorage) RecordEnqueue(ctx context.Context, job entities.OptimizationJob) error {
	_, err := s.dbpool.Exec(ctx,
		`INSERT INTO optimization_jobs (id, event_id, source_url, priority, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.EventID, job.SourceURL, job.Priority, string(job.Status),
	)
	return err
}

// RecordOutcome updates the journal row once an item has been processed.
func (s *dbStorage) RecordOutcome(ctx context.Context, id uuid.UUID, state entities.ItemState, lastError string) error {
	var lastErr *string
	if lastError != "" {
		lastErr = &lastError
	}
	_, err := s.dbpool.Exec(ctx,
		`UPDATE optimization_jobs SET status = $2, last_error = $3, updated_at = now() WHERE id = $1`,
		id, string(state), lastErr,
	)
	return err
}

// JobsByEvent lists the journal rows for one event, newest first.
func (s *dbStorage) JobsByEvent(ctx context.Context, eventID string, limit int) ([]entities.OptimizationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.dbpool.Query(ctx,
		`SELECT id, event_id, source_url, priority, status, last_error, created_at, updated_at
		 FROM optimization_jobs WHERE event_id = $1 ORDER BY created_at DESC LIMIT $2`,
		eventID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []entities.OptimizationJob
	for rows.Next() {
		var j entities.OptimizationJob
		var status string
		if err := rows.Scan(&j.ID, &j.EventID, &j.SourceURL, &j.Priority, &status, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		j.Status = entities.ItemState(status)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
