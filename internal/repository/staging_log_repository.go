package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/pagelake/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type stagingLogRepository struct {
	db querier
}

// NewStagingLogRepository wires a repository backed by pgxpool.
func NewStagingLogRepository(pool *pgxpool.Pool) StagingLogRepository {
	return &stagingLogRepository{db: pool}
}

func (r *stagingLogRepository) Record(ctx context.Context, entry domain.StagingLog) (domain.StagingLog, error) {
	if r.db == nil {
		return domain.StagingLog{}, fmt.Errorf("staging log repository not initialized")
	}

	var createdAt, updatedAt pgtype.Timestamptz
	err := r.db.QueryRow(
		ctx,
		`INSERT INTO page_staging_log (staging_data_id, error_description)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		entry.StagingDataID,
		entry.ErrorDescription,
	).Scan(&entry.ID, &createdAt, &updatedAt)
	if err != nil {
		return domain.StagingLog{}, fmt.Errorf("failed to record staging log: %w", err)
	}

	entry.CreatedAt = createdAt.Time
	entry.UpdatedAt = updatedAt.Time
	return entry, nil
}

func (r *stagingLogRepository) ListByStaging(ctx context.Context, stagingID int64) ([]domain.StagingLog, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, staging_data_id, error_description, created_at, updated_at
		 FROM page_staging_log
		 WHERE staging_data_id = $1
		 ORDER BY created_at DESC, id DESC`,
		stagingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.StagingLog{}
	for rows.Next() {
		var (
			entry     domain.StagingLog
			createdAt pgtype.Timestamptz
			updatedAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.StagingDataID,
			&entry.ErrorDescription,
			&createdAt,
			&updatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan staging log: %w", scanErr)
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			entry.UpdatedAt = updatedAt.Time
		}
		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staging logs: %w", rowsErr)
	}

	return logs, nil
}
