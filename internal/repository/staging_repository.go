package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/pagelake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const stagingColumns = `id, file_path, file_path_processed, date, platform_id, status, created_at, updated_at`

type stagingRepository struct {
	db querier
}

// NewStagingRepository wires a repository backed by pgxpool.
func NewStagingRepository(pool *pgxpool.Pool) StagingRepository {
	return &stagingRepository{db: pool}
}

func (r *stagingRepository) Create(ctx context.Context, record domain.StagingRecord) (domain.StagingRecord, error) {
	if r.db == nil {
		return domain.StagingRecord{}, fmt.Errorf("staging repository not initialized")
	}
	if record.Status == "" {
		record.Status = domain.StagingStatusPending
	}

	row := r.db.QueryRow(
		ctx,
		`INSERT INTO page_staging_data (file_path, date, platform_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+stagingColumns,
		record.FilePath,
		record.Date,
		record.PlatformID,
		string(record.Status),
	)
	created, err := scanStaging(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.StagingRecord{}, fmt.Errorf("%w: platform %d date %s", ErrStagingConflict, record.PlatformID, record.Date)
		}
		return domain.StagingRecord{}, fmt.Errorf("failed to insert staging record: %w", err)
	}
	return created, nil
}

func (r *stagingRepository) GetByID(ctx context.Context, id int64) (domain.StagingRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+stagingColumns+` FROM page_staging_data WHERE id = $1`, id)
	record, err := scanStaging(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StagingRecord{}, fmt.Errorf("%w: id %d", ErrStagingNotFound, id)
		}
		return domain.StagingRecord{}, fmt.Errorf("failed to get staging record: %w", err)
	}
	return record, nil
}

func (r *stagingRepository) List(ctx context.Context) ([]domain.StagingRecord, error) {
	return r.list(ctx, `SELECT `+stagingColumns+` FROM page_staging_data ORDER BY id`)
}

func (r *stagingRepository) ListByDate(ctx context.Context, date string) ([]domain.StagingRecord, error) {
	return r.list(ctx, `SELECT `+stagingColumns+` FROM page_staging_data WHERE date = $1 ORDER BY id`, date)
}

func (r *stagingRepository) ListPending(ctx context.Context, date string) ([]domain.StagingRecord, error) {
	return r.list(
		ctx,
		`SELECT `+stagingColumns+` FROM page_staging_data WHERE date = $1 AND status = $2 ORDER BY id`,
		date,
		string(domain.StagingStatusPending),
	)
}

func (r *stagingRepository) FindByPlatformDate(ctx context.Context, platformID int, date string) (*domain.StagingRecord, error) {
	row := r.db.QueryRow(
		ctx,
		`SELECT `+stagingColumns+` FROM page_staging_data WHERE platform_id = $1 AND date = $2 LIMIT 1`,
		platformID,
		date,
	)
	record, err := scanStaging(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check staging existence: %w", err)
	}
	return &record, nil
}

func (r *stagingRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	status domain.StagingStatus,
	from []domain.StagingStatus,
	processedPath string,
) (domain.StagingRecord, error) {
	fromValues := make([]string, len(from))
	for i, s := range from {
		fromValues[i] = string(s)
	}

	row := r.db.QueryRow(
		ctx,
		`UPDATE page_staging_data
		 SET status = $2,
		     file_path_processed = COALESCE(NULLIF($3, ''), file_path_processed),
		     updated_at = now()
		 WHERE id = $1 AND status = ANY($4)
		 RETURNING `+stagingColumns,
		id,
		string(status),
		processedPath,
		fromValues,
	)
	record, err := scanStaging(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.StagingRecord{}, fmt.Errorf("failed to update staging status: %w", err)
	}

	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return domain.StagingRecord{}, getErr
	}
	return current, fmt.Errorf("%w: record %d is %s, cannot become %s", ErrStatusConflict, id, current.Status, status)
}

func (r *stagingRepository) list(ctx context.Context, sql string, args ...any) ([]domain.StagingRecord, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging records: %w", err)
	}
	defer rows.Close()

	records := []domain.StagingRecord{}
	for rows.Next() {
		record, scanErr := scanStaging(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan staging record: %w", scanErr)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staging records: %w", rowsErr)
	}
	return records, nil
}

func scanStaging(row pgx.Row) (domain.StagingRecord, error) {
	var (
		record    domain.StagingRecord
		processed pgtype.Text
		status    string
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&record.ID,
		&record.FilePath,
		&processed,
		&record.Date,
		&record.PlatformID,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.StagingRecord{}, err
	}

	record.Status = domain.StagingStatus(status)
	if processed.Valid {
		value := processed.String
		record.FilePathProcessed = &value
	}
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}
	return record, nil
}
