package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/pagelake/internal/db"
	"github.com/rpattn/pagelake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var processedCopyColumns = []string{"staging_data_id", "model_name", "amount"}

type processedRowRepository struct {
	db        querier
	chunkSize int
}

// NewProcessedRowRepository wires a repository backed by pgxpool.
func NewProcessedRowRepository(pool *pgxpool.Pool) ProcessedRowRepository {
	return &processedRowRepository{db: pool, chunkSize: DefaultBulkChunkSize}
}

// InsertBulk copies rows in fixed-size chunks, committing each chunk in its own
// transaction. A failure leaves earlier chunks committed.
func (r *processedRowRepository) InsertBulk(ctx context.Context, rows []domain.ProcessedRow) (BulkInsertResult, error) {
	result := BulkInsertResult{}
	if r.db == nil {
		return result, fmt.Errorf("processed row repository not initialized")
	}

	size := r.chunkSize
	if size <= 0 {
		size = DefaultBulkChunkSize
	}

	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunk := rows[start:end]

		err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
			copied, err := tx.CopyFrom(
				ctx,
				pgx.Identifier{"page_processed_data"},
				processedCopyColumns,
				pgx.CopyFromSlice(len(chunk), func(i int) ([]any, error) {
					row := chunk[i]
					return []any{row.StagingDataID, row.ModelName, row.Amount.String()}, nil
				}),
			)
			if err != nil {
				return err
			}
			if int(copied) != len(chunk) {
				return fmt.Errorf("copied %d of %d rows", copied, len(chunk))
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("failed to insert processed rows %d-%d: %w", start, end-1, err)
		}

		result.ChunksCommitted++
		result.RowsInserted += len(chunk)
	}

	return result, nil
}

func (r *processedRowRepository) ListByStaging(ctx context.Context, stagingID int64) ([]domain.ProcessedRow, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT id, staging_data_id, model_name, amount, created_at, updated_at
		 FROM page_processed_data
		 WHERE staging_data_id = $1
		 ORDER BY id`,
		stagingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed rows: %w", err)
	}
	defer rows.Close()

	out := []domain.ProcessedRow{}
	for rows.Next() {
		var (
			row       domain.ProcessedRow
			amount    string
			createdAt pgtype.Timestamptz
			updatedAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(&row.ID, &row.StagingDataID, &row.ModelName, &amount, &createdAt, &updatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan processed row: %w", scanErr)
		}
		parsed, parseErr := decimal.NewFromString(amount)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: row %d amount %q", ErrMalformedAmount, row.ID, amount)
		}
		row.Amount = parsed
		row.CreatedAt = createdAt.Time
		row.UpdatedAt = updatedAt.Time
		out = append(out, row)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate processed rows: %w", rowsErr)
	}
	return out, nil
}

func (r *processedRowRepository) SumAmountForMonth(ctx context.Context, year, month int) (decimal.Decimal, error) {
	prefix, err := domain.MonthPrefix(year, month)
	if err != nil {
		return decimal.Zero, err
	}

	var total string
	err = r.db.QueryRow(
		ctx,
		`SELECT COALESCE(SUM(p.amount::numeric), 0)::text
		 FROM page_processed_data p
		 JOIN page_staging_data s ON s.id = p.staging_data_id
		 WHERE s.date LIKE $1 || '%'`,
		prefix,
	).Scan(&total)
	if err != nil {
		if isInvalidTextRepresentation(err) {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrMalformedAmount, err)
		}
		return decimal.Zero, fmt.Errorf("failed to sum processed amounts: %w", err)
	}

	value, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, total)
	}
	return value, nil
}
