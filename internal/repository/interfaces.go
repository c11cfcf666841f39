package repository

import (
	"context"
	"errors"

	"github.com/rpattn/pagelake/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DefaultBulkChunkSize bounds the number of processed rows committed per transaction.
const DefaultBulkChunkSize = 100

var (
	// ErrStagingNotFound is returned when no staging record matches the lookup.
	ErrStagingNotFound = errors.New("staging record not found")
	// ErrStagingConflict is returned when a (platform_id, date) pair is already staged.
	ErrStagingConflict = errors.New("staging record already exists for platform and date")
	// ErrStatusConflict indicates that a record cannot move to the requested status.
	ErrStatusConflict = errors.New("staging status conflict")
)

// StagingRepository persists staging records and their status lifecycle.
type StagingRepository interface {
	Create(ctx context.Context, record domain.StagingRecord) (domain.StagingRecord, error)
	GetByID(ctx context.Context, id int64) (domain.StagingRecord, error)
	List(ctx context.Context) ([]domain.StagingRecord, error)
	ListByDate(ctx context.Context, date string) ([]domain.StagingRecord, error)
	ListPending(ctx context.Context, date string) ([]domain.StagingRecord, error)
	// FindByPlatformDate returns nil when nothing is staged for the pair.
	FindByPlatformDate(ctx context.Context, platformID int, date string) (*domain.StagingRecord, error)
	// UpdateStatus moves the record to status only when its current status is one of from.
	// processedPath is written only when non-empty.
	UpdateStatus(ctx context.Context, id int64, status domain.StagingStatus, from []domain.StagingStatus, processedPath string) (domain.StagingRecord, error)
}

// StagingLogRepository stores ingestion and processing failures.
type StagingLogRepository interface {
	Record(ctx context.Context, entry domain.StagingLog) (domain.StagingLog, error)
	ListByStaging(ctx context.Context, stagingID int64) ([]domain.StagingLog, error)
}

// ProcessedRowRepository stores normalized rows and aggregates them.
type ProcessedRowRepository interface {
	InsertBulk(ctx context.Context, rows []domain.ProcessedRow) (BulkInsertResult, error)
	ListByStaging(ctx context.Context, stagingID int64) ([]domain.ProcessedRow, error)
	SumAmountForMonth(ctx context.Context, year, month int) (decimal.Decimal, error)
}

// BulkInsertResult reports how far a chunked insert progressed. Chunks counted
// here are committed even when an error is returned.
type BulkInsertResult struct {
	RowsInserted    int
	ChunksCommitted int
}

// querier is the subset of *pgxpool.Pool used by the repositories.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isInvalidTextRepresentation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// ErrMalformedAmount is returned when a stored amount cannot be cast to numeric.
var ErrMalformedAmount = errors.New("malformed stored amount")
