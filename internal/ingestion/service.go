package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/pagelake/internal/datalake"
	"github.com/rpattn/pagelake/internal/domain"
	"github.com/rpattn/pagelake/internal/partner"
	"github.com/rpattn/pagelake/internal/repository"

	"github.com/google/uuid"
)

// Service runs the staging-to-processed pipeline for partner page reports.
type Service struct {
	staging   repository.StagingRepository
	logs      repository.StagingLogRepository
	processed repository.ProcessedRowRepository
	fetcher   partner.Fetcher
	partners  partner.Directory
	store     datalake.Store

	now      func() time.Time
	newToken func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used for file names and the current month.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenSource overrides the random token used in generated file names.
func WithTokenSource(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newToken = next
		}
	}
}

// NewService creates a new ingestion service.
func NewService(
	staging repository.StagingRepository,
	logs repository.StagingLogRepository,
	processed repository.ProcessedRowRepository,
	fetcher partner.Fetcher,
	partners partner.Directory,
	store datalake.Store,
	opts ...Option,
) *Service {
	service := &Service{
		staging:   staging,
		logs:      logs,
		processed: processed,
		fetcher:   fetcher,
		partners:  partners,
		store:     store,
		now:       time.Now,
		newToken:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Create stores a staging record supplied directly by a caller.
func (s *Service) Create(ctx context.Context, record domain.StagingRecord) (domain.StagingRecord, error) {
	record.Date = strings.TrimSpace(record.Date)
	if record.Date == "" {
		return domain.StagingRecord{}, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if record.PlatformID <= 0 {
		return domain.StagingRecord{}, fmt.Errorf("%w: platform id is required", ErrInvalidRequest)
	}
	if record.FilePathProcessed != nil {
		return domain.StagingRecord{}, fmt.Errorf("%w: processed path is only recorded on completion", ErrInvalidRequest)
	}
	if record.Status == "" {
		record.Status = domain.StagingStatusPending
	}
	if _, err := domain.ParseStagingStatus(string(record.Status)); err != nil {
		return domain.StagingRecord{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	created, err := s.staging.Create(ctx, record)
	if err != nil {
		if errors.Is(err, repository.ErrStagingConflict) {
			return domain.StagingRecord{}, fmt.Errorf("%w: platform %d date %s", ErrDuplicateIngestion, record.PlatformID, record.Date)
		}
		return domain.StagingRecord{}, persistenceError("create staging record", err)
	}
	return created, nil
}

// Get returns a single staging record.
func (s *Service) Get(ctx context.Context, id int64) (domain.StagingRecord, error) {
	record, err := s.staging.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrStagingNotFound) {
			return domain.StagingRecord{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return domain.StagingRecord{}, persistenceError("get staging record", err)
	}
	return record, nil
}

// List returns every staging record.
func (s *Service) List(ctx context.Context) ([]domain.StagingRecord, error) {
	records, err := s.staging.List(ctx)
	if err != nil {
		return nil, persistenceError("list staging records", err)
	}
	return records, nil
}

// ListByDate returns the staging records of one partner date, whatever their status.
func (s *Service) ListByDate(ctx context.Context, date string) ([]domain.StagingRecord, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	records, err := s.staging.ListByDate(ctx, date)
	if err != nil {
		return nil, persistenceError("list staging records by date", err)
	}
	return records, nil
}

// Logs returns the failure log entries for a staging record.
func (s *Service) Logs(ctx context.Context, stagingID int64) ([]domain.StagingLog, error) {
	entries, err := s.logs.ListByStaging(ctx, stagingID)
	if err != nil {
		return nil, persistenceError("list staging logs", err)
	}
	return entries, nil
}

// Rows returns the processed rows extracted from a staging record.
func (s *Service) Rows(ctx context.Context, stagingID int64) ([]domain.ProcessedRow, error) {
	rows, err := s.processed.ListByStaging(ctx, stagingID)
	if err != nil {
		return nil, persistenceError("list processed rows", err)
	}
	return rows, nil
}

func (s *Service) fileName(ext string) string {
	return fmt.Sprintf("%s_%s.%s", s.newToken(), s.now().Format("20060102_150405"), ext)
}
