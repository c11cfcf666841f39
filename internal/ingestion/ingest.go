package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/rpattn/pagelake/internal/domain"
	"github.com/rpattn/pagelake/internal/metrics"
	"github.com/rpattn/pagelake/internal/partner"
	"github.com/rpattn/pagelake/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestRequest identifies one partner report.
type IngestRequest struct {
	PlatformID int    `json:"page_id"`
	Date       string `json:"date"`
}

// Ingest fetches the partner report for a platform and date, stages it in the
// raw area and creates a pending staging record. Fetch and format failures
// leave a failure record with a log entry.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (record domain.StagingRecord, err error) {
	defer func() {
		metrics.IngestionsTotal.WithLabelValues(ingestOutcome(err)).Inc()
	}()

	date := strings.TrimSpace(req.Date)
	if date == "" {
		return domain.StagingRecord{}, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if req.PlatformID <= 0 {
		return domain.StagingRecord{}, fmt.Errorf("%w: page id is required", ErrInvalidRequest)
	}

	existing, err := s.staging.FindByPlatformDate(ctx, req.PlatformID, date)
	if err != nil {
		return domain.StagingRecord{}, persistenceError("check existing staging record", err)
	}
	if existing != nil {
		return domain.StagingRecord{}, fmt.Errorf("%w: platform %d date %s (record %d)", ErrDuplicateIngestion, req.PlatformID, date, existing.ID)
	}

	url, err := s.partners.Resolve(req.PlatformID)
	if err != nil {
		return domain.StagingRecord{}, fmt.Errorf("%w: platform %d", ErrUnknownPartner, req.PlatformID)
	}

	timer := prometheus.NewTimer(metrics.FetchDurationSeconds.WithLabelValues(strconv.Itoa(req.PlatformID)))
	resp, err := s.fetcher.Fetch(ctx, url)
	timer.ObserveDuration()
	if err != nil {
		return s.failIngestion(ctx, req.PlatformID, date, domain.StagingStatusRequestError,
			fmt.Errorf("%w: %v", ErrFetchFailed, err))
	}
	if !resp.OK() {
		return s.failIngestion(ctx, req.PlatformID, date, domain.StagingStatusRequestError,
			fmt.Errorf("%w: partner answered %s", ErrFetchFailed, responseStatus(resp)))
	}

	name, err := s.StageResponse(ctx, resp)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return s.failIngestion(ctx, req.PlatformID, date, domain.StagingStatusFailed, err)
		}
		return domain.StagingRecord{}, err
	}

	record, err = s.staging.Create(ctx, domain.NewStagingRecord(req.PlatformID, date, name, domain.StagingStatusPending))
	if err != nil {
		if errors.Is(err, repository.ErrStagingConflict) {
			log.Printf("[ingestion] platform %d date %s staged concurrently, raw file %s left unreferenced", req.PlatformID, date, name)
			return domain.StagingRecord{}, fmt.Errorf("%w: platform %d date %s", ErrDuplicateIngestion, req.PlatformID, date)
		}
		return domain.StagingRecord{}, persistenceError("create staging record", err)
	}

	log.Printf("[ingestion] staged platform %d date %s as record %d (%s)", req.PlatformID, date, record.ID, name)
	return record, nil
}

// failIngestion stores a failure record with one log entry describing cause,
// then returns cause. Storage errors are joined onto cause.
func (s *Service) failIngestion(ctx context.Context, platformID int, date string, status domain.StagingStatus, cause error) (domain.StagingRecord, error) {
	log.Printf("[ingestion] platform %d date %s: %v", platformID, date, cause)

	record, err := s.staging.Create(ctx, domain.NewStagingRecord(platformID, date, "", status))
	if err != nil {
		return domain.StagingRecord{}, errors.Join(cause, persistenceError("create failure record", err))
	}

	if _, err := s.logs.Record(ctx, domain.StagingLog{StagingDataID: record.ID, ErrorDescription: cause.Error()}); err != nil {
		return record, errors.Join(cause, persistenceError("record staging log", err))
	}
	return record, cause
}

func responseStatus(resp partner.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return strconv.Itoa(resp.StatusCode)
}

func ingestOutcome(err error) string {
	switch {
	case err == nil:
		return "staged"
	case errors.Is(err, ErrDuplicateIngestion):
		return "duplicate"
	case errors.Is(err, ErrFetchFailed):
		return "request_error"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	default:
		return "error"
	}
}
