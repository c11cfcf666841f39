package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/pagelake/internal/domain"
	"github.com/rpattn/pagelake/internal/metrics"
)

// ProcessPending normalizes and loads every pending record of a date. Records
// are handled one at a time. A failing record is marked failed and logged
// without stopping the rest. Every record is returned with the status it was
// left in.
func (s *Service) ProcessPending(ctx context.Context, date string) ([]domain.StagingRecord, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}

	pending, err := s.staging.ListPending(ctx, date)
	if err != nil {
		return nil, persistenceError("list pending staging records", err)
	}

	results := make([]domain.StagingRecord, 0, len(pending))
	for _, record := range pending {
		processed, err := s.processRecord(ctx, record)
		if err != nil {
			log.Printf("[batch] staging record %d: %v", record.ID, err)
		}
		metrics.BatchRecordsTotal.WithLabelValues(string(processed.Status)).Inc()
		results = append(results, processed)
	}

	log.Printf("[batch] date %s: %d records handled", date, len(results))
	return results, nil
}

// processRecord claims a record and always releases it to completed or failed
// once claimed, including on panic.
func (s *Service) processRecord(ctx context.Context, record domain.StagingRecord) (result domain.StagingRecord, err error) {
	claimed, err := s.SetStatus(ctx, record.ID, domain.StagingStatusProcessing, "")
	if err != nil {
		if claimed.ID != 0 {
			return claimed, err
		}
		return record, err
	}
	result = claimed

	finalStatus := domain.StagingStatusFailed
	processedPath := ""
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic while processing: %v", recovered)
		}
		if err != nil {
			finalStatus = domain.StagingStatusFailed
			processedPath = ""
		}

		releaseCtx := context.WithoutCancel(ctx)
		released, releaseErr := s.SetStatus(releaseCtx, record.ID, finalStatus, processedPath)
		if releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release record as %s: %w", finalStatus, releaseErr))
			return
		}
		result = released

		if finalStatus == domain.StagingStatusFailed && err != nil {
			entry := domain.StagingLog{StagingDataID: record.ID, ErrorDescription: err.Error()}
			if _, logErr := s.logs.Record(releaseCtx, entry); logErr != nil {
				err = errors.Join(err, persistenceError("record staging log", logErr))
			}
		}
	}()

	normalized, err := s.Normalize(ctx, claimed)
	if err != nil {
		return result, err
	}

	inserted, err := s.processed.InsertBulk(ctx, normalized.Rows)
	metrics.BulkChunksTotal.Add(float64(inserted.ChunksCommitted))
	if err != nil {
		return result, persistenceError("insert processed rows", err)
	}
	metrics.ProcessedRowsTotal.Add(float64(inserted.RowsInserted))

	finalStatus = domain.StagingStatusCompleted
	processedPath = normalized.FileName
	return result, nil
}
