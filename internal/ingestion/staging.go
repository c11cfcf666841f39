package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/pagelake/internal/domain"
	"github.com/rpattn/pagelake/internal/repository"
)

// SetStatus moves a staging record along its lifecycle. A processed path may
// only accompany completed. Setting the status a record already has is a no-op.
func (s *Service) SetStatus(ctx context.Context, id int64, status domain.StagingStatus, processedPath string) (domain.StagingRecord, error) {
	if _, err := domain.ParseStagingStatus(string(status)); err != nil {
		return domain.StagingRecord{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if processedPath != "" && status != domain.StagingStatusCompleted {
		return domain.StagingRecord{}, fmt.Errorf("%w: processed path is only recorded on completion", ErrInvalidRequest)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.StagingRecord{}, err
	}
	if current.Status == status && processedPath == "" {
		return current, nil
	}
	if current.Status.IsTerminal() {
		return current, fmt.Errorf("%w: record %d is already %s", ErrInvalidTransition, id, current.Status)
	}
	if !current.Status.CanTransition(status) {
		return current, fmt.Errorf("%w: record %d is %s, cannot become %s", ErrInvalidTransition, id, current.Status, status)
	}

	updated, err := s.staging.UpdateStatus(ctx, id, status, status.Predecessors(), processedPath)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, repository.ErrStatusConflict):
		return updated, fmt.Errorf("%w: record %d is %s, cannot become %s", ErrInvalidTransition, id, updated.Status, status)
	case errors.Is(err, repository.ErrStagingNotFound):
		return domain.StagingRecord{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	default:
		return domain.StagingRecord{}, persistenceError("update staging status", err)
	}
}
