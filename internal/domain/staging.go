package domain

import (
	"fmt"
	"time"
)

// StagingStatus captures lifecycle state for a staged partner file.
type StagingStatus string

const (
	StagingStatusPending      StagingStatus = "pending"
	StagingStatusProcessing   StagingStatus = "processing"
	StagingStatusCompleted    StagingStatus = "completed"
	StagingStatusFailed       StagingStatus = "failed"
	StagingStatusRequestError StagingStatus = "request_error"
)

// AllStagingStatuses lists every persisted status value.
var AllStagingStatuses = []StagingStatus{
	StagingStatusPending,
	StagingStatusProcessing,
	StagingStatusCompleted,
	StagingStatusFailed,
	StagingStatusRequestError,
}

// stagingPredecessors maps a target status to the statuses it may be reached from.
var stagingPredecessors = map[StagingStatus][]StagingStatus{
	StagingStatusProcessing: {StagingStatusPending},
	StagingStatusCompleted:  {StagingStatusProcessing},
	StagingStatusFailed:     {StagingStatusPending, StagingStatusProcessing},
}

// ParseStagingStatus validates a raw status string.
func ParseStagingStatus(raw string) (StagingStatus, error) {
	for _, status := range AllStagingStatuses {
		if string(status) == raw {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown staging status %q", raw)
}

// IsTerminal reports whether no further transition is possible.
func (s StagingStatus) IsTerminal() bool {
	switch s {
	case StagingStatusCompleted, StagingStatusFailed, StagingStatusRequestError:
		return true
	}
	return false
}

// Predecessors returns the statuses from which s may be entered. Re-applying the
// current status is not a transition and is handled by callers.
func (s StagingStatus) Predecessors() []StagingStatus {
	return append([]StagingStatus(nil), stagingPredecessors[s]...)
}

// CanTransition reports whether moving from s to next advances the lifecycle.
func (s StagingStatus) CanTransition(next StagingStatus) bool {
	for _, from := range stagingPredecessors[next] {
		if from == s {
			return true
		}
	}
	return false
}

// StagingRecord is one fetched partner file awaiting or past normalization.
type StagingRecord struct {
	ID                int64         `json:"id"`
	FilePath          string        `json:"file_path"`
	FilePathProcessed *string       `json:"file_path_processed"`
	Date              string        `json:"date"`
	PlatformID        int           `json:"platform_id"`
	Status            StagingStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// NewStagingRecord prepares a record for insertion.
func NewStagingRecord(platformID int, date, filePath string, status StagingStatus) StagingRecord {
	return StagingRecord{
		FilePath:   filePath,
		Date:       date,
		PlatformID: platformID,
		Status:     status,
	}
}

// ToMap renders the record as the plain mapping handed to routing and messaging layers.
func (r StagingRecord) ToMap() map[string]any {
	out := map[string]any{
		"id":          r.ID,
		"date":        r.Date,
		"platform_id": r.PlatformID,
		"status":      string(r.Status),
		"file_path":   r.FilePath,
		"created_at":  r.CreatedAt,
		"updated_at":  r.UpdatedAt,
	}
	if r.FilePathProcessed != nil {
		out["file_path_processed"] = *r.FilePathProcessed
	} else {
		out["file_path_processed"] = nil
	}
	return out
}
