package domain

import "time"

// StagingLog captures a failed ingestion or processing attempt for a staging record.
type StagingLog struct {
	ID               int64     `json:"id"`
	StagingDataID    int64     `json:"staging_data_id"`
	ErrorDescription string    `json:"error_description"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
