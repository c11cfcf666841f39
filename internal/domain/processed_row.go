package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProcessedRow is one normalized (model name, amount) observation.
type ProcessedRow struct {
	ID            int64           `json:"id"`
	StagingDataID int64           `json:"staging_data_id"`
	ModelName     string          `json:"model_name"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MonthPrefix returns the "YYYY-MM" prefix used to match staging dates in a month.
func MonthPrefix(year, month int) (string, error) {
	if month < 1 || month > 12 {
		return "", fmt.Errorf("month %d out of range", month)
	}
	if year < 1 || year > 9999 {
		return "", fmt.Errorf("year %d out of range", year)
	}
	return fmt.Sprintf("%04d-%02d", year, month), nil
}

// DateInMonth reports whether a partner date string falls in the given month.
func DateInMonth(date string, year, month int) bool {
	prefix, err := MonthPrefix(year, month)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(date), prefix)
}
