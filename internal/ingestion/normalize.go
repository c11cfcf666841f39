package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/rpattn/pagelake/internal/datalake"
	"github.com/rpattn/pagelake/internal/domain"
	"github.com/rpattn/pagelake/internal/metrics"

	"github.com/shopspring/decimal"
)

const (
	columnModelName = "model_name"
	columnAmount    = "amount"
)

// DropStats counts rows discarded while normalizing a staged file.
type DropStats struct {
	Duplicates    int `json:"duplicates"`
	Incomplete    int `json:"incomplete"`
	InvalidAmount int `json:"invalid_amount"`
}

// NormalizeResult holds the projected rows and the processed file written for them.
type NormalizeResult struct {
	Rows     []domain.ProcessedRow
	FileName string
	Dropped  DropStats
}

// Normalize cleanses the raw file behind record and writes the processed CSV.
// Rows are returned unsaved. A file with an unrecognized extension moves the
// record to failed.
func (s *Service) Normalize(ctx context.Context, record domain.StagingRecord) (NormalizeResult, error) {
	ext := strings.ToLower(filepath.Ext(record.FilePath))
	if !supportedExtension(ext) {
		err := fmt.Errorf("%w: staged file %q", ErrUnsupportedFormat, record.FilePath)
		if _, statusErr := s.SetStatus(ctx, record.ID, domain.StagingStatusFailed, ""); statusErr != nil {
			log.Printf("[normalize] failed to mark staging record %d as failed: %v", record.ID, statusErr)
			return NormalizeResult{}, errors.Join(err, statusErr)
		}
		return NormalizeResult{}, err
	}

	payload, err := s.store.Get(ctx, datalake.AreaRaw, record.FilePath)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("failed to read staged file %q: %w", record.FilePath, err)
	}

	table, err := loadTable(ext, payload)
	if err != nil {
		return NormalizeResult{}, err
	}

	rows, dropped, err := projectRows(table, record.ID)
	if err != nil {
		return NormalizeResult{}, err
	}

	encoded, err := encodeProcessedCSV(rows)
	if err != nil {
		return NormalizeResult{}, err
	}

	name := s.fileName("csv")
	if err := s.store.Put(ctx, datalake.AreaProcessed, name, encoded); err != nil {
		return NormalizeResult{}, fmt.Errorf("failed to write processed file: %w", err)
	}

	metrics.DroppedRowsTotal.WithLabelValues("duplicate").Add(float64(dropped.Duplicates))
	metrics.DroppedRowsTotal.WithLabelValues("incomplete").Add(float64(dropped.Incomplete))
	metrics.DroppedRowsTotal.WithLabelValues("invalid_amount").Add(float64(dropped.InvalidAmount))
	log.Printf("[normalize] staging record %d: %d rows kept, dropped %d duplicate, %d incomplete, %d invalid amount",
		record.ID, len(rows), dropped.Duplicates, dropped.Incomplete, dropped.InvalidAmount)

	return NormalizeResult{Rows: rows, FileName: name, Dropped: dropped}, nil
}

func supportedExtension(ext string) bool {
	switch ext {
	case ".csv", ".json", ".xls", ".xlsx":
		return true
	default:
		return false
	}
}

// projectRows drops exact duplicates, then rows with any missing field, then
// rows whose amount is not a positive number.
func projectRows(table tableData, stagingID int64) ([]domain.ProcessedRow, DropStats, error) {
	var dropped DropStats

	modelIdx := table.column(columnModelName)
	amountIdx := table.column(columnAmount)
	var missing []string
	if modelIdx < 0 {
		missing = append(missing, columnModelName)
	}
	if amountIdx < 0 {
		missing = append(missing, columnAmount)
	}
	if len(missing) > 0 {
		return nil, dropped, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	seen := make(map[string]struct{}, len(table.rows))
	rows := make([]domain.ProcessedRow, 0, len(table.rows))
	for _, row := range table.rows {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			dropped.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if hasMissingField(row) {
			dropped.Incomplete++
			continue
		}

		amount, ok := cleanAmount(row[amountIdx])
		if !ok {
			dropped.InvalidAmount++
			continue
		}

		rows = append(rows, domain.ProcessedRow{
			StagingDataID: stagingID,
			ModelName:     strings.TrimSpace(row[modelIdx]),
			Amount:        amount,
		})
	}
	return rows, dropped, nil
}

func hasMissingField(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) == "" {
			return true
		}
	}
	return false
}

// cleanAmount strips currency symbols and thousands separators. Only strictly
// positive values are kept.
func cleanAmount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.Is(unicode.Sc, r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, false
	}
	return amount, true
}

func encodeProcessedCSV(rows []domain.ProcessedRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{columnModelName, columnAmount, "staging_data_id"}); err != nil {
		return nil, fmt.Errorf("failed to write processed csv: %w", err)
	}
	for _, row := range rows {
		record := []string{row.ModelName, row.Amount.String(), strconv.FormatInt(row.StagingDataID, 10)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write processed csv: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to write processed csv: %w", err)
	}
	return buf.Bytes(), nil
}
