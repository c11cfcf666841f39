package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/rpattn/pagelake/internal/datalake"
	"github.com/rpattn/pagelake/internal/domain"

	"github.com/xuri/excelize/v2"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		contentType string
		want        Format
		ok          bool
	}{
		{"application/json", FormatJSON, true},
		{"Application/JSON; charset=utf-8", FormatJSON, true},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", FormatSpreadsheet, true},
		{"application/vnd.ms-excel", FormatSpreadsheet, true},
		{"text/csv; charset=utf-8", FormatCSV, true},
		{"text/html", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectFormat(tc.contentType)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("DetectFormat(%q) = %q, %v; want %q, %v", tc.contentType, got, ok, tc.want, tc.ok)
		}
	}
}

func TestStageResponseRewritesCSV(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	name, err := fx.svc.StageResponse(ctx, response("text/csv", "model_name,amount\r\n\r\nA,10\n\nB,20"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if name != "tok1_20240315_103000.csv" {
		t.Fatalf("unexpected name %q", name)
	}
	staged, _ := fx.store.Get(ctx, datalake.AreaRaw, name)
	if string(staged) != "model_name,amount\nA,10\nB,20\n" {
		t.Fatalf("unexpected csv %q", staged)
	}
}

func TestStageResponseRejectsInvalidJSON(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.StageResponse(context.Background(), jsonResponse(`{"broken":`))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestStagedFormatsNormalizeAlike(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.fetcher.responses["https://partner.test/one"] = jsonResponse(
		`[{"model_name":"A","amount":"10.50"},{"model_name":"B","amount":20}]`)
	fx.fetcher.responses["https://partner.test/two"] = response("text/csv", "model_name,amount\nA,10.50\nB,20\n")
	fx.fetcher.responses["https://partner.test/three"] = response(
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		string(spreadsheetFixture(t, [][]any{{"model_name", "amount"}, {"A", "10.50"}, {"B", "20"}})))

	var results [][]domain.ProcessedRow
	for _, platformID := range []int{1, 2, 3} {
		record, err := fx.svc.Ingest(ctx, IngestRequest{PlatformID: platformID, Date: "2024-03-01"})
		if err != nil {
			t.Fatalf("ingest platform %d: %v", platformID, err)
		}
		normalized, err := fx.svc.Normalize(ctx, record)
		if err != nil {
			t.Fatalf("normalize platform %d: %v", platformID, err)
		}
		results = append(results, normalized.Rows)
	}

	for i, rows := range results {
		if len(rows) != 2 {
			t.Fatalf("format %d: expected 2 rows, got %d", i, len(rows))
		}
		assertRow(t, rows[0], "A", "10.50")
		assertRow(t, rows[1], "B", "20")
	}
}

func spreadsheetFixture(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for idx, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, idx+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write spreadsheet: %v", err)
	}
	return buf.Bytes()
}

func TestStageResponseSplitsBareCarriageReturns(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	name, err := fx.svc.StageResponse(ctx, response("text/csv", "model_name,amount\rA,10\r\rB,20\r\nC,30"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	staged, _ := fx.store.Get(ctx, datalake.AreaRaw, name)
	if string(staged) != "model_name,amount\nA,10\nB,20\nC,30\n" {
		t.Fatalf("unexpected csv %q", staged)
	}

	record, err := fx.svc.Create(ctx, domain.NewStagingRecord(1, "2024-03-01", name, domain.StagingStatusPending))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	normalized, err := fx.svc.Normalize(ctx, record)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(normalized.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(normalized.Rows))
	}
}
