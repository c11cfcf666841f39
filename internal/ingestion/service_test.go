package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/pagelake/internal/datalake"
	"github.com/rpattn/pagelake/internal/domain"
	"github.com/rpattn/pagelake/internal/partner"
	"github.com/rpattn/pagelake/internal/repository"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	staging   *memStagingRepo
	logs      *memLogRepo
	processed *memProcessedRepo
	fetcher   *stubFetcher
	store     *datalake.LocalStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	store := datalake.NewLocalStore(filepath.Join(dir, "raw"), filepath.Join(dir, "processed"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}

	staging := newMemStagingRepo()
	fx := &fixture{
		staging:   staging,
		logs:      &memLogRepo{},
		processed: &memProcessedRepo{staging: staging, failFor: make(map[int64]error)},
		fetcher:   &stubFetcher{responses: make(map[string]partner.Response)},
		store:     store,
	}

	tokens := 0
	directory := partner.NewDirectory(map[int]string{
		1: "https://partner.test/one",
		2: "https://partner.test/two",
		3: "https://partner.test/three",
	})
	fx.svc = NewService(fx.staging, fx.logs, fx.processed, fx.fetcher, directory, store,
		WithClock(func() time.Time { return fixedNow }),
		WithTokenSource(func() string {
			tokens++
			return fmt.Sprintf("tok%d", tokens)
		}),
	)
	return fx
}

// stage writes content to the raw area and creates a pending record pointing at it.
func (fx *fixture) stage(t *testing.T, platformID int, date, name, content string) domain.StagingRecord {
	t.Helper()
	ctx := context.Background()
	if err := fx.store.Put(ctx, datalake.AreaRaw, name, []byte(content)); err != nil {
		t.Fatalf("put raw file: %v", err)
	}
	record, err := fx.svc.Create(ctx, domain.NewStagingRecord(platformID, date, name, domain.StagingStatusPending))
	if err != nil {
		t.Fatalf("create staging record: %v", err)
	}
	return record
}

func TestSetStatusFollowsLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	record := fx.stage(t, 1, "2024-03-01", "report.csv", "model_name,amount\nA,1\n")

	processing, err := fx.svc.SetStatus(ctx, record.ID, domain.StagingStatusProcessing, "")
	if err != nil {
		t.Fatalf("set processing: %v", err)
	}
	if processing.Status != domain.StagingStatusProcessing {
		t.Fatalf("expected processing, got %s", processing.Status)
	}

	completed, err := fx.svc.SetStatus(ctx, record.ID, domain.StagingStatusCompleted, "out.csv")
	if err != nil {
		t.Fatalf("set completed: %v", err)
	}
	if completed.FilePathProcessed == nil || *completed.FilePathProcessed != "out.csv" {
		t.Fatalf("expected processed path out.csv, got %v", completed.FilePathProcessed)
	}

	if _, err := fx.svc.SetStatus(ctx, record.ID, domain.StagingStatusFailed, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from completed, got %v", err)
	}
	stored, _ := fx.staging.GetByID(ctx, record.ID)
	if stored.Status != domain.StagingStatusCompleted || *stored.FilePathProcessed != "out.csv" {
		t.Fatalf("completed record changed: %+v", stored)
	}
}

func TestSetStatusRejectsProcessedPathOutsideCompletion(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	record := fx.stage(t, 1, "2024-03-01", "report.csv", "model_name,amount\nA,1\n")

	if _, err := fx.svc.SetStatus(ctx, record.ID, domain.StagingStatusFailed, "out.csv"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	stored, _ := fx.staging.GetByID(ctx, record.ID)
	if stored.Status != domain.StagingStatusPending || stored.FilePathProcessed != nil {
		t.Fatalf("record should be untouched: %+v", stored)
	}
}

func TestSetStatusSameStatusIsNoop(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	record := fx.stage(t, 1, "2024-03-01", "report.csv", "model_name,amount\nA,1\n")

	got, err := fx.svc.SetStatus(ctx, record.ID, domain.StagingStatusPending, "")
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if got.Status != domain.StagingStatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if fx.staging.updates != 0 {
		t.Fatalf("expected no repository update, got %d", fx.staging.updates)
	}
}

func TestSetStatusUnknownRecord(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.svc.SetStatus(context.Background(), 404, domain.StagingStatusProcessing, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateRejectsDuplicatePair(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.stage(t, 1, "2024-03-01", "report.csv", "model_name,amount\nA,1\n")

	_, err := fx.svc.Create(ctx, domain.NewStagingRecord(1, "2024-03-01", "other.csv", domain.StagingStatusPending))
	if !errors.Is(err, ErrDuplicateIngestion) {
		t.Fatalf("expected duplicate ingestion, got %v", err)
	}
	if StatusCode(err) != 409 {
		t.Fatalf("expected 409, got %d", StatusCode(err))
	}
}

func TestCreateValidatesInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := []domain.StagingRecord{
		domain.NewStagingRecord(1, " ", "a.csv", domain.StagingStatusPending),
		domain.NewStagingRecord(0, "2024-03-01", "a.csv", domain.StagingStatusPending),
		domain.NewStagingRecord(1, "2024-03-01", "a.csv", domain.StagingStatus("archived")),
	}
	for _, record := range cases {
		if _, err := fx.svc.Create(ctx, record); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected invalid request for %+v, got %v", record, err)
		}
	}
}

type memStagingRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]domain.StagingRecord
	updates int
}

func newMemStagingRepo() *memStagingRepo {
	return &memStagingRepo{records: make(map[int64]domain.StagingRecord)}
}

func (r *memStagingRepo) Create(ctx context.Context, record domain.StagingRecord) (domain.StagingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.PlatformID == record.PlatformID && existing.Date == record.Date {
			return domain.StagingRecord{}, repository.ErrStagingConflict
		}
	}
	r.nextID++
	record.ID = r.nextID
	record.CreatedAt = fixedNow
	record.UpdatedAt = fixedNow
	r.records[record.ID] = record
	return record, nil
}

func (r *memStagingRepo) GetByID(ctx context.Context, id int64) (domain.StagingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return domain.StagingRecord{}, repository.ErrStagingNotFound
	}
	return record, nil
}

func (r *memStagingRepo) List(ctx context.Context) ([]domain.StagingRecord, error) {
	return r.filter(func(domain.StagingRecord) bool { return true }), nil
}

func (r *memStagingRepo) ListByDate(ctx context.Context, date string) ([]domain.StagingRecord, error) {
	return r.filter(func(record domain.StagingRecord) bool { return record.Date == date }), nil
}

func (r *memStagingRepo) ListPending(ctx context.Context, date string) ([]domain.StagingRecord, error) {
	return r.filter(func(record domain.StagingRecord) bool {
		return record.Date == date && record.Status == domain.StagingStatusPending
	}), nil
}

func (r *memStagingRepo) FindByPlatformDate(ctx context.Context, platformID int, date string) (*domain.StagingRecord, error) {
	matches := r.filter(func(record domain.StagingRecord) bool {
		return record.PlatformID == platformID && record.Date == date
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (r *memStagingRepo) UpdateStatus(ctx context.Context, id int64, status domain.StagingStatus, from []domain.StagingStatus, processedPath string) (domain.StagingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return domain.StagingRecord{}, repository.ErrStagingNotFound
	}
	allowed := false
	for _, candidate := range from {
		if record.Status == candidate {
			allowed = true
		}
	}
	if !allowed {
		return record, repository.ErrStatusConflict
	}
	r.updates++
	record.Status = status
	if processedPath != "" {
		path := processedPath
		record.FilePathProcessed = &path
	}
	r.records[id] = record
	return record, nil
}

func (r *memStagingRepo) filter(keep func(domain.StagingRecord) bool) []domain.StagingRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.StagingRecord
	for _, record := range r.records {
		if keep(record) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memLogRepo struct {
	entries []domain.StagingLog
}

func (r *memLogRepo) Record(ctx context.Context, entry domain.StagingLog) (domain.StagingLog, error) {
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memLogRepo) ListByStaging(ctx context.Context, stagingID int64) ([]domain.StagingLog, error) {
	var out []domain.StagingLog
	for _, entry := range r.entries {
		if entry.StagingDataID == stagingID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type memProcessedRepo struct {
	staging *memStagingRepo
	rows    []domain.ProcessedRow
	failFor map[int64]error
	sumErr  error
}

func (r *memProcessedRepo) InsertBulk(ctx context.Context, rows []domain.ProcessedRow) (repository.BulkInsertResult, error) {
	if len(rows) == 0 {
		return repository.BulkInsertResult{}, nil
	}
	if err := r.failFor[rows[0].StagingDataID]; err != nil {
		return repository.BulkInsertResult{}, err
	}
	for _, row := range rows {
		row.ID = int64(len(r.rows) + 1)
		r.rows = append(r.rows, row)
	}
	chunks := (len(rows) + repository.DefaultBulkChunkSize - 1) / repository.DefaultBulkChunkSize
	return repository.BulkInsertResult{RowsInserted: len(rows), ChunksCommitted: chunks}, nil
}

func (r *memProcessedRepo) ListByStaging(ctx context.Context, stagingID int64) ([]domain.ProcessedRow, error) {
	var out []domain.ProcessedRow
	for _, row := range r.rows {
		if row.StagingDataID == stagingID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memProcessedRepo) SumAmountForMonth(ctx context.Context, year, month int) (decimal.Decimal, error) {
	if r.sumErr != nil {
		return decimal.Zero, r.sumErr
	}
	total := decimal.Zero
	for _, row := range r.rows {
		record, err := r.staging.GetByID(ctx, row.StagingDataID)
		if err != nil {
			continue
		}
		if domain.DateInMonth(record.Date, year, month) {
			total = total.Add(row.Amount)
		}
	}
	return total, nil
}

type stubFetcher struct {
	calls     int
	responses map[string]partner.Response
	err       error
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (partner.Response, error) {
	f.calls++
	if f.err != nil {
		return partner.Response{}, &partner.TransportError{URL: url, Err: f.err}
	}
	resp, ok := f.responses[url]
	if !ok {
		return partner.Response{StatusCode: http.StatusNotFound, Status: "404 Not Found"}, nil
	}
	return resp, nil
}

func jsonResponse(body string) partner.Response {
	return response("application/json; charset=utf-8", body)
}

func response(contentType, body string) partner.Response {
	return partner.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       []byte(body),
	}
}

func TestSetStatusLeavesTerminalRecordsAlone(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	record, err := fx.svc.Create(ctx, domain.NewStagingRecord(1, "2024-03-01", "", domain.StagingStatusRequestError))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, next := range []domain.StagingStatus{domain.StagingStatusProcessing, domain.StagingStatusFailed} {
		got, err := fx.svc.SetStatus(ctx, record.ID, next, "")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s: expected invalid transition, got %v", next, err)
		}
		if got.Status != domain.StagingStatusRequestError {
			t.Fatalf("%s: expected current status request_error, got %s", next, got.Status)
		}
	}
	if fx.staging.updates != 0 {
		t.Fatalf("expected no repository update, got %d", fx.staging.updates)
	}
}

func TestCreateRejectsProcessedPath(t *testing.T) {
	fx := newFixture(t)
	processed := "out.csv"
	record := domain.NewStagingRecord(1, "2024-03-01", "a.csv", domain.StagingStatusPending)
	record.FilePathProcessed = &processed

	if _, err := fx.svc.Create(context.Background(), record); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if len(fx.staging.records) != 0 {
		t.Fatalf("expected nothing stored, got %d records", len(fx.staging.records))
	}
}
