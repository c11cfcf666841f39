package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/pagelake/internal/domain"
)

const maxRequestBody = 1 << 20

// Handler exposes the pipeline under /pages/. Every reply is a Result whose
// status is also the HTTP status.
type Handler struct {
	service *Service
	mux     *http.ServeMux
}

// NewHTTPHandler wires the service routes.
func NewHTTPHandler(service *Service) http.Handler {
	h := &Handler{service: service, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /pages/{$}", h.create)
	h.mux.HandleFunc("GET /pages/{$}", h.list)
	h.mux.HandleFunc("GET /pages/{id}", h.get)
	h.mux.HandleFunc("GET /pages/{id}/logs", h.logs)
	h.mux.HandleFunc("GET /pages/{id}/rows", h.rows)
	h.mux.HandleFunc("GET /pages/by_date", h.byDate)
	h.mux.HandleFunc("GET /pages/total_amount_month", h.totalAmountMonth)
	h.mux.HandleFunc("POST /pages/save_to_data_lake", h.saveToDataLake)
	h.mux.HandleFunc("POST /pages/processing_data", h.processingData)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type createRequest struct {
	FilePath          string  `json:"file_path"`
	FilePathProcessed *string `json:"file_path_processed"`
	Date              string  `json:"date"`
	Status            string  `json:"status"`
	PlatformID        int     `json:"platform_id"`
}

type dateRequest struct {
	Date string `json:"date"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := decodeBody(r, &body); err != nil {
		writeResult(w, ErrorResult(err))
		return
	}

	record := domain.StagingRecord{
		FilePath:          strings.TrimSpace(body.FilePath),
		FilePathProcessed: body.FilePathProcessed,
		Date:              body.Date,
		PlatformID:        body.PlatformID,
		Status:            domain.StagingStatus(strings.TrimSpace(body.Status)),
	}
	created, err := h.service.Create(r.Context(), record)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(created.ToMap()))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(recordMaps(records)))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	record, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(record.ToMap()))
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	entries, err := h.service.Logs(r.Context(), id)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(entries))
}

func (h *Handler) rows(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	rows, err := h.service.Rows(r.Context(), id)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(rows))
}

func (h *Handler) byDate(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListByDate(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(recordMaps(records)))
}

func (h *Handler) totalAmountMonth(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var (
		total MonthTotal
		err   error
	)
	if query.Get("year") == "" && query.Get("month") == "" {
		total, err = h.service.TotalForCurrentMonth(r.Context())
	} else {
		year, yearErr := strconv.Atoi(query.Get("year"))
		month, monthErr := strconv.Atoi(query.Get("month"))
		if yearErr != nil || monthErr != nil {
			writeResult(w, ErrorResult(fmt.Errorf("%w: year and month must be integers", ErrInvalidRequest)))
			return
		}
		total, err = h.service.TotalForMonth(r.Context(), year, month)
	}
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(total))
}

func (h *Handler) saveToDataLake(w http.ResponseWriter, r *http.Request) {
	var body IngestRequest
	if err := decodeBody(r, &body); err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	record, err := h.service.Ingest(r.Context(), body)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(record.ToMap()))
}

func (h *Handler) processingData(w http.ResponseWriter, r *http.Request) {
	var body dateRequest
	if err := decodeBody(r, &body); err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	records, err := h.service.ProcessPending(r.Context(), body.Date)
	if err != nil {
		writeResult(w, ErrorResult(err))
		return
	}
	writeResult(w, Success(recordMaps(records)))
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", ErrInvalidRequest, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrInvalidRequest, r.PathValue("id"))
	}
	return id, nil
}

func recordMaps(records []domain.StagingRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		out = append(out, record.ToMap())
	}
	return out
}

func writeResult(w http.ResponseWriter, result Result) {
	writeJSON(w, result.Status, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
