package ingestion

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest is returned for missing or malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned when a staging record does not exist.
	ErrNotFound = errors.New("staging record not found")
	// ErrDuplicateIngestion is returned when a platform/date pair was already ingested.
	ErrDuplicateIngestion = errors.New("this record already exists")
	// ErrUnknownPartner is returned when no endpoint is configured for a platform.
	ErrUnknownPartner = errors.New("page not found")
	// ErrFetchFailed is returned when the partner request fails or answers non-2xx.
	ErrFetchFailed = errors.New("partner request failed")
	// ErrUnsupportedFormat is returned when a payload or staged file has no supported format.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrMissingColumn is returned when a staged file lacks model_name or amount.
	ErrMissingColumn = errors.New("required column missing")
	// ErrInvalidTransition is returned when a status change would not advance the lifecycle.
	ErrInvalidTransition = errors.New("invalid staging status transition")
	// ErrPersistence wraps any storage layer failure.
	ErrPersistence = errors.New("persistence failure")
	// ErrAggregationInput is returned when stored amounts cannot be summed.
	ErrAggregationInput = errors.New("malformed stored amount")
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Result is the structured reply handed to routing and messaging layers.
type Result struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success wraps data in a 200 result.
func Success(data any) Result {
	return Result{Status: http.StatusOK, Message: "Success", Data: data}
}

// ErrorResult maps err to a status code, keeping its message.
func ErrorResult(err error) Result {
	if err == nil {
		return Success(nil)
	}
	return Result{Status: StatusCode(err), Message: err.Error()}
}

// StatusCode classifies err against the pipeline taxonomy.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownPartner), errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateIngestion), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrFetchFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrMissingColumn):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
