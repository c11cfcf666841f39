package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/rpattn/pagelake/internal/datalake"
	"github.com/rpattn/pagelake/internal/metrics"
	"github.com/rpattn/pagelake/internal/partner"
)

// Format is the staged representation of a partner payload.
type Format string

const (
	FormatJSON        Format = "json"
	FormatSpreadsheet Format = "xlsx"
	FormatCSV         Format = "csv"
)

// Extension returns the file extension used for staged files of this format.
func (f Format) Extension() string {
	return string(f)
}

var spreadsheetContentTypes = []string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-excel",
}

// DetectFormat classifies a response by its declared content type.
func DetectFormat(contentType string) (Format, bool) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		return FormatJSON, true
	case containsAny(ct, spreadsheetContentTypes):
		return FormatSpreadsheet, true
	case strings.Contains(ct, "text/csv"):
		return FormatCSV, true
	default:
		return "", false
	}
}

func containsAny(value string, candidates []string) bool {
	for _, candidate := range candidates {
		if strings.Contains(value, candidate) {
			return true
		}
	}
	return false
}

// StageResponse writes a partner payload to the raw area and returns the generated file name.
func (s *Service) StageResponse(ctx context.Context, resp partner.Response) (string, error) {
	format, ok := DetectFormat(resp.ContentType())
	if !ok {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, resp.ContentType())
	}

	data, err := encodeStaged(format, resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s payload: %v", ErrUnsupportedFormat, format, err)
	}

	name := s.fileName(format.Extension())
	if err := s.store.Put(ctx, datalake.AreaRaw, name, data); err != nil {
		return "", fmt.Errorf("failed to stage raw file: %w", err)
	}

	metrics.StagedFilesTotal.WithLabelValues(string(format)).Inc()
	log.Printf("[ingestion] staged %s payload as %s (%d bytes)", format, name, len(data))
	return name, nil
}

func encodeStaged(format Format, body []byte) ([]byte, error) {
	switch format {
	case FormatJSON:
		return reencodeJSON(body)
	case FormatSpreadsheet:
		return body, nil
	case FormatCSV:
		return rewriteCSV(body)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func reencodeJSON(body []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var document any
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to decode json: trailing data")
	}
	return json.Marshal(document)
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// rewriteCSV splits the body on line breaks (\n, \r\n or a bare \r) and commas
// and re-emits it with standard quoting. Blank lines are dropped.
func rewriteCSV(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	for _, line := range strings.Split(lineBreaks.Replace(string(body)), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := writer.Write(strings.Split(line, ",")); err != nil {
			return nil, fmt.Errorf("failed to write csv: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}
