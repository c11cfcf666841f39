package ingestion

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// tableData is a rectangular view of a staged file. Empty cells are missing values.
type tableData struct {
	headers []string
	rows    [][]string
}

func (t tableData) column(name string) int {
	for idx, header := range t.headers {
		if strings.EqualFold(header, name) {
			return idx
		}
	}
	return -1
}

func loadTable(ext string, payload []byte) (tableData, error) {
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".json":
		return parseJSONRecords(payload)
	case ".xls", ".xlsx":
		return parseExcel(payload)
	default:
		return tableData{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (tableData, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(payload, byteOrderMark)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return tableData{}, fmt.Errorf("failed to read csv: %w", err)
		}
		records = append(records, record)
	}
	return normalizeTable(records)
}

// parseExcel streams the first sheet of a workbook.
func parseExcel(payload []byte) (tableData, error) {
	book, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer func() { _ = book.Close() }()

	sheet := book.GetSheetName(0)
	if sheet == "" {
		return tableData{}, errors.New("spreadsheet has no sheets")
	}

	iter, err := book.Rows(sheet)
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	defer func() { _ = iter.Close() }()

	var records [][]string
	for iter.Next() {
		cols, err := iter.Columns()
		if err != nil {
			return tableData{}, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		records = append(records, cols)
	}
	if err := iter.Error(); err != nil {
		return tableData{}, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	return normalizeTable(records)
}

// parseJSONRecords reads an array of flat objects. Keys of each object are
// sorted, and a column is placed where it first appears.
func parseJSONRecords(payload []byte) (tableData, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var items []map[string]any
	if err := decoder.Decode(&items); err != nil {
		return tableData{}, fmt.Errorf("failed to read json records: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return tableData{}, errors.New("failed to read json records: trailing data")
	}

	var columns []string
	index := make(map[string]int)
	for _, item := range items {
		for _, key := range slices.Sorted(maps.Keys(item)) {
			if _, ok := index[key]; !ok {
				index[key] = len(columns)
				columns = append(columns, key)
			}
		}
	}
	if len(columns) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	records := make([][]string, 0, len(items)+1)
	records = append(records, columns)
	for _, item := range items {
		row := make([]string, len(columns))
		for key, value := range item {
			row[index[key]] = jsonCell(value)
		}
		records = append(records, row)
	}
	return normalizeTable(records)
}

func jsonCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func normalizeTable(records [][]string) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := columnNames(headerRow)
	for i, row := range dataRows {
		dataRows[i] = fitRow(row, len(headers))
	}

	return tableData{headers: headers, rows: dataRows}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// columnNames turns raw header cells into lower snake_case identifiers.
// Blank headers become column_N and repeats get a numeric suffix.
func columnNames(raw []string) []string {
	names := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))

	for idx, cell := range raw {
		name := strings.Join(strings.FieldsFunc(strings.ToLower(cell), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}), "_")
		if name == "" {
			name = "column_" + strconv.Itoa(idx+1)
		}

		candidate := name
		for n := 2; taken[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		taken[candidate] = true
		names[idx] = candidate
	}
	return names
}

// fitRow trims every cell and cuts or extends the row to width.
func fitRow(row []string, width int) []string {
	out := make([]string, width)
	for i := 0; i < width && i < len(row); i++ {
		out[i] = strings.TrimSpace(row[i])
	}
	return out
}
