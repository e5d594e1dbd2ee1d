package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	domain "github.com/kaigo-note/api/internal/domain"
)

// Column headers recognised in scheduling-system exports. Both the Japanese
// production headers and their ASCII equivalents are accepted.
var headerAliases = map[string]string{
	"利用者名":            "userName",
	"利用者":             "userName",
	"username":        "userName",
	"user_name":       "userName",
	"担当者名":            "staffName",
	"担当者":             "staffName",
	"staffname":       "staffName",
	"staff_name":      "staffName",
	"サービス日":           "serviceDate",
	"日付":              "serviceDate",
	"servicedate":     "serviceDate",
	"service_date":    "serviceDate",
	"開始時間":            "startTime",
	"starttime":       "startTime",
	"start_time":      "startTime",
	"終了時間":            "endTime",
	"endtime":         "endTime",
	"end_time":        "endTime",
	"サービス内容":          "serviceContent",
	"内容":              "serviceContent",
	"servicecontent":  "serviceContent",
	"service_content": "serviceContent",
}

// ErrMissingHeader signals that a mandatory column is absent from the header row.
var ErrMissingHeader = errors.New("csvio: missing header column")

var requiredColumns = []string{"userName", "serviceDate", "startTime"}

// ParseError reports a row that could not be mapped, with its 1-based
// position counted from the first data row.
type ParseError struct {
	Row    int
	Reason string
}

// ParseResult carries the mapped rows and the per-row failures.
type ParseResult struct {
	Rows   []domain.ImportRow
	Errors []ParseError
}

// ParseRows decodes the payload, reads it as CSV and maps each data row to
// an ImportRow. Rows with unparseable dates or times are reported in Errors
// and skipped rather than failing the whole file.
func ParseRows(payload []byte) (ParseResult, error) {
	decoded, err := DetectAndDecode(payload)
	if err != nil {
		return ParseResult{}, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ParseResult{}, fmt.Errorf("csvio: read header: %w", err)
	}
	columns, err := mapHeader(header)
	if err != nil {
		return ParseResult{}, err
	}

	var result ParseResult
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, ParseError{Row: row, Reason: err.Error()})
			continue
		}
		if isEmptyRecord(record) {
			continue
		}
		mapped, err := mapRecord(columns, record)
		if err != nil {
			result.Errors = append(result.Errors, ParseError{Row: row, Reason: err.Error()})
			continue
		}
		result.Rows = append(result.Rows, mapped)
	}
	return result, nil
}

func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if field, ok := headerAliases[key]; ok {
			columns[field] = i
		}
	}
	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingHeader, required)
		}
	}
	return columns, nil
}

func mapRecord(columns map[string]int, record []string) (domain.ImportRow, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	serviceDate, err := ParseDate(field("serviceDate"))
	if err != nil {
		return domain.ImportRow{}, err
	}
	startTime, err := ParseClockTime(field("startTime"))
	if err != nil {
		return domain.ImportRow{}, err
	}
	endTime := ""
	if raw := field("endTime"); raw != "" {
		endTime, err = ParseClockTime(raw)
		if err != nil {
			return domain.ImportRow{}, err
		}
	}

	return domain.ImportRow{
		UserName:       field("userName"),
		StaffName:      field("staffName"),
		ServiceDate:    serviceDate,
		StartTime:      startTime,
		EndTime:        endTime,
		ServiceContent: field("serviceContent"),
	}, nil
}

func isEmptyRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
