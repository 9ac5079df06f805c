// -----------------------------------------------------------------------
// Parser - normalizes uploaded CSV/JSON/XLSX files into tabular datasets
// -----------------------------------------------------------------------

package parser

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/datapilot/internal/common"
	"github.com/ternarybob/datapilot/internal/models"
	"github.com/xuri/excelize/v2"
)

// Service parses raw upload bytes into a Dataset
type Service struct {
	limits common.LimitsConfig
	logger arbor.ILogger
}

// NewService creates a parser bounded by the configured limits
func NewService(limits common.LimitsConfig, logger arbor.ILogger) *Service {
	return &Service{
		limits: limits,
		logger: logger,
	}
}

// Parse dispatches on the declared format ("csv", "json" or "xlsx")
func (s *Service) Parse(data []byte, format string) (*models.Dataset, error) {
	switch strings.ToLower(format) {
	case "csv":
		return s.parseCSV(data)
	case "json":
		return s.parseJSON(data)
	case "xlsx":
		return s.parseXLSX(data)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// DetectFormat guesses the format from a filename extension. Legacy .xls
// workbooks are not supported; only the OOXML .xlsx container is.
func DetectFormat(fileName string) (string, error) {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return "csv", nil
	case strings.HasSuffix(lower, ".json"):
		return "json", nil
	case strings.HasSuffix(lower, ".xlsx"):
		return "xlsx", nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", fileName)
	}
}

func (s *Service) parseCSV(data []byte) (*models.Dataset, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // Ragged rows are padded below
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("CSV file has no columns")
	}
	if s.limits.MaxColumns > 0 && len(header) > s.limits.MaxColumns {
		return nil, fmt.Errorf("too many columns: %d (limit %d)", len(header), s.limits.MaxColumns)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = name
	}

	ds := &models.Dataset{Columns: columns}
	for {
		record, err := reader.Read()
		if err != nil {
			break // io.EOF or a malformed trailing line ends the scan
		}
		if s.limits.MaxRows > 0 && len(ds.Rows) >= s.limits.MaxRows {
			ds.Sampled = true
			break
		}
		row := make([]string, len(columns))
		for i := range columns {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}
		ds.Rows = append(ds.Rows, row)
	}

	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("CSV file has no data rows")
	}

	s.logger.Debug().
		Int("rows", len(ds.Rows)).
		Int("columns", len(ds.Columns)).
		Msg("Parsed CSV dataset")

	return ds, nil
}

// parseJSON accepts an array of flat objects. Column order is the key
// order of the first object's sorted keys so parsing is deterministic.
func (s *Service) parseJSON(data []byte) (*models.Dataset, error) {
	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: expected an array of objects: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("JSON file has no records")
	}

	empty := true
	for _, rec := range records {
		if len(rec) > 0 {
			empty = false
			break
		}
	}
	if empty {
		return nil, fmt.Errorf("JSON records have no fields")
	}

	// Union of keys across all records, sorted for determinism
	keySet := map[string]bool{}
	for _, rec := range records {
		for k := range rec {
			keySet[k] = true
		}
	}
	columns := make([]string, 0, len(keySet))
	for k := range keySet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	if s.limits.MaxColumns > 0 && len(columns) > s.limits.MaxColumns {
		return nil, fmt.Errorf("too many columns: %d (limit %d)", len(columns), s.limits.MaxColumns)
	}

	ds := &models.Dataset{Columns: columns}
	for _, rec := range records {
		if s.limits.MaxRows > 0 && len(ds.Rows) >= s.limits.MaxRows {
			ds.Sampled = true
			break
		}
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := rec[col]; ok && v != nil {
				row[i] = stringifyJSON(v)
			}
		}
		ds.Rows = append(ds.Rows, row)
	}

	s.logger.Debug().
		Int("rows", len(ds.Rows)).
		Int("columns", len(ds.Columns)).
		Msg("Parsed JSON dataset")

	return ds, nil
}

// parseXLSX reads the first sheet of an OOXML workbook. The first row is
// treated as the header, matching how the CSV path works.
func (s *Service) parseXLSX(data []byte) (*models.Dataset, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("workbook has no columns")
	}

	header := rows[0]
	if s.limits.MaxColumns > 0 && len(header) > s.limits.MaxColumns {
		return nil, fmt.Errorf("too many columns: %d (limit %d)", len(header), s.limits.MaxColumns)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = name
	}

	ds := &models.Dataset{Columns: columns}
	for _, record := range rows[1:] {
		if s.limits.MaxRows > 0 && len(ds.Rows) >= s.limits.MaxRows {
			ds.Sampled = true
			break
		}
		row := make([]string, len(columns))
		for i := range columns {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
		}
		ds.Rows = append(ds.Rows, row)
	}

	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("workbook has no data rows")
	}

	s.logger.Debug().
		Str("sheet", sheets[0]).
		Int("rows", len(ds.Rows)).
		Int("columns", len(ds.Columns)).
		Msg("Parsed XLSX dataset")

	return ds, nil
}

// stringifyJSON renders a scalar cell; nested values become compact JSON
func stringifyJSON(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
