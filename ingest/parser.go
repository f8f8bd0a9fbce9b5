package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ParseResult is the outcome of one successful parse. Rows keep source order.
// Rows plus Skipped always account for every data row in the file.
type ParseResult struct {
	Rows          []NormalizedRow
	Skipped       int
	Headers       []string
	SheetNames    []string
	SelectedSheet string
}

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Parse reads a tabular upload into normalized rows. It is purely functional
// over the input bytes: no state is touched, and a failed parse leaves
// nothing behind.
//
// Accepted formats: .csv, and the zip spreadsheet formats .xlsx / .xlsm
// (read through excelize). sheetName selects an Excel sheet; empty means the
// first sheet. mapping maps canonical field names to source column headers;
// absent keys fall back to case-insensitive alias matching from cfg.
func Parse(data []byte, filename string, sheetName string, mapping map[string]string, cfg Config) (*ParseResult, error) {
	if cfg.MaxUploadBytes > 0 && int64(len(data)) > cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), cfg.MaxUploadBytes)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return parseCSV(data, mapping, cfg)
	case ".xlsx", ".xlsm":
		if !bytes.HasPrefix(data, zipMagic) {
			return nil, fmt.Errorf("%w: %s content is not a zip spreadsheet", ErrUnsupportedFormat, ext)
		}
		return parseExcel(data, sheetName, mapping, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(data []byte, mapping map[string]string, cfg Config) (*ParseResult, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return normalizeTable(records, nil, "", mapping, cfg)
}

func parseExcel(data []byte, sheetName string, mapping map[string]string, cfg Config) (*ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformed)
	}

	selected := sheets[0]
	if sheetName != "" {
		for _, s := range sheets {
			if s == sheetName {
				selected = s
				break
			}
		}
	}

	records, err := f.GetRows(selected)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return normalizeTable(records, sheets, selected, mapping, cfg)
}

// normalizeTable turns a header row plus data rows into NormalizedRows.
// Rows whose date or amount cannot be resolved are counted as skipped, never
// fatal; category is optional and its absence is recorded on the row.
func normalizeTable(records [][]string, sheets []string, selected string, mapping map[string]string, cfg Config) (*ParseResult, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header row", ErrMalformed)
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	dateCol := resolveColumn(headers, FieldDate, mapping, cfg)
	amountCol := resolveColumn(headers, FieldAmount, mapping, cfg)
	categoryCol := resolveColumn(headers, FieldCategory, mapping, cfg)

	result := &ParseResult{
		Headers:       headers,
		SheetNames:    sheets,
		SelectedSheet: selected,
	}

	for i, record := range records[1:] {
		date, ok := cellDate(record, dateCol)
		if !ok {
			result.Skipped++
			continue
		}
		amount, ok := cellAmount(record, amountCol)
		if !ok {
			result.Skipped++
			continue
		}

		row := NormalizedRow{
			Index:  i,
			Date:   date,
			Amount: amount,
		}
		if categoryCol < 0 {
			row.MissingFields = append(row.MissingFields, FieldCategory)
		} else if v := cellValue(record, categoryCol); v == "" {
			row.MissingFields = append(row.MissingFields, FieldCategory)
		} else {
			row.Category = v
		}

		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// resolveColumn finds the source column index for a canonical field: the
// explicit mapping wins, otherwise the first alias hit. Returns -1 when the
// field has no resolvable column.
func resolveColumn(headers []string, field string, mapping map[string]string, cfg Config) int {
	if want, ok := mapping[field]; ok && strings.TrimSpace(want) != "" {
		for i, h := range headers {
			if strings.EqualFold(h, strings.TrimSpace(want)) {
				return i
			}
		}
		return -1
	}
	for _, alias := range cfg.HeaderAliases[field] {
		for i, h := range headers {
			if strings.EqualFold(h, alias) {
				return i
			}
		}
	}
	return -1
}

func cellValue(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"2-Jan-06",
	"2006-01-02 15:04:05",
	"01-02-06",
	time.RFC3339,
}

func cellDate(record []string, col int) (time.Time, bool) {
	v := cellValue(record, col)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func cellAmount(record []string, col int) (decimal.Decimal, bool) {
	v := cellValue(record, col)
	if v == "" {
		return decimal.Decimal{}, false
	}

	// Accountant formats: "$1,234.50", "(250.00)" for negatives.
	negative := false
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		negative = true
		v = v[1 : len(v)-1]
	}
	v = strings.TrimSpace(strings.NewReplacer("$", "", ",", "", " ", "").Replace(v))

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}
