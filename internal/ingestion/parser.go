package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/agrifield/backend/internal/domain"
)

// Format identifies a supported spreadsheet encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// excelEpochOffset is the number of days between the Excel serial
// epoch and the Unix epoch.
const excelEpochOffset = 25569

// DetectFormat resolves the spreadsheet format from the request
// content type, falling back to the file extension.
func DetectFormat(filename, contentType string) (Format, error) {
	switch contentType {
	case "text/csv":
		return FormatCSV, nil
	case "application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX, nil
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xls", ".xlsx":
		return FormatXLSX, nil
	}
	return "", ErrUnsupportedFileType
}

// readTable loads the raw cell grid: header row first, then data rows.
// For workbooks only the first sheet is read.
func readTable(data []byte, format Format) ([][]string, error) {
	switch format {
	case FormatCSV:
		// Strip a UTF-8 BOM so the first header survives intact.
		data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		var rows [][]string
		for {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("failed to parse csv: %w", err)
			}
			rows = append(rows, row)
		}
		return rows, nil

	case FormatXLSX:
		wb, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
		defer wb.Close()
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		rows, err := wb.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
		}
		return rows, nil

	default:
		return nil, ErrUnsupportedFileType
	}
}

// ParseHeaders returns the trimmed header row of the file.
func ParseHeaders(data []byte, format Format) ([]string, error) {
	rows, err := readTable(data, format)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return headers, nil
}

// parseDateValue normalizes an assigned-date cell. Excel serial
// numbers convert through the epoch offset to M/D/YYYY; anything else
// is returned trimmed.
func parseDateValue(value string, serialDates bool) string {
	value = strings.TrimSpace(value)
	if serialDates {
		if serial, err := strconv.ParseFloat(value, 64); err == nil {
			t := time.Unix(int64((serial-excelEpochOffset)*86400), 0).UTC()
			return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
		}
	}
	return value
}

// rawRow is one data row keyed by the file's own (trimmed) headers,
// before alias resolution.
type rawRow map[string]string

// uploadKey identifies a row for dedup during the initial parse. Rows
// using alias headings contribute empty components, exactly like rows
// that leave those cells blank.
func (r rawRow) uploadKey(serialDates bool) string {
	return strings.Join([]string{
		strings.TrimSpace(r["Category"]),
		strings.TrimSpace(r["Farm"]),
		strings.TrimSpace(r["Field User Id"]),
		strings.TrimSpace(r["Crop"]),
		parseDateValue(r["Assigned Date"], serialDates),
	}, "|")
}

// localKey identifies a row when re-parsing the validated-records
// artifact, which is written with canonical headings.
func (r rawRow) localKey() string {
	return strings.Join([]string{
		strings.TrimSpace(r[domain.FieldTask]),
		strings.TrimSpace(r[domain.FieldFarm]),
		strings.TrimSpace(r[domain.FieldUsername]),
		strings.TrimSpace(r[domain.FieldCrop]),
		parseDateValue(r[domain.FieldAssignedDate], false),
	}, "|")
}

// canonicalize maps a raw row onto the canonical record shape,
// resolving header aliases (Category/Task, Field User Id/Username,
// Details/Instructions, ...).
func (r rawRow) canonicalize(serialDates bool) domain.RawRecord {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := r[k]; v != "" {
				return v
			}
		}
		return ""
	}
	return domain.RawRecord{
		domain.FieldTask:              first("Category", domain.FieldTask),
		domain.FieldFarm:              r[domain.FieldFarm],
		domain.FieldCrop:              r[domain.FieldCrop],
		domain.FieldAssignedFieldUser: first("Field User", domain.FieldAssignedFieldUser),
		domain.FieldUsername:          first("Field User Id", domain.FieldUsername),
		domain.FieldAssignedDate:      parseDateValue(r[domain.FieldAssignedDate], serialDates),
		domain.FieldInstructions:      first("Details", domain.FieldInstructions),
		domain.FieldRemarks:           first("Special Instructions", domain.FieldRemarks),
		domain.FieldPriority:          r[domain.FieldPriority],
		domain.FieldFarmAddress:       r[domain.FieldFarmAddress],
		domain.FieldFarmLocation:      r[domain.FieldFarmLocation],
		domain.FieldFarmImage:         r[domain.FieldFarmImage],
		domain.FieldPlot:              r[domain.FieldPlot],
	}
}

// ParseRecords reads the file into canonical records, deduplicating on
// the composite row key as it goes. Rows are consumed in micro-batches
// of batchSize; the dedup set spans the whole file. local selects the
// key used when re-reading the validated-records artifact.
func ParseRecords(data []byte, format Format, batchSize int, local bool) ([]domain.RawRecord, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	rows, err := readTable(data, format)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	serialDates := format == FormatXLSX

	seen := make(map[string]struct{})
	var records []domain.RawRecord

	processBatch := func(batch []rawRow) {
		for _, row := range batch {
			key := row.uploadKey(serialDates)
			if local {
				key = row.localKey()
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, row.canonicalize(serialDates))
		}
	}

	var batch []rawRow
	for _, cells := range rows[1:] {
		row := make(rawRow, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		batch = append(batch, row)
		if len(batch) == batchSize {
			processBatch(batch)
			batch = nil
		}
	}
	if len(batch) > 0 {
		processBatch(batch)
	}
	return records, nil
}
