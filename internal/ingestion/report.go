package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/agrifield/backend/internal/domain"
)

// exportSheet is the sheet name used for generated workbooks.
const exportSheet = "Farm Tasks"

// exportFields maps export headings to the canonical record field they
// are filled from, in output order.
var exportFields = []struct {
	Header string
	Field  string
}{
	{"Category", domain.FieldTask},
	{"Farm", domain.FieldFarm},
	{"Crop", domain.FieldCrop},
	{"Field User", domain.FieldAssignedFieldUser},
	{"Field User Id", domain.FieldUsername},
	{"Assigned Date", domain.FieldAssignedDate},
	{"Details", domain.FieldInstructions},
	{"Special Instructions", domain.FieldRemarks},
	{"Priority", domain.FieldPriority},
	{domain.FieldFarmAddress, domain.FieldFarmAddress},
	{domain.FieldFarmLocation, domain.FieldFarmLocation},
	{domain.FieldFarmImage, domain.FieldFarmImage},
	{"Plot", domain.FieldPlot},
}

var atRowPattern = regexp.MustCompile(` at row \d+`)

// GroupRowErrors folds the error ledger into one entry per row, rows
// ascending, with positional suffixes stripped and repeated messages
// collapsed.
func GroupRowErrors(errs []domain.RowError) []domain.RowError {
	if len(errs) == 0 {
		return nil
	}
	seen := make(map[int]map[string]struct{}, len(errs))
	byRow := make(map[int][]string, len(errs))
	for _, e := range errs {
		if seen[e.Row] == nil {
			seen[e.Row] = make(map[string]struct{})
		}
		for _, msg := range e.Errors {
			msg = strings.TrimSpace(atRowPattern.ReplaceAllString(msg, ""))
			if _, dup := seen[e.Row][msg]; dup {
				continue
			}
			seen[e.Row][msg] = struct{}{}
			byRow[e.Row] = append(byRow[e.Row], msg)
		}
	}

	rows := make([]int, 0, len(byRow))
	for row := range byRow {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	out := make([]domain.RowError, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.RowError{Row: row, Errors: byRow[row]})
	}
	return out
}

// WriteRecordsCSV renders records to CSV with canonical headings. Only
// fields present on the first record are emitted, so redacted uploads
// produce an artifact without the farm profile columns.
func WriteRecordsCSV(records []domain.RawRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if len(records) == 0 {
		w.Flush()
		return buf.Bytes(), w.Error()
	}

	var headers []string
	for _, field := range domain.RecordFields {
		if _, ok := records[0][field]; ok {
			headers = append(headers, field)
		}
	}
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(headers))
	for _, record := range records {
		for i, field := range headers {
			row[i] = record[field]
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// BuildErrorReport renders the uploaded records into a workbook with
// one extra Errors column holding that row's validation failures.
// Only columns present in the original upload appear, so redacted or
// partial files round-trip without phantom headings.
func BuildErrorReport(records []domain.RawRecord, errs []domain.RowError, uploadHeaders []string) ([]byte, error) {
	present := make(map[string]struct{}, len(uploadHeaders))
	for _, h := range uploadHeaders {
		present[strings.TrimSpace(h)] = struct{}{}
	}

	var cols []struct {
		Header string
		Field  string
	}
	for _, col := range exportFields {
		if _, ok := present[col.Header]; ok {
			cols = append(cols, col)
		}
	}

	grouped := make(map[int][]string, len(errs))
	for _, e := range GroupRowErrors(errs) {
		grouped[e.Row] = e.Errors
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]any, 0, len(cols)+1)
	for _, col := range cols {
		header = append(header, col.Header)
	}
	header = append(header, "Errors")
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	for idx, record := range records {
		row := make([]any, 0, len(cols)+1)
		for _, col := range cols {
			row = append(row, record[col.Field])
		}
		row = append(row, strings.Join(grouped[idx+1], ", "))
		cell, err := excelize.CoordinatesToCellName(1, idx+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", idx+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildExportWorkbook renders farm-task detail rows into the download
// workbook, Id column first.
func BuildExportWorkbook(details []domain.FarmTaskDetail) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]any, 0, len(exportFields)+1)
	header = append(header, "Id")
	for _, col := range exportFields {
		header = append(header, col.Header)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	for i, d := range details {
		assigned := ""
		if d.AssignedAt != nil {
			assigned = fmt.Sprintf("%d/%d/%d", int(d.AssignedAt.Month()), d.AssignedAt.Day(), d.AssignedAt.Year())
		}
		row := []any{
			d.ID.String(),
			d.TaskName,
			d.FarmName,
			deref(d.CropName),
			deref(d.UserName),
			deref(d.Username),
			assigned,
			deref(d.Instructions),
			deref(d.Remarks),
			string(d.Priority),
			deref(d.FarmAddress),
			deref(d.FarmLocation),
			deref(d.FarmImage),
			deref(d.FarmPlot),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
