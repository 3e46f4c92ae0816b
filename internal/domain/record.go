package domain

import "strings"

// Canonical record field names. Incoming spreadsheets may use aliases
// (Category for Task, Field User Id for Username, ...); the parser maps
// every alias onto these keys so the rest of the pipeline sees one shape.
const (
	FieldTask              = "Task"
	FieldFarm              = "Farm"
	FieldCrop              = "Crop"
	FieldAssignedFieldUser = "Assigned Field User"
	FieldUsername          = "Username"
	FieldAssignedDate      = "Assigned Date"
	FieldInstructions      = "Instructions"
	FieldRemarks           = "Remarks"
	FieldPriority          = "Priority"
	FieldFarmAddress       = "Farm Address"
	FieldFarmLocation      = "Farm Location"
	FieldFarmImage         = "Farm Image"
	FieldPlot              = "Plot"
)

// RecordFields is the canonical field order, used when serializing
// records back out to CSV or XLSX.
var RecordFields = []string{
	FieldTask,
	FieldFarm,
	FieldCrop,
	FieldAssignedFieldUser,
	FieldUsername,
	FieldAssignedDate,
	FieldInstructions,
	FieldRemarks,
	FieldPriority,
	FieldFarmAddress,
	FieldFarmLocation,
	FieldFarmImage,
	FieldPlot,
}

// RawRecord is one spreadsheet row after header aliasing, keyed by the
// canonical field names above.
type RawRecord map[string]string

// Get returns the trimmed value of a field.
func (r RawRecord) Get(field string) string {
	return strings.TrimSpace(r[field])
}

// IsEmpty reports whether every field of the row is blank.
func (r RawRecord) IsEmpty() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Clone returns a copy of the record.
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RowError is the validation failure set for a single row. Row is
// 1-based over the parsed (deduplicated) record sequence.
type RowError struct {
	Row    int      `json:"row"`
	Errors []string `json:"errors"`
}
