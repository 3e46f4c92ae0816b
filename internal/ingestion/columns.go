package ingestion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agrifield/backend/internal/domain"
)

// Structural file errors, mapped to 400s by the HTTP layer.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrDuplicateHeaders    = errors.New("duplicate column headings")
	ErrEmptyFile           = errors.New("file is empty, please insert records to proceed")
)

// ExpectedColumns must all be present in an uploaded file.
var ExpectedColumns = []string{
	"Category",
	"Farm",
	"Crop",
	"Assigned Field User",
	"Field User Id",
	"Assigned Date",
	"Details",
	"Special Instructions",
	"Priority",
}

// OptionalColumns may appear but are not required. A literal "Id"
// column also passes through unchecked.
var OptionalColumns = []string{
	domain.FieldFarmAddress,
	domain.FieldFarmLocation,
	domain.FieldFarmImage,
	domain.FieldPlot,
}

// ColumnError reports which expected columns are missing and which
// unexpected ones are present.
type ColumnError struct {
	Missing []string
	Extra   []string
}

func (e *ColumnError) Error() string {
	var b strings.Builder
	b.WriteString("column validation failed!")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " Missing Columns: %s!", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, " Extra Columns: %s", strings.Join(e.Extra, ", "))
	}
	return b.String()
}

// ValidateColumns checks an uploaded file's headers: no duplicates,
// every expected column present, nothing outside the expected and
// optional sets. Blank headers are filtered before any check.
func ValidateColumns(headers []string) error {
	var kept []string
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h != "" {
			kept = append(kept, h)
		}
	}

	present := make(map[string]struct{}, len(kept))
	for _, h := range kept {
		if _, dup := present[h]; dup {
			return ErrDuplicateHeaders
		}
		present[h] = struct{}{}
	}

	colErr := &ColumnError{}
	for _, col := range ExpectedColumns {
		if _, ok := present[col]; !ok {
			colErr.Missing = append(colErr.Missing, col)
		}
	}

	allowed := make(map[string]struct{}, len(ExpectedColumns)+len(OptionalColumns))
	for _, col := range ExpectedColumns {
		allowed[col] = struct{}{}
	}
	for _, col := range OptionalColumns {
		allowed[col] = struct{}{}
	}
	for _, h := range kept {
		if h == "Id" {
			continue
		}
		if _, ok := allowed[h]; !ok {
			colErr.Extra = append(colErr.Extra, h)
		}
	}

	if len(colErr.Missing) > 0 || len(colErr.Extra) > 0 {
		return colErr
	}
	return nil
}
