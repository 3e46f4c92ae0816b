package ingestion

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/agrifield/backend/internal/domain"
	"github.com/agrifield/backend/internal/progress"
	"github.com/agrifield/backend/internal/repository"
)

// ValidationResult is the outcome of validating a parsed upload.
type ValidationResult struct {
	Errors          []domain.RowError
	InvalidCount    int
	FullFileInvalid bool
	ValidRecords    []domain.RawRecord
}

// RecordValidator runs the two-pass record validation: field rules
// first, then existence checks against the database. It records the
// outcome in the progress store and writes the validated-records
// artifact consumed by the job producer.
type RecordValidator struct {
	farms     repository.FarmRepository
	crops     repository.CropRepository
	users     repository.UserRepository
	querier   repository.Querier
	store     progress.Store
	uploadDir string
	logger    *zap.Logger
}

// NewRecordValidator wires a record validator.
func NewRecordValidator(
	farms repository.FarmRepository,
	crops repository.CropRepository,
	users repository.UserRepository,
	querier repository.Querier,
	store progress.Store,
	uploadDir string,
	logger *zap.Logger,
) *RecordValidator {
	return &RecordValidator{
		farms:     farms,
		crops:     crops,
		users:     users,
		querier:   querier,
		store:     store,
		uploadDir: uploadDir,
		logger:    logger.With(zap.String("component", "record_validator")),
	}
}

// ArtifactPath is where the validated-records file for an upload
// lives between validation and the last drained batch.
func ArtifactPath(uploadDir, uploadID string) string {
	return filepath.Join(uploadDir, fmt.Sprintf("validated_records_%s.csv", uploadID))
}

// assignedDateLayouts are the formats an assigned-date cell may carry
// after parsing. Unparseable dates are not an error here; they fall
// through the past-date check.
var assignedDateLayouts = []string{
	"1/2/2006",
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
}

// ParseAssignedDate parses an assigned-date cell into a local time.
func ParseAssignedDate(value string) (time.Time, bool) {
	for _, layout := range assignedDateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func roundProgress(v float64) float64 {
	return math.Round(v*100) / 100
}

// Validate checks every record, stores the resulting progress snapshot
// and error ledger under uploadID, and writes the valid rows to the
// local artifact unless the whole file failed.
func (v *RecordValidator) Validate(ctx context.Context, records []domain.RawRecord, uploadID string) (ValidationResult, error) {
	total := len(records)
	invalidCount := 0
	var rowErrors []domain.RowError
	kept := make(map[int]domain.RawRecord)

	userNames := make(map[string]struct{})
	farmNames := make(map[string]struct{})
	cropNames := make(map[string]struct{})

	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	for idx, record := range records {
		if record.IsEmpty() {
			invalidCount++
			continue
		}
		row := idx + 1

		var errs []string
		farmName := record.Get(domain.FieldFarm)
		taskName := record.Get(domain.FieldTask)
		userName := record.Get(domain.FieldUsername)
		cropName := record.Get(domain.FieldCrop)

		if farmName == "" {
			errs = append(errs, "Farm name is required")
		}

		if taskName == "" {
			errs = append(errs, "Category name is required")
		} else if !domain.IsAllowedTaskName(taskName) {
			errs = append(errs, "Category doesn't exist")
		}

		if raw := record.Get(domain.FieldAssignedDate); raw != "" {
			if assigned, ok := ParseAssignedDate(raw); ok && assigned.Before(todayStart) {
				errs = append(errs, "Assigned date is in the past")
			}
		}

		// A blank cell is rejected here; the empty-means-normal
		// default applies only when a task is created directly.
		if raw := record.Get(domain.FieldPriority); raw == "" {
			errs = append(errs, "Invalid priority")
		} else if _, ok := domain.ParsePriority(raw); !ok {
			errs = append(errs, "Invalid priority")
		}

		if len(errs) > 0 {
			rowErrors = append(rowErrors, domain.RowError{Row: row, Errors: errs})
			invalidCount++
		}
		kept[row] = record
		userNames[userName] = struct{}{}
		farmNames[farmName] = struct{}{}
		cropNames[cropName] = struct{}{}
	}

	userMap, err := v.users.MapByUsernames(ctx, v.querier, setToSlice(userNames))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to load users: %w", err)
	}
	farmMap, err := v.farms.MapByNames(ctx, v.querier, setToSlice(farmNames))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to load farms: %w", err)
	}
	cropMap, err := v.crops.MapByNames(ctx, v.querier, setToSlice(cropNames))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("failed to load crops: %w", err)
	}

	marked := make(map[int]struct{}, len(rowErrors))
	for _, e := range rowErrors {
		marked[e.Row] = struct{}{}
	}

	rows := make([]int, 0, len(kept))
	for row := range kept {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	var valid []domain.RawRecord
	for _, row := range rows {
		record := kept[row]
		var errs []string
		farmName := record.Get(domain.FieldFarm)
		userName := record.Get(domain.FieldUsername)
		cropName := record.Get(domain.FieldCrop)

		if _, ok := farmMap[farmName]; !ok {
			errs = append(errs, "Farm doesn't exist")
		}
		if userName != "" {
			if _, ok := userMap[userName]; !ok {
				errs = append(errs, "User doesn't exist")
			}
		}
		if cropName != "" {
			if _, ok := cropMap[cropName]; !ok {
				errs = append(errs, "Crop doesn't exist")
			}
		}

		if len(errs) > 0 {
			if _, already := marked[row]; !already {
				invalidCount++
			}
			rowErrors = append(rowErrors, domain.RowError{Row: row, Errors: errs})
			continue
		}
		if _, already := marked[row]; already {
			continue
		}
		valid = append(valid, record)
	}

	prog := 0.0
	if total > 0 {
		prog = roundProgress(float64(invalidCount) / float64(total) * 100)
	}

	snap, _, err := v.store.Get(ctx, uploadID)
	if err != nil {
		return ValidationResult{}, err
	}
	snap.Progress = prog
	snap.Errors = rowErrors
	snap.RowProgressed = invalidCount
	if err := v.store.Set(ctx, uploadID, snap); err != nil {
		return ValidationResult{}, err
	}

	if invalidCount != total {
		data, err := WriteRecordsCSV(valid)
		if err != nil {
			return ValidationResult{}, err
		}
		if err := os.MkdirAll(v.uploadDir, 0o755); err != nil {
			return ValidationResult{}, fmt.Errorf("failed to create upload dir: %w", err)
		}
		path := ArtifactPath(v.uploadDir, uploadID)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return ValidationResult{}, fmt.Errorf("failed to write validated records: %w", err)
		}
		v.logger.Info("validated records staged",
			zap.String("upload_id", uploadID),
			zap.Int("valid", len(valid)),
			zap.Int("invalid", invalidCount),
		)
	}

	return ValidationResult{
		Errors:          rowErrors,
		InvalidCount:    invalidCount,
		FullFileInvalid: invalidCount == total,
		ValidRecords:    valid,
	}, nil
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
