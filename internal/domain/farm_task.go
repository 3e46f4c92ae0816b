package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is the urgency of a farm task. Stored lowercase.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityModerate Priority = "moderate"
	PriorityCritical Priority = "critical"
)

// ParsePriority normalizes a raw priority value. The empty string is
// accepted and resolves to the default at creation time.
func ParsePriority(raw string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PriorityNormal, true
	case PriorityNormal, PriorityModerate, PriorityCritical:
		return p, true
	default:
		return "", false
	}
}

// PublishStatus is the visibility state of a farm task.
type PublishStatus string

const (
	PublishStatusDraft     PublishStatus = "draft"
	PublishStatusPublished PublishStatus = "published"
)

// Work-progress states carried in FarmTask.TaskStatus.
const (
	TaskStatusNotStarted   = "not_started"
	TaskStatusNotCompleted = "not_completed"
	TaskStatusCompleted    = "completed"
)

// AllowedTaskNames is the closed set of task categories a spreadsheet
// row may reference.
var AllowedTaskNames = []string{
	"Field Preparation",
	"Sowing",
	"Weeding",
	"Irrigation",
	"Spraying",
	"Harvesting",
	"Maintenance",
	"Other",
}

// IsAllowedTaskName reports whether name is one of the allowed task
// categories. Matching is exact.
func IsAllowedTaskName(name string) bool {
	for _, t := range AllowedTaskNames {
		if t == name {
			return true
		}
	}
	return false
}

// FarmTask is an assignment of a task category to a farm, optionally
// bound to a field user and a crop, on a given date.
type FarmTask struct {
	ID           uuid.UUID     `json:"id"`
	FarmID       uuid.UUID     `json:"farm_id"`
	TaskID       uuid.UUID     `json:"task_id"`
	UserID       *uuid.UUID    `json:"user_id"`
	CropID       *uuid.UUID    `json:"crop_id"`
	AssignedAt   *time.Time    `json:"assigned_at"`
	Instructions *string       `json:"instructions"`
	Remarks      *string       `json:"remarks"`
	Priority     Priority      `json:"priority"`
	Status       PublishStatus `json:"status"`
	TaskStatus   string        `json:"task_status"`
	CreatedBy    *uuid.UUID    `json:"created_by"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// FarmTaskDetail is a farm task joined with the names of the entities
// it references, as listings and exports present it.
type FarmTaskDetail struct {
	FarmTask
	TaskName     string  `json:"task_name"`
	FarmName     string  `json:"farm_name"`
	FarmAddress  *string `json:"farm_address"`
	FarmLocation *string `json:"farm_location"`
	FarmImage    *string `json:"farm_image"`
	FarmPlot     *string `json:"farm_plot"`
	CropName     *string `json:"crop_name"`
	UserName     *string `json:"user_name"`
	Username     *string `json:"username"`
}
