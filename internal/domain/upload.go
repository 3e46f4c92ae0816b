package domain

import (
	"github.com/google/uuid"
)

// Upload status strings reported to clients.
const (
	UploadStatusComplete   = "Upload complete"
	UploadStatusFailed     = "Failed with errors"
	UploadStatusInProgress = "In progress"
)

// UploadSession identifies one bulk upload from intake to completion.
type UploadSession struct {
	ID       uuid.UUID
	FileName string
	UserID   uuid.UUID
	Total    int
}

// ProgressSnapshot is the progress record kept per upload while its
// batches drain. Progress is a percentage with two decimal places;
// RowProgressed counts rows already accounted for (invalid rows up
// front, then each processed batch).
type ProgressSnapshot struct {
	Progress      float64    `json:"progress"`
	Errors        []RowError `json:"errors"`
	RowProgressed int        `json:"rowProgressed"`
	UserID        uuid.UUID  `json:"userId"`
	FileName      string     `json:"fileName"`
}

// UploadStatus is the client-facing view of an upload's progress.
// Expired or unknown uploads report 100 / "Upload complete"; callers
// that need stronger guarantees must track terminal state themselves.
type UploadStatus struct {
	UploadID   string     `json:"upload_id"`
	Percentage float64    `json:"percentage"`
	Status     string     `json:"status"`
	Errors     []RowError `json:"errors,omitempty"`
}
