// Package progress tracks per-upload completion snapshots while batch
// jobs drain. Snapshots expire; an absent key reads as a finished
// upload, so callers needing stronger guarantees must keep their own
// terminal state.
package progress

import (
	"context"

	"github.com/agrifield/backend/internal/domain"
)

// Store holds one ProgressSnapshot per upload. Writes replace the
// whole snapshot (last writer wins); the pipeline only ever has a
// single writer per upload, the claimed batch consumer.
type Store interface {
	Set(ctx context.Context, uploadID string, snap domain.ProgressSnapshot) error
	// Get returns the snapshot and whether the key exists.
	Get(ctx context.Context, uploadID string) (domain.ProgressSnapshot, bool, error)
	Delete(ctx context.Context, uploadID string) error
}
