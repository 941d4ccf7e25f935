package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/corrigeo/api/internal/model"
)

var ErrNotFound = errors.New("correction not found")

// Store is the data access interface for correction records. It is the only
// mutable state shared between the API and the workers; every status mutation
// is a conditional single-row update so transitions stay monotonic
// (pending -> processing -> completed | failed) even under job redelivery.
type Store interface {
	Ping(ctx context.Context) error

	CreateCorrection(ctx context.Context, c *model.Correction) error
	GetCorrection(ctx context.Context, id uuid.UUID) (*model.Correction, error)
	GetCorrectionForUser(ctx context.Context, id uuid.UUID, userID string) (*model.Correction, error)

	// SetTotalJobs pins the number of jobs a submission fans out to. Only
	// valid while the correction is still pending and not yet pinned.
	SetTotalJobs(ctx context.Context, id uuid.UUID, total int) error

	// ResetTotalJobs releases the fan-out pin of a still-pending correction
	// so a submission the broker rejected outright can be retried.
	ResetTotalJobs(ctx context.Context, id uuid.UUID) error

	// MarkProcessing moves a pending correction to processing and returns the
	// refreshed record. Calling it on a correction that already left pending
	// is a no-op, so redelivered jobs cannot regress the status.
	MarkProcessing(ctx context.Context, id uuid.UUID) (*model.Correction, error)

	// CompleteJob records one job's stored artifact. The document upsert is
	// keyed on job id, so a redelivered job counts at most once; when the
	// last outstanding job completes the correction becomes completed. A
	// terminal correction accepts no documents at all.
	CompleteJob(ctx context.Context, doc *model.CorrectionDocument) (*model.Correction, error)

	// FailCorrection forces a non-terminal correction to failed, keeping the
	// reason for operability. Terminal corrections are left untouched and
	// unknown ids report ErrNotFound.
	FailCorrection(ctx context.Context, id uuid.UUID, reason string) error

	ListDocuments(ctx context.Context, correctionID uuid.UUID) ([]model.CorrectionDocument, error)
}
