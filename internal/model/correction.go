package model

import (
	"time"

	"github.com/google/uuid"
)

// CorrectionStatus is the user-visible lifecycle state of a correction.
// Transitions are monotonic: pending -> processing -> completed | failed.
type CorrectionStatus string

const (
	CorrectionStatusPending    CorrectionStatus = "pending"
	CorrectionStatusProcessing CorrectionStatus = "processing"
	CorrectionStatusCompleted  CorrectionStatus = "completed"
	CorrectionStatusFailed     CorrectionStatus = "failed"
)

// IsTerminal reports whether the status allows no further transitions.
func (s CorrectionStatus) IsTerminal() bool {
	return s == CorrectionStatusCompleted || s == CorrectionStatusFailed
}

// Correction is the durable record of one grading submission. A submission
// may carry several student copies; each copy becomes one CorrectionJob and
// the correction completes only once every job has produced a document.
type Correction struct {
	ID            uuid.UUID        `json:"id"`
	UserID        string           `json:"userId"`
	ClassLevel    string           `json:"classLevel"`
	Rubric        string           `json:"rubric,omitempty"`
	Status        CorrectionStatus `json:"status"`
	ResultURL     *string          `json:"resultUrl,omitempty"`
	FailureReason *string          `json:"-"` // kept for operability, not exposed
	TotalJobs     int              `json:"totalJobs"`
	CompletedJobs int              `json:"completedJobs"`
	CreatedAt     time.Time        `json:"createdAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

// CorrectionDocument is one graded copy's stored artifact. JobID is unique so
// a redelivered job upserts instead of duplicating the record.
type CorrectionDocument struct {
	ID           uuid.UUID `json:"id"`
	CorrectionID uuid.UUID `json:"correctionId"`
	JobID        uuid.UUID `json:"jobId"`
	FileName     string    `json:"fileName"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CorrectionJob is the queue payload for one uploaded student copy. It is
// immutable once enqueued; lifecycle state lives on the Correction record.
type CorrectionJob struct {
	JobID         uuid.UUID `json:"jobId"`
	CorrectionID  uuid.UUID `json:"correctionId"`
	UserID        string    `json:"userId"`
	FileName      string    `json:"fileName"`
	FileData      []byte    `json:"fileData"`
	ReferenceData []byte    `json:"referenceData,omitempty"`
	Rubric        string    `json:"rubric"`
	ClassLevel    string    `json:"classLevel"`
}

// DocxContentType is the MIME type of rendered correction documents.
const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
