package model

import "time"

// CreateCorrectionRequest represents the body for creating a correction
type CreateCorrectionRequest struct {
	ClassLevel string `json:"classLevel" form:"classLevel" validate:"required,max=64"`
	Rubric     string `json:"gradingCriteria" form:"gradingCriteria" validate:"max=4000"`
}

// CreateCorrectionResponse represents the response after creating a correction
type CreateCorrectionResponse struct {
	ID        string           `json:"id"`
	Status    CorrectionStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ProcessRequest carries the multipart form fields of a process submission.
// Files travel separately as multipart parts.
type ProcessRequest struct {
	GradingCriteria string `form:"gradingCriteria" validate:"max=4000"`
	ClassLevel      string `form:"classLevel" validate:"max=64"`
}

// ProcessResponse represents the response after a submission is accepted
type ProcessResponse struct {
	Message    string `json:"message"`
	FilesCount int    `json:"filesCount"`
}

// CorrectionStatusResponse represents the observable state of a correction
type CorrectionStatusResponse struct {
	ID            string           `json:"id"`
	Status        CorrectionStatus `json:"status"`
	ResultURL     *string          `json:"resultUrl,omitempty"`
	TotalJobs     int              `json:"totalJobs"`
	CompletedJobs int              `json:"completedJobs"`
	CreatedAt     time.Time        `json:"createdAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

// CorrectionDocumentsResponse lists per-copy artifacts of a correction
type CorrectionDocumentsResponse struct {
	CorrectionID string               `json:"correctionId"`
	Documents    []CorrectionDocument `json:"documents"`
}

// CancelResponse represents the response to a cancel request
type CancelResponse struct {
	Success bool             `json:"success"`
	ID      string           `json:"id"`
	Status  CorrectionStatus `json:"status"`
}
