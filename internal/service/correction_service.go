package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/corrigeo/api/internal/config"
	"github.com/corrigeo/api/internal/model"
	"github.com/corrigeo/api/internal/queue"
	"github.com/corrigeo/api/internal/store"
)

// ErrInvalidSubmission marks client input rejected synchronously at submit
// time; nothing is persisted and no job is enqueued.
var ErrInvalidSubmission = errors.New("invalid submission")

// SubmittedFile is one uploaded student copy.
type SubmittedFile struct {
	Name string
	Data []byte
}

// CorrectionService handles correction lifecycle management: creation,
// submission fan-out to the queue, status reads and cancellation.
type CorrectionService struct {
	store       store.Store
	queue       queue.Enqueuer
	maxFiles    int
	maxFileSize int64
}

func NewCorrectionService(st store.Store, q queue.Enqueuer, uploadCfg config.UploadConfig) *CorrectionService {
	return &CorrectionService{
		store:       st,
		queue:       q,
		maxFiles:    uploadCfg.MaxFiles,
		maxFileSize: uploadCfg.MaxFileSize,
	}
}

// Create registers a new pending correction for the user.
func (s *CorrectionService) Create(ctx context.Context, userID string, req *model.CreateCorrectionRequest) (*model.CreateCorrectionResponse, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrInvalidSubmission)
	}

	c := &model.Correction{
		ID:         uuid.New(),
		UserID:     userID,
		ClassLevel: req.ClassLevel,
		Rubric:     req.Rubric,
		Status:     model.CorrectionStatusPending,
		CreatedAt:  time.Now(),
	}

	if err := s.store.CreateCorrection(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create correction: %w", err)
	}

	return &model.CreateCorrectionResponse{
		ID:        c.ID.String(),
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
	}, nil
}

// Submit fans a submission out into one queued job per uploaded file and
// returns the number of jobs enqueued. Validation failures surface as
// ErrInvalidSubmission before any state changes. Broker failures surface as
// queue.ErrQueueUnavailable: if nothing reached the broker the correction
// stays pending and the submission can be retried, otherwise it is failed.
func (s *CorrectionService) Submit(ctx context.Context, correctionID uuid.UUID, userID string, files []SubmittedFile, reference []byte, rubric, classLevel string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: missing user", ErrInvalidSubmission)
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("%w: no files uploaded", ErrInvalidSubmission)
	}
	if len(files) > s.maxFiles {
		return 0, fmt.Errorf("%w: too many files (max %d)", ErrInvalidSubmission, s.maxFiles)
	}
	for _, f := range files {
		if len(f.Data) == 0 {
			return 0, fmt.Errorf("%w: empty file %q", ErrInvalidSubmission, f.Name)
		}
		if int64(len(f.Data)) > s.maxFileSize {
			return 0, fmt.Errorf("%w: file %q exceeds size limit", ErrInvalidSubmission, f.Name)
		}
	}

	correction, err := s.store.GetCorrectionForUser(ctx, correctionID, userID)
	if err != nil {
		return 0, err
	}
	if correction.Status != model.CorrectionStatusPending {
		return 0, fmt.Errorf("%w: correction already %s", ErrInvalidSubmission, correction.Status)
	}
	if correction.TotalJobs > 0 {
		return 0, fmt.Errorf("%w: correction already submitted", ErrInvalidSubmission)
	}

	// Pin the fan-out size before enqueueing so a fast worker finishing the
	// first job cannot see a stale total.
	if err := s.store.SetTotalJobs(ctx, correctionID, len(files)); err != nil {
		return 0, fmt.Errorf("failed to record job count: %w", err)
	}

	if rubric == "" {
		rubric = correction.Rubric
	}
	if classLevel == "" {
		classLevel = correction.ClassLevel
	}

	for i, f := range files {
		job := &model.CorrectionJob{
			JobID:         uuid.New(),
			CorrectionID:  correctionID,
			UserID:        userID,
			FileName:      f.Name,
			FileData:      f.Data,
			ReferenceData: reference,
			Rubric:        rubric,
			ClassLevel:    classLevel,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.compensateEnqueueFailure(correctionID, i)
			return 0, err
		}
	}

	return len(files), nil
}

// compensateEnqueueFailure unwinds a submission whose fan-out loop stopped
// after enqueued jobs reached the broker. With no jobs out, the pin is
// released so the client can retry. With a partial fan-out the correction is
// failed outright: the stray jobs can never sum to a truncated total, and
// the terminal status makes the workers drop them. Runs on a fresh context
// so a canceled request cannot block the cleanup.
func (s *CorrectionService) compensateEnqueueFailure(correctionID uuid.UUID, enqueued int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if enqueued == 0 {
		if err := s.store.ResetTotalJobs(ctx, correctionID); err != nil {
			log.Printf("Failed to reset job count for correction %s: %v", correctionID, err)
		}
		return
	}
	if err := s.store.FailCorrection(ctx, correctionID, "submission interrupted: queue unavailable"); err != nil {
		log.Printf("Failed to fail partially submitted correction %s: %v", correctionID, err)
	}
}

// GetStatus returns the observable state of a correction.
func (s *CorrectionService) GetStatus(ctx context.Context, correctionID uuid.UUID, userID string) (*model.CorrectionStatusResponse, error) {
	c, err := s.store.GetCorrectionForUser(ctx, correctionID, userID)
	if err != nil {
		return nil, err
	}

	return &model.CorrectionStatusResponse{
		ID:            c.ID.String(),
		Status:        c.Status,
		ResultURL:     c.ResultURL,
		TotalJobs:     c.TotalJobs,
		CompletedJobs: c.CompletedJobs,
		CreatedAt:     c.CreatedAt,
		CompletedAt:   c.CompletedAt,
	}, nil
}

// ListDocuments returns the per-copy artifacts of a correction.
func (s *CorrectionService) ListDocuments(ctx context.Context, correctionID uuid.UUID, userID string) (*model.CorrectionDocumentsResponse, error) {
	if _, err := s.store.GetCorrectionForUser(ctx, correctionID, userID); err != nil {
		return nil, err
	}

	docs, err := s.store.ListDocuments(ctx, correctionID)
	if err != nil {
		return nil, err
	}

	return &model.CorrectionDocumentsResponse{
		CorrectionID: correctionID.String(),
		Documents:    docs,
	}, nil
}

// Cancel forces a non-terminal correction to failed. Workers observe the
// terminal status between pipeline stages and drop the remaining jobs.
func (s *CorrectionService) Cancel(ctx context.Context, correctionID uuid.UUID, userID string) (*model.CancelResponse, error) {
	c, err := s.store.GetCorrectionForUser(ctx, correctionID, userID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, fmt.Errorf("correction already %s", c.Status)
	}

	if err := s.store.FailCorrection(ctx, correctionID, "canceled by user"); err != nil {
		return nil, err
	}

	return &model.CancelResponse{
		Success: true,
		ID:      correctionID.String(),
		Status:  model.CorrectionStatusFailed,
	}, nil
}
