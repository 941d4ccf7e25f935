package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/corrigeo/api/internal/model"
	"github.com/corrigeo/api/internal/prompt"
	"github.com/corrigeo/api/internal/queue"
	"github.com/corrigeo/api/internal/store"
)

// TextExtractor turns raw file bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, fileBytes []byte) (string, error)
}

// Grader turns a grading prompt into feedback text.
type Grader interface {
	Grade(ctx context.Context, promptText string) (string, error)
}

// Renderer turns feedback text into a document buffer.
type Renderer interface {
	Render(feedbackText string) ([]byte, error)
}

// ResultPublisher stores the document and records the job's completion.
type ResultPublisher interface {
	Publish(ctx context.Context, job *model.CorrectionJob, documentBytes []byte) (*model.Correction, error)
}

// Notifier pushes correction status changes to subscribed clients. May be nil
// in a headless worker process.
type Notifier interface {
	BroadcastStatus(c *model.Correction)
	BroadcastComplete(correctionID, resultURL string)
	BroadcastError(correctionID, code, message string)
}

// CorrectionWorker processes correction jobs: extraction, prompting, grading,
// rendering, publication. Any stage failure is converted into a store update
// before being re-raised so asynq can account the retry; a correction can
// never be left stuck at processing.
type CorrectionWorker struct {
	store      store.Store
	extractor  TextExtractor
	grader     Grader
	renderer   Renderer
	publisher  ResultPublisher
	notifier   Notifier
	jobTimeout time.Duration
}

// NewCorrectionWorker creates a new correction worker
func NewCorrectionWorker(st store.Store, extractor TextExtractor, grader Grader, renderer Renderer, publisher ResultPublisher, notifier Notifier, jobTimeout time.Duration) *CorrectionWorker {
	return &CorrectionWorker{
		store:      st,
		extractor:  extractor,
		grader:     grader,
		renderer:   renderer,
		publisher:  publisher,
		notifier:   notifier,
		jobTimeout: jobTimeout,
	}
}

// ProcessTask handles one dequeued correction job.
func (w *CorrectionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	job, err := queue.DecodeCorrectionTask(t)
	if err != nil {
		// A payload we cannot decode will never decode; retrying is useless.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	return w.handle(ctx, job, retried >= maxRetry)
}

// handle runs the pipeline for one job. lastAttempt tells it whether a
// failure must force the correction to failed instead of waiting for the
// next redelivery.
func (w *CorrectionWorker) handle(ctx context.Context, job *model.CorrectionJob, lastAttempt bool) error {
	log.Printf("Starting correction job %s (correction %s, file %s)", job.JobID, job.CorrectionID, job.FileName)

	correction, err := w.store.MarkProcessing(ctx, job.CorrectionID)
	if err != nil {
		if err == store.ErrNotFound {
			log.Printf("Correction %s no longer exists, dropping job %s", job.CorrectionID, job.JobID)
			return nil
		}
		return w.fail(job, lastAttempt, err)
	}
	if correction.Status.IsTerminal() {
		// Canceled or already settled; never resurrect a terminal correction.
		log.Printf("Correction %s already %s, dropping job %s", job.CorrectionID, correction.Status, job.JobID)
		return nil
	}
	w.notifyStatus(correction)

	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	studentText, err := w.extractor.Extract(ctx, job.FileData)
	if err != nil {
		return w.fail(job, lastAttempt, err)
	}

	if w.dropped(ctx, job) {
		return nil
	}

	var referenceText string
	if len(job.ReferenceData) > 0 {
		referenceText, err = w.extractor.Extract(ctx, job.ReferenceData)
		if err != nil {
			return w.fail(job, lastAttempt, err)
		}
	}

	promptText := prompt.Build(studentText, referenceText, job.Rubric, job.ClassLevel)

	feedback, err := w.grader.Grade(ctx, promptText)
	if err != nil {
		return w.fail(job, lastAttempt, err)
	}

	if w.dropped(ctx, job) {
		return nil
	}

	documentBytes, err := w.renderer.Render(feedback)
	if err != nil {
		return w.fail(job, lastAttempt, err)
	}

	if w.dropped(ctx, job) {
		return nil
	}

	correction, err = w.publisher.Publish(ctx, job, documentBytes)
	if err != nil {
		return w.fail(job, lastAttempt, err)
	}

	if correction.Status == model.CorrectionStatusCompleted && w.notifier != nil {
		url := ""
		if correction.ResultURL != nil {
			url = *correction.ResultURL
		}
		w.notifier.BroadcastComplete(correction.ID.String(), url)
	} else {
		w.notifyStatus(correction)
	}

	log.Printf("Correction job %s completed (%d/%d jobs done)", job.JobID, correction.CompletedJobs, correction.TotalJobs)
	return nil
}

// dropped reports whether the correction was canceled or settled while the
// job was in flight. A dropped job is acknowledged without further work.
func (w *CorrectionWorker) dropped(ctx context.Context, job *model.CorrectionJob) bool {
	c, err := w.store.GetCorrection(ctx, job.CorrectionID)
	if err != nil {
		return false
	}
	if c.Status == model.CorrectionStatusFailed {
		log.Printf("Correction %s failed elsewhere, dropping job %s", job.CorrectionID, job.JobID)
		return true
	}
	return false
}

// fail re-raises the pipeline error for retry accounting. On the final
// attempt the correction is forced to failed first, on a fresh context so an
// expired job deadline cannot prevent the status update.
func (w *CorrectionWorker) fail(job *model.CorrectionJob, lastAttempt bool, cause error) error {
	log.Printf("Correction job %s failed: %v", job.JobID, cause)

	if lastAttempt {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.store.FailCorrection(ctx, job.CorrectionID, cause.Error()); err != nil {
			log.Printf("Failed to mark correction %s as failed: %v", job.CorrectionID, err)
		}
		if w.notifier != nil {
			w.notifier.BroadcastError(job.CorrectionID.String(), "CORRECTION_FAILED", "La correction a échoué")
		}
	}
	return cause
}

func (w *CorrectionWorker) notifyStatus(c *model.Correction) {
	if w.notifier != nil {
		w.notifier.BroadcastStatus(c)
	}
}
