// Package queue feeds correction jobs to the asynq broker. Delivery is
// at-least-once: a job may be redelivered after a worker crash, so the
// pipeline behind it must tolerate re-running the same job id.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/corrigeo/api/internal/model"
)

// TaskTypeCorrection is the asynq task type for correction jobs.
const TaskTypeCorrection = "correction:process"

// ErrQueueUnavailable means the broker could not accept the job; the caller
// must treat the submission as not yet started.
var ErrQueueUnavailable = errors.New("correction queue unavailable")

// Enqueuer is the producer-side contract used by the submission service.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *model.CorrectionJob) error
}

// AsynqQueue implements Enqueuer on top of an asynq client.
type AsynqQueue struct {
	client    *asynq.Client
	queue     string
	maxRetry  int
	retention time.Duration
}

func NewAsynqQueue(client *asynq.Client, queueName string, maxRetry int) *AsynqQueue {
	return &AsynqQueue{
		client:    client,
		queue:     queueName,
		maxRetry:  maxRetry,
		retention: 24 * time.Hour,
	}
}

// Enqueue hands one job to the broker. Jobs are immutable once accepted.
func (q *AsynqQueue) Enqueue(ctx context.Context, job *model.CorrectionJob) error {
	task, err := NewCorrectionTask(job)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
		asynq.Retention(q.retention),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// NewCorrectionTask serializes a job into an asynq task.
func NewCorrectionTask(job *model.CorrectionJob) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCorrection, data), nil
}

// DecodeCorrectionTask recovers the job from a dequeued task.
func DecodeCorrectionTask(t *asynq.Task) (*model.CorrectionJob, error) {
	var job model.CorrectionJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal correction payload: %w", err)
	}
	return &job, nil
}
