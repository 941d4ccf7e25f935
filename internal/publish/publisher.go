// Package publish delivers rendered correction documents: upload to object
// storage, then flip the correction record through the store.
package publish

import (
	"bytes"
	"fmt"
	"log"
	"time"

	"context"

	"github.com/google/uuid"

	"github.com/corrigeo/api/internal/client"
	"github.com/corrigeo/api/internal/model"
	"github.com/corrigeo/api/internal/store"
)

// Publisher uploads one job's document and records its completion. The
// storage key embeds the job id, so a redelivered job overwrites its own
// artifact instead of colliding with another copy's.
type Publisher struct {
	storage client.StorageClient // nil means unconfigured: mock URLs for dev
	store   store.Store
}

func NewPublisher(storageClient client.StorageClient, st store.Store) *Publisher {
	return &Publisher{
		storage: storageClient,
		store:   st,
	}
}

func objectKey(job *model.CorrectionJob) string {
	return fmt.Sprintf("corrections/%s/correction_%s.docx", job.CorrectionID, job.JobID)
}

// Publish uploads the document bytes and marks the job complete. It returns
// the refreshed correction so the caller can observe the aggregate status.
func (p *Publisher) Publish(ctx context.Context, job *model.CorrectionJob, documentBytes []byte) (*model.Correction, error) {
	key := objectKey(job)

	var url string
	if p.storage != nil {
		uploaded, err := p.storage.Upload(ctx, key, bytes.NewReader(documentBytes), model.DocxContentType)
		if err != nil {
			return nil, err
		}
		url = uploaded
	} else {
		// Dev fallback when no object store is configured.
		url = "https://storage.corrigeo.local/" + key
		log.Printf("Storage not configured, using mock URL for job %s", job.JobID)
	}

	doc := &model.CorrectionDocument{
		ID:           uuid.New(),
		CorrectionID: job.CorrectionID,
		JobID:        job.JobID,
		FileName:     job.FileName,
		URL:          url,
		CreatedAt:    time.Now(),
	}

	correction, err := p.store.CompleteJob(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("record job completion: %w", err)
	}
	return correction, nil
}
