package publish

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrigeo/api/internal/client"
	"github.com/corrigeo/api/internal/model"
	"github.com/corrigeo/api/internal/store"
)

type fakeStorage struct {
	keys         []string
	contentTypes []string
	uploaded     [][]byte
	err          error
}

func (f *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	f.contentTypes = append(f.contentTypes, contentType)
	f.uploaded = append(f.uploaded, b)
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStorage) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func setupPublisherTest(t *testing.T, storage client.StorageClient) (*Publisher, *store.MemoryStore, *model.CorrectionJob) {
	t.Helper()
	st := store.NewMemoryStore()
	c := &model.Correction{
		ID:        uuid.New(),
		UserID:    "teacher-1",
		Status:    model.CorrectionStatusPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.CreateCorrection(context.Background(), c))
	require.NoError(t, st.SetTotalJobs(context.Background(), c.ID, 1))

	job := &model.CorrectionJob{
		JobID:        uuid.New(),
		CorrectionID: c.ID,
		UserID:       "teacher-1",
		FileName:     "copie.jpg",
	}
	return NewPublisher(storage, st), st, job
}

func TestPublish_UploadsAndRecordsCompletion(t *testing.T) {
	storage := &fakeStorage{}
	p, st, job := setupPublisherTest(t, storage)

	correction, err := p.Publish(context.Background(), job, []byte("docx-bytes"))
	require.NoError(t, err)
	assert.Equal(t, model.CorrectionStatusCompleted, correction.Status)

	require.Len(t, storage.keys, 1)
	assert.Equal(t, "corrections/"+job.CorrectionID.String()+"/correction_"+job.JobID.String()+".docx", storage.keys[0])
	assert.Equal(t, model.DocxContentType, storage.contentTypes[0])
	assert.Equal(t, []byte("docx-bytes"), storage.uploaded[0])

	docs, err := st.ListDocuments(context.Background(), job.CorrectionID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, job.JobID, docs[0].JobID)
	assert.Equal(t, "https://cdn.example.com/"+storage.keys[0], docs[0].URL)
}

func TestPublish_StorageFailureRecordsNothing(t *testing.T) {
	storage := &fakeStorage{err: client.ErrStorageUnavailable}
	p, st, job := setupPublisherTest(t, storage)

	_, err := p.Publish(context.Background(), job, []byte("docx-bytes"))
	require.ErrorIs(t, err, client.ErrStorageUnavailable)

	// Completion must not be recorded when the artifact was not stored.
	docs, err := st.ListDocuments(context.Background(), job.CorrectionID)
	require.NoError(t, err)
	assert.Empty(t, docs)
	c, err := st.GetCorrection(context.Background(), job.CorrectionID)
	require.NoError(t, err)
	assert.Equal(t, 0, c.CompletedJobs)
}

func TestPublish_MockURLWithoutStorage(t *testing.T) {
	p, st, job := setupPublisherTest(t, nil)

	correction, err := p.Publish(context.Background(), job, []byte("docx-bytes"))
	require.NoError(t, err)
	require.NotNil(t, correction.ResultURL)
	assert.Contains(t, *correction.ResultURL, "storage.corrigeo.local")

	docs, err := st.ListDocuments(context.Background(), job.CorrectionID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
}
