package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corrigeo/api/internal/model"
)

// MemoryStore is an in-memory Store used in tests and when no database is
// configured. It applies the same conditional-transition rules as the
// Postgres implementation.
type MemoryStore struct {
	mu          sync.Mutex
	corrections map[uuid.UUID]*model.Correction
	documents   map[uuid.UUID]*model.CorrectionDocument // keyed by job id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		corrections: make(map[uuid.UUID]*model.Correction),
		documents:   make(map[uuid.UUID]*model.CorrectionDocument),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateCorrection(ctx context.Context, c *model.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.corrections[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCorrection(ctx context.Context, id uuid.UUID) (*model.Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *MemoryStore) getLocked(id uuid.UUID) (*model.Correction, error) {
	c, ok := s.corrections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetCorrectionForUser(ctx context.Context, id uuid.UUID, userID string) (*model.Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) SetTotalJobs(ctx context.Context, id uuid.UUID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[id]
	if !ok || c.Status != model.CorrectionStatusPending || c.TotalJobs != 0 {
		return ErrNotFound
	}
	c.TotalJobs = total
	c.CompletedJobs = 0
	return nil
}

func (s *MemoryStore) ResetTotalJobs(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[id]
	if !ok || c.Status != model.CorrectionStatusPending {
		return ErrNotFound
	}
	c.TotalJobs = 0
	c.CompletedJobs = 0
	return nil
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*model.Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[id]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status == model.CorrectionStatusPending {
		c.Status = model.CorrectionStatusProcessing
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, doc *model.CorrectionDocument) (*model.Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[doc.CorrectionID]
	if !ok {
		return nil, ErrNotFound
	}

	// Terminal corrections take no documents: a job racing a cancellation
	// must not leave an orphan artifact behind.
	if _, seen := s.documents[doc.JobID]; !seen && !c.Status.IsTerminal() {
		cp := *doc
		s.documents[doc.JobID] = &cp
		c.CompletedJobs++
		url := doc.URL
		c.ResultURL = &url
		if c.CompletedJobs >= c.TotalJobs {
			c.Status = model.CorrectionStatusCompleted
			now := time.Now()
			c.CompletedAt = &now
		}
	}

	cp := *c
	return &cp, nil
}

func (s *MemoryStore) FailCorrection(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.corrections[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status.IsTerminal() {
		return nil
	}
	c.Status = model.CorrectionStatusFailed
	c.FailureReason = &reason
	now := time.Now()
	c.CompletedAt = &now
	return nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, correctionID uuid.UUID) ([]model.CorrectionDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []model.CorrectionDocument
	for _, d := range s.documents {
		if d.CorrectionID == correctionID {
			docs = append(docs, *d)
		}
	}
	return docs, nil
}
