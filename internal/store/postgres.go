package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corrigeo/api/internal/model"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const correctionColumns = `id, user_id, class_level, rubric, status, result_url, failure_reason, total_jobs, completed_jobs, created_at, completed_at`

func scanCorrection(row pgx.Row) (*model.Correction, error) {
	var c model.Correction
	err := row.Scan(&c.ID, &c.UserID, &c.ClassLevel, &c.Rubric, &c.Status, &c.ResultURL,
		&c.FailureReason, &c.TotalJobs, &c.CompletedJobs, &c.CreatedAt, &c.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan correction: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCorrection(ctx context.Context, c *model.Correction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO corrections (id, user_id, class_level, rubric, status, total_jobs, completed_jobs, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.ClassLevel, c.Rubric, c.Status, c.TotalJobs, c.CompletedJobs, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create correction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCorrection(ctx context.Context, id uuid.UUID) (*model.Correction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE id = $1`, id)
	return scanCorrection(row)
}

func (s *PostgresStore) GetCorrectionForUser(ctx context.Context, id uuid.UUID, userID string) (*model.Correction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE id = $1 AND user_id = $2`, id, userID)
	return scanCorrection(row)
}

func (s *PostgresStore) SetTotalJobs(ctx context.Context, id uuid.UUID, total int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE corrections SET total_jobs = $2, completed_jobs = 0
		 WHERE id = $1 AND status = 'pending' AND total_jobs = 0`,
		id, total)
	if err != nil {
		return fmt.Errorf("set total jobs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetTotalJobs(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE corrections SET total_jobs = 0, completed_jobs = 0
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("reset total jobs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*model.Correction, error) {
	_, err := s.pool.Exec(ctx,
		`UPDATE corrections SET status = 'processing' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}
	return s.GetCorrection(ctx, id)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, doc *model.CorrectionDocument) (*model.Correction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete job: %w", err)
	}
	defer tx.Rollback(ctx)

	// The insert is refused once the correction is terminal: a job racing a
	// cancellation must not leave an orphan document behind.
	tag, err := tx.Exec(ctx,
		`INSERT INTO correction_documents (id, correction_id, job_id, file_name, url, created_at)
		 SELECT $1, $2, $3, $4, $5, $6
		 WHERE EXISTS (
		     SELECT 1 FROM corrections WHERE id = $2 AND status IN ('pending', 'processing')
		 )
		 ON CONFLICT (job_id) DO NOTHING`,
		doc.ID, doc.CorrectionID, doc.JobID, doc.FileName, doc.URL, doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert correction document: %w", err)
	}

	// A redelivered job hits the job_id conflict and must not count twice.
	if tag.RowsAffected() > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE corrections SET
			     completed_jobs = completed_jobs + 1,
			     result_url = $2,
			     status = CASE WHEN completed_jobs + 1 >= total_jobs THEN 'completed' ELSE status END,
			     completed_at = CASE WHEN completed_jobs + 1 >= total_jobs THEN NOW() ELSE completed_at END
			 WHERE id = $1 AND status IN ('pending', 'processing')`,
			doc.CorrectionID, doc.URL)
		if err != nil {
			return nil, fmt.Errorf("complete job: %w", err)
		}
	}

	row := tx.QueryRow(ctx,
		`SELECT `+correctionColumns+` FROM corrections WHERE id = $1`, doc.CorrectionID)
	c, err := scanCorrection(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete job: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) FailCorrection(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE corrections SET status = 'failed', failure_reason = $2, completed_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, reason)
	if err != nil {
		return fmt.Errorf("fail correction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the correction is already terminal (a no-op) or it does not
		// exist at all; only the latter is an error.
		if _, err := s.GetCorrection(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, correctionID uuid.UUID) ([]model.CorrectionDocument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, correction_id, job_id, file_name, url, created_at
		 FROM correction_documents WHERE correction_id = $1 ORDER BY created_at`, correctionID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []model.CorrectionDocument
	for rows.Next() {
		var d model.CorrectionDocument
		if err := rows.Scan(&d.ID, &d.CorrectionID, &d.JobID, &d.FileName, &d.URL, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
