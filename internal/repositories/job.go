package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/shared"
)

const jobColumns = `
	id, sequence, status, target_url, auth_mode,
	encrypted_api_key, encrypted_email, encrypted_password, encrypted_access_token,
	album_links, options, progress, last_error, log_tail, cancel_requested,
	started_at, finished_at, created_at, updated_at`

// JobFilter narrows [JobRepository.List].
type JobFilter struct {
	Status models.JobStatus
	Limit  int
}

// JobRepository persists [models.Job] rows.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job with a generated ID and sequence
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "jobs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	links, err := encodeJSON(job.AlbumLinks)
	if err != nil {
		return err
	}
	options, err := encodeJSON(job.Options)
	if err != nil {
		return err
	}
	progress, err := encodeJSON(job.Progress)
	if err != nil {
		return err
	}

	id := shared.GenerateID()
	now := time.Now().UTC()

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		job.Status,
		job.TargetURL,
		job.AuthMode,
		nullString(job.EncryptedAPIKey),
		nullString(job.EncryptedEmail),
		nullString(job.EncryptedPassword),
		nullString(job.EncryptedAccessToken),
		links,
		options,
		progress,
		nullString(job.LastError),
		nullString(job.LogTail.String()),
		job.CancelRequested,
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	job.ID = id
	job.Sequence = sequence
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

// Get retrieves a job by ID
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// List retrieves jobs in submission order
func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1 = 1`
	args := []any{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY sequence ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

// Update writes the job's mutable state.
//
// The cancel flag is not written; it is owned by [JobRepository.RequestCancel] and
// [JobRepository.ClearCancel] so a running pipeline never overwrites an external request.
func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	options, err := encodeJSON(job.Options)
	if err != nil {
		return err
	}
	progress, err := encodeJSON(job.Progress)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	query := `
		UPDATE jobs
		SET status = ?, encrypted_access_token = ?, options = ?, progress = ?, last_error = ?,
			log_tail = ?, started_at = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		job.Status,
		nullString(job.EncryptedAccessToken),
		options,
		progress,
		nullString(job.LastError),
		nullString(job.LogTail.String()),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		now,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if err := affectedOne(result, fmt.Errorf("%w: %s", shared.ErrJobNotFound, job.ID)); err != nil {
		return err
	}

	job.UpdatedAt = now
	return nil
}

// Checkpoint persists the progress snapshot and log tail only.
func (r *JobRepository) Checkpoint(ctx context.Context, id string, progress models.Progress, tail models.LogTail) error {
	encoded, err := encodeJSON(progress)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ?, log_tail = ?, updated_at = ? WHERE id = ?`,
		encoded, nullString(tail.String()), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to checkpoint job: %w", err)
	}
	return affectedOne(result, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id))
}

// SetAccessToken stores a freshly exchanged, encrypted bearer token on the job.
func (r *JobRepository) SetAccessToken(ctx context.Context, id, encryptedToken string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET encrypted_access_token = ?, updated_at = ? WHERE id = ?`,
		nullString(encryptedToken), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return affectedOne(result, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id))
}

// RequestCancel raises the job's cancel flag. The pipeline polls it between units of work.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) error {
	return r.setCancel(ctx, id, true)
}

// ClearCancel lowers the job's cancel flag before it is re-queued.
func (r *JobRepository) ClearCancel(ctx context.Context, id string) error {
	return r.setCancel(ctx, id, false)
}

func (r *JobRepository) setCancel(ctx context.Context, id string, v bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET cancel_requested = ?, updated_at = ? WHERE id = ?`,
		v, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	return affectedOne(result, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id))
}

// CancelRequested reads the job's cancel flag.
func (r *JobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// scanOne scans a single row into a [models.Job]
func (r *JobRepository) scanOne(row *sql.Row) (*models.Job, error) {
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrJobNotFound
	}
	return job, err
}

// scanRow scans a row from [sql.Rows] into a [models.Job]
func (r *JobRepository) scanRow(rows *sql.Rows) (*models.Job, error) {
	return scanJob(rows)
}

func scanJob(s scanner) (*models.Job, error) {
	var (
		job                                     models.Job
		apiKey, email, password, token, lastErr sql.NullString
		links, options, progress, tail          sql.NullString
		startedAt, finishedAt                   sql.NullTime
	)

	err := s.Scan(
		&job.ID, &job.Sequence, &job.Status, &job.TargetURL, &job.AuthMode,
		&apiKey, &email, &password, &token,
		&links, &options, &progress, &lastErr, &tail, &job.CancelRequested,
		&startedAt, &finishedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.EncryptedAPIKey = apiKey.String
	job.EncryptedEmail = email.String
	job.EncryptedPassword = password.String
	job.EncryptedAccessToken = token.String
	job.LastError = lastErr.String
	job.LogTail = models.ParseLogTail(tail.String)
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)

	if err := decodeJSON(links, &job.AlbumLinks); err != nil {
		return nil, err
	}
	if err := decodeJSON(options, &job.Options); err != nil {
		return nil, err
	}
	job.Options = job.Options.Normalize()
	if err := decodeJSON(progress, &job.Progress); err != nil {
		return nil, err
	}

	return &job, nil
}
