package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/repositories"
	"github.com/desertthunder/immport/internal/secrets"
	"github.com/desertthunder/immport/internal/shared"
)

// DefaultStaleAfter is how long a RUNNING job must go without a checkpoint before it counts as abandoned.
const DefaultStaleAfter = time.Hour

// Enqueuer hands a job to the work queue.
type Enqueuer interface {
	EnqueueImport(ctx context.Context, jobID string) error
}

// SubmitRequest is a new import. Set APIKey, or Email and Password.
type SubmitRequest struct {
	TargetURL string
	APIKey    string
	Email     string
	Password  string
	Links     []string
	Options   models.Options
}

// Service is the job surface used by the CLI and the worker: submit, inspect and steer jobs.
type Service struct {
	jobs   *repositories.JobRepository
	albums *repositories.AlbumRepository
	items  *repositories.ItemRepository
	box    *secrets.Box
	queue  Enqueuer
	log    *log.Logger

	staleAfter time.Duration
}

// NewService creates a Service. queue may be nil, in which case jobs are only stored.
func NewService(
	jobs *repositories.JobRepository,
	albums *repositories.AlbumRepository,
	items *repositories.ItemRepository,
	box *secrets.Box,
	queue Enqueuer,
	logger *log.Logger,
) *Service {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Service{
		jobs:       jobs,
		albums:     albums,
		items:      items,
		box:        box,
		queue:      queue,
		log:        logger,
		staleAfter: DefaultStaleAfter,
	}
}

// WithStaleAfter sets how long a RUNNING job must go without a checkpoint before
// [Service.Resume] and [Service.RetryFailed] may take it over. Non-positive values keep the default.
func (s *Service) WithStaleAfter(d time.Duration) *Service {
	if d > 0 {
		s.staleAfter = d
	}
	return s
}

// abandoned reports whether a RUNNING job has stopped checkpointing, as happens when
// its worker died or its task ran out of retries.
func (s *Service) abandoned(job *models.Job) bool {
	return job.Status == models.JobRunning && time.Since(job.UpdatedAt) > s.staleAfter
}

// Submit stores a QUEUED job with sealed credentials, enqueues it and returns its id.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if s.box == nil {
		return "", shared.ErrMissingCipherKey
	}

	links := make([]string, 0, len(req.Links))
	for _, l := range req.Links {
		if l = strings.TrimSpace(l); l != "" {
			links = append(links, l)
		}
	}

	var (
		job *models.Job
		err error
	)
	switch {
	case req.APIKey != "":
		job = models.NewJob(req.TargetURL, models.AuthAPIKey, links, req.Options)
		job.EncryptedAPIKey, err = s.box.Encrypt(req.APIKey)
	case req.Email != "" && req.Password != "":
		job = models.NewJob(req.TargetURL, models.AuthCredentials, links, req.Options)
		if job.EncryptedEmail, err = s.box.Encrypt(req.Email); err == nil {
			job.EncryptedPassword, err = s.box.Encrypt(req.Password)
		}
	default:
		return "", fmt.Errorf("%w: an api key or email and password are required", shared.ErrMissingCredentials)
	}
	if err != nil {
		return "", fmt.Errorf("failed to seal credentials: %w", err)
	}

	job.LogTail.Append(fmt.Sprintf("job submitted with %d album link(s)", len(links)))
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", err
	}
	s.log.Info("job submitted", "job", job.ID, "albums", len(links), "mode", job.AuthMode)

	if err := s.enqueue(ctx, job.ID); err != nil {
		return job.ID, err
	}
	return job.ID, nil
}

// Status returns the polling view of a job.
func (s *Service) Status(ctx context.Context, id string) (*models.JobStatusView, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := job.View()
	return &view, nil
}

// List returns jobs in submission order.
func (s *Service) List(ctx context.Context, filter repositories.JobFilter) ([]*models.Job, error) {
	return s.jobs.List(ctx, filter)
}

// RequestCancel raises the cancel flag. A running pipeline stops at its next album or item;
// a QUEUED job stops as soon as it starts. A PAUSED job is never picked up again, so it is
// marked CANCELLED right away.
func (s *Service) RequestCancel(ctx context.Context, id string) error {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", shared.ErrInvalidArgument, id, job.Status)
	}
	if err := s.jobs.RequestCancel(ctx, id); err != nil {
		return err
	}

	if job.Status == models.JobPaused {
		job.Status = models.JobCancelled
		job.Progress.Stage = models.StageCancelled
		job.LogTail.Append("job cancelled while paused")
		if err := s.jobs.Update(ctx, job); err != nil {
			return err
		}
	}
	s.log.Info("cancel requested", "job", id, "status", job.Status)
	return nil
}

// Pause parks a job that is not running. Paused jobs are ignored by the pipeline until resumed.
func (s *Service) Pause(ctx context.Context, id string) error {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	switch job.Status {
	case models.JobQueued, models.JobFailed, models.JobCancelled:
	default:
		return fmt.Errorf("%w: cannot pause a %s job", shared.ErrInvalidArgument, job.Status)
	}

	job.Status = models.JobPaused
	job.LogTail.Append("job paused")
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}
	s.log.Info("job paused", "job", id)
	return nil
}

// Resume re-queues a PAUSED, CANCELLED or FAILED job, or a RUNNING one that has gone stale.
// Finished work is kept and skipped.
func (s *Service) Resume(ctx context.Context, id string) error {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case job.Status == models.JobPaused, job.Status == models.JobCancelled, job.Status == models.JobFailed:
	case s.abandoned(job):
		s.log.Warn("taking over stale job", "job", id, "updated", job.UpdatedAt)
	case job.Status == models.JobRunning:
		return fmt.Errorf("%w: job %s is running; it can be resumed once it has made no progress for %s",
			shared.ErrInvalidArgument, id, s.staleAfter)
	default:
		return fmt.Errorf("%w: cannot resume a %s job", shared.ErrInvalidArgument, job.Status)
	}
	return s.requeue(ctx, job, "job resumed")
}

// RetryFailed moves albums holding FAILED items back to PENDING and re-queues the job,
// so the next run retries exactly the FAILED items. Returns the number of albums reset.
func (s *Service) RetryFailed(ctx context.Context, id string) (int64, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if job.Status == models.JobRunning && !s.abandoned(job) {
		return 0, fmt.Errorf("%w: job %s is running", shared.ErrInvalidArgument, id)
	}

	n, err := s.albums.ResetWithFailedItems(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.requeue(ctx, job, fmt.Sprintf("retrying failed items in %d album(s)", n)); err != nil {
		return n, err
	}
	return n, nil
}

// Report gathers a job with all of its albums and items.
func (s *Service) Report(ctx context.Context, id string) (*models.JobReport, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	albums, err := s.albums.ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.NewJobReport(job, albums, items), nil
}

func (s *Service) requeue(ctx context.Context, job *models.Job, line string) error {
	if err := s.jobs.ClearCancel(ctx, job.ID); err != nil {
		return err
	}

	job.Status = models.JobQueued
	job.LastError = ""
	job.FinishedAt = nil
	job.Progress.Stage = models.StageQueued
	job.LogTail.Append(line)
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}
	s.log.Info(line, "job", job.ID)
	return s.enqueue(ctx, job.ID)
}

func (s *Service) enqueue(ctx context.Context, id string) error {
	if s.queue == nil {
		return nil
	}
	if err := s.queue.EnqueueImport(ctx, id); err != nil {
		return fmt.Errorf("job %s stored but not enqueued: %w", id, err)
	}
	return nil
}
