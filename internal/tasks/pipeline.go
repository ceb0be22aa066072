package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/immport/internal/dedupe"
	"github.com/desertthunder/immport/internal/metadata"
	"github.com/desertthunder/immport/internal/metrics"
	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/retry"
	"github.com/desertthunder/immport/internal/secrets"
	"github.com/desertthunder/immport/internal/services"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/desertthunder/immport/internal/staging"
)

// JobStore is the job persistence used by a run.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	Checkpoint(ctx context.Context, id string, progress models.Progress, tail models.LogTail) error
	SetAccessToken(ctx context.Context, id, encryptedToken string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

// AlbumStore is the album persistence used by a run.
type AlbumStore interface {
	GetBySource(ctx context.Context, jobID, sourceURL string) (*models.Album, error)
	Upsert(ctx context.Context, album *models.Album) error
	Update(ctx context.Context, album *models.Album) error
}

// DedupIndex finds an earlier DONE item of the same job with the same content hash.
type DedupIndex interface {
	FindDoneByHash(ctx context.Context, jobID, contentHash string, excludeID int64) (*models.Item, error)
}

// ItemStore is the item persistence used by a run.
type ItemStore interface {
	DedupIndex
	GetBySource(ctx context.Context, jobID, mediaURL string) (*models.Item, error)
	Upsert(ctx context.Context, item *models.Item) error
	Update(ctx context.Context, item *models.Item) error
}

// MetadataExtractor describes a staged file.
type MetadataExtractor interface {
	Extract(path string) (*models.Metadata, error)
}

// Deps is everything a run needs. Nothing in this package reaches for process-wide state.
type Deps struct {
	Jobs      JobStore
	Albums    AlbumStore
	Items     ItemStore
	Target    services.TargetFactory
	Collector services.SourceCollector
	Fetcher   services.Fetcher
	Staging   *staging.Area
	Hasher    *dedupe.Hasher
	Extractor MetadataExtractor
	Box       *secrets.Box
	Metrics   *metrics.Metrics
	Logger    *log.Logger
	Retry     retry.Policy
}

// Orchestrator runs import jobs.
type Orchestrator struct {
	deps   Deps
	auth   *AuthSession
	albums *AlbumProcessor
}

// NewOrchestrator wires the processors over deps. Hasher, Extractor, Staging and Logger get defaults when nil.
func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Hasher == nil {
		deps.Hasher = dedupe.NewHasher(dedupe.DefaultChunkSize)
	}
	if deps.Extractor == nil {
		deps.Extractor = metadata.NewExtractor()
	}
	if deps.Staging == nil {
		deps.Staging = staging.NewArea("", nil)
	}
	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}

	items := &ItemProcessor{deps: &deps}
	return &Orchestrator{
		deps:   deps,
		auth:   NewAuthSession(deps.Jobs, deps.Box, deps.Target),
		albums: &AlbumProcessor{deps: &deps, items: items},
	}
}

// Run executes the job with id jobID until it is DONE, FAILED or CANCELLED.
//
// A missing or PAUSED job is left alone and (nil, nil) is returned. Job-level failures are
// recorded on the returned job; the error is non-nil only when the outcome could not be
// persisted or ctx ended before the run finished.
func (o *Orchestrator) Run(ctx context.Context, jobID string, progress chan<- ProgressUpdate) (*models.Job, error) {
	logger := shared.WithLogger(o.deps.Logger, "job", jobID)

	job, err := o.deps.Jobs.Get(ctx, jobID)
	if errors.Is(err, shared.ErrJobNotFound) {
		logger.Warn("job no longer exists, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status == models.JobPaused {
		logger.Info("job is paused, skipping")
		return nil, nil
	}

	r := &run{
		job:       job,
		deps:      &o.deps,
		log:       logger,
		reporter:  NewReporter(len(job.AlbumLinks)),
		hashLocks: newKeyedMutex(),
		uploads:   make(chan struct{}, job.Options.Normalize().UploadConcurrency),
		updates:   progress,
	}

	now := time.Now().UTC()
	job.Status = models.JobRunning
	job.StartedAt = &now
	job.FinishedAt = nil
	job.LastError = ""
	job.Progress = r.reporter.Snapshot()
	r.note("job started: %d album link(s)", len(job.AlbumLinks))
	if err := o.deps.Jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("failed to mark job running: %w", err)
	}
	o.deps.Metrics.JobStarted()
	sendProgress(progress, authUpdate(job.Progress, job.AuthMode))

	target, err := o.auth.Resolve(ctx, job)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("authentication failed: %w", err))
	}
	r.target = target

	r.mu.Lock()
	r.reporter.SetStage(models.StageAlbums)
	r.mu.Unlock()
	if err := r.checkpoint(ctx); err != nil {
		return r.fail(ctx, err)
	}

	for _, link := range job.AlbumLinks {
		cancelled, err := r.cancelRequested(ctx)
		if err != nil {
			return r.abort(ctx, err)
		}
		if cancelled {
			return r.cancel(ctx)
		}

		outcome, err := o.albums.Process(ctx, r, link)
		if err != nil {
			return r.abort(ctx, err)
		}
		if outcome == AlbumCancelled {
			return r.cancel(ctx)
		}
	}

	return r.finish(ctx)
}

// run is the state of one pipeline execution. mu is the job's single writer:
// it guards job, reporter and every row write.
type run struct {
	job       *models.Job
	deps      *Deps
	log       *log.Logger
	target    services.TargetClient
	reporter  *Reporter
	hashLocks *keyedMutex
	uploads   chan struct{}
	updates   chan<- ProgressUpdate

	mu sync.Mutex
}

// note appends a line to the job's log tail and the process log. Callers hold mu or run single-threaded.
func (r *run) note(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.job.LogTail.Append(time.Now().UTC().Format(time.RFC3339) + " " + line)
	r.log.Info(line)
}

// write serializes a row mutation.
func (r *run) write(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// checkpoint persists the current snapshot and log tail.
func (r *run) checkpoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkpointLocked(ctx)
}

func (r *run) checkpointLocked(ctx context.Context) error {
	r.job.Progress = r.reporter.Snapshot()
	if err := r.deps.Jobs.Checkpoint(ctx, r.job.ID, r.job.Progress, r.job.LogTail); err != nil {
		return fmt.Errorf("failed to checkpoint job: %w", err)
	}
	return nil
}

// albumProcessed counts an album outcome, logs line and checkpoints.
func (r *run) albumProcessed(ctx context.Context, format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporter.AlbumProcessed()
	r.note(format, args...)
	if err := r.checkpointLocked(ctx); err != nil {
		return err
	}
	sendProgress(r.updates, albumUpdate(r.job.Progress, fmt.Sprintf(format, args...)))
	return nil
}

// itemProcessed counts an item outcome, logs line and checkpoints.
func (r *run) itemProcessed(ctx context.Context, format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporter.ItemProcessed()
	r.note(format, args...)
	if err := r.checkpointLocked(ctx); err != nil {
		return err
	}
	sendProgress(r.updates, itemUpdate(r.job.Progress, fmt.Sprintf(format, args...)))
	return nil
}

func (r *run) addItems(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reporter.AddItems(n)
}

// cancelRequested polls the job's cancel flag. A done ctx is reported as an error.
func (r *run) cancelRequested(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	requested, err := r.deps.Jobs.CancelRequested(ctx, r.job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to poll cancel flag: %w", err)
	}
	return requested, nil
}

// abort ends the run after an error outside any album or item. A done ctx leaves the job
// RUNNING so a redelivery resumes it; anything else fails the job.
func (r *run) abort(ctx context.Context, err error) (*models.Job, error) {
	if ctx.Err() != nil {
		r.log.Warn("run interrupted", "err", err)
		return r.job, err
	}
	return r.fail(ctx, err)
}

func (r *run) fail(ctx context.Context, cause error) (*models.Job, error) {
	r.log.Error("job failed", "err", cause)
	return r.end(ctx, models.JobFailed, models.StageFailed, cause.Error(), "job failed: %v", cause)
}

func (r *run) cancel(ctx context.Context) (*models.Job, error) {
	return r.end(ctx, models.JobCancelled, models.StageCancelled, "", "job cancelled")
}

func (r *run) finish(ctx context.Context) (*models.Job, error) {
	return r.end(ctx, models.JobDone, models.StageCompleted, "", "job completed")
}

// end records the job's final status. The write ignores ctx cancellation so the outcome is never lost.
func (r *run) end(ctx context.Context, status models.JobStatus, stage, lastErr, format string, args ...any) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.reporter.SetStage(stage)
	r.note(format, args...)
	r.job.Status = status
	r.job.LastError = lastErr
	r.job.FinishedAt = &now
	r.job.Progress = r.reporter.Snapshot()

	if err := r.deps.Jobs.Update(context.WithoutCancel(ctx), r.job); err != nil {
		return r.job, fmt.Errorf("failed to record job %s: %w", status, err)
	}

	r.deps.Metrics.JobFinished(string(status))
	sendProgress(r.updates, finishedUpdate(r.job.Progress, status))
	return r.job, nil
}

// policy returns the run's retry policy, reporting retries for op.
func (r *run) policy(op string) retry.Policy {
	p := r.deps.Retry
	observe := p.OnRetry
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		r.deps.Metrics.Retry(op)
		r.log.Warn("retrying", "op", op, "attempt", attempt, "wait", wait, "err", err)
		if observe != nil {
			observe(attempt, err, wait)
		}
	}
	return p
}

// guard runs fn and converts a panic into an internal error for op.
func guard[T any](op string, fn func() (T, error)) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = shared.E(shared.KindInternal, op, fmt.Errorf("panic: %v", rec))
		}
	}()
	return fn()
}
