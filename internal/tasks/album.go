package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/retry"
	"github.com/desertthunder/immport/internal/services"
	"github.com/desertthunder/immport/internal/shared"
)

// AlbumOutcome is what happened to one album link during a run.
type AlbumOutcome int

const (
	// AlbumSkipped means the album was already DONE.
	AlbumSkipped AlbumOutcome = iota
	// AlbumCompleted means every item was attempted and the album is DONE.
	AlbumCompleted
	// AlbumFailed means the target album could not be prepared.
	AlbumFailed
	// AlbumUnavailable means the source could not be resolved; no row was written.
	AlbumUnavailable
	// AlbumCancelled means a cancel request stopped the album part way.
	AlbumCancelled
)

func (o AlbumOutcome) String() string {
	switch o {
	case AlbumSkipped:
		return "skipped"
	case AlbumCompleted:
		return "completed"
	case AlbumFailed:
		return "failed"
	case AlbumUnavailable:
		return "unavailable"
	case AlbumCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AlbumProcessor materializes one source album.
type AlbumProcessor struct {
	deps  *Deps
	items *ItemProcessor
}

// Process handles link for the run's job. The error is non-nil only for failures
// that must end the whole job, such as a failed row write.
func (p *AlbumProcessor) Process(ctx context.Context, r *run, link string) (AlbumOutcome, error) {
	jobID := r.job.ID
	logger := r.log.With("album", link)

	album, err := p.deps.Albums.GetBySource(ctx, jobID, link)
	switch {
	case errors.Is(err, shared.ErrAlbumNotFound):
		album = nil
	case err != nil:
		return AlbumFailed, fmt.Errorf("failed to load album: %w", err)
	case album.Status == models.AlbumDone:
		logger.Debug("album already done")
		return AlbumSkipped, r.albumProcessed(ctx, "album %s already done, skipped", link)
	}

	src, err := guard("collector.extract", func() (*services.AlbumSource, error) {
		return p.deps.Collector.Extract(ctx, link)
	})
	if err == nil && src == nil {
		err = shared.E(shared.KindNotFound, "collector.extract", fmt.Errorf("%w: no album at %s", shared.ErrCollectorFailed, link))
	}
	if err != nil {
		p.deps.Metrics.CollectorFailed()
		return AlbumUnavailable, r.albumProcessed(ctx, "album %s skipped: %v", link, err)
	}
	r.addItems(len(src.Items))

	if album == nil {
		album = &models.Album{JobID: jobID, SourceURL: link}
	}
	album.SourceTitle = src.Title
	album.Status = models.AlbumPending
	album.Error = ""

	if r.job.Options.CreateAlbum && album.TargetAlbumID == "" {
		id, err := guard("target.album", func() (string, error) {
			return retry.Execute(ctx, r.policy("album"), func(ctx context.Context) (string, error) {
				return r.target.FindOrCreateAlbum(ctx, albumTitle(src, link))
			})
		})
		if err != nil {
			album.Status = models.AlbumFailed
			album.Error = err.Error()
			if err := r.write(func() error { return p.deps.Albums.Upsert(ctx, album) }); err != nil {
				return AlbumFailed, err
			}
			p.deps.Metrics.Album(string(models.AlbumFailed))
			return AlbumFailed, r.albumProcessed(ctx, "album %q failed: %v", album.SourceTitle, err)
		}
		album.TargetAlbumID = id
	}

	if err := r.write(func() error { return p.deps.Albums.Upsert(ctx, album) }); err != nil {
		return AlbumFailed, err
	}
	logger.Info("album resolved", "title", album.SourceTitle, "items", len(src.Items), "target", album.TargetAlbumID)

	counts, cancelled, err := p.processItems(ctx, r, album, src.Items)
	if err != nil {
		return AlbumFailed, err
	}
	if cancelled {
		return AlbumCancelled, nil
	}

	album.Status = models.AlbumDone
	if err := r.write(func() error { return p.deps.Albums.Update(ctx, album) }); err != nil {
		return AlbumFailed, err
	}
	p.deps.Metrics.Album(string(models.AlbumDone))

	return AlbumCompleted, r.albumProcessed(ctx,
		"album %q done: %d uploaded, %d skipped, %d failed",
		album.SourceTitle, counts[models.ItemDone], counts[models.ItemSkipped], counts[models.ItemFailed],
	)
}

// processItems runs every item on the album's pool. It stops dispatching when the cancel
// flag is raised or an item reports a job-fatal error, and always waits for started items.
func (p *AlbumProcessor) processItems(ctx context.Context, r *run, album *models.Album, refs []services.MediaRef) (map[models.ItemStatus]int, bool, error) {
	var (
		mu        sync.Mutex
		counts    = make(map[models.ItemStatus]int)
		cancelled bool
		work      = newPool(r.job.Options.Normalize().DownloadConcurrency)
	)

	for _, ref := range refs {
		work.acquire()
		if work.failed() != nil {
			work.release()
			break
		}

		stop, err := r.cancelRequested(ctx)
		if err != nil {
			work.release()
			work.setErr(err)
			break
		}
		if stop {
			work.release()
			cancelled = true
			break
		}

		work.goAcquired(func() error {
			status, err := p.items.Process(ctx, r, album, ref)
			if err != nil {
				return err
			}
			mu.Lock()
			counts[status]++
			mu.Unlock()
			return nil
		})
	}

	if err := work.wait(); err != nil {
		return counts, false, err
	}
	return counts, cancelled, nil
}

func albumTitle(src *services.AlbumSource, link string) string {
	if src.Title != "" {
		return src.Title
	}
	return link
}
