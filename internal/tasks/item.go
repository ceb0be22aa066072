package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/retry"
	"github.com/desertthunder/immport/internal/services"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/desertthunder/immport/internal/staging"
)

// ItemProcessor materializes one source item into the target.
type ItemProcessor struct {
	deps *Deps
}

// Process handles ref inside album and returns the item's resulting status.
// The error is non-nil only for failures that must end the whole job.
func (p *ItemProcessor) Process(ctx context.Context, r *run, album *models.Album, ref services.MediaRef) (models.ItemStatus, error) {
	jobID := r.job.ID
	logger := r.log.With("item", ref.MediaURL)

	item, err := p.deps.Items.GetBySource(ctx, jobID, ref.MediaURL)
	switch {
	case errors.Is(err, shared.ErrItemNotFound):
		item = &models.Item{JobID: jobID, SourceMediaURL: ref.MediaURL, SourceFilename: ref.FilenameHint}
	case err != nil:
		return models.ItemFailed, fmt.Errorf("failed to load item: %w", err)
	case item.Status.Terminal():
		logger.Debug("item already terminal", "status", item.Status)
		return item.Status, r.itemProcessed(ctx, "item %s already %s", ref.MediaURL, item.Status)
	}

	item.AlbumID = album.ID
	item.Status = models.ItemDownloading
	item.Error = ""
	if item.SourceFilename == "" {
		item.SourceFilename = ref.FilenameHint
	}
	if err := r.write(func() error { return p.deps.Items.Upsert(ctx, item) }); err != nil {
		return models.ItemFailed, err
	}

	start := time.Now()
	if err := p.transfer(ctx, r, album, item); err != nil {
		return item.Status, err
	}

	var uploaded int64
	if item.Status == models.ItemDone {
		uploaded = item.Bytes
	}
	p.deps.Metrics.Item(string(item.Status), time.Since(start), uploaded)

	switch item.Status {
	case models.ItemFailed:
		logger.Warn("item failed", "err", item.Error)
		return item.Status, r.itemProcessed(ctx, "item %s failed: %s", itemName(item), item.Error)
	case models.ItemSkipped:
		return item.Status, r.itemProcessed(ctx, "item %s skipped as duplicate", itemName(item))
	default:
		return item.Status, r.itemProcessed(ctx, "item %s uploaded as %s", itemName(item), item.TargetAssetID)
	}
}

// transfer runs the item's steps and persists the outcome. The content-hash lock taken
// during dedup is held until the outcome is written.
func (p *ItemProcessor) transfer(ctx context.Context, r *run, album *models.Album, item *models.Item) error {
	unlock := func() {}
	defer func() { unlock() }()

	if err := p.steps(ctx, r, album, item, &unlock); err != nil {
		return err
	}
	return r.write(func() error { return p.deps.Items.Update(ctx, item) })
}

// steps runs download, staging, hashing, metadata, dedup and upload, leaving item in
// DONE, SKIPPED or FAILED. A panic fails the item. The returned error is job-fatal.
func (p *ItemProcessor) steps(ctx context.Context, r *run, album *models.Album, item *models.Item, unlock *func()) (fatal error) {
	defer func() {
		if rec := recover(); rec != nil {
			item.Status = models.ItemFailed
			item.Error = shared.E(shared.KindInternal, "item.process", fmt.Errorf("panic: %v", rec)).Error()
		}
	}()

	opts := r.job.Options
	fail := func(stage string, err error) error {
		item.Status = models.ItemFailed
		item.Error = fmt.Sprintf("%s: %v", stage, err)
		return nil
	}

	if item.TargetAssetID != "" {
		return p.relink(ctx, r, album, item)
	}

	slot, err := retry.Execute(ctx, r.policy("download"), func(ctx context.Context) (*staging.Slot, error) {
		body, err := p.deps.Fetcher.Fetch(ctx, item.SourceMediaURL)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		return p.deps.Staging.Materialize(r.job.ID, strconv.FormatInt(item.ID, 10), itemName(item), opts.PersistStaging, body)
	})
	if err != nil {
		return fail("download", err)
	}
	defer func() {
		if err := slot.Release(); err != nil {
			r.log.Warn("failed to release staging file", "path", slot.Path, "err", err)
		}
	}()

	hash, size, err := p.deps.Hasher.HashFile(slot.Path)
	if err != nil {
		return fail("hash", err)
	}
	item.ContentHash = hash
	item.Bytes = size

	meta, err := guard("metadata.extract", func() (*models.Metadata, error) {
		return p.deps.Extractor.Extract(slot.Path)
	})
	if err != nil {
		r.log.Debug("metadata unavailable", "item", item.SourceMediaURL, "err", err)
		meta = nil
	}
	item.Metadata = meta
	item.MetadataQuality = meta.Quality()
	if meta != nil {
		item.Mime = meta.Mime
	}

	if err := p.deps.Staging.Mirror(ctx, slot, item.Mime); err != nil {
		r.log.Warn("failed to mirror staging file", "item", item.SourceMediaURL, "err", err)
	}

	if opts.SkipDuplicates {
		*unlock = r.hashLocks.lock(hash)

		dup, err := p.deps.Items.FindDoneByHash(ctx, r.job.ID, hash, item.ID)
		if err != nil {
			return fmt.Errorf("failed to check duplicates: %w", err)
		}
		if dup != nil {
			item.Status = models.ItemSkipped
			return nil
		}
	}

	item.Status = models.ItemUploading
	if err := r.write(func() error { return p.deps.Items.Update(ctx, item) }); err != nil {
		return err
	}

	assetID, err := p.upload(ctx, r, item, slot.Path, meta)
	if err != nil {
		return fail("upload", err)
	}
	if assetID == "" {
		return fail("upload", shared.E(shared.KindValidation, "target.upload", errors.New("target returned no asset id")))
	}
	item.TargetAssetID = assetID

	return p.relink(ctx, r, album, item)
}

// relink adds an already uploaded asset to the target album and marks the item DONE.
// An item whose link failed on an earlier run resumes here without another upload.
func (p *ItemProcessor) relink(ctx context.Context, r *run, album *models.Album, item *models.Item) error {
	if album.TargetAlbumID != "" {
		err := retry.Do(ctx, r.policy("link"), func(ctx context.Context) error {
			return r.target.LinkAssetToAlbum(ctx, item.TargetAssetID, album.TargetAlbumID)
		})
		if err != nil {
			item.Status = models.ItemFailed
			item.Error = fmt.Sprintf("link: %v", err)
			return nil
		}
	}

	item.Status = models.ItemDone
	return nil
}

// upload sends the staged file under the run's upload gate.
func (p *ItemProcessor) upload(ctx context.Context, r *run, item *models.Item, path string, meta *models.Metadata) (string, error) {
	r.uploads <- struct{}{}
	defer func() { <-r.uploads }()

	return retry.Execute(ctx, r.policy("upload"), func(ctx context.Context) (string, error) {
		f, err := os.Open(path)
		if err != nil {
			return "", shared.E(shared.KindInternal, "item.upload", err)
		}
		defer f.Close()
		return r.target.UploadAsset(ctx, services.Upload{
			Body:          f,
			Filename:      itemName(item),
			ContentType:   item.Mime,
			DeviceAssetID: deviceAssetID(r.job.ID, item),
			CreatedAt:     takenAt(meta),
		})
	})
}

func itemName(item *models.Item) string {
	if item.SourceFilename != "" {
		return item.SourceFilename
	}
	return "item-" + strconv.FormatInt(item.ID, 10)
}

// deviceAssetID is stable per job and content so re-uploads of the same bytes carry the same id.
func deviceAssetID(jobID string, item *models.Item) string {
	if len(item.ContentHash) >= 16 {
		return jobID + "-" + item.ContentHash[:16]
	}
	return jobID + "-" + strconv.FormatInt(item.ID, 10)
}

func takenAt(meta *models.Metadata) time.Time {
	if meta != nil && meta.TakenAt != nil {
		return *meta.TakenAt
	}
	return time.Time{}
}
