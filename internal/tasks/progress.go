package tasks

import "github.com/desertthunder/immport/internal/models"

// Reporter tracks a run's counters and projects them into a [models.Progress] snapshot.
//
// Counters only grow, so successive snapshots of one run are monotonic.
// A Reporter is not safe for concurrent use; the run's writer lock guards it.
type Reporter struct {
	stage           string
	albumsProcessed int
	totalAlbums     int
	itemsProcessed  int
	totalItems      int
}

// NewReporter starts a reporter for totalAlbums links in the authenticating stage.
func NewReporter(totalAlbums int) *Reporter {
	return &Reporter{stage: models.StageAuthenticating, totalAlbums: totalAlbums}
}

// SetStage records the pipeline stage.
func (r *Reporter) SetStage(stage string) { r.stage = stage }

// AddItems grows the known item total as albums are resolved.
func (r *Reporter) AddItems(n int) {
	if n > 0 {
		r.totalItems += n
	}
}

// AlbumProcessed counts one album outcome.
func (r *Reporter) AlbumProcessed() { r.albumsProcessed++ }

// ItemProcessed counts one item outcome.
func (r *Reporter) ItemProcessed() { r.itemsProcessed++ }

// Snapshot returns the current projection.
func (r *Reporter) Snapshot() models.Progress {
	return models.Progress{
		SchemaVersion:   models.ProgressSchemaVersion,
		Stage:           r.stage,
		AlbumsProcessed: r.albumsProcessed,
		TotalAlbums:     r.totalAlbums,
		ItemsProcessed:  r.itemsProcessed,
		TotalItems:      r.totalItems,
	}
}
