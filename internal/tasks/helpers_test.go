package tasks

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/repositories"
	"github.com/desertthunder/immport/internal/retry"
	"github.com/desertthunder/immport/internal/secrets"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/desertthunder/immport/internal/staging"
	tu "github.com/desertthunder/immport/internal/testing"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t         *testing.T
	db        *sql.DB
	jobs      *repositories.JobRepository
	albums    *repositories.AlbumRepository
	items     *repositories.ItemRepository
	target    *tu.FakeTarget
	collector *tu.FakeCollector
	fetcher   *tu.FakeFetcher
	box       *secrets.Box
	service   *Service
	queue     *fakeQueue

	mu     sync.Mutex
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := tu.NewTestDB(t)

	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")

	h := &harness{
		t:         t,
		db:        db,
		jobs:      repositories.NewJobRepository(db),
		albums:    repositories.NewAlbumRepository(db),
		items:     repositories.NewItemRepository(db),
		target:    tu.NewFakeTarget("token-1"),
		collector: tu.NewFakeCollector(),
		fetcher:   tu.NewFakeFetcher(),
		box:       secrets.NewBox(key),
		queue:     &fakeQueue{},
	}
	h.service = NewService(h.jobs, h.albums, h.items, h.box, h.queue, shared.NewLogger(io.Discard))
	return h
}

func (h *harness) deps() Deps {
	policy := retry.Default()
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.sleeps = append(h.sleeps, d)
		return nil
	}

	return Deps{
		Jobs:      h.jobs,
		Albums:    h.albums,
		Items:     h.items,
		Target:    h.target.Factory(),
		Collector: h.collector,
		Fetcher:   h.fetcher,
		Staging:   staging.NewArea(h.t.TempDir(), nil),
		Box:       h.box,
		Logger:    shared.NewLogger(io.Discard),
		Retry:     policy,
	}
}

// album registers an album at link with one item per name, each with distinct content.
func (h *harness) album(link, title string, names ...string) []string {
	urls := make([]string, 0, len(names))
	for _, n := range names {
		u := link + "/media/" + n
		h.fetcher.Content[u] = []byte("content of " + u)
		urls = append(urls, u)
	}
	h.collector.Add(link, title, urls...)
	return urls
}

func (h *harness) submit(opts models.Options, links ...string) string {
	h.t.Helper()
	id, err := h.service.Submit(context.Background(), SubmitRequest{
		TargetURL: "http://immich.local",
		APIKey:    "api-key",
		Links:     links,
		Options:   opts,
	})
	require.NoError(h.t, err)
	return id
}

func (h *harness) run(id string) *models.Job {
	h.t.Helper()
	return h.runWith(NewOrchestrator(h.deps()), id)
}

func (h *harness) runWith(o *Orchestrator, id string) *models.Job {
	h.t.Helper()
	_, err := o.Run(context.Background(), id, nil)
	require.NoError(h.t, err)

	job, err := h.jobs.Get(context.Background(), id)
	require.NoError(h.t, err)
	return job
}

func (h *harness) itemsOf(id string) map[string]*models.Item {
	h.t.Helper()
	items, err := h.items.ListByJob(context.Background(), id)
	require.NoError(h.t, err)

	byURL := make(map[string]*models.Item, len(items))
	for _, it := range items {
		byURL[it.SourceMediaURL] = it
	}
	return byURL
}

func (h *harness) albumsOf(id string) []*models.Album {
	h.t.Helper()
	albums, err := h.albums.ListByJob(context.Background(), id)
	require.NoError(h.t, err)
	return albums
}

// markRunning puts the job in RUNNING as a worker would, last checkpointed at updated.
func (h *harness) markRunning(id string, updated time.Time) {
	h.t.Helper()
	_, err := h.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, models.JobRunning, updated.UTC(), id)
	require.NoError(h.t, err)
}

func (h *harness) recordedSleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}

func defaultOptions() models.Options {
	return models.Options{CreateAlbum: true, SkipDuplicates: true, DownloadConcurrency: 1, UploadConcurrency: 1}
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) EnqueueImport(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	return nil
}

func (q *fakeQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

// recordingJobs captures every checkpoint and can fail them from the nth call on.
type recordingJobs struct {
	*repositories.JobRepository

	mu        sync.Mutex
	snapshots []models.Progress
	failFrom  int
}

func (r *recordingJobs) Checkpoint(ctx context.Context, id string, p models.Progress, tail models.LogTail) error {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, p)
	n := len(r.snapshots)
	r.mu.Unlock()

	if r.failFrom > 0 && n >= r.failFrom {
		return errors.New("disk full")
	}
	return r.JobRepository.Checkpoint(ctx, id, p, tail)
}

func (r *recordingJobs) recorded() []models.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Progress(nil), r.snapshots...)
}
