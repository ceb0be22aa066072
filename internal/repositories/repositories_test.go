package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newTestJob(t *testing.T, db *sql.DB) *models.Job {
	t.Helper()

	job := models.NewJob("https://immich.example.com", models.AuthAPIKey, []string{"https://src/a", "https://src/b"}, models.Options{SkipDuplicates: true})
	job.EncryptedAPIKey = "sealed"
	if err := NewJobRepository(db).Create(context.Background(), job); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

func newTestAlbum(t *testing.T, db *sql.DB, jobID, url string) *models.Album {
	t.Helper()

	album := &models.Album{JobID: jobID, SourceURL: url, Status: models.AlbumPending}
	if err := NewAlbumRepository(db).Upsert(context.Background(), album); err != nil {
		t.Fatalf("failed to create album: %v", err)
	}
	return album
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(ctx, db, "jobs")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("NextSequence() = %d, want %d", got, want)
		}
	}
}

func TestJobRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create and Get", func(t *testing.T) {
		db := setupTestDB(t)
		job := newTestJob(t, db)

		if job.ID == "" || job.Sequence != 1 {
			t.Fatalf("expected id and sequence 1, got %q #%d", job.ID, job.Sequence)
		}

		got, err := NewJobRepository(db).Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("failed to get job: %v", err)
		}

		if got.Status != models.JobQueued {
			t.Errorf("expected QUEUED, got %s", got.Status)
		}
		if len(got.AlbumLinks) != 2 || got.AlbumLinks[1] != "https://src/b" {
			t.Errorf("album links not preserved in order: %v", got.AlbumLinks)
		}
		if !got.Options.SkipDuplicates || got.Options.DownloadConcurrency != 1 {
			t.Errorf("options not preserved: %+v", got.Options)
		}
		if got.Progress.TotalAlbums != 2 || got.Progress.Stage != models.StageQueued {
			t.Errorf("progress not preserved: %+v", got.Progress)
		}
		if got.EncryptedAPIKey != "sealed" {
			t.Errorf("expected api key ciphertext, got %q", got.EncryptedAPIKey)
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		db := setupTestDB(t)
		_, err := NewJobRepository(db).Get(ctx, "missing")
		if !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("Update keeps cancel flag", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewJobRepository(db)
		job := newTestJob(t, db)

		if err := repo.RequestCancel(ctx, job.ID); err != nil {
			t.Fatalf("failed to request cancel: %v", err)
		}

		job.Status = models.JobRunning
		job.LogTail.Append("started")
		if err := repo.Update(ctx, job); err != nil {
			t.Fatalf("failed to update job: %v", err)
		}

		requested, err := repo.CancelRequested(ctx, job.ID)
		if err != nil {
			t.Fatalf("failed to read cancel flag: %v", err)
		}
		if !requested {
			t.Error("update must not clear an external cancel request")
		}

		got, _ := repo.Get(ctx, job.ID)
		if got.Status != models.JobRunning || got.LogTail.String() != "started" {
			t.Errorf("update not persisted: %s %q", got.Status, got.LogTail.String())
		}

		if err := repo.ClearCancel(ctx, job.ID); err != nil {
			t.Fatalf("failed to clear cancel flag: %v", err)
		}
		if requested, _ := repo.CancelRequested(ctx, job.ID); requested {
			t.Error("expected cancel flag cleared")
		}
	})

	t.Run("Checkpoint", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewJobRepository(db)
		job := newTestJob(t, db)

		var tail models.LogTail
		tail.Append("album 1 done")
		progress := models.Progress{SchemaVersion: 1, Stage: models.StageAlbums, AlbumsProcessed: 1, TotalAlbums: 2, ItemsProcessed: 3, TotalItems: 3}

		if err := repo.Checkpoint(ctx, job.ID, progress, tail); err != nil {
			t.Fatalf("failed to checkpoint: %v", err)
		}

		got, _ := repo.Get(ctx, job.ID)
		if got.Progress != progress {
			t.Errorf("expected %+v, got %+v", progress, got.Progress)
		}
		if got.LogTail.Len() != 1 {
			t.Errorf("expected one log line, got %d", got.LogTail.Len())
		}

		if err := repo.Checkpoint(ctx, "missing", progress, tail); !errors.Is(err, shared.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("SetAccessToken", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewJobRepository(db)
		job := newTestJob(t, db)

		if err := repo.SetAccessToken(ctx, job.ID, "sealed-token"); err != nil {
			t.Fatalf("failed to set token: %v", err)
		}
		got, _ := repo.Get(ctx, job.ID)
		if got.EncryptedAccessToken != "sealed-token" {
			t.Errorf("expected stored token, got %q", got.EncryptedAccessToken)
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewJobRepository(db)
		first := newTestJob(t, db)
		second := newTestJob(t, db)

		second.Status = models.JobDone
		if err := repo.Update(ctx, second); err != nil {
			t.Fatalf("failed to update job: %v", err)
		}

		all, err := repo.List(ctx, JobFilter{})
		if err != nil {
			t.Fatalf("failed to list jobs: %v", err)
		}
		if len(all) != 2 || all[0].ID != first.ID {
			t.Fatalf("expected two jobs in sequence order, got %d", len(all))
		}

		done, err := repo.List(ctx, JobFilter{Status: models.JobDone})
		if err != nil {
			t.Fatalf("failed to list jobs: %v", err)
		}
		if len(done) != 1 || done[0].ID != second.ID {
			t.Errorf("expected only the done job, got %d", len(done))
		}
	})
}

func TestAlbumRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert is keyed by job and source", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewAlbumRepository(db)
		job := newTestJob(t, db)

		album := newTestAlbum(t, db, job.ID, "https://src/a")
		again := &models.Album{JobID: job.ID, SourceURL: "https://src/a", SourceTitle: "Trip", TargetAlbumID: "t-1", Status: models.AlbumPending}
		if err := repo.Upsert(ctx, again); err != nil {
			t.Fatalf("failed to upsert album: %v", err)
		}

		if again.ID != album.ID {
			t.Errorf("expected same row id %d, got %d", album.ID, again.ID)
		}

		got, err := repo.GetBySource(ctx, job.ID, "https://src/a")
		if err != nil {
			t.Fatalf("failed to get album: %v", err)
		}
		if got.SourceTitle != "Trip" || got.TargetAlbumID != "t-1" {
			t.Errorf("upsert did not update row: %+v", got)
		}

		albums, _ := repo.ListByJob(ctx, job.ID)
		if len(albums) != 1 {
			t.Errorf("expected one album row, got %d", len(albums))
		}
	})

	t.Run("GetBySource not found", func(t *testing.T) {
		db := setupTestDB(t)
		job := newTestJob(t, db)
		_, err := NewAlbumRepository(db).GetBySource(ctx, job.ID, "https://nowhere")
		if !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
	})

	t.Run("ResetWithFailedItems", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewAlbumRepository(db)
		items := NewItemRepository(db)
		job := newTestJob(t, db)

		clean := newTestAlbum(t, db, job.ID, "https://src/a")
		broken := newTestAlbum(t, db, job.ID, "https://src/b")
		for _, a := range []*models.Album{clean, broken} {
			a.Status = models.AlbumDone
			if err := repo.Update(ctx, a); err != nil {
				t.Fatalf("failed to update album: %v", err)
			}
		}

		if err := items.Upsert(ctx, &models.Item{JobID: job.ID, AlbumID: clean.ID, SourceMediaURL: "https://m/1", Status: models.ItemDone, TargetAssetID: "x"}); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}
		if err := items.Upsert(ctx, &models.Item{JobID: job.ID, AlbumID: broken.ID, SourceMediaURL: "https://m/2", Status: models.ItemFailed}); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}

		n, err := repo.ResetWithFailedItems(ctx, job.ID)
		if err != nil {
			t.Fatalf("failed to reset albums: %v", err)
		}
		if n != 1 {
			t.Errorf("expected one album reset, got %d", n)
		}

		got, _ := repo.Get(ctx, broken.ID)
		if got.Status != models.AlbumPending {
			t.Errorf("expected PENDING, got %s", got.Status)
		}
		got, _ = repo.Get(ctx, clean.ID)
		if got.Status != models.AlbumDone {
			t.Errorf("expected untouched DONE, got %s", got.Status)
		}
	})
}

func TestItemRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert and Get", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewItemRepository(db)
		job := newTestJob(t, db)
		album := newTestAlbum(t, db, job.ID, "https://src/a")

		item := &models.Item{JobID: job.ID, AlbumID: album.ID, SourceMediaURL: "https://m/1", SourceFilename: "1.jpg", Status: models.ItemDownloading}
		if err := repo.Upsert(ctx, item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}

		item.Status = models.ItemDone
		item.TargetAssetID = "asset-1"
		item.ContentHash = "abc"
		item.Metadata = &models.Metadata{Mime: "image/jpeg", CameraMake: "Canon"}
		item.MetadataQuality = item.Metadata.Quality()
		if err := repo.Update(ctx, item); err != nil {
			t.Fatalf("failed to update item: %v", err)
		}

		got, err := repo.GetBySource(ctx, job.ID, "https://m/1")
		if err != nil {
			t.Fatalf("failed to get item: %v", err)
		}
		if got.Status != models.ItemDone || got.TargetAssetID != "asset-1" {
			t.Errorf("unexpected item: %+v", got)
		}
		if got.Metadata == nil || got.Metadata.CameraMake != "Canon" || got.Metadata.SchemaVersion != models.MetadataSchemaVersion {
			t.Errorf("metadata not preserved: %+v", got.Metadata)
		}
		if got.MetadataQuality != models.MetadataEXIF {
			t.Errorf("expected exif quality, got %s", got.MetadataQuality)
		}
	})

	t.Run("Update rejects done without asset", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewItemRepository(db)
		job := newTestJob(t, db)
		album := newTestAlbum(t, db, job.ID, "https://src/a")

		item := &models.Item{JobID: job.ID, AlbumID: album.ID, SourceMediaURL: "https://m/1", Status: models.ItemPending}
		if err := repo.Upsert(ctx, item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}

		item.Status = models.ItemDone
		if err := repo.Update(ctx, item); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("FindDoneByHash", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewItemRepository(db)
		job := newTestJob(t, db)
		other := newTestJob(t, db)
		album := newTestAlbum(t, db, job.ID, "https://src/a")
		otherAlbum := newTestAlbum(t, db, other.ID, "https://src/a")

		done := &models.Item{JobID: job.ID, AlbumID: album.ID, SourceMediaURL: "https://m/1", ContentHash: "h1", Status: models.ItemDone, TargetAssetID: "a1"}
		failed := &models.Item{JobID: job.ID, AlbumID: album.ID, SourceMediaURL: "https://m/2", ContentHash: "h2", Status: models.ItemFailed}
		foreign := &models.Item{JobID: other.ID, AlbumID: otherAlbum.ID, SourceMediaURL: "https://m/3", ContentHash: "h2", Status: models.ItemDone, TargetAssetID: "a3"}
		for _, it := range []*models.Item{done, failed, foreign} {
			if err := repo.Upsert(ctx, it); err != nil {
				t.Fatalf("failed to create item: %v", err)
			}
		}

		got, err := repo.FindDoneByHash(ctx, job.ID, "h1", 0)
		if err != nil || got == nil || got.ID != done.ID {
			t.Fatalf("expected done item, got %+v (%v)", got, err)
		}

		if got, _ := repo.FindDoneByHash(ctx, job.ID, "h1", done.ID); got != nil {
			t.Error("expected the item itself to be excluded")
		}

		if got, _ := repo.FindDoneByHash(ctx, job.ID, "h2", 0); got != nil {
			t.Error("expected failed and foreign-job items to be ignored")
		}
	})

	t.Run("CountByStatus and lists", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewItemRepository(db)
		job := newTestJob(t, db)
		album := newTestAlbum(t, db, job.ID, "https://src/a")

		for i, status := range []models.ItemStatus{models.ItemSkipped, models.ItemFailed, models.ItemFailed} {
			it := &models.Item{JobID: job.ID, AlbumID: album.ID, SourceMediaURL: "https://m/" + string(rune('a'+i)), Status: status}
			if err := repo.Upsert(ctx, it); err != nil {
				t.Fatalf("failed to create item: %v", err)
			}
		}

		counts, err := repo.CountByStatus(ctx, job.ID)
		if err != nil {
			t.Fatalf("failed to count items: %v", err)
		}
		if counts[models.ItemFailed] != 2 || counts[models.ItemSkipped] != 1 {
			t.Errorf("unexpected counts: %v", counts)
		}

		byAlbum, _ := repo.ListByAlbum(ctx, album.ID)
		byJob, _ := repo.ListByJob(ctx, job.ID)
		if len(byAlbum) != 3 || len(byJob) != 3 {
			t.Errorf("expected 3 items, got %d by album and %d by job", len(byAlbum), len(byJob))
		}
	})
}
