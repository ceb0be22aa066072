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

const albumColumns = `id, job_id, source_url, source_title, target_album_id, status, error, created_at, updated_at`

// AlbumRepository persists [models.Album] rows keyed by (job_id, source_url).
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

// GetBySource retrieves the album for a job and source link. Returns [shared.ErrAlbumNotFound] when absent.
func (r *AlbumRepository) GetBySource(ctx context.Context, jobID, sourceURL string) (*models.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE job_id = ? AND source_url = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, jobID, sourceURL))
}

// Get retrieves an album by ID
func (r *AlbumRepository) Get(ctx context.Context, id int64) (*models.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// Upsert inserts the album or updates the existing row with the same (job_id, source_url).
// The album's ID is set from the stored row.
func (r *AlbumRepository) Upsert(ctx context.Context, album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO albums (job_id, source_url, source_title, target_album_id, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, source_url) DO UPDATE SET
			source_title = excluded.source_title,
			target_album_id = excluded.target_album_id,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		album.JobID,
		album.SourceURL,
		nullString(album.SourceTitle),
		nullString(album.TargetAlbumID),
		album.Status,
		nullString(album.Error),
		now,
		now,
	).Scan(&album.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert album: %w", err)
	}

	album.UpdatedAt = now
	if album.CreatedAt.IsZero() {
		album.CreatedAt = now
	}
	return nil
}

// Update modifies an existing album by ID
func (r *AlbumRepository) Update(ctx context.Context, album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE albums
		SET source_title = ?, target_album_id = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullString(album.SourceTitle),
		nullString(album.TargetAlbumID),
		album.Status,
		nullString(album.Error),
		now,
		album.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}
	if err := affectedOne(result, fmt.Errorf("%w: %d", shared.ErrAlbumNotFound, album.ID)); err != nil {
		return err
	}

	album.UpdatedAt = now
	return nil
}

// ListByJob retrieves every album of a job in creation order
func (r *AlbumRepository) ListByJob(ctx context.Context, jobID string) ([]*models.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE job_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		album, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return albums, nil
}

// ResetWithFailedItems moves every album of the job that owns a FAILED item, or that
// failed itself, back to PENDING so the next run revisits it. Returns the number of albums reset.
func (r *AlbumRepository) ResetWithFailedItems(ctx context.Context, jobID string) (int64, error) {
	query := `
		UPDATE albums
		SET status = ?, error = NULL, updated_at = ?
		WHERE job_id = ? AND (
			status = ? OR
			id IN (SELECT album_id FROM items WHERE job_id = ? AND status = ?)
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		models.AlbumPending,
		time.Now().UTC(),
		jobID,
		models.AlbumFailed,
		jobID,
		models.ItemFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset albums: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// scanOne scans a single row into a [models.Album]
func (r *AlbumRepository) scanOne(row *sql.Row) (*models.Album, error) {
	album, err := scanAlbum(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrAlbumNotFound
	}
	return album, err
}

// scanRow scans a row from [sql.Rows] into a [models.Album]
func (r *AlbumRepository) scanRow(rows *sql.Rows) (*models.Album, error) {
	return scanAlbum(rows)
}

func scanAlbum(s scanner) (*models.Album, error) {
	var (
		album                     models.Album
		title, targetID, albumErr sql.NullString
	)

	err := s.Scan(&album.ID, &album.JobID, &album.SourceURL, &title, &targetID, &album.Status, &albumErr, &album.CreatedAt, &album.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}

	album.SourceTitle = title.String
	album.TargetAlbumID = targetID.String
	album.Error = albumErr.String
	return &album, nil
}
