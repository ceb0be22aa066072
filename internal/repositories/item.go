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

const itemColumns = `
	id, job_id, album_id, source_media_url, source_filename, mime, bytes, content_hash,
	metadata, metadata_quality, status, target_asset_id, error, created_at, updated_at`

// ItemRepository persists [models.Item] rows keyed by (job_id, source_media_url).
type ItemRepository struct {
	db *sql.DB
}

// NewItemRepository creates a new ItemRepository with the given database connection
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetBySource retrieves the item for a job and media URL. Returns [shared.ErrItemNotFound] when absent.
func (r *ItemRepository) GetBySource(ctx context.Context, jobID, mediaURL string) (*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE job_id = ? AND source_media_url = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, jobID, mediaURL))
}

// Upsert inserts the item or overwrites the existing row with the same (job_id, source_media_url).
// The item's ID is set from the stored row.
func (r *ItemRepository) Upsert(ctx context.Context, item *models.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	metadata, err := r.encodeMetadata(item)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO items (
			job_id, album_id, source_media_url, source_filename, mime, bytes, content_hash,
			metadata, metadata_quality, status, target_asset_id, error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id, source_media_url) DO UPDATE SET
			album_id = excluded.album_id,
			source_filename = excluded.source_filename,
			mime = excluded.mime,
			bytes = excluded.bytes,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata,
			metadata_quality = excluded.metadata_quality,
			status = excluded.status,
			target_asset_id = excluded.target_asset_id,
			error = excluded.error,
			updated_at = excluded.updated_at
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		item.JobID,
		item.AlbumID,
		item.SourceMediaURL,
		nullString(item.SourceFilename),
		nullString(item.Mime),
		item.Bytes,
		nullString(item.ContentHash),
		metadata,
		nullString(string(item.MetadataQuality)),
		item.Status,
		nullString(item.TargetAssetID),
		nullString(item.Error),
		now,
		now,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	item.UpdatedAt = now
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	return nil
}

// Update modifies an existing item by ID
func (r *ItemRepository) Update(ctx context.Context, item *models.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	metadata, err := r.encodeMetadata(item)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		UPDATE items
		SET source_filename = ?, mime = ?, bytes = ?, content_hash = ?, metadata = ?,
			metadata_quality = ?, status = ?, target_asset_id = ?, error = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullString(item.SourceFilename),
		nullString(item.Mime),
		item.Bytes,
		nullString(item.ContentHash),
		metadata,
		nullString(string(item.MetadataQuality)),
		item.Status,
		nullString(item.TargetAssetID),
		nullString(item.Error),
		now,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if err := affectedOne(result, fmt.Errorf("%w: %d", shared.ErrItemNotFound, item.ID)); err != nil {
		return err
	}

	item.UpdatedAt = now
	return nil
}

// FindDoneByHash returns another DONE item of the same job carrying contentHash,
// or nil when there is none. The item with excludeID is never returned.
func (r *ItemRepository) FindDoneByHash(ctx context.Context, jobID, contentHash string, excludeID int64) (*models.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE job_id = ? AND content_hash = ? AND status = ? AND id != ?
		ORDER BY id ASC
		LIMIT 1`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, jobID, contentHash, models.ItemDone, excludeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up duplicate: %w", err)
	}
	return item, nil
}

// ListByJob retrieves every item of a job in creation order
func (r *ItemRepository) ListByJob(ctx context.Context, jobID string) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE job_id = ? ORDER BY id ASC`
	return r.list(ctx, query, jobID)
}

// ListByAlbum retrieves every item of an album in creation order
func (r *ItemRepository) ListByAlbum(ctx context.Context, albumID int64) ([]*models.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE album_id = ? ORDER BY id ASC`
	return r.list(ctx, query, albumID)
}

// CountByStatus tallies a job's items per status.
func (r *ItemRepository) CountByStatus(ctx context.Context, jobID string) (map[models.ItemStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM items WHERE job_id = ? GROUP BY status`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ItemStatus]int)
	for rows.Next() {
		var (
			status models.ItemStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan item count: %w", err)
		}
		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

func (r *ItemRepository) list(ctx context.Context, query string, args ...any) ([]*models.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *ItemRepository) encodeMetadata(item *models.Item) (any, error) {
	if item.Metadata == nil {
		return nil, nil
	}
	item.Metadata.SchemaVersion = models.MetadataSchemaVersion
	return encodeJSON(item.Metadata)
}

// scanOne scans a single row into a [models.Item]
func (r *ItemRepository) scanOne(row *sql.Row) (*models.Item, error) {
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrItemNotFound
	}
	return item, err
}

// scanRow scans a row from [sql.Rows] into a [models.Item]
func (r *ItemRepository) scanRow(rows *sql.Rows) (*models.Item, error) {
	return scanItem(rows)
}

func scanItem(s scanner) (*models.Item, error) {
	var (
		item                          models.Item
		filename, mime, hash, quality sql.NullString
		metadata, targetID, itemErr   sql.NullString
		size                          sql.NullInt64
	)

	err := s.Scan(
		&item.ID, &item.JobID, &item.AlbumID, &item.SourceMediaURL, &filename, &mime, &size, &hash,
		&metadata, &quality, &item.Status, &targetID, &itemErr, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.SourceFilename = filename.String
	item.Mime = mime.String
	item.Bytes = size.Int64
	item.ContentHash = hash.String
	item.MetadataQuality = models.MetadataQuality(quality.String)
	item.TargetAssetID = targetID.String
	item.Error = itemErr.String

	if metadata.Valid {
		item.Metadata = &models.Metadata{}
		if err := decodeJSON(metadata, item.Metadata); err != nil {
			return nil, err
		}
	}

	return &item, nil
}
