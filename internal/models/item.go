package models

import "time"

// Item is one media file of an [Album].
//
// (JobID, SourceMediaURL) is unique. A DONE item always carries a TargetAssetID;
// a SKIPPED item was deduplicated and never uploaded.
type Item struct {
	ID              int64           `json:"id"`
	JobID           string          `json:"job_id"`
	AlbumID         int64           `json:"album_id"`
	SourceMediaURL  string          `json:"source_media_url"`
	SourceFilename  string          `json:"source_filename"`
	Mime            string          `json:"mime,omitempty"`
	Bytes           int64           `json:"bytes"`
	ContentHash     string          `json:"content_hash,omitempty"`
	Metadata        *Metadata       `json:"metadata,omitempty"`
	MetadataQuality MetadataQuality `json:"metadata_quality,omitempty"`
	Status          ItemStatus      `json:"status"`
	TargetAssetID   string          `json:"target_asset_id,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate checks the item's invariants before it is written.
func (i *Item) Validate() error {
	if i.JobID == "" || i.SourceMediaURL == "" {
		return invalid("item requires a job id and source media url")
	}
	if i.AlbumID == 0 {
		return invalid("item %s has no album", i.SourceMediaURL)
	}
	switch i.Status {
	case ItemPending, ItemDownloading, ItemUploading, ItemSkipped, ItemFailed:
	case ItemDone:
		if i.TargetAssetID == "" {
			return invalid("done item %s has no target asset id", i.SourceMediaURL)
		}
	default:
		return invalid("unknown item status %q", i.Status)
	}
	return nil
}
