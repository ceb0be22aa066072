package models

import "time"

// Album is one source album link materialized within a [Job].
//
// (JobID, SourceURL) is unique; it is how a resumed run re-discovers the row.
type Album struct {
	ID            int64       `json:"id"`
	JobID         string      `json:"job_id"`
	SourceURL     string      `json:"source_url"`
	SourceTitle   string      `json:"source_title"`
	TargetAlbumID string      `json:"target_album_id,omitempty"`
	Status        AlbumStatus `json:"status"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Validate checks the album's invariants before it is written.
func (a *Album) Validate() error {
	if a.JobID == "" || a.SourceURL == "" {
		return invalid("album requires a job id and source url")
	}
	switch a.Status {
	case AlbumPending, AlbumDone, AlbumFailed:
		return nil
	}
	return invalid("unknown album status %q", a.Status)
}
