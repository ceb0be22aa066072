package models

import (
	"fmt"

	"github.com/desertthunder/immport/internal/shared"
)

// JobStatus is the lifecycle state of a [Job].
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobDone      JobStatus = "DONE"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
	JobPaused    JobStatus = "PAUSED"
)

// Terminal reports whether the job will not advance without outside intervention.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobDone, JobFailed, JobCancelled, JobPaused:
		return true
	}
	return false
}

// AlbumStatus is the lifecycle state of an [Album].
type AlbumStatus string

const (
	AlbumPending AlbumStatus = "PENDING"
	AlbumDone    AlbumStatus = "DONE"
	AlbumFailed  AlbumStatus = "FAILED"
)

// ItemStatus is the lifecycle state of an [Item].
type ItemStatus string

const (
	ItemPending     ItemStatus = "PENDING"
	ItemDownloading ItemStatus = "DOWNLOADING"
	ItemUploading   ItemStatus = "UPLOADING"
	ItemDone        ItemStatus = "DONE"
	ItemSkipped     ItemStatus = "SKIPPED"
	ItemFailed      ItemStatus = "FAILED"
)

// Terminal reports whether the item short-circuits all future work on its key.
// FAILED is deliberately not terminal so a later run retries it.
func (s ItemStatus) Terminal() bool {
	return s == ItemDone || s == ItemSkipped
}

// AuthMode selects how a job authenticates against the target service.
type AuthMode string

const (
	AuthAPIKey      AuthMode = "API_KEY"
	AuthCredentials AuthMode = "CREDENTIALS"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrInvalidInput, fmt.Sprintf(format, args...))
}
