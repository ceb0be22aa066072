package models

import (
	"net/url"
	"strings"
	"time"
)

// OptionsSchemaVersion is the current version of the persisted [Options] layout.
const OptionsSchemaVersion = 1

// Options are the per-job pipeline switches chosen at submission.
type Options struct {
	SchemaVersion       int  `json:"schema_version"`
	CreateAlbum         bool `json:"create_album"`
	SkipDuplicates      bool `json:"skip_duplicates"`
	DownloadConcurrency int  `json:"download_concurrency"`
	UploadConcurrency   int  `json:"upload_concurrency"`
	PersistStaging      bool `json:"persist_staging"`
}

// Normalize fills the schema version and clamps concurrency to at least one worker.
func (o Options) Normalize() Options {
	o.SchemaVersion = OptionsSchemaVersion
	if o.DownloadConcurrency < 1 {
		o.DownloadConcurrency = 1
	}
	if o.UploadConcurrency < 1 {
		o.UploadConcurrency = 1
	}
	return o
}

// Job is one import run over an ordered list of source album links.
//
// Credential fields hold ciphertext only; plaintext exists in memory for the duration of a run.
type Job struct {
	ID                   string
	Sequence             int
	Status               JobStatus
	TargetURL            string
	AuthMode             AuthMode
	EncryptedAPIKey      string
	EncryptedEmail       string
	EncryptedPassword    string
	EncryptedAccessToken string
	AlbumLinks           []string
	Options              Options
	Progress             Progress
	LastError            string
	LogTail              LogTail
	CancelRequested      bool
	StartedAt            *time.Time
	FinishedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewJob creates a QUEUED job. Links keep their order; it defines processing order.
func NewJob(targetURL string, mode AuthMode, links []string, opts Options) *Job {
	now := time.Now()
	return &Job{
		Status:     JobQueued,
		TargetURL:  strings.TrimRight(strings.TrimSpace(targetURL), "/"),
		AuthMode:   mode,
		AlbumLinks: append([]string(nil), links...),
		Options:    opts.Normalize(),
		Progress:   NewProgress(len(links)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks the job's invariants before it is written.
func (j *Job) Validate() error {
	if !j.Status.Valid() {
		return invalid("unknown job status %q", j.Status)
	}
	if j.TargetURL == "" {
		return invalid("target url is required")
	}
	if u, err := url.Parse(j.TargetURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("target url %q is not absolute", j.TargetURL)
	}
	if len(j.AlbumLinks) == 0 {
		return invalid("at least one album link is required")
	}
	for i, link := range j.AlbumLinks {
		if strings.TrimSpace(link) == "" {
			return invalid("album link %d is empty", i)
		}
	}

	switch j.AuthMode {
	case AuthAPIKey:
		if j.EncryptedAPIKey == "" {
			return invalid("api key mode requires an api key")
		}
	case AuthCredentials:
		if j.EncryptedEmail == "" || j.EncryptedPassword == "" {
			return invalid("credentials mode requires email and password")
		}
	default:
		return invalid("unknown auth mode %q", j.AuthMode)
	}
	return nil
}

// View projects the job into its polling form.
func (j *Job) View() JobStatusView {
	return JobStatusView{
		ID:        j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		LastError: j.LastError,
		LogTail:   j.LogTail.Lines(),
	}
}
