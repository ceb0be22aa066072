package models

import "strings"

// ProgressSchemaVersion is the current version of the persisted [Progress] layout.
const ProgressSchemaVersion = 1

// Pipeline stages recorded in [Progress.Stage].
const (
	StageQueued         = "queued"
	StageAuthenticating = "authenticating"
	StageAlbums         = "albums"
	StageCompleted      = "completed"
	StageCancelled      = "cancelled"
	StageFailed         = "failed"
)

// Progress is the snapshot of pipeline counters exposed for polling.
type Progress struct {
	SchemaVersion   int    `json:"schema_version"`
	Stage           string `json:"stage"`
	AlbumsProcessed int    `json:"albums_processed"`
	TotalAlbums     int    `json:"total_albums"`
	ItemsProcessed  int    `json:"items_processed"`
	TotalItems      int    `json:"total_items"`
}

// NewProgress returns an initial snapshot for a job with totalAlbums links.
func NewProgress(totalAlbums int) Progress {
	return Progress{SchemaVersion: ProgressSchemaVersion, Stage: StageQueued, TotalAlbums: totalAlbums}
}

// LogTailSize is the number of log lines kept on a job.
const LogTailSize = 10

// LogTail keeps the most recent [LogTailSize] log lines of a job, oldest first.
type LogTail struct {
	lines []string
}

// ParseLogTail restores a tail from its persisted newline-joined form.
func ParseLogTail(s string) LogTail {
	var t LogTail
	if s == "" {
		return t
	}
	for _, line := range strings.Split(s, "\n") {
		t.Append(line)
	}
	return t
}

// Append adds a line and drops the oldest lines beyond [LogTailSize].
func (t *LogTail) Append(line string) {
	t.lines = append(t.lines, strings.ReplaceAll(line, "\n", " "))
	if over := len(t.lines) - LogTailSize; over > 0 {
		t.lines = append([]string(nil), t.lines[over:]...)
	}
}

// Lines returns a copy of the retained lines.
func (t LogTail) Lines() []string {
	return append([]string(nil), t.lines...)
}

// Len returns the number of retained lines.
func (t LogTail) Len() int { return len(t.lines) }

func (t LogTail) String() string {
	return strings.Join(t.lines, "\n")
}
