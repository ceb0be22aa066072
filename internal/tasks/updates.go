package tasks

import (
	"fmt"

	"github.com/desertthunder/immport/internal/models"
)

// ProgressUpdate represents a progress event during a pipeline run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase    Phase           // Operation phase
	Step     int             // Current step number within phase
	Total    int             // Total steps in this phase
	Message  string          // Human-readable message for display
	Progress models.Progress // Snapshot at the time of the update
}

// Pipeline phase enumeration
type Phase int

const (
	PhaseAuth Phase = iota
	PhaseAlbum
	PhaseItem
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseAuth:
		return "auth"
	case PhaseAlbum:
		return "album"
	case PhaseItem:
		return "item"
	case PhaseFinished:
		return "finished"
	default:
		return ""
	}
}

func authUpdate(p models.Progress, mode models.AuthMode) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseAuth,
		Message:  fmt.Sprintf("Authenticating (%s)...", mode),
		Progress: p,
	}
}

func albumUpdate(p models.Progress, message string) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseAlbum,
		Step:     p.AlbumsProcessed,
		Total:    p.TotalAlbums,
		Message:  message,
		Progress: p,
	}
}

func itemUpdate(p models.Progress, message string) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseItem,
		Step:     p.ItemsProcessed,
		Total:    p.TotalItems,
		Message:  message,
		Progress: p,
	}
}

func finishedUpdate(p models.Progress, status models.JobStatus) ProgressUpdate {
	return ProgressUpdate{
		Phase:    PhaseFinished,
		Step:     p.AlbumsProcessed,
		Total:    p.TotalAlbums,
		Message:  fmt.Sprintf("Job %s", status),
		Progress: p,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
