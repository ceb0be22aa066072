package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/tasks"
	"github.com/urfave/cli/v3"
)

// RunJob executes a stored job in the foreground, printing progress as it goes.
//
// A job interrupted here stays RUNNING and picks up where it left off on the next run.
func (r *Runner) RunJob(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}

	orchestrator, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("running job", "job", id)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.printUpdate(update)
		}
	}()

	job, err := orchestrator.Run(ctx, id, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}
	if job == nil {
		return r.writePlain("%s Job %s is paused or no longer exists; nothing to do\n", palette.Warn("!"), id)
	}

	if cmd.Bool("json") {
		return r.writeJSON(job.View(), true)
	}

	p := job.Progress
	r.writePlain("\n")
	r.writePlainHeader(fmt.Sprintf("Import %s", job.Status))
	r.writePlain("Job:    %s\n", job.ID)
	r.writePlain("Albums: %d/%d\n", p.AlbumsProcessed, p.TotalAlbums)
	r.writePlain("Items:  %d/%d\n", p.ItemsProcessed, p.TotalItems)
	if job.LastError != "" {
		r.writePlain("Error:  %s\n", palette.Err(job.LastError))
	}
	if job.Status == models.JobFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.LastError)
	}
	return nil
}

func (r *Runner) printUpdate(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.PhaseAuth:
		r.writePlain("🔑 %s\n", update.Message)
	case tasks.PhaseAlbum:
		r.writePlain("\n📁 [%d/%d] %s\n", update.Step, update.Total, update.Message)
	case tasks.PhaseItem:
		r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
	case tasks.PhaseFinished:
		r.writePlain("\n%s\n", palette.Status(update.Message))
	}
}
