package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/immport/internal/formatter"
	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/repositories"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/desertthunder/immport/internal/tasks"
	"github.com/urfave/cli/v3"
)

// JobSubmit stores a new import job and hands it to the work queue.
func (r *Runner) JobSubmit(ctx context.Context, cmd *cli.Command) error {
	links, err := collectLinks(cmd)
	if err != nil {
		return err
	}

	svc, err := r.service(!cmd.Bool("no-queue"))
	if err != nil {
		return err
	}

	id, err := svc.Submit(ctx, tasks.SubmitRequest{
		TargetURL: cmd.String("target"),
		APIKey:    cmd.String("api-key"),
		Email:     cmd.String("email"),
		Password:  cmd.String("password"),
		Links:     links,
		Options:   r.jobOptions(cmd),
	})
	if id == "" && err != nil {
		return err
	}
	if err != nil {
		r.logger.Warn("job stored but not queued", "job", id, "error", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"job_id": id, "queued": err == nil && !cmd.Bool("no-queue")}, false)
	}

	r.writePlain("%s Job submitted: %s\n", palette.OK("✓"), id)
	r.writePlain("  Albums: %d\n", len(links))
	if cmd.Bool("no-queue") || err != nil {
		r.writePlain("  %s\n", palette.Help("Run it with 'immport run "+id+"'"))
	}
	return nil
}

// JobStatus prints a job's status, progress counters and log tail.
func (r *Runner) JobStatus(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	svc, err := r.service(false)
	if err != nil {
		return err
	}

	view, err := svc.Status(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(view, cmd.Bool("pretty"))
	}

	p := view.Progress
	r.writePlainHeader("Job " + view.ID)
	r.writePlain("Status:   %s (%s)\n", palette.Status(string(view.Status)), p.Stage)
	r.writePlain("Albums:   %d/%d\n", p.AlbumsProcessed, p.TotalAlbums)
	r.writePlain("Items:    %d/%d\n", p.ItemsProcessed, p.TotalItems)
	if view.LastError != "" {
		r.writePlain("Error:    %s\n", palette.Err(view.LastError))
	}
	if len(view.LogTail) > 0 {
		r.writePlainln("Recent log:")
		for _, line := range view.LogTail {
			r.writePlain("  %s\n", palette.Help(line))
		}
	}
	return nil
}

// JobList prints jobs in submission order.
func (r *Runner) JobList(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.service(false)
	if err != nil {
		return err
	}

	filter := repositories.JobFilter{Limit: cmd.Int("limit")}
	if s := cmd.String("status"); s != "" {
		filter.Status = models.JobStatus(strings.ToUpper(s))
	}

	jobs, err := svc.List(ctx, filter)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]models.JobStatusView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, j.View())
		}
		return r.writeJSON(views, cmd.Bool("pretty"))
	}

	if len(jobs) == 0 {
		return r.writePlain("No jobs found\n")
	}
	for _, j := range jobs {
		r.writePlain("%4d  %s  %-10s  albums %d/%d  items %d/%d\n",
			j.Sequence, j.ID, palette.Status(string(j.Status)),
			j.Progress.AlbumsProcessed, j.Progress.TotalAlbums,
			j.Progress.ItemsProcessed, j.Progress.TotalItems,
		)
	}
	return nil
}

// JobCancel requests cancellation of a job.
func (r *Runner) JobCancel(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	svc, err := r.service(false)
	if err != nil {
		return err
	}
	if err := svc.RequestCancel(ctx, id); err != nil {
		return err
	}
	return r.writePlain("%s Cancel requested for %s\n", palette.Warn("■"), id)
}

// JobPause parks a job until it is resumed.
func (r *Runner) JobPause(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	svc, err := r.service(false)
	if err != nil {
		return err
	}
	if err := svc.Pause(ctx, id); err != nil {
		return err
	}
	return r.writePlain("%s Paused %s\n", palette.Warn("‖"), id)
}

// JobResume re-queues a paused, cancelled or failed job.
func (r *Runner) JobResume(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	svc, err := r.service(!cmd.Bool("no-queue"))
	if err != nil {
		return err
	}
	if err := svc.Resume(ctx, id); err != nil {
		return err
	}
	return r.writePlain("%s Resumed %s\n", palette.OK("▶"), id)
}

// JobRetryFailed resets failed albums and re-queues the job.
func (r *Runner) JobRetryFailed(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	svc, err := r.service(!cmd.Bool("no-queue"))
	if err != nil {
		return err
	}
	n, err := svc.RetryFailed(ctx, id)
	if err != nil {
		return err
	}
	return r.writePlain("%s Retrying %d album(s) of %s\n", palette.OK("↻"), n, id)
}

// JobReport renders the per-item outcome of a job to stdout or a file.
func (r *Runner) JobReport(ctx context.Context, cmd *cli.Command) error {
	id, err := jobID(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	svc, err := r.service(false)
	if err != nil {
		return err
	}

	report, err := svc.Report(ctx, id)
	if err != nil {
		return err
	}

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteReport(report, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("report written", "path", written)
		return r.writePlain("%s Report saved to %s\n", palette.OK("✓"), written)
	}

	data, err := formatter.Render(report, format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// jobOptions reads per-job options, falling back to the configured defaults for unset flags.
func (r *Runner) jobOptions(cmd *cli.Command) models.Options {
	d := r.config.Pipeline.Defaults
	opts := models.Options{
		CreateAlbum:         d.CreateAlbum,
		SkipDuplicates:      d.SkipDuplicates,
		DownloadConcurrency: d.DownloadConcurrency,
		UploadConcurrency:   d.UploadConcurrency,
		PersistStaging:      d.PersistStaging,
	}
	if cmd.IsSet("create-album") {
		opts.CreateAlbum = cmd.Bool("create-album")
	}
	if cmd.IsSet("skip-duplicates") {
		opts.SkipDuplicates = cmd.Bool("skip-duplicates")
	}
	if cmd.IsSet("download-concurrency") {
		opts.DownloadConcurrency = cmd.Int("download-concurrency")
	}
	if cmd.IsSet("upload-concurrency") {
		opts.UploadConcurrency = cmd.Int("upload-concurrency")
	}
	if cmd.IsSet("persist-staging") {
		opts.PersistStaging = cmd.Bool("persist-staging")
	}
	return opts.Normalize()
}

func jobID(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return "", fmt.Errorf("%w: job id", shared.ErrMissingArgument)
	}
	return id, nil
}

// collectLinks gathers album links from positional args, --link flags and --links-file, in that order.
func collectLinks(cmd *cli.Command) ([]string, error) {
	links := append([]string{}, cmd.Args().Slice()...)
	links = append(links, cmd.StringSlice("link")...)

	if path := cmd.String("links-file"); path != "" {
		fromFile, err := readLinksFile(path)
		if err != nil {
			return nil, err
		}
		links = append(links, fromFile...)
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("%w: at least one album link", shared.ErrMissingArgument)
	}
	return links, nil
}

// readLinksFile reads one link per line, ignoring blank lines and # comments.
func readLinksFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open links file: %w", err)
	}
	defer f.Close()

	var links []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		links = append(links, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read links file: %w", err)
	}
	return links, nil
}
