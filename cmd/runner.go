package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/immport/internal/dedupe"
	"github.com/desertthunder/immport/internal/metrics"
	"github.com/desertthunder/immport/internal/queue"
	"github.com/desertthunder/immport/internal/repositories"
	"github.com/desertthunder/immport/internal/retry"
	"github.com/desertthunder/immport/internal/secrets"
	"github.com/desertthunder/immport/internal/services"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/desertthunder/immport/internal/staging"
	"github.com/desertthunder/immport/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config       *shared.Config
	configPath   string
	sourceClient *http.Client
	targetClient *http.Client
	logger       *log.Logger
	output       io.Writer
	queue        tasks.Enqueuer
	target       services.TargetFactory
	collector    services.SourceCollector
	fetcher      services.Fetcher
	metrics      *metrics.Metrics

	db     *sql.DB
	jobs   *repositories.JobRepository
	albums *repositories.AlbumRepository
	items  *repositories.ItemRepository
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Queue, Target, Collector and Fetcher replace the networked defaults built from Config.
// HTTPClient, when set, serves both the source and the target.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Queue      tasks.Enqueuer
	Target     services.TargetFactory
	Collector  services.SourceCollector
	Fetcher    services.Fetcher
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	sourceClient, targetClient := opts.HTTPClient, opts.HTTPClient
	if opts.HTTPClient == nil {
		sourceClient = services.NewTransferClient(opts.Config.Source.Timeout.Duration)
		targetClient = services.NewTransferClient(opts.Config.Target.Timeout.Duration)
	}

	return &Runner{
		config:       opts.Config,
		configPath:   opts.ConfigPath,
		sourceClient: sourceClient,
		targetClient: targetClient,
		logger:       opts.Logger,
		output:       opts.Output,
		queue:        opts.Queue,
		target:       opts.Target,
		collector:    opts.Collector,
		fetcher:      opts.Fetcher,
		metrics:      metrics.New(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, jobCommand, runCommand, workerCommand, targetCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig replaces the runner's config with the file at path when it exists.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if path == "" {
		return ctx, nil
	}
	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return ctx, nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	r.configPath = path
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.LogLevel))
	return ctx, nil
}

// open connects to the database, applies pending migrations and builds the repositories once.
func (r *Runner) open() error {
	if r.db != nil {
		return nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	r.jobs = repositories.NewJobRepository(db)
	r.albums = repositories.NewAlbumRepository(db)
	r.items = repositories.NewItemRepository(db)
	return nil
}

// Close releases the database and queue connections.
func (r *Runner) Close() error {
	var errs []error
	if c, ok := r.queue.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	return errors.Join(errs...)
}

// box returns the credential cipher, or nil when no secret key is configured.
func (r *Runner) box() (*secrets.Box, error) {
	key, err := r.config.SecretKey()
	if errors.Is(err, shared.ErrMissingCipherKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return secrets.NewBox(key), nil
}

// service builds the job service. With enqueue set, new and re-queued jobs go to the work queue.
func (r *Runner) service(enqueue bool) (*tasks.Service, error) {
	if err := r.open(); err != nil {
		return nil, err
	}
	box, err := r.box()
	if err != nil {
		return nil, err
	}

	var q tasks.Enqueuer
	if enqueue {
		if r.queue == nil {
			r.queue = queue.NewClient(r.config)
		}
		q = r.queue
	}
	svc := tasks.NewService(r.jobs, r.albums, r.items, box, q, r.logger)
	return svc.WithStaleAfter(r.config.Queue.StaleAfter.Duration), nil
}

// orchestrator wires the pipeline over the configured target, source and staging area.
func (r *Runner) orchestrator(ctx context.Context) (*tasks.Orchestrator, error) {
	if err := r.open(); err != nil {
		return nil, err
	}
	box, err := r.box()
	if err != nil {
		return nil, err
	}
	if box == nil {
		return nil, shared.ErrMissingCipherKey
	}

	cfg := r.config.Pipeline

	var archive staging.Archive
	if r.config.Archive.Enabled() {
		s3, err := staging.NewS3Archive(ctx, r.config.Archive)
		if err != nil {
			return nil, err
		}
		archive = s3
	}

	fetcher := r.fetcher
	if fetcher == nil {
		fetcher = services.NewHTTPFetcher(r.sourceClient, cfg.DownloadRate, r.config.Source.UserAgent)
	}
	collector := r.collector
	if collector == nil {
		collector = services.NewHTMLCollector(fetcher).WithPageTimeout(r.config.Source.Timeout.Duration)
	}
	target := r.target
	if target == nil {
		target = services.NewImmichTarget(r.targetClient)
	}

	policy := retry.Default()
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryMinDelay.Duration > 0 {
		policy.MinDelay = cfg.RetryMinDelay.Duration
	}
	if cfg.RetryMaxDelay.Duration > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay.Duration
	}

	return tasks.NewOrchestrator(tasks.Deps{
		Jobs:      r.jobs,
		Albums:    r.albums,
		Items:     r.items,
		Target:    target,
		Collector: collector,
		Fetcher:   fetcher,
		Staging:   staging.NewArea(cfg.StagingDir, archive),
		Hasher:    dedupe.NewHasher(cfg.HashChunkSize),
		Box:       box,
		Metrics:   r.metrics,
		Logger:    r.logger,
		Retry:     policy,
	}), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", palette.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}
