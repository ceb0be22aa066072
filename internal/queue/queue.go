package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/desertthunder/immport/internal/tasks"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskTypeImport is the asynq task type for one import job.
const TaskTypeImport = "import:job"

// DefaultQueue is used when the config names no queue.
const DefaultQueue = "import"

// DefaultTimeout bounds one import task when the config sets no timeout.
const DefaultTimeout = 24 * time.Hour

// Payload is the body of an import task.
type Payload struct {
	JobID string `json:"jobId"`
}

// NewImportTask builds the task for jobID.
func NewImportTask(jobID string) (*asynq.Task, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", shared.ErrInvalidArgument)
	}
	data, err := json.Marshal(Payload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeImport, data), nil
}

func redisOpt(cfg shared.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

func queueName(cfg shared.QueueConfig) string {
	if cfg.Name == "" {
		return DefaultQueue
	}
	return cfg.Name
}

// Client enqueues import tasks. It satisfies [tasks.Enqueuer].
type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
}

// NewClient connects a Client to the broker in cfg.Redis.
func NewClient(cfg *shared.Config) *Client {
	return &Client{
		client:   asynq.NewClient(redisOpt(cfg.Redis)),
		queue:    queueName(cfg.Queue),
		maxRetry: cfg.Queue.MaxRetry,
		timeout:  taskTimeout(cfg.Queue),
	}
}

func taskTimeout(cfg shared.QueueConfig) time.Duration {
	if cfg.Timeout.Duration <= 0 {
		return DefaultTimeout
	}
	return cfg.Timeout.Duration
}

// EnqueueImport pushes the job onto the import queue.
func (c *Client) EnqueueImport(ctx context.Context, jobID string) error {
	task, err := NewImportTask(jobID)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	)
	if err != nil {
		return shared.E(shared.KindNetworkTransient, "queue.EnqueueImport", fmt.Errorf("failed to enqueue task: %w", err))
	}

	log.Debug("import task enqueued", "job", jobID, "task", info.ID, "queue", info.Queue)
	return nil
}

// Close releases the broker connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Runner executes one job to completion.
type Runner interface {
	Run(ctx context.Context, jobID string, progress chan<- tasks.ProgressUpdate) (*models.Job, error)
}

// Handler processes import tasks on the worker.
type Handler struct {
	runner Runner
	log    *log.Logger
}

// NewHandler creates a Handler running jobs through runner.
func NewHandler(runner Runner, logger *log.Logger) *Handler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Handler{runner: runner, log: logger}
}

// ProcessTask implements [asynq.Handler].
//
// Job-level failures are already recorded on the job, so only an unpersisted outcome or an
// interrupted run is returned to asynq for redelivery. A malformed payload is never retried.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.JobID == "" {
		return fmt.Errorf("payload has no job id: %w", asynq.SkipRetry)
	}

	logger := shared.WithLogger(h.log, "job", p.JobID)
	logger.Info("processing import task")

	job, err := h.runner.Run(ctx, p.JobID, nil)
	if err != nil {
		logger.Error("import run interrupted", "error", err)
		return err
	}
	if job != nil {
		logger.Info("import task finished", "status", job.Status)
	}
	return nil
}

// NewServer builds the asynq worker server for cfg.
func NewServer(cfg *shared.Config, logger *log.Logger) *asynq.Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return asynq.NewServer(redisOpt(cfg.Redis), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName(cfg.Queue): 1},
		LogLevel:    asynqLevel(shared.ParseLogLevel(cfg.LogLevel)),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", "type", task.Type(), "error", err)
		}),
	})
}

// NewMux routes import tasks to h.
func NewMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeImport, h.ProcessTask)
	return mux
}

// Ping checks that the broker answers.
func Ping(ctx context.Context, cfg shared.RedisConfig) error {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return shared.E(shared.KindNetworkTransient, "queue.Ping", errors.Join(shared.ErrServiceUnavailable, err))
	}
	return nil
}

func asynqLevel(l log.Level) asynq.LogLevel {
	switch {
	case l <= log.DebugLevel:
		return asynq.DebugLevel
	case l <= log.InfoLevel:
		return asynq.InfoLevel
	case l <= log.WarnLevel:
		return asynq.WarnLevel
	default:
		return asynq.ErrorLevel
	}
}
