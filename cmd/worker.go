package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/desertthunder/immport/internal/queue"
	"github.com/urfave/cli/v3"
)

// Worker consumes import tasks until interrupted, serving Prometheus metrics alongside.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := queue.Ping(pingCtx, r.config.Redis)
	cancel()
	if err != nil {
		return err
	}

	orchestrator, err := r.orchestrator(ctx)
	if err != nil {
		return err
	}

	addr := r.config.Metrics.Addr
	if cmd.IsSet("metrics-addr") {
		addr = cmd.String("metrics-addr")
	}
	if addr != "" {
		srv := r.metricsServer(addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error("metrics listener stopped", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		r.logger.Info("serving metrics", "addr", addr)
	}

	server := queue.NewServer(r.config, r.logger)
	mux := queue.NewMux(queue.NewHandler(orchestrator, r.logger))

	if err := server.Start(mux); err != nil {
		return err
	}
	r.logger.Info("worker started", "queue", r.config.Queue.Name, "concurrency", r.config.Queue.Concurrency)

	<-ctx.Done()
	r.logger.Info("shutting down worker")
	server.Shutdown()
	return nil
}

func (r *Runner) metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
