package main

import (
	"context"
	"errors"
	"net/http"

	job "github.com/goliatone/go-job"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	exporthttp "github.com/goliatone/go-gridexport/adapters/http"
	exportjob "github.com/goliatone/go-gridexport/adapters/job"
	exportzap "github.com/goliatone/go-gridexport/adapters/logger/zap"
	"github.com/goliatone/go-gridexport/cmd/gridexport/config"
	exportcmd "github.com/goliatone/go-gridexport/command"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve grid exports over HTTP",
		Long: `Loads the YAML grids in GRIDEXPORT_GRID_DIR and serves them under
GRIDEXPORT_BASE_PATH. Saved workbooks go to GRIDEXPORT_ARTIFACT_DIR and the
export history to the GRIDEXPORT_DATABASE sqlite file. Exports posted to
<base>/<grid>/jobs render on GRIDEXPORT_JOB_WORKERS background workers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(nil)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), cfg)
		},
	}
}

func (a *app) serve(ctx context.Context, cfg config.Config) error {
	rt, err := openRuntime(ctx, cfg, a.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, queue := newServer(cfg, rt, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.Run(gctx)
	})
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", srv.Addr), zap.String("base_path", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newServer builds the HTTP server and the job queue behind its jobs routes.
// The caller runs the queue.
func newServer(cfg config.Config, rt *runtime, logger *zap.Logger) (*http.Server, *exportjob.Queue) {
	jobLogger := exportzap.New(logger).Named("jobs")
	cancels := exportjob.NewCancelRegistry()
	task := exportjob.NewGenerateTask(exportjob.TaskConfig{
		CancelRegistry: cancels,
		Store:          rt.runner.Store,
		Logger:         jobLogger,
		Dispatch:       exportcmd.NewGenerateGridExportHandler(rt.runner).Execute,
		RetryPolicy: exportjob.RetryPolicy{
			MaxRetries: cfg.Jobs.MaxRetries,
			Backoff: job.BackoffConfig{
				Strategy: job.BackoffExponential,
				Interval: cfg.Jobs.RetryBackoff,
				Jitter:   true,
			},
		},
	})
	queue := exportjob.NewQueue(task, cfg.Jobs.QueueSize, cfg.Jobs.Workers, jobLogger)
	scheduler := exportjob.NewScheduler(exportjob.Config{
		Enqueuer:       queue,
		Grids:          rt.runner.Grids,
		CancelRegistry: cancels,
		Logger:         jobLogger,
	})

	handler := exporthttp.NewHandler(exporthttp.Config{
		Runner:         rt.runner,
		Jobs:           scheduler,
		BasePath:       cfg.Server.BasePath,
		Logger:         exportzap.New(logger).Named("http"),
		MaxBufferBytes: cfg.Export.MaxBufferBytes,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rt.db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: mux,
	}, queue
}
