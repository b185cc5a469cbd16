package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/killsync/internal/adapters/http/api"
	"github.com/okian/killsync/internal/adapters/http/swagger"
	"github.com/okian/killsync/internal/adapters/mq/queue"
	service "github.com/okian/killsync/internal/app"
	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCmd(c *cli) *cobra.Command {
	var syncOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and run queued ingestion jobs",
		Long: `Serve the report API. Sync and backfill jobs posted to the API run one at
a time on a background worker. With sync_interval set, a sync job is also
queued on that schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ln, err := net.Listen("tcp", c.cfg.Addr)
			if err != nil {
				return err
			}
			return c.serve(cmd.Context(), ln, syncOnStart)
		},
	}
	cmd.Flags().BoolVar(&syncOnStart, "sync-on-start", false, "queue a sync job as soon as the server is up")
	return cmd
}

// serve runs the HTTP server and the sync scheduler until ctx ends.
func (c *cli) serve(ctx context.Context, ln net.Listener, syncOnStart bool) error {
	return c.started(ctx, func(svc *service.Service) error {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		swagger.Register(r)
		api.NewServer(svc, svc.Reports(), api.WithLogger(c.log)).Register(r)

		srv := &http.Server{
			Handler:           r,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			c.log.Info(gctx, "starting HTTP server", logger.String("addr", ln.Addr().String()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			c.log.Info(gctx, "shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			c.schedule(gctx, svc, syncOnStart)
			return nil
		})

		err := g.Wait()
		c.log.Info(ctx, "server stopped")
		return err
	})
}

// schedule queues a sync job every SyncInterval until ctx ends. A job that
// is still waiting from the previous tick is not queued twice.
func (c *cli) schedule(ctx context.Context, svc *service.Service, now bool) {
	submit := func() {
		job, err := svc.Submit(ctx, model.JobSync, 0)
		switch {
		case err == nil:
			c.log.Debug(ctx, "scheduled sync queued", logger.String("job_id", job.ID))
		case errors.Is(err, queue.ErrPending):
			c.log.Debug(ctx, "scheduled sync already waiting")
		case ctx.Err() == nil:
			c.log.Warn(ctx, "scheduled sync not queued", logger.Error(err))
		}
	}
	if now {
		submit()
	}
	if c.cfg.SyncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			submit()
		}
	}
}
