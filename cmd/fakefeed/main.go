// Command fakefeed serves a generated killmail feed with the aggregator
// and ESI endpoints killsync reads, for local runs without the real APIs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/killsync/internal/fakeapi"
	"github.com/okian/killsync/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	cfg := fakeapi.DefaultConfig()
	var addr string
	cmd := &cobra.Command{
		Use:          "fakefeed",
		Short:        "Serve a generated killmail feed",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logger.Get().Named("fakefeed")
			feed := fakeapi.Generate(cfg)
			up := fakeapi.NewServer(feed)
			srv := &http.Server{Addr: addr, Handler: up.Handler(), ReadHeaderTimeout: 5 * time.Second}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info(ctx, "serving fake feed",
				logger.String("addr", addr),
				logger.Int("killmails", len(feed.Entries)),
				logger.Int("losses", feed.Losses()),
				logger.Int64("corporation_id", cfg.CorporationID))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info(ctx, "fake feed stopped",
				logger.Int64("requests", up.Requests()),
				logger.Int64("rate_limited", up.RateLimited()))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", ":9090", "listen address")
	f.Int64Var(&cfg.CorporationID, "corporation-id", cfg.CorporationID, "tracked corporation id")
	f.IntVar(&cfg.Killmails, "killmails", cfg.Killmails, "feed length")
	f.IntVar(&cfg.PageSize, "page-size", cfg.PageSize, "entries per page")
	f.DurationVar(&cfg.Spacing, "spacing", cfg.Spacing, "time between consecutive killmails")
	f.IntVar(&cfg.LossEvery, "loss-every", cfg.LossEvery, "make every Nth killmail a loss (0 disables)")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "generator seed")
	f.IntVar(&cfg.RateLimitEvery, "rate-limit-every", cfg.RateLimitEvery, "answer every Nth request with 429 (0 disables)")
	f.IntVar(&cfg.RetryAfter, "retry-after", cfg.RetryAfter, "Retry-After seconds on 429")
	return cmd
}
