// Package service wires the fetchers, resolver, normalizer, paginator and
// store into one process-wide ingestion service.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/killsync/internal/adapters/esi"
	"github.com/okian/killsync/internal/adapters/fetch"
	"github.com/okian/killsync/internal/adapters/mq/queue"
	"github.com/okian/killsync/internal/adapters/mq/worker"
	"github.com/okian/killsync/internal/adapters/repository"
	"github.com/okian/killsync/internal/adapters/zkb"
	"github.com/okian/killsync/internal/config"
	"github.com/okian/killsync/internal/domain/ingest"
	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/internal/domain/namecache"
	"github.com/okian/killsync/internal/domain/normalize"
	"github.com/okian/killsync/pkg/logger"
	"github.com/okian/killsync/pkg/metrics"
)

const workerShutdownTimeout = 5 * time.Second

// Service owns the database handle and the ingestion components.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store      *repository.SQLStore
	reports    *repository.Reports
	cache      namecache.Cache
	details    *esi.Client
	pages      *zkb.Client
	normalizer *normalize.Normalizer
	backfiller *ingest.Backfiller
	pagerOpts  []ingest.PaginatorOption
	jobs       *queue.InMemoryQueue
	worker     *worker.Worker
	stopWorker context.CancelFunc

	// Configuration
	httpClient    *http.Client
	sleep         func(ctx context.Context, d time.Duration) error
	queueCapacity int
	newID         func() string

	// State
	started   bool
	startedAt time.Time
	running   atomic.Bool
	lastRun   atomic.Pointer[ingest.Report]

	logger logger.Logger
}

// New constructs a Service for cfg. Nothing is opened until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:           cfg,
		queueCapacity: 8,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return s
}

// Start opens the store, applies the schema and starts the job worker.
// A store failure is the only fatal startup error.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting killsync service...")

	cutoff, err := s.cfg.Cutoff()
	if err != nil {
		return err
	}

	if s.store == nil {
		store, err := repository.Open(ctx, s.cfg.DBDriver, s.cfg.DataSource(),
			repository.WithLogger(s.logger.Named("store")))
		if err != nil {
			metrics.RecordErrorByComponent("service", "store_open")
			return fmt.Errorf("service: open store: %w", err)
		}
		s.store = store
	}
	s.reports = repository.NewReports(s.store)

	s.wire(cutoff)

	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueCapacity))
	s.worker = worker.NewWorker(s.jobs, s, worker.WithName("jobs"), worker.WithLogger(s.logger))
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWorker = cancel
	go s.worker.Run(workerCtx)

	s.started = true
	s.startedAt = time.Now().UTC()
	s.logger.Info(ctx, "killsync service started",
		logger.String("driver", s.store.Driver()),
		logger.String("corporation_id", s.cfg.CorporationID),
		logger.Int("resolve_cache_size", s.cfg.ResolveCacheSize),
	)
	return nil
}

// wire builds the upstream clients and the ingestion components.
func (s *Service) wire(cutoff time.Time) {
	fetchOpts := func(upstream string) []fetch.Option {
		opts := []fetch.Option{
			fetch.WithHTTPClient(s.httpClient),
			fetch.WithUserAgent(s.cfg.UserAgent),
			fetch.WithLogger(s.logger.Named("fetch")),
			fetch.WithUpstream(upstream),
			fetch.WithMaxAttempts(s.cfg.FetchMaxAttempts),
			fetch.WithBackoffStep(s.cfg.FetchBackoffStep),
			fetch.WithRetryAfter(s.cfg.RetryAfterDefault, s.cfg.RetryAfterMax),
			fetch.WithErrorLimit(s.cfg.ErrorLimitThreshold, s.cfg.ErrorLimitMaxWait),
		}
		if s.sleep != nil {
			opts = append(opts, fetch.WithSleeper(fetch.Sleeper(s.sleep)))
		}
		return opts
	}

	s.details = esi.NewClient(fetch.New(fetchOpts("esi")...),
		esi.WithBaseURL(s.cfg.ESIBaseURL), esi.WithLogger(s.logger.Named("esi")))
	s.pages = zkb.NewClient(fetch.New(fetchOpts("zkb")...), zkb.WithBaseURL(s.cfg.ZKBBaseURL))

	resolverOpts := []esi.ResolverOption{esi.WithResolverLogger(s.logger.Named("resolver"))}
	if s.cfg.ResolveCacheSize > 0 {
		s.cache = namecache.NewInMemory(namecache.WithMaxSize(s.cfg.ResolveCacheSize))
		resolverOpts = append(resolverOpts, esi.WithCache(s.cache))
	}
	names := esi.NewResolver(s.details, resolverOpts...)
	s.normalizer = normalize.New(names, s.store, normalize.WithLogger(s.logger.Named("normalize")))

	s.pagerOpts = []ingest.PaginatorOption{
		ingest.WithLogger(s.logger.Named("sync")),
		ingest.WithCutoff(cutoff),
		ingest.WithMaxPages(s.cfg.MaxPages),
		ingest.WithEventDelay(s.cfg.EventDelay),
		ingest.WithPageDelay(s.cfg.PageDelay, s.cfg.PageJitter),
		ingest.WithKnownStop(s.cfg.KnownStopCount),
	}
	backfillOpts := []ingest.BackfillOption{
		ingest.WithBackfillLogger(s.logger.Named("backfill")),
		ingest.WithBackfillDelay(s.cfg.EventDelay),
	}
	if s.sleep != nil {
		s.pagerOpts = append(s.pagerOpts, ingest.WithSleeper(ingest.Sleeper(s.sleep)))
		backfillOpts = append(backfillOpts, ingest.WithBackfillSleeper(ingest.Sleeper(s.sleep)))
	}
	s.backfiller = ingest.NewBackfiller(s.details, s.normalizer, s.store, backfillOpts...)
}

// Stop shuts the worker down and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	store, jobs, w, stopWorker := s.store, s.jobs, s.worker, s.stopWorker
	s.store, s.reports = nil, nil
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping killsync service...")

	_ = jobs.Close()
	stopWorker()
	shutdownCtx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
	defer cancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "worker did not stop in time", logger.Error(err))
	}

	if err := store.Close(); err != nil {
		s.logger.Warn(ctx, "close store", logger.Error(err))
	}
	s.logger.Info(ctx, "killsync service stopped")
}

// jobParts is the component set one ingestion job runs against, read
// under the lock.
type jobParts struct {
	store      *repository.SQLStore
	pages      *zkb.Client
	details    *esi.Client
	normalizer *normalize.Normalizer
	backfiller *ingest.Backfiller
	pagerOpts  []ingest.PaginatorOption
}

// acquire marks an ingestion job as running and returns its components.
func (s *Service) acquire() (jobParts, func(), error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return jobParts{}, nil, ErrNotStarted
	}
	if !s.running.CompareAndSwap(false, true) {
		return jobParts{}, nil, ErrSyncInProgress
	}
	metrics.SetJobInProgress(true)
	parts := jobParts{
		store:      s.store,
		pages:      s.pages,
		details:    s.details,
		normalizer: s.normalizer,
		backfiller: s.backfiller,
		pagerOpts:  s.pagerOpts,
	}
	return parts, func() {
		metrics.SetJobInProgress(false)
		s.running.Store(false)
	}, nil
}

// Sync runs one synchronization of the tracked corporation. maxPages > 0
// overrides the configured page cap.
func (s *Service) Sync(ctx context.Context, maxPages int) (ingest.Report, error) {
	parts, release, err := s.acquire()
	if err != nil {
		return ingest.Report{}, err
	}
	defer release()

	opts := parts.pagerOpts
	if maxPages > 0 {
		opts = append(append([]ingest.PaginatorOption(nil), opts...), ingest.WithMaxPages(maxPages))
	}
	p := ingest.NewPaginator(parts.pages, parts.details, parts.normalizer, parts.store, opts...)
	rep, err := p.Synchronize(ctx, s.cfg.CorporationID)
	if err != nil {
		metrics.RecordErrorByComponent("service", "sync")
		return rep, err
	}
	s.lastRun.Store(&rep)
	return rep, nil
}

// BackfillAttackers inserts attacker rows for killmails that have none.
func (s *Service) BackfillAttackers(ctx context.Context) (ingest.BackfillReport, error) {
	parts, release, err := s.acquire()
	if err != nil {
		return ingest.BackfillReport{}, err
	}
	defer release()
	return parts.backfiller.BackfillAttackers(ctx)
}

// BackfillCorporations fills missing victim corporations.
func (s *Service) BackfillCorporations(ctx context.Context) (ingest.BackfillReport, error) {
	parts, release, err := s.acquire()
	if err != nil {
		return ingest.BackfillReport{}, err
	}
	defer release()
	return parts.backfiller.BackfillCorporations(ctx)
}

// Submit queues a job for the background worker.
func (s *Service) Submit(ctx context.Context, kind model.JobKind, maxPages int) (model.Job, error) {
	if !kind.Valid() {
		return model.Job{}, fmt.Errorf("%w: %q", ErrUnknownJob, kind)
	}
	s.mu.RLock()
	jobs := s.jobs
	started := s.started
	s.mu.RUnlock()
	if !started {
		return model.Job{}, ErrNotStarted
	}

	job := model.Job{ID: s.newID(), Kind: kind, RequestedAt: time.Now().UTC(), MaxPages: maxPages}
	if err := jobs.Enqueue(ctx, job); err != nil {
		return model.Job{}, err
	}
	s.logger.Info(ctx, "job queued", logger.String("job_id", job.ID), logger.String("kind", string(kind)))
	return job, nil
}

// RunJob executes a queued job. It implements worker.Runner.
func (s *Service) RunJob(ctx context.Context, job model.Job) error {
	var err error
	switch job.Kind {
	case model.JobSync:
		_, err = s.Sync(ctx, job.MaxPages)
	case model.JobBackfillAttackers:
		_, err = s.BackfillAttackers(ctx)
	case model.JobBackfillCorporations:
		_, err = s.BackfillCorporations(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Kind)
	}
	if errors.Is(err, ErrSyncInProgress) {
		return fmt.Errorf("%w: %w", worker.ErrSkipped, err)
	}
	return err
}

// Reports returns the read-side queries, or nil before Start.
func (s *Service) Reports() *repository.Reports {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reports
}

// LastSyncRun returns the most recent recorded run.
func (s *Service) LastSyncRun(ctx context.Context) (model.SyncRun, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return model.SyncRun{}, ErrNotStarted
	}
	return store.LastSyncRun(ctx)
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return ErrNotStarted
	}
	return store.Ping(ctx)
}

// CorporationName is the default corporation filter for reports.
func (s *Service) CorporationName() string { return s.cfg.CorporationName }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"corporation_id": s.cfg.CorporationID,
		"job_running":    s.running.Load(),
	}
	if !s.started {
		return stats
	}

	stats["started_at"] = s.startedAt
	stats["driver"] = s.store.Driver()
	stats["queue_length"] = s.jobs.Len(ctx)
	if s.cache != nil {
		stats["resolve_cache_size"] = s.cache.Size()
	}
	if last := s.lastRun.Load(); last != nil {
		stats["last_sync"] = map[string]any{
			"run_id":      last.RunID,
			"mode":        last.Mode,
			"stop_reason": last.StopReason,
			"stored":      last.Stored,
			"finished_at": last.FinishedAt,
		}
	}
	if totals, err := s.reports.Totals(ctx); err == nil {
		stats["killmails"] = totals.Killmails
		stats["kills"] = totals.Kills
		stats["losses"] = totals.Losses
		stats["attackers"] = totals.Attackers
	} else {
		s.logger.Warn(ctx, "stats totals", logger.Error(err))
	}
	return stats
}
