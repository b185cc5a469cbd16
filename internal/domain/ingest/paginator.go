package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
	"github.com/okian/killsync/pkg/metrics"
)

// Mode is chosen once at the start of a run.
type Mode string

// Run modes.
const (
	// ModeHistorical backfills until the cutoff date; known events never stop it.
	ModeHistorical Mode = "historical"
	// ModeIncremental catches up with the newest stored event.
	ModeIncremental Mode = "incremental"
)

// StopReason records why a run ended.
type StopReason string

// Stop reasons.
const (
	StopCutoffReached StopReason = "cutoff_reached"
	StopKnownStreak   StopReason = "known_streak"
	StopCaughtUp      StopReason = "caught_up"
	StopNoNewOnPage   StopReason = "no_new_on_page"
	StopEmptyPage     StopReason = "empty_page"
	StopPageError     StopReason = "page_error"
	StopPageCap       StopReason = "page_cap"
	StopCancelled     StopReason = "cancelled"
)

// Skip reasons used in logs and metrics.
const (
	skipStoreError   = "store_error"
	skipNoDetail     = "detail_unavailable"
	skipBadTimestamp = "bad_timestamp"
	skipNormalize    = "normalize_failed"
	skipMalformed    = "malformed_entry"
)

// DefaultCutoff is the historical backfill boundary.
var DefaultCutoff = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Report summarizes one Synchronize run.
type Report struct {
	RunID      string     `json:"run_id"`
	Mode       Mode       `json:"mode"`
	StopReason StopReason `json:"stop_reason"`
	Pages      int        `json:"pages"`
	// Stored counts newly inserted killmails.
	Stored     int       `json:"stored"`
	Known      int       `json:"known"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Paginator walks the corporation feed page by page.
type Paginator struct {
	pages   PageSource
	details DetailSource
	norm    Normalizer
	store   Store
	log     logger.Logger
	sleep   Sleeper
	now     func() time.Time
	newID   func() string

	cutoff     time.Time
	maxPages   int
	eventDelay time.Duration
	pageDelay  time.Duration
	pageJitter time.Duration
	knownStop  int
}

// NewPaginator creates a Paginator with the default pacing (1s per event,
// 2s per page) and stop rules (cutoff 2025-01-01, 5 known in a row).
func NewPaginator(pages PageSource, details DetailSource, norm Normalizer, store Store, opts ...PaginatorOption) *Paginator {
	p := &Paginator{
		pages:      pages,
		details:    details,
		norm:       norm,
		store:      store,
		log:        logger.Nop(),
		sleep:      sleepContext,
		now:        time.Now,
		newID:      uuid.NewString,
		cutoff:     DefaultCutoff,
		eventDelay: time.Second,
		pageDelay:  2 * time.Second,
		knownStop:  5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Synchronize ingests new killmails of the tracked corporation. Page and
// per-event failures end or skip quietly; only the store errors needed to
// choose the mode are returned.
func (p *Paginator) Synchronize(ctx context.Context, tracked string) (Report, error) {
	oldest, hasOldest, err := p.store.OldestKillTime(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("ingest: oldest kill time: %w", err)
	}
	newest, _, err := p.store.NewestKillTime(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("ingest: newest kill time: %w", err)
	}

	rep := Report{
		RunID:     p.newID(),
		Mode:      ModeIncremental,
		StartedAt: p.now().UTC(),
	}
	if !hasOldest || dateOnly(oldest).After(dateOnly(p.cutoff)) {
		rep.Mode = ModeHistorical
	}
	log := p.log.With(logger.String("run_id", rep.RunID), logger.String("mode", string(rep.Mode)))
	log.Info(ctx, "sync started",
		logger.String("corporation_id", tracked),
		logger.Bool("has_oldest", hasOldest),
		logger.Time("newest", newest))

	w := walk{p: p, log: log, rep: &rep, tracked: tracked, newest: newest}
	rep.StopReason = w.run(ctx)
	rep.FinishedAt = p.now().UTC()

	log.Info(ctx, "sync finished",
		logger.String("stop_reason", string(rep.StopReason)),
		logger.Int("pages", rep.Pages),
		logger.Int("stored", rep.Stored),
		logger.Int("known", rep.Known),
		logger.Int("skipped", rep.Skipped))
	metrics.RecordSyncRun(string(rep.Mode), string(rep.StopReason), rep.FinishedAt.Sub(rep.StartedAt))

	// A cancelled run still gets its audit row.
	recordCtx := context.WithoutCancel(ctx)
	if err := p.store.RecordSyncRun(recordCtx, model.SyncRun{
		ID:         rep.RunID,
		Mode:       string(rep.Mode),
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Pages:      rep.Pages,
		Stored:     rep.Stored,
		Known:      rep.Known,
		Skipped:    rep.Skipped,
		StopReason: string(rep.StopReason),
	}); err != nil {
		log.Warn(ctx, "record sync run failed", logger.Error(err))
	}
	return rep, nil
}

// walk is the state of one run.
type walk struct {
	p       *Paginator
	log     logger.Logger
	rep     *Report
	tracked string
	newest  time.Time

	knownStreak int
}

func (w *walk) run(ctx context.Context) StopReason {
	p := w.p
	for page := 1; ; page++ {
		if p.maxPages > 0 && page > p.maxPages {
			return StopPageCap
		}
		if ctx.Err() != nil {
			return StopCancelled
		}

		fp, err := p.pages.Page(ctx, w.tracked, page)
		if err != nil {
			if ctx.Err() != nil {
				return StopCancelled
			}
			w.log.Warn(ctx, "page fetch failed", logger.Int("page", page), logger.Error(err))
			return StopPageError
		}
		if fp.Empty() {
			w.log.Info(ctx, "no more entries", logger.Int("page", page))
			return StopEmptyPage
		}
		w.rep.Pages++
		metrics.RecordPageFetched(string(w.rep.Mode))
		for _, bad := range fp.Malformed {
			w.malformed(ctx, page, bad)
		}

		stored, known := 0, 0
		for _, entry := range fp.Entries {
			outcome, stop := w.event(ctx, entry)
			switch outcome {
			case outcomeStored:
				stored++
			case outcomeKnown:
				known++
			}
			if stop != "" {
				return stop
			}
		}
		w.log.Info(ctx, "page done",
			logger.Int("page", page),
			logger.Int("entries", len(fp.Entries)),
			logger.Int("malformed", len(fp.Malformed)),
			logger.Int("stored", stored),
			logger.Int("known", known))

		if w.rep.Mode == ModeIncremental && stored == 0 && known > 0 {
			return StopNoNewOnPage
		}
		delay := p.pageDelay + time.Duration(page%5)*p.pageJitter
		if err := p.sleep(ctx, delay); err != nil {
			return StopCancelled
		}
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeKnown
	outcomeStored
	outcomeDuplicate
)

// event handles one feed entry. A non-empty StopReason ends the run.
func (w *walk) event(ctx context.Context, entry model.FeedEntry) (outcome, StopReason) {
	p := w.p
	id, hash := int64(entry.KillmailID), entry.ZKB.Hash

	exists, err := p.store.KillmailExists(ctx, id, hash)
	if err != nil {
		w.skip(ctx, id, skipStoreError, err)
		return outcomeSkipped, ""
	}
	if exists {
		w.rep.Known++
		w.knownStreak++
		if w.rep.Mode == ModeIncremental && w.knownStreak >= p.knownStop {
			w.log.Info(ctx, "known streak reached", logger.Int("streak", w.knownStreak))
			return outcomeKnown, StopKnownStreak
		}
		return outcomeKnown, ""
	}
	w.knownStreak = 0

	detail, err := p.details.Killmail(ctx, id, hash)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeSkipped, StopCancelled
		}
		w.skip(ctx, id, skipNoDetail, err)
		return outcomeSkipped, ""
	}
	ts, err := detail.Time()
	if err != nil {
		w.skip(ctx, id, skipBadTimestamp, err)
		return outcomeSkipped, ""
	}

	switch w.rep.Mode {
	case ModeHistorical:
		if !dateOnly(ts).After(dateOnly(p.cutoff)) {
			w.log.Info(ctx, "cutoff reached", logger.Int64("killmail_id", id), logger.Time("kill_time", ts))
			return outcomeSkipped, StopCutoffReached
		}
	case ModeIncremental:
		if !ts.After(w.newest) {
			w.log.Info(ctx, "caught up", logger.Int64("killmail_id", id), logger.Time("kill_time", ts))
			return outcomeSkipped, StopCaughtUp
		}
	}

	result := w.persist(ctx, entry, detail)
	if err := p.sleep(ctx, p.eventDelay); err != nil {
		return result, StopCancelled
	}
	return result, ""
}

func (w *walk) persist(ctx context.Context, entry model.FeedEntry, detail model.Detail) outcome {
	p := w.p
	id := int64(entry.KillmailID)

	km, attackers, err := p.norm.Normalize(ctx, entry, detail, w.tracked)
	if err != nil {
		w.skip(ctx, id, skipNormalize, err)
		return outcomeSkipped
	}
	inserted, err := p.store.InsertKillmail(ctx, km)
	if err != nil {
		w.skip(ctx, id, skipStoreError, err)
		return outcomeSkipped
	}
	if !inserted {
		w.log.Debug(ctx, "killmail already stored", logger.Int64("killmail_id", id))
		return outcomeDuplicate
	}

	n := insertAttackers(ctx, p.store, w.log, attackers)
	w.rep.Stored++
	metrics.RecordKillmailStored(string(km.Kind))
	w.log.Info(ctx, "killmail stored",
		logger.Int64("killmail_id", id),
		logger.String("kind", string(km.Kind)),
		logger.Float64("value", km.Value),
		logger.Int("attackers", n))
	return outcomeStored
}

func (w *walk) skip(ctx context.Context, id int64, reason string, err error) {
	w.rep.Skipped++
	metrics.RecordEventSkipped(reason)
	w.log.Warn(ctx, "event skipped",
		logger.Int64("killmail_id", id),
		logger.String("reason", reason),
		logger.Error(err))
}

// malformed skips a page element that could not be decoded.
func (w *walk) malformed(ctx context.Context, page int, bad model.MalformedEntry) {
	w.rep.Skipped++
	metrics.RecordEventSkipped(skipMalformed)
	w.log.Warn(ctx, "event skipped",
		logger.String("reason", skipMalformed),
		logger.Int("page", page),
		logger.Int("index", bad.Index),
		logger.String("raw", bad.Raw),
		logger.Error(bad.Err))
}

// insertAttackers writes rows and returns how many succeeded. A failed row
// is left for the attacker backfill.
func insertAttackers(ctx context.Context, store Store, log logger.Logger, attackers []model.Attacker) int {
	n := 0
	for _, a := range attackers {
		if err := store.InsertAttacker(ctx, a); err != nil {
			log.Warn(ctx, "attacker insert failed",
				logger.Int64("killmail_id", a.KillmailID),
				logger.Int("index", a.Index),
				logger.Error(err))
			continue
		}
		n++
	}
	metrics.RecordAttackersStored(n)
	return n
}
