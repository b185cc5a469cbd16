package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
)

// BackfillReport summarizes one repair job.
type BackfillReport struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
}

// Backfiller repairs stored killmails by refetching their detail.
type Backfiller struct {
	details DetailSource
	norm    Normalizer
	store   Store
	log     logger.Logger
	sleep   Sleeper
	delay   time.Duration
}

// NewBackfiller creates a Backfiller that pauses 1s between killmails.
func NewBackfiller(details DetailSource, norm Normalizer, store Store, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		details: details,
		norm:    norm,
		store:   store,
		log:     logger.Nop(),
		sleep:   sleepContext,
		delay:   time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BackfillAttackers inserts attacker rows for killmails that have none.
func (b *Backfiller) BackfillAttackers(ctx context.Context) (BackfillReport, error) {
	refs, err := b.store.KillmailsWithoutAttackers(ctx)
	if err != nil {
		return BackfillReport{}, fmt.Errorf("ingest: list killmails without attackers: %w", err)
	}
	log := b.log.With(logger.String("job", "attackers"))
	return b.each(ctx, log, refs, func(ctx context.Context, ref model.KillmailRef, d model.Detail) (bool, error) {
		attackers, err := b.norm.Attackers(ctx, ref.KillmailID, d)
		if err != nil {
			return false, err
		}
		return insertAttackers(ctx, b.store, log, attackers) > 0, nil
	})
}

// BackfillCorporations fills the victim corporation where it is missing.
func (b *Backfiller) BackfillCorporations(ctx context.Context) (BackfillReport, error) {
	refs, err := b.store.KillmailsWithoutCorporation(ctx)
	if err != nil {
		return BackfillReport{}, fmt.Errorf("ingest: list killmails without corporation: %w", err)
	}
	log := b.log.With(logger.String("job", "corporations"))
	return b.each(ctx, log, refs, func(ctx context.Context, ref model.KillmailRef, d model.Detail) (bool, error) {
		corpID, err := b.norm.VictimCorporation(ctx, d)
		if err != nil {
			return false, err
		}
		if err := b.store.SetVictimCorporation(ctx, ref.KillmailID, corpID); err != nil {
			return false, err
		}
		return true, nil
	})
}

type repairFunc func(ctx context.Context, ref model.KillmailRef, d model.Detail) (bool, error)

func (b *Backfiller) each(ctx context.Context, log logger.Logger, refs []model.KillmailRef, fix repairFunc) (BackfillReport, error) {
	rep := BackfillReport{Candidates: len(refs)}
	log.Info(ctx, "backfill started", logger.Int("candidates", rep.Candidates))

	for i, ref := range refs {
		if i > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				return rep, err
			}
		}
		detail, err := b.details.Killmail(ctx, ref.KillmailID, ref.Hash)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Skipped++
			log.Warn(ctx, "detail unavailable", logger.Int64("killmail_id", ref.KillmailID), logger.Error(err))
			continue
		}
		ok, err := fix(ctx, ref, detail)
		if err != nil {
			rep.Skipped++
			log.Warn(ctx, "repair failed", logger.Int64("killmail_id", ref.KillmailID), logger.Error(err))
			continue
		}
		if ok {
			rep.Updated++
		} else {
			rep.Skipped++
		}
	}

	log.Info(ctx, "backfill finished",
		logger.Int("updated", rep.Updated),
		logger.Int("skipped", rep.Skipped))
	return rep, nil
}
