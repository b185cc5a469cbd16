// Package normalize turns a feed entry plus its ESI detail into store rows,
// resolving and upserting every referenced entity on the way.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/pkg/logger"
)

// ErrInvalidDetail marks a detail payload that cannot be normalized.
var ErrInvalidDetail = errors.New("normalize: invalid killmail detail")

// Names resolves entity ids to display names. Implementations never fail;
// unresolvable ids yield model.Unknown.
type Names interface {
	Character(ctx context.Context, id int64) string
	Corporation(ctx context.Context, id int64) string
	System(ctx context.Context, id int64) string
	// ShipType returns the hull name of a type id (e.g. "Ishtar").
	ShipType(ctx context.Context, id int64) string
	// ShipGroupName returns the group of a type id (e.g. "Heavy Assault Cruiser").
	ShipGroupName(ctx context.Context, typeID int64) string
}

// ReferenceStore creates reference rows on demand.
type ReferenceStore interface {
	UpsertSystem(ctx context.Context, name string) (int64, error)
	UpsertShipType(ctx context.Context, name string) (int64, error)
	UpsertShip(ctx context.Context, name string, shipTypeID int64) (int64, error)
	UpsertPilot(ctx context.Context, name string) (int64, error)
	UpsertCorporation(ctx context.Context, name string) (int64, error)
}

// Normalizer builds killmail and attacker rows.
type Normalizer struct {
	names Names
	store ReferenceStore
	log   logger.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}

// New creates a Normalizer.
func New(names Names, store ReferenceStore, opts ...Option) *Normalizer {
	n := &Normalizer{names: names, store: store, log: logger.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the killmail row and its attacker rows. Identity, hash
// and value come from the feed entry; everything else from the detail.
func (n *Normalizer) Normalize(ctx context.Context, entry model.FeedEntry, detail model.Detail, tracked string) (model.Killmail, []model.Attacker, error) {
	ts, err := detail.Time()
	if err != nil {
		return model.Killmail{}, nil, fmt.Errorf("%w: %v", ErrInvalidDetail, err)
	}
	id := int64(entry.KillmailID)
	if id == 0 {
		id = int64(detail.KillmailID)
	}
	if id == 0 || strings.TrimSpace(entry.ZKB.Hash) == "" {
		return model.Killmail{}, nil, fmt.Errorf("%w: missing killmail id or hash", ErrInvalidDetail)
	}

	km := model.Killmail{
		KillmailID: id,
		Hash:       strings.TrimSpace(entry.ZKB.Hash),
		Time:       ts,
		Value:      entry.ZKB.TotalValue,
		Kind:       Classify(detail.Victim.CorporationID, tracked),
	}

	victim := detail.Victim
	if km.SystemID, err = n.store.UpsertSystem(ctx, n.names.System(ctx, int64(detail.SolarSystemID))); err != nil {
		return model.Killmail{}, nil, err
	}
	shipTypeID, err := n.store.UpsertShipType(ctx, n.names.ShipGroupName(ctx, int64(victim.ShipTypeID)))
	if err != nil {
		return model.Killmail{}, nil, err
	}
	if km.ShipID, err = n.store.UpsertShip(ctx, n.names.ShipType(ctx, int64(victim.ShipTypeID)), shipTypeID); err != nil {
		return model.Killmail{}, nil, err
	}
	if km.PilotID, err = n.store.UpsertPilot(ctx, n.names.Character(ctx, int64(victim.CharacterID))); err != nil {
		return model.Killmail{}, nil, err
	}
	if km.VictimCorporationID, err = n.VictimCorporation(ctx, detail); err != nil {
		return model.Killmail{}, nil, err
	}

	attackers, err := n.Attackers(ctx, id, detail)
	if err != nil {
		return model.Killmail{}, nil, err
	}
	return km, attackers, nil
}

// VictimCorporation upserts the victim's corporation and returns its id.
func (n *Normalizer) VictimCorporation(ctx context.Context, detail model.Detail) (int64, error) {
	return n.store.UpsertCorporation(ctx, n.names.Corporation(ctx, int64(detail.Victim.CorporationID)))
}

// Attackers builds one row per attacker in ESI order. Attackers without a
// character get no pilot row and the Unknown name; final_blow and
// damage_done are copied as reported.
func (n *Normalizer) Attackers(ctx context.Context, killmailID int64, detail model.Detail) ([]model.Attacker, error) {
	out := make([]model.Attacker, 0, len(detail.Attackers))
	for i, a := range detail.Attackers {
		row := model.Attacker{
			KillmailID: killmailID,
			Index:      i,
			PilotName:  model.Unknown,
			FinalBlow:  a.FinalBlow,
			DamageDone: a.DamageDone,
		}
		if a.CharacterID != 0 {
			row.PilotName = n.names.Character(ctx, int64(a.CharacterID))
			pid, err := n.store.UpsertPilot(ctx, row.PilotName)
			if err != nil {
				return nil, err
			}
			row.PilotID = pid
		}
		cid, err := n.store.UpsertCorporation(ctx, n.names.Corporation(ctx, int64(a.CorporationID)))
		if err != nil {
			return nil, err
		}
		row.CorporationID = cid
		out = append(out, row)
	}
	return out, nil
}

// Classify returns LOSS when the victim belongs to the tracked corporation.
// The tracked id is configuration text and compares by numeric value, so
// " 98730717" and "098730717" both match.
func Classify(victimCorporation model.ID, tracked string) model.Kind {
	tracked = strings.TrimSpace(tracked)
	if tracked == "" || victimCorporation == 0 {
		return model.KindKill
	}
	n, err := strconv.ParseInt(tracked, 10, 64)
	if err != nil || n != int64(victimCorporation) {
		return model.KindKill
	}
	return model.KindLoss
}
