// Package fakeapi generates a deterministic corporation killmail feed and
// serves it over the aggregator and ESI URL layouts.
package fakeapi

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/killsync/internal/domain/model"
)

const (
	firstKillmailID = 120_000_000
	npcCorporation  = 1000125
	otherCorpBase   = 2000
	otherCorps      = 8
	pilotBase       = 90_000_000
	pilots          = 40
)

type hull struct {
	typeID  int64
	name    string
	groupID int64
}

var hulls = []hull{
	{587, "Rifter", 25},
	{11379, "Hawk", 324},
	{12005, "Ishtar", 358},
	{24690, "Hurricane", 419},
	{17738, "Machariel", 27},
}

var groups = map[int64]string{
	25:  "Frigate",
	324: "Assault Frigate",
	358: "Heavy Assault Cruiser",
	419: "Combat Battlecruiser",
	27:  "Battleship",
}

var systems = map[int64]string{
	30000142: "Jita",
	30002187: "Amarr",
	30002659: "Dodixie",
	30002510: "Rens",
}

var systemIDs = []int64{30000142, 30002187, 30002659, 30002510}

// Feed is a generated corporation feed plus every name it references.
type Feed struct {
	cfg Config

	// Entries are newest first.
	Entries []model.FeedEntry
	Details map[int64]model.Detail
	// Names maps an ESI entity path ("characters", "universe/systems", ...)
	// to id -> name.
	Names map[string]map[int64]string
	// TypeGroups maps a ship type id to its group id.
	TypeGroups map[int64]int64
}

// Generate builds the feed described by cfg. The same cfg always yields the
// same feed.
func Generate(cfg Config) *Feed {
	cfg.normalize()
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(cfg.CorporationID)))

	f := &Feed{
		cfg:        cfg,
		Entries:    make([]model.FeedEntry, 0, cfg.Killmails),
		Details:    make(map[int64]model.Detail, cfg.Killmails),
		TypeGroups: make(map[int64]int64, len(hulls)),
		Names: map[string]map[int64]string{
			"characters":       {},
			"corporations":     {},
			"universe/systems": systems,
			"universe/types":   {},
			"universe/groups":  groups,
		},
	}
	f.Names["corporations"][cfg.CorporationID] = "Tracked Corporation"
	f.Names["corporations"][npcCorporation] = "CONCORD"
	for i := int64(0); i < otherCorps; i++ {
		f.Names["corporations"][otherCorpBase+i] = fmt.Sprintf("Corp %d", otherCorpBase+i)
	}
	for i := int64(0); i < pilots; i++ {
		f.Names["characters"][pilotBase+i] = fmt.Sprintf("Pilot %d", i)
	}
	for _, h := range hulls {
		f.Names["universe/types"][h.typeID] = h.name
		f.TypeGroups[h.typeID] = h.groupID
	}

	for i := 0; i < cfg.Killmails; i++ {
		id := int64(firstKillmailID + cfg.Killmails - i)
		loss := cfg.LossEvery > 0 && i%cfg.LossEvery == 0
		detail := f.detail(rng, id, i, loss)
		f.Details[id] = detail
		f.Entries = append(f.Entries, model.FeedEntry{
			KillmailID: model.ID(id),
			ZKB: model.ZKB{
				LocationID: detail.SolarSystemID,
				Hash:       fmt.Sprintf("%016x", rng.Uint64()),
				TotalValue: math.Round((1e6+rng.Float64()*5e8)/100) * 100,
				Points:     1 + rng.IntN(50),
				Solo:       len(detail.Attackers) == 1,
			},
		})
	}
	return f
}

func (f *Feed) detail(rng *rand.Rand, id int64, i int, loss bool) model.Detail {
	h := hulls[rng.IntN(len(hulls))]
	victimCorp := otherCorpBase + rng.Int64N(otherCorps)
	if loss {
		victimCorp = f.cfg.CorporationID
	}
	d := model.Detail{
		KillmailID:    model.ID(id),
		KillmailTime:  f.cfg.Newest.Add(-time.Duration(i) * f.cfg.Spacing).UTC().Format(model.KillmailTimeLayout),
		SolarSystemID: model.ID(systemIDs[rng.IntN(len(systemIDs))]),
		Victim: model.Victim{
			CharacterID:   model.ID(pilotBase + rng.Int64N(pilots)),
			CorporationID: model.ID(victimCorp),
			ShipTypeID:    model.ID(h.typeID),
			DamageTaken:   1000 + rng.Int64N(50_000),
		},
	}

	n := 1 + rng.IntN(4)
	for a := 0; a < n; a++ {
		att := model.AttackerDetail{
			CharacterID:   model.ID(pilotBase + rng.Int64N(pilots)),
			CorporationID: model.ID(otherCorpBase + rng.Int64N(otherCorps)),
			ShipTypeID:    model.ID(hulls[rng.IntN(len(hulls))].typeID),
			FinalBlow:     a == 0,
			DamageDone:    100 + rng.Int64N(5000),
		}
		switch {
		case !loss && a == 0:
			att.CorporationID = model.ID(f.cfg.CorporationID)
		case rng.IntN(5) == 0:
			att.CharacterID = 0
			att.CorporationID = npcCorporation
		}
		d.Attackers = append(d.Attackers, att)
	}
	return d
}

// Page returns the 1-based aggregator page, or nil past the end.
func (f *Feed) Page(page int) []model.FeedEntry {
	if page < 1 {
		return nil
	}
	start := (page - 1) * f.cfg.PageSize
	if start >= len(f.Entries) {
		return nil
	}
	end := min(start+f.cfg.PageSize, len(f.Entries))
	return f.Entries[start:end]
}

// Losses counts the generated losses of the tracked corporation.
func (f *Feed) Losses() int {
	n := 0
	for _, d := range f.Details {
		if int64(d.Victim.CorporationID) == f.cfg.CorporationID {
			n++
		}
	}
	return n
}
