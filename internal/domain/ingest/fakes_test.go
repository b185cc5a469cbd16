package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/internal/domain/normalize"
)

const tracked = "98730717"

var (
	errUpstream = errors.New("upstream failed")
	errDB       = errors.New("db down")
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func hashOf(id int64) string { return fmt.Sprintf("h%d", id) }

func entry(id int64) model.FeedEntry {
	return model.FeedEntry{KillmailID: model.ID(id), ZKB: model.ZKB{Hash: hashOf(id), TotalValue: float64(id) * 1000}}
}

// feed serves scripted pages and details.
type feed struct {
	mu        sync.Mutex
	pages     map[int][]model.FeedEntry
	malformed map[int][]model.MalformedEntry
	pageErr   map[int]error
	details   map[int64]model.Detail
	requested []int
	fetched   []int64
}

func newFeed() *feed {
	return &feed{
		pages:     map[int][]model.FeedEntry{},
		malformed: map[int][]model.MalformedEntry{},
		pageErr:   map[int]error{},
		details:   map[int64]model.Detail{},
	}
}

// add appends a killmail to a page with the given kill time and victim corporation.
func (f *feed) add(page int, id int64, killTime string, victimCorp int64) {
	f.pages[page] = append(f.pages[page], entry(id))
	f.details[id] = model.Detail{
		KillmailID:    model.ID(id),
		KillmailTime:  killTime,
		SolarSystemID: 30000142,
		Victim:        model.Victim{CharacterID: 9, CorporationID: model.ID(victimCorp), ShipTypeID: 587},
		Attackers: []model.AttackerDetail{
			{CharacterID: 7, CorporationID: 1000, FinalBlow: true, DamageDone: 300},
			{CorporationID: 1000125, DamageDone: 50},
		},
	}
}

// addMissing appends an entry whose detail cannot be fetched.
func (f *feed) addMissing(page int, id int64) {
	f.pages[page] = append(f.pages[page], entry(id))
}

// addMalformed appends an element that failed to decode.
func (f *feed) addMalformed(page int, raw string) {
	f.malformed[page] = append(f.malformed[page], model.MalformedEntry{
		Index: len(f.pages[page]) + len(f.malformed[page]),
		Raw:   raw,
		Err:   errors.New("invalid id"),
	})
}

func (f *feed) Page(_ context.Context, _ string, page int) (model.FeedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, page)
	if err := f.pageErr[page]; err != nil {
		return model.FeedPage{}, err
	}
	return model.FeedPage{Entries: f.pages[page], Malformed: f.malformed[page]}, nil
}

func (f *feed) Killmail(_ context.Context, id int64, _ string) (model.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	d, ok := f.details[id]
	if !ok {
		return model.Detail{}, errUpstream
	}
	return d, nil
}

// fakeNorm builds rows without touching reference tables.
type fakeNorm struct {
	failOn map[int64]bool
}

func (n *fakeNorm) Normalize(ctx context.Context, e model.FeedEntry, d model.Detail, trackedCorp string) (model.Killmail, []model.Attacker, error) {
	id := int64(e.KillmailID)
	if n.failOn[id] {
		return model.Killmail{}, nil, errDB
	}
	ts, err := d.Time()
	if err != nil {
		return model.Killmail{}, nil, err
	}
	corp, _ := n.VictimCorporation(ctx, d)
	attackers, _ := n.Attackers(ctx, id, d)
	return model.Killmail{
		KillmailID:          id,
		Hash:                e.ZKB.Hash,
		Time:                ts,
		Value:               e.ZKB.TotalValue,
		Kind:                normalize.Classify(d.Victim.CorporationID, trackedCorp),
		VictimCorporationID: corp,
	}, attackers, nil
}

func (n *fakeNorm) Attackers(_ context.Context, killmailID int64, d model.Detail) ([]model.Attacker, error) {
	if n.failOn[killmailID] {
		return nil, errDB
	}
	out := make([]model.Attacker, 0, len(d.Attackers))
	for i, a := range d.Attackers {
		out = append(out, model.Attacker{KillmailID: killmailID, Index: i, CorporationID: int64(a.CorporationID), FinalBlow: a.FinalBlow, DamageDone: a.DamageDone})
	}
	return out, nil
}

func (n *fakeNorm) VictimCorporation(_ context.Context, d model.Detail) (int64, error) {
	return int64(d.Victim.CorporationID), nil
}

// memStore keeps killmails in maps.
type memStore struct {
	mu          sync.Mutex
	rows        map[int64]model.Killmail
	attackers   map[int64][]model.Attacker
	runs        []model.SyncRun
	failExists  map[int64]bool
	failCorpSet bool
}

func newMemStore() *memStore {
	return &memStore{rows: map[int64]model.Killmail{}, attackers: map[int64][]model.Attacker{}, failExists: map[int64]bool{}}
}

// seed stores a killmail as if an earlier run had inserted it.
func (m *memStore) seed(id int64, killTime string) {
	m.rows[id] = model.Killmail{KillmailID: id, Hash: hashOf(id), Time: at(killTime), Kind: model.KindKill, VictimCorporationID: 1000}
	m.attackers[id] = []model.Attacker{{KillmailID: id}}
}

func (m *memStore) KillmailExists(_ context.Context, id int64, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failExists[id] {
		return false, errDB
	}
	for _, r := range m.rows {
		if r.KillmailID == id || r.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertKillmail(_ context.Context, km model.Killmail) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[km.KillmailID]; ok {
		return false, nil
	}
	m.rows[km.KillmailID] = km
	return true, nil
}

func (m *memStore) InsertAttacker(_ context.Context, a model.Attacker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.attackers[a.KillmailID] {
		if have.Index == a.Index {
			return nil
		}
	}
	m.attackers[a.KillmailID] = append(m.attackers[a.KillmailID], a)
	return nil
}

func (m *memStore) boundary(older bool) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out time.Time
	found := false
	for _, r := range m.rows {
		if !found || (older && r.Time.Before(out)) || (!older && r.Time.After(out)) {
			out, found = r.Time, true
		}
	}
	return out, found, nil
}

func (m *memStore) OldestKillTime(context.Context) (time.Time, bool, error) { return m.boundary(true) }
func (m *memStore) NewestKillTime(context.Context) (time.Time, bool, error) { return m.boundary(false) }

func (m *memStore) refsWhere(match func(model.Killmail) bool) []model.KillmailRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.KillmailRef
	for id, r := range m.rows {
		if match(r) {
			out = append(out, model.KillmailRef{KillmailID: id, Hash: r.Hash})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KillmailID < out[j].KillmailID })
	return out
}

func (m *memStore) KillmailsWithoutAttackers(context.Context) ([]model.KillmailRef, error) {
	return m.refsWhere(func(r model.Killmail) bool { return len(m.attackers[r.KillmailID]) == 0 }), nil
}

func (m *memStore) KillmailsWithoutCorporation(context.Context) ([]model.KillmailRef, error) {
	return m.refsWhere(func(r model.Killmail) bool { return r.VictimCorporationID == 0 }), nil
}

func (m *memStore) SetVictimCorporation(_ context.Context, id, corp int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCorpSet {
		return errDB
	}
	r := m.rows[id]
	if r.VictimCorporationID == 0 {
		r.VictimCorporationID = corp
		m.rows[id] = r
	}
	return nil
}

func (m *memStore) RecordSyncRun(_ context.Context, run model.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

// sleeper records requested waits. cancel, when set, is invoked on the
// wait with that 1-based index and the wait fails.
type sleeper struct {
	waits    []time.Duration
	cancelAt int
	cancel   context.CancelFunc
}

func (s *sleeper) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	if s.cancel != nil && len(s.waits) == s.cancelAt {
		s.cancel()
		return context.Canceled
	}
	return ctx.Err()
}
