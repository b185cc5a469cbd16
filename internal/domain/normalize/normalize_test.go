package normalize_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/okian/killsync/internal/domain/normalize"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeNames struct {
	calls int
}

func (f *fakeNames) lookup(table map[int64]string, id int64) string {
	f.calls++
	if n, ok := table[id]; ok {
		return n
	}
	return model.Unknown
}

func (f *fakeNames) Character(_ context.Context, id int64) string {
	return f.lookup(map[int64]string{7: "Alice", 9: "Victim Pilot"}, id)
}

func (f *fakeNames) Corporation(_ context.Context, id int64) string {
	return f.lookup(map[int64]string{98730717: "Tracked Corp", 1000: "Other Corp", 1000125: "CONCORD"}, id)
}

func (f *fakeNames) System(_ context.Context, id int64) string {
	return f.lookup(map[int64]string{30000142: "Jita"}, id)
}

func (f *fakeNames) ShipType(_ context.Context, id int64) string {
	return f.lookup(map[int64]string{12005: "Ishtar"}, id)
}

func (f *fakeNames) ShipGroupName(_ context.Context, id int64) string {
	return f.lookup(map[int64]string{12005: "Heavy Assault Cruiser"}, id)
}

// memStore hands out sequential ids per (table, name).
type memStore struct {
	ids    map[string]int64
	ships  map[string]int64
	failOn string
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{ids: map[string]int64{}, ships: map[string]int64{}}
}

func (m *memStore) upsert(table, name string) (int64, error) {
	if table == m.failOn {
		return 0, errors.New("db down")
	}
	key := table + "/" + name
	if id, ok := m.ids[key]; ok {
		return id, nil
	}
	m.nextID++
	m.ids[key] = m.nextID
	return m.nextID, nil
}

func (m *memStore) id(table, name string) int64 { return m.ids[table+"/"+name] }

func (m *memStore) UpsertSystem(_ context.Context, name string) (int64, error) {
	return m.upsert("system", name)
}

func (m *memStore) UpsertShipType(_ context.Context, name string) (int64, error) {
	return m.upsert("ship_type", name)
}

func (m *memStore) UpsertShip(_ context.Context, name string, typeID int64) (int64, error) {
	m.ships[name] = typeID
	return m.upsert("ship", name)
}

func (m *memStore) UpsertPilot(_ context.Context, name string) (int64, error) {
	return m.upsert("pilot", name)
}

func (m *memStore) UpsertCorporation(_ context.Context, name string) (int64, error) {
	return m.upsert("corporation", name)
}

func sampleEntry() model.FeedEntry {
	return model.FeedEntry{KillmailID: 100, ZKB: model.ZKB{Hash: "abc", TotalValue: 1_000_000}}
}

func sampleDetail(victimCorp model.ID) model.Detail {
	return model.Detail{
		KillmailID:    100,
		KillmailTime:  "2025-02-01T00:00:00Z",
		SolarSystemID: 30000142,
		Victim:        model.Victim{CharacterID: 9, CorporationID: victimCorp, ShipTypeID: 12005},
		Attackers: []model.AttackerDetail{
			{CharacterID: 7, CorporationID: 1000, FinalBlow: true, DamageDone: 900},
			{CorporationID: 1000125, DamageDone: 100},
		},
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	Convey("Given a normalizer tracking corporation 98730717", t, func() {
		ctx := context.Background()
		names := &fakeNames{}
		store := newMemStore()
		n := normalize.New(names, store)

		Convey("When the victim belongs to the tracked corporation", func() {
			km, attackers, err := n.Normalize(ctx, sampleEntry(), sampleDetail(98730717), "98730717")

			Convey("Then the killmail is a LOSS built from entry and detail", func() {
				So(err, ShouldBeNil)
				So(km.KillmailID, ShouldEqual, 100)
				So(km.Hash, ShouldEqual, "abc")
				So(km.Value, ShouldEqual, 1_000_000)
				So(km.Kind, ShouldEqual, model.KindLoss)
				So(km.Time, ShouldEqual, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
				So(km.SystemID, ShouldEqual, store.id("system", "Jita"))
				So(km.ShipID, ShouldEqual, store.id("ship", "Ishtar"))
				So(km.PilotID, ShouldEqual, store.id("pilot", "Victim Pilot"))
				So(km.VictimCorporationID, ShouldEqual, store.id("corporation", "Tracked Corp"))
			})

			Convey("Then the hull points at its group", func() {
				So(store.ships["Ishtar"], ShouldEqual, store.id("ship_type", "Heavy Assault Cruiser"))
			})

			Convey("Then attackers keep ESI order and NPCs have no pilot row", func() {
				So(attackers, ShouldResemble, []model.Attacker{
					{KillmailID: 100, Index: 0, PilotID: store.id("pilot", "Alice"), PilotName: "Alice", CorporationID: store.id("corporation", "Other Corp"), FinalBlow: true, DamageDone: 900},
					{KillmailID: 100, Index: 1, PilotID: 0, PilotName: model.Unknown, CorporationID: store.id("corporation", "CONCORD"), DamageDone: 100},
				})
				So(store.id("pilot", model.Unknown), ShouldEqual, 0)
			})
		})

		Convey("When the victim belongs to someone else", func() {
			km, _, err := n.Normalize(ctx, sampleEntry(), sampleDetail(1000), "98730717")

			Convey("Then the killmail is a KILL", func() {
				So(err, ShouldBeNil)
				So(km.Kind, ShouldEqual, model.KindKill)
			})
		})

		Convey("When the victim has no character", func() {
			d := sampleDetail(1000)
			d.Victim.CharacterID = 0
			km, _, err := n.Normalize(ctx, sampleEntry(), d, "98730717")

			Convey("Then the Unknown pilot row is used", func() {
				So(err, ShouldBeNil)
				So(km.PilotID, ShouldEqual, store.id("pilot", model.Unknown))
				So(km.PilotID, ShouldNotEqual, 0)
			})
		})

		Convey("When the timestamp is malformed", func() {
			d := sampleDetail(1000)
			d.KillmailTime = "2025-02-01 00:00"
			_, _, err := n.Normalize(ctx, sampleEntry(), d, "98730717")

			Convey("Then an invalid detail error is returned before any lookup", func() {
				So(errors.Is(err, normalize.ErrInvalidDetail), ShouldBeTrue)
				So(names.calls, ShouldEqual, 0)
			})
		})

		Convey("When the store fails", func() {
			store.failOn = "corporation"
			_, _, err := n.Normalize(ctx, sampleEntry(), sampleDetail(1000), "98730717")

			Convey("Then the error is returned", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, normalize.ErrInvalidDetail), ShouldBeFalse)
			})
		})
	})
}

func TestClassify(t *testing.T) {
	Convey("Given victim corporations and tracked ids", t, func() {
		So(normalize.Classify(98730717, "98730717"), ShouldEqual, model.KindLoss)
		So(normalize.Classify(98730717, " 98730717 "), ShouldEqual, model.KindLoss)
		So(normalize.Classify(98730717, "098730717"), ShouldEqual, model.KindLoss)
		So(normalize.Classify(1000, "98730717"), ShouldEqual, model.KindKill)
		So(normalize.Classify(0, "98730717"), ShouldEqual, model.KindKill)
		So(normalize.Classify(98730717, ""), ShouldEqual, model.KindKill)
		So(normalize.Classify(98730717, "tracked"), ShouldEqual, model.KindKill)
	})
}
