package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/killsync/internal/adapters/repository"
	"github.com/okian/killsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// seedReports stores a small February 2025 dataset:
//
//	1 KILL  Feb 1 20:10  Ishtar/HAC    5e6   attackers Alice, Bob (Tracked)
//	2 KILL  Feb 1 20:40  Vexor/Cruiser 1e6   attackers Alice (Tracked)
//	3 LOSS  Feb 2 03:00  Ishtar/HAC    7e6   victim Tracked
//	4 KILL  Feb 5 20:00  Vexor/Cruiser 2e6   attacker Carol (Other)
func seedReports(t *testing.T, s *repository.SQLStore) {
	t.Helper()
	ctx := context.Background()
	must := func(id int64, err error) int64 {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		return id
	}
	hac := must(s.UpsertShipType(ctx, "Heavy Assault Cruiser"))
	cruiser := must(s.UpsertShipType(ctx, "Cruiser"))
	ishtar := must(s.UpsertShip(ctx, "Ishtar", hac))
	vexor := must(s.UpsertShip(ctx, "Vexor", cruiser))
	tracked := must(s.UpsertCorporation(ctx, "Tracked Corp"))
	other := must(s.UpsertCorporation(ctx, "Other Corp"))
	alice := must(s.UpsertPilot(ctx, "Alice"))
	bob := must(s.UpsertPilot(ctx, "Bob"))
	carol := must(s.UpsertPilot(ctx, "Carol"))

	day := func(d, h, m int) time.Time { return time.Date(2025, 2, d, h, m, 0, 0, time.UTC) }
	kms := []model.Killmail{
		{KillmailID: 1, Hash: "h1", Time: day(1, 20, 10), ShipID: ishtar, Value: 5e6, Kind: model.KindKill, VictimCorporationID: other},
		{KillmailID: 2, Hash: "h2", Time: day(1, 20, 40), ShipID: vexor, Value: 1e6, Kind: model.KindKill, VictimCorporationID: other},
		{KillmailID: 3, Hash: "h3", Time: day(2, 3, 0), ShipID: ishtar, Value: 7e6, Kind: model.KindLoss, VictimCorporationID: tracked},
		{KillmailID: 4, Hash: "h4", Time: day(5, 20, 0), ShipID: vexor, Value: 2e6, Kind: model.KindKill, VictimCorporationID: other},
	}
	for _, km := range kms {
		if _, err := s.InsertKillmail(ctx, km); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	attackers := []model.Attacker{
		{KillmailID: 1, Index: 0, PilotID: alice, PilotName: "Alice", CorporationID: tracked, FinalBlow: true},
		{KillmailID: 1, Index: 1, PilotID: bob, PilotName: "Bob", CorporationID: tracked},
		{KillmailID: 2, Index: 0, PilotID: alice, PilotName: "Alice", CorporationID: tracked, FinalBlow: true},
		{KillmailID: 3, Index: 0, PilotID: carol, PilotName: "Carol", CorporationID: other, FinalBlow: true},
		{KillmailID: 4, Index: 0, PilotID: carol, PilotName: "Carol", CorporationID: other, FinalBlow: true},
	}
	for _, a := range attackers {
		if err := s.InsertAttacker(ctx, a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

// seedShipLosses adds victim pilots to the seeded store:
//
//	5  LOSS Jan 10  Ishtar 8e6  Alice (Tracked)
//	6  LOSS Feb 3   Ishtar 6e6  Alice (Tracked)
//	7  LOSS Feb 20  Ishtar 9e6  Bob   (Tracked)
//	8  LOSS Feb 21  Vexor  1e6  Bob   (Tracked)
//	9  LOSS Feb 22  Ishtar 4e6  Carol (Other)
//	10 LOSS Feb 25  Ishtar 6e6  Bob   (Tracked)
//
// Killmail 3 has no victim pilot and never shows up in ship loss reports.
func seedShipLosses(t *testing.T, s *repository.SQLStore) {
	t.Helper()
	ctx := context.Background()
	must := func(id int64, err error) int64 {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		return id
	}
	hac := must(s.UpsertShipType(ctx, "Heavy Assault Cruiser"))
	cruiser := must(s.UpsertShipType(ctx, "Cruiser"))
	ishtar := must(s.UpsertShip(ctx, "Ishtar", hac))
	vexor := must(s.UpsertShip(ctx, "Vexor", cruiser))
	tracked := must(s.UpsertCorporation(ctx, "Tracked Corp"))
	other := must(s.UpsertCorporation(ctx, "Other Corp"))
	alice := must(s.UpsertPilot(ctx, "Alice"))
	bob := must(s.UpsertPilot(ctx, "Bob"))
	carol := must(s.UpsertPilot(ctx, "Carol"))

	at := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 12, 0, 0, 0, time.UTC) }
	loss := func(id int64, ts time.Time, ship, pilot, corp int64, value float64) model.Killmail {
		return model.Killmail{KillmailID: id, Hash: fmt.Sprintf("h%d", id), Time: ts, ShipID: ship, PilotID: pilot, Value: value, Kind: model.KindLoss, VictimCorporationID: corp}
	}
	for _, km := range []model.Killmail{
		loss(5, at(time.January, 10), ishtar, alice, tracked, 8e6),
		loss(6, at(time.February, 3), ishtar, alice, tracked, 6e6),
		loss(7, at(time.February, 20), ishtar, bob, tracked, 9e6),
		loss(8, at(time.February, 21), vexor, bob, tracked, 1e6),
		loss(9, at(time.February, 22), ishtar, carol, other, 4e6),
		loss(10, at(time.February, 25), ishtar, bob, tracked, 6e6),
	} {
		if _, err := s.InsertKillmail(ctx, km); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestParseRange(t *testing.T) {
	Convey("Given report range parameters", t, func() {
		now := time.Date(2025, 3, 15, 13, 0, 0, 0, time.UTC)

		Convey("When both bounds are given", func() {
			rg, err := repository.ParseRange("2025-02-01", "2025-02-28", now)
			So(err, ShouldBeNil)
			So(rg.From, ShouldEqual, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
			So(rg.To, ShouldEqual, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
		})

		Convey("When bounds are omitted", func() {
			rg, err := repository.ParseRange("", "", now)
			So(err, ShouldBeNil)
			So(rg.To, ShouldEqual, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
			So(rg.From, ShouldEqual, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC))
		})

		Convey("When a bound is malformed or reversed", func() {
			_, err := repository.ParseRange("02/01/2025", "", now)
			So(errors.Is(err, repository.ErrInvalidRange), ShouldBeTrue)
			_, err = repository.ParseRange("2025-03-01", "2025-02-01", now)
			So(errors.Is(err, repository.ErrInvalidRange), ShouldBeTrue)
		})
	})
}

func TestReports(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		ctx := context.Background()
		s := openMemory(t)
		seedReports(t, s)
		r := repository.NewReports(s)
		feb := repository.Range{
			From: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		}

		Convey("Then daily stats split destroyed and lost value per day", func() {
			days, err := r.DailyStats(ctx, feb)
			So(err, ShouldBeNil)
			So(days, ShouldResemble, []repository.DailyStat{
				{Day: "2025-02-01", KillCount: 2, ValueDestroyed: 6e6},
				{Day: "2025-02-02", KillCount: 1, ValueLost: 7e6},
				{Day: "2025-02-05", KillCount: 1, ValueDestroyed: 2e6},
			})
		})

		Convey("Then the range end is inclusive", func() {
			days, err := r.DailyStats(ctx, repository.Range{From: feb.From, To: feb.From})
			So(err, ShouldBeNil)
			So(len(days), ShouldEqual, 1)
			So(days[0].KillCount, ShouldEqual, 2)
		})

		Convey("Then top ship types only count KILLs ordered by value", func() {
			types, err := r.TopShipTypes(ctx, feb, 20)
			So(err, ShouldBeNil)
			So(types, ShouldResemble, []repository.ShipTypeStat{
				{TypeName: "Heavy Assault Cruiser", KillCount: 1, TotalISK: 5e6},
				{TypeName: "Cruiser", KillCount: 2, TotalISK: 3e6},
			})

			_, err = r.TopShipTypes(ctx, feb, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("Then top pilots rank by count then value", func() {
			pilots, err := r.TopPilots(ctx, "Tracked Corp", feb, 10)
			So(err, ShouldBeNil)
			So(pilots, ShouldResemble, []repository.PilotStat{
				{PilotName: "Alice", Kills: 2, ISKDestroyed: 6e6},
				{PilotName: "Bob", Kills: 1, ISKDestroyed: 5e6},
			})

			limited, err := r.TopPilots(ctx, "Tracked Corp", feb, 1)
			So(err, ShouldBeNil)
			So(len(limited), ShouldEqual, 1)
		})

		Convey("Then the corporation summary counts each killmail once", func() {
			sum, err := r.CorporationSummary(ctx, "Tracked Corp", feb)
			So(err, ShouldBeNil)
			So(sum, ShouldResemble, repository.CorporationSummary{
				Corporation:  "Tracked Corp",
				TotalKills:   2,
				ISKDestroyed: 6e6,
				TotalLosses:  1,
				ISKLost:      7e6,
			})
		})

		Convey("Then the hourly distribution reports its peak", func() {
			dist, err := r.HourlyDistribution(ctx, feb)
			So(err, ShouldBeNil)
			So(dist.Hours[20], ShouldEqual, 3)
			So(dist.Hours[3], ShouldEqual, 1)
			So(dist.PeakHour, ShouldEqual, 20)
			So(dist.PeakCount, ShouldEqual, 3)
		})

		Convey("Then an empty range yields zero peak", func() {
			dist, err := r.HourlyDistribution(ctx, repository.Range{
				From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			})
			So(err, ShouldBeNil)
			So(dist.PeakHour, ShouldEqual, 0)
			So(dist.PeakCount, ShouldEqual, 0)
		})

		Convey("When tracked pilots lost several ships of one hull", func() {
			seedShipLosses(t, s)

			Convey("Then losses break down per month and pilot, newest month first", func() {
				months, err := r.ShipLossesByMonth(ctx, "tracked corp", "ishtar", repository.AllTime)
				So(err, ShouldBeNil)
				So(months, ShouldResemble, []repository.MonthlyShipLoss{
					{Month: "2025-02", PilotName: "Bob", Losses: 2, ISKLost: 15e6},
					{Month: "2025-02", PilotName: "Alice", Losses: 1, ISKLost: 6e6},
					{Month: "2025-01", PilotName: "Alice", Losses: 1, ISKLost: 8e6},
				})
			})

			Convey("Then the all-time ranking orders by count then value", func() {
				rank, err := r.ShipLossRanking(ctx, "Tracked Corp", "Ishtar", repository.AllTime)
				So(err, ShouldBeNil)
				So(len(rank), ShouldEqual, 2)
				So(rank[0].PilotName, ShouldEqual, "Bob")
				So(rank[0].Losses, ShouldEqual, 2)
				So(rank[0].ISKLost, ShouldEqual, 15e6)
				So(rank[0].AverageISK, ShouldEqual, 7.5e6)
				So(rank[0].SpanDays, ShouldEqual, 5)
				So(rank[1].PilotName, ShouldEqual, "Alice")
				So(rank[1].FirstLoss, ShouldEqual, time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC))
				So(rank[1].LastLoss, ShouldEqual, time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC))
				So(rank[1].SpanDays, ShouldEqual, 24)
			})

			Convey("Then a bounded ranking only sees losses in range", func() {
				rank, err := r.ShipLossRanking(ctx, "Tracked Corp", "Ishtar", feb)
				So(err, ShouldBeNil)
				So(len(rank), ShouldEqual, 2)
				So(rank[1].PilotName, ShouldEqual, "Alice")
				So(rank[1].Losses, ShouldEqual, 1)
				So(rank[1].SpanDays, ShouldEqual, 0)
			})

			Convey("Then a missing ship name is rejected", func() {
				_, err := r.ShipLossRanking(ctx, "Tracked Corp", " ", feb)
				So(errors.Is(err, repository.ErrInvalidFilter), ShouldBeTrue)
				_, err = r.ShipLossesByMonth(ctx, "", "Ishtar", feb)
				So(errors.Is(err, repository.ErrInvalidFilter), ShouldBeTrue)
			})
		})

		Convey("Then totals reflect every table", func() {
			tot, err := r.Totals(ctx)
			So(err, ShouldBeNil)
			So(tot.Killmails, ShouldEqual, 4)
			So(tot.Kills, ShouldEqual, 3)
			So(tot.Losses, ShouldEqual, 1)
			So(tot.Attackers, ShouldEqual, 5)
			So(tot.Pilots, ShouldEqual, 3)
			So(tot.Corporations, ShouldEqual, 2)
			So(*tot.Oldest, ShouldEqual, time.Date(2025, 2, 1, 20, 10, 0, 0, time.UTC))
			So(*tot.Newest, ShouldEqual, time.Date(2025, 2, 5, 20, 0, 0, 0, time.UTC))
		})
	})
}
