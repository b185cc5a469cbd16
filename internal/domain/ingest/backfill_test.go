package ingest_test

import (
	"context"
	"testing"

	"github.com/okian/killsync/internal/domain/ingest"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBackfiller(t *testing.T) {
	Convey("Given stored killmails with gaps", t, func() {
		ctx := context.Background()
		f, norm, store, s := newFeed(), &fakeNorm{}, newMemStore(), &sleeper{}
		b := ingest.NewBackfiller(f, norm, store, ingest.WithBackfillSleeper(s.sleep))

		store.seed(1, "2025-02-01T00:00:00Z")
		store.seed(2, "2025-02-02T00:00:00Z")
		store.seed(3, "2025-02-03T00:00:00Z")
		delete(store.attackers, 2)
		delete(store.attackers, 3)
		f.add(1, 2, "2025-02-02T00:00:00Z", 555)
		f.add(1, 3, "2025-02-03T00:00:00Z", 556)

		Convey("When attackers are backfilled", func() {
			rep, err := b.BackfillAttackers(ctx)

			Convey("Then every killmail without attackers gets them", func() {
				So(err, ShouldBeNil)
				So(rep, ShouldResemble, ingest.BackfillReport{Candidates: 2, Updated: 2})
				So(store.attackers[2], ShouldHaveLength, 2)
				So(store.attackers[3], ShouldHaveLength, 2)
				So(s.waits, ShouldResemble, seconds(1))
			})

			Convey("Then a second pass finds nothing to do", func() {
				rep, err := b.BackfillAttackers(ctx)
				So(err, ShouldBeNil)
				So(rep.Candidates, ShouldEqual, 0)
			})
		})

		Convey("When a detail is unavailable", func() {
			delete(f.details, 2)
			rep, err := b.BackfillAttackers(ctx)

			Convey("Then that killmail is skipped", func() {
				So(err, ShouldBeNil)
				So(rep, ShouldResemble, ingest.BackfillReport{Candidates: 2, Updated: 1, Skipped: 1})
				So(store.attackers[2], ShouldBeEmpty)
			})
		})

		Convey("When victim corporations are missing", func() {
			r := store.rows[3]
			r.VictimCorporationID = 0
			store.rows[3] = r

			rep, err := b.BackfillCorporations(ctx)

			Convey("Then they are filled from the detail", func() {
				So(err, ShouldBeNil)
				So(rep, ShouldResemble, ingest.BackfillReport{Candidates: 1, Updated: 1})
				So(store.rows[3].VictimCorporationID, ShouldEqual, 556)
				So(store.rows[2].VictimCorporationID, ShouldEqual, 1000)
			})
		})

		Convey("When the corporation update fails", func() {
			r := store.rows[3]
			r.VictimCorporationID = 0
			store.rows[3] = r
			store.failCorpSet = true

			rep, err := b.BackfillCorporations(ctx)

			Convey("Then the killmail is counted as skipped", func() {
				So(err, ShouldBeNil)
				So(rep.Skipped, ShouldEqual, 1)
				So(store.rows[3].VictimCorporationID, ShouldEqual, 0)
			})
		})

		Convey("When the context is cancelled between killmails", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			s.cancel, s.cancelAt = cancel, 1

			rep, err := b.BackfillAttackers(cctx)

			Convey("Then the job stops early", func() {
				So(err, ShouldEqual, context.Canceled)
				So(rep.Updated, ShouldEqual, 1)
			})
		})
	})
}
