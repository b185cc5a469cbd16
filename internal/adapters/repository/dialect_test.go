package repository

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDialect(t *testing.T) {
	Convey("Given the two dialects", t, func() {
		q := `SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?`

		Convey("Then sqlite keeps question marks", func() {
			So(sqliteDialect.rebind(q), ShouldEqual, q)
		})

		Convey("Then postgres numbers placeholders", func() {
			So(postgresDialect.rebind(q), ShouldEqual, `SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3`)
		})

		Convey("Then timestamps are text for sqlite and time.Time for postgres", func() {
			ts := time.Date(2025, 2, 1, 3, 4, 5, 0, time.FixedZone("X", 3600))
			So(sqliteDialect.timeArg(ts), ShouldEqual, "2025-02-01T02:04:05Z")
			So(postgresDialect.timeArg(ts), ShouldEqual, ts.UTC())
		})

		Convey("Then unknown drivers are rejected", func() {
			_, err := dialectFor("mysql")
			So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestScanTime(t *testing.T) {
	Convey("Given scanned timestamp values", t, func() {
		want := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

		Convey("Then every driver representation parses", func() {
			for _, v := range []any{want, "2025-02-01T00:00:00Z", []byte("2025-02-01 00:00:00+00:00"), "2025-02-01 00:00:00"} {
				got, ok, err := scanTime(v)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, want)
			}
		})

		Convey("Then NULL is not ok", func() {
			_, ok, err := scanTime(nil)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})

		Convey("Then garbage is an error", func() {
			_, _, err := scanTime("soon")
			So(err, ShouldNotBeNil)
			_, _, err = scanTime(42)
			So(err, ShouldNotBeNil)
		})
	})
}
