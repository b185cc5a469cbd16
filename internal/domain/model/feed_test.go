package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/killsync/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestID_UnmarshalJSON(t *testing.T) {
	convey.Convey("Given id payloads in different representations", t, func() {
		var v struct {
			A model.ID `json:"a"`
			B model.ID `json:"b"`
			C model.ID `json:"c"`
			D model.ID `json:"d"`
			E model.ID `json:"e"`
		}
		err := json.Unmarshal([]byte(`{"a":98730717,"b":"98730717","c":null,"d":"","e":98730717.0}`), &v)

		convey.Convey("Then numbers, strings and integral floats decode to the same id", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(v.A, convey.ShouldEqual, model.ID(98730717))
			convey.So(v.B, convey.ShouldEqual, v.A)
			convey.So(v.E, convey.ShouldEqual, v.A)
			convey.So(v.A.String(), convey.ShouldEqual, "98730717")
		})

		convey.Convey("Then null and empty strings are zero", func() {
			convey.So(v.C, convey.ShouldEqual, 0)
			convey.So(v.D, convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given a non-numeric id", t, func() {
		var v struct {
			A model.ID `json:"a"`
		}
		err := json.Unmarshal([]byte(`{"a":"abc"}`), &v)

		convey.Convey("Then decoding fails", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestDetail(t *testing.T) {
	convey.Convey("Given an ESI killmail payload", t, func() {
		payload := `{
			"killmail_id": 100,
			"killmail_time": "2025-02-01T00:00:00Z",
			"solar_system_id": 30000142,
			"victim": {"character_id": 9, "corporation_id": 98730717, "ship_type_id": 587, "damage_taken": 1200},
			"attackers": [
				{"character_id": 7, "corporation_id": 1000, "final_blow": true, "damage_done": 1000},
				{"corporation_id": 1000125, "final_blow": false, "damage_done": 200}
			]
		}`
		var d model.Detail
		err := json.Unmarshal([]byte(payload), &d)

		convey.Convey("Then fields decode", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(d.SolarSystemID, convey.ShouldEqual, 30000142)
			convey.So(d.Victim.CorporationID, convey.ShouldEqual, 98730717)
			convey.So(len(d.Attackers), convey.ShouldEqual, 2)
			convey.So(d.Attackers[1].CharacterID, convey.ShouldEqual, 0)
			convey.So(d.Attackers[0].FinalBlow, convey.ShouldBeTrue)
		})

		convey.Convey("Then the timestamp parses as UTC", func() {
			ts, err := d.Time()
			convey.So(err, convey.ShouldBeNil)
			convey.So(ts, convey.ShouldEqual, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
		})

		convey.Convey("Then a malformed timestamp is an error", func() {
			d.KillmailTime = "yesterday"
			_, err := d.Time()
			convey.So(err, convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a zKillboard page entry", t, func() {
		var entries []model.FeedEntry
		err := json.Unmarshal([]byte(`[{"killmail_id":100,"zkb":{"hash":"abc","totalValue":1000000,"npc":false,"labels":["pvp"]}}]`), &entries)

		convey.Convey("Then the zkb block decodes", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(entries[0].KillmailID, convey.ShouldEqual, 100)
			convey.So(entries[0].ZKB.Hash, convey.ShouldEqual, "abc")
			convey.So(entries[0].ZKB.TotalValue, convey.ShouldEqual, 1000000)
			convey.So(entries[0].ZKB.Labels, convey.ShouldResemble, []string{"pvp"})
		})
	})
}
