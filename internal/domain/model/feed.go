// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// KillmailTimeLayout is the ESI killmail_time format.
const KillmailTimeLayout = "2006-01-02T15:04:05Z"

// ID is an external numeric identifier. It decodes from JSON numbers,
// quoted numbers and null (zero), so feeds that disagree on the
// representation produce the same value.
type ID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*id = 0
		return nil
	}
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some encoders emit integral floats (e.g. 98730717.0).
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return fmt.Errorf("model: invalid id %s: %w", b, err)
		}
		n = int64(f)
	}
	*id = ID(n)
	return nil
}

// String returns the decimal form.
func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// FeedEntry is one element of a zKillboard corporation page.
type FeedEntry struct {
	KillmailID ID  `json:"killmail_id"`
	ZKB        ZKB `json:"zkb"`
}

// FeedPage is one decoded corporation page. Elements that could not be
// decoded are kept apart so the rest of the page stays usable.
type FeedPage struct {
	Entries   []FeedEntry
	Malformed []MalformedEntry
}

// Empty reports whether the page had no elements at all.
func (p FeedPage) Empty() bool { return len(p.Entries) == 0 && len(p.Malformed) == 0 }

// MalformedEntry is a page element that failed to decode.
type MalformedEntry struct {
	// Index is the position of the element on its page.
	Index int
	Raw   string
	Err   error
}

// ZKB is the aggregator's metadata block attached to a feed entry.
type ZKB struct {
	LocationID     ID       `json:"locationID"`
	Hash           string   `json:"hash"`
	FittedValue    float64  `json:"fittedValue"`
	DroppedValue   float64  `json:"droppedValue"`
	DestroyedValue float64  `json:"destroyedValue"`
	TotalValue     float64  `json:"totalValue"`
	Points         int      `json:"points"`
	NPC            bool     `json:"npc"`
	Solo           bool     `json:"solo"`
	Awox           bool     `json:"awox"`
	Labels         []string `json:"labels,omitempty"`
}

// Detail is the ESI killmail payload.
type Detail struct {
	KillmailID    ID               `json:"killmail_id"`
	KillmailTime  string           `json:"killmail_time"`
	SolarSystemID ID               `json:"solar_system_id"`
	Victim        Victim           `json:"victim"`
	Attackers     []AttackerDetail `json:"attackers"`
}

// Victim is the destroyed ship's owner as reported by ESI.
type Victim struct {
	CharacterID   ID    `json:"character_id"`
	CorporationID ID    `json:"corporation_id"`
	AllianceID    ID    `json:"alliance_id"`
	ShipTypeID    ID    `json:"ship_type_id"`
	DamageTaken   int64 `json:"damage_taken"`
}

// AttackerDetail is one attacker entry as reported by ESI. CharacterID is
// zero for NPCs and structures.
type AttackerDetail struct {
	CharacterID   ID    `json:"character_id"`
	CorporationID ID    `json:"corporation_id"`
	AllianceID    ID    `json:"alliance_id"`
	ShipTypeID    ID    `json:"ship_type_id"`
	WeaponTypeID  ID    `json:"weapon_type_id"`
	FinalBlow     bool  `json:"final_blow"`
	DamageDone    int64 `json:"damage_done"`
}

// Time parses killmail_time as UTC.
func (d Detail) Time() (time.Time, error) {
	t, err := time.Parse(KillmailTimeLayout, strings.TrimSpace(d.KillmailTime))
	if err != nil {
		return time.Time{}, fmt.Errorf("model: killmail %d: bad killmail_time %q: %w", d.KillmailID, d.KillmailTime, err)
	}
	return t.UTC(), nil
}
