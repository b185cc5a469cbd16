package model

import "time"

// Kind classifies a killmail relative to the tracked corporation.
type Kind string

const (
	// KindKill is any killmail whose victim is outside the tracked corporation.
	KindKill Kind = "KILL"
	// KindLoss is a ship lost by the tracked corporation.
	KindLoss Kind = "LOSS"
)

// Unknown is the display name used whenever an entity cannot be resolved.
const Unknown = "Unknown"

// Killmail is a normalized event row. All *ID fields except KillmailID are
// internal store ids.
type Killmail struct {
	KillmailID          int64
	Hash                string
	Time                time.Time
	SystemID            int64
	PilotID             int64
	ShipID              int64
	Value               float64
	Kind                Kind
	VictimCorporationID int64
}

// Attacker is one participant row of a killmail. PilotID is zero when the
// attacker has no character (NPC, structure).
type Attacker struct {
	KillmailID    int64
	Index         int
	PilotID       int64
	PilotName     string
	CorporationID int64
	FinalBlow     bool
	DamageDone    int64
}

// KillmailRef identifies a stored killmail for follow-up fetches.
type KillmailRef struct {
	KillmailID int64
	Hash       string
}

// SyncRun is the audit record of one ingestion run.
type SyncRun struct {
	ID         string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Pages      int
	Stored     int
	Known      int
	Skipped    int
	StopReason string
	Error      string
}
