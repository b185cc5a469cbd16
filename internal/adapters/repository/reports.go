package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/killsync/internal/domain/model"
)

// DateLayout is the calendar date format of report ranges.
const DateLayout = "2006-01-02"

// MonthLayout is the calendar month format of monthly buckets.
const MonthLayout = "2006-01"

// Range is an inclusive calendar date range in UTC.
type Range struct {
	From time.Time
	To   time.Time
}

// ParseRange parses YYYY-MM-DD bounds. Empty bounds default to the last
// 30 days ending today.
func ParseRange(from, to string, now time.Time) (Range, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	r := Range{From: today.AddDate(0, 0, -29), To: today}
	var err error
	if s := strings.TrimSpace(from); s != "" {
		if r.From, err = time.ParseInLocation(DateLayout, s, time.UTC); err != nil {
			return Range{}, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
		}
	}
	if s := strings.TrimSpace(to); s != "" {
		if r.To, err = time.ParseInLocation(DateLayout, s, time.UTC); err != nil {
			return Range{}, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
		}
	}
	if r.To.Before(r.From) {
		return Range{}, fmt.Errorf("%w: to is before from", ErrInvalidRange)
	}
	return r, nil
}

// AllTime is the unbounded range. Only the ship loss reports accept it.
var AllTime = Range{}

func (r Range) unbounded() bool { return r.From.IsZero() && r.To.IsZero() }

func (r Range) start() time.Time { return r.From.UTC().Truncate(24 * time.Hour) }

// end is exclusive: the day after To.
func (r Range) end() time.Time { return r.To.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1) }

// DailyStat aggregates one calendar day.
type DailyStat struct {
	Day            string  `json:"day"`
	KillCount      int     `json:"kill_count"`
	ValueDestroyed float64 `json:"value_destroyed"`
	ValueLost      float64 `json:"value_lost"`
}

// ShipTypeStat aggregates KILLs of one ship type.
type ShipTypeStat struct {
	TypeName  string  `json:"type_name"`
	KillCount int     `json:"kill_count"`
	TotalISK  float64 `json:"total_isk"`
}

// PilotStat aggregates the killmails one attacker name took part in.
type PilotStat struct {
	PilotName    string  `json:"pilot_name"`
	Kills        int     `json:"kills"`
	ISKDestroyed float64 `json:"isk_destroyed"`
}

// CorporationSummary totals a corporation's kills and losses.
type CorporationSummary struct {
	Corporation  string  `json:"corporation"`
	TotalKills   int     `json:"total_kills"`
	ISKDestroyed float64 `json:"isk_destroyed"`
	TotalLosses  int     `json:"total_losses"`
	ISKLost      float64 `json:"isk_lost"`
}

// HourlyDistribution counts killmails per UTC hour of day.
type HourlyDistribution struct {
	Hours     [24]int `json:"hours"`
	PeakHour  int     `json:"peak_hour"`
	PeakCount int     `json:"peak_count"`
}

// MonthlyShipLoss is one pilot's losses of a hull in one calendar month.
type MonthlyShipLoss struct {
	Month     string  `json:"month"`
	PilotName string  `json:"pilot_name"`
	Losses    int     `json:"losses"`
	ISKLost   float64 `json:"isk_lost"`
}

// ShipLossRank is one pilot's losses of a hull across a range.
type ShipLossRank struct {
	PilotName  string    `json:"pilot_name"`
	Losses     int       `json:"losses"`
	ISKLost    float64   `json:"isk_lost"`
	AverageISK float64   `json:"average_isk"`
	FirstLoss  time.Time `json:"first_loss"`
	LastLoss   time.Time `json:"last_loss"`
	// SpanDays is the number of whole days between the first and last loss.
	SpanDays int `json:"span_days"`
}

// Totals is a whole-store snapshot.
type Totals struct {
	Killmails    int        `json:"killmails"`
	Kills        int        `json:"kills"`
	Losses       int        `json:"losses"`
	Attackers    int        `json:"attackers"`
	Pilots       int        `json:"pilots"`
	Corporations int        `json:"corporations"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
}

// Reports runs read-only aggregates over a SQLStore.
type Reports struct {
	s *SQLStore
}

// NewReports creates report queries bound to s.
func NewReports(s *SQLStore) *Reports {
	return &Reports{s: s}
}

// DailyStats returns one row per day that has killmails, in date order.
func (r *Reports) DailyStats(ctx context.Context, rg Range) (out []DailyStat, err error) {
	defer func(start time.Time) { r.s.observe("report_daily", start, err) }(time.Now())
	rows, err := r.s.db.QueryContext(ctx, r.s.d.rebind(`SELECT kill_datetime, kill_type, value FROM killmails
		WHERE kill_datetime >= ? AND kill_datetime < ?`),
		r.s.d.timeArg(rg.start()), r.s.d.timeArg(rg.end()))
	if err != nil {
		return nil, fmt.Errorf("repository: daily stats: %w", err)
	}
	defer rows.Close()

	byDay := map[string]*DailyStat{}
	for rows.Next() {
		var (
			raw   any
			kind  string
			value float64
		)
		if err = rows.Scan(&raw, &kind, &value); err != nil {
			return nil, fmt.Errorf("repository: daily stats: %w", err)
		}
		ts, ok, terr := scanTime(raw)
		if terr != nil || !ok {
			continue
		}
		day := ts.Format(DateLayout)
		st := byDay[day]
		if st == nil {
			st = &DailyStat{Day: day}
			byDay[day] = st
		}
		st.KillCount++
		switch model.Kind(kind) {
		case model.KindKill:
			st.ValueDestroyed += value
		case model.KindLoss:
			st.ValueLost += value
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: daily stats: %w", err)
	}

	out = make([]DailyStat, 0, len(byDay))
	for _, st := range byDay {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

// TopShipTypes ranks ship types of KILLs by destroyed value.
func (r *Reports) TopShipTypes(ctx context.Context, rg Range, limit int) (out []ShipTypeStat, err error) {
	defer func(start time.Time) { r.s.observe("report_ship_types", start, err) }(time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := r.s.db.QueryContext(ctx, r.s.d.rebind(`SELECT st.type_name, COUNT(*), COALESCE(SUM(k.value), 0)
		FROM killmails k
		JOIN ships s ON k.ship_id = s.ship_id
		JOIN ship_types st ON s.ship_type_id = st.ship_type_id
		WHERE k.kill_datetime >= ? AND k.kill_datetime < ? AND k.kill_type = ?
		GROUP BY st.type_name
		ORDER BY 3 DESC, 1
		LIMIT ?`),
		r.s.d.timeArg(rg.start()), r.s.d.timeArg(rg.end()), string(model.KindKill), limit)
	if err != nil {
		return nil, fmt.Errorf("repository: top ship types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st ShipTypeStat
		if err = rows.Scan(&st.TypeName, &st.KillCount, &st.TotalISK); err != nil {
			return nil, fmt.Errorf("repository: top ship types: %w", err)
		}
		out = append(out, st)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: top ship types: %w", err)
	}
	return out, nil
}

// TopPilots ranks attackers flying for corporation by killmail count, then
// destroyed value.
func (r *Reports) TopPilots(ctx context.Context, corporation string, rg Range, limit int) (out []PilotStat, err error) {
	defer func(start time.Time) { r.s.observe("report_top_pilots", start, err) }(time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := r.s.db.QueryContext(ctx, r.s.d.rebind(`SELECT ka.pilot_name, COUNT(*), COALESCE(SUM(k.value), 0)
		FROM corporations c
		JOIN killmail_attackers ka ON ka.attacker_corporation_id = c.corporation_id
		JOIN killmails k ON k.killmail_id = ka.killmail_id
		WHERE c.corporation_name = ? AND k.kill_datetime >= ? AND k.kill_datetime < ?
		GROUP BY ka.pilot_name
		ORDER BY 2 DESC, 3 DESC, 1
		LIMIT ?`),
		corporation, r.s.d.timeArg(rg.start()), r.s.d.timeArg(rg.end()), limit)
	if err != nil {
		return nil, fmt.Errorf("repository: top pilots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p PilotStat
		if err = rows.Scan(&p.PilotName, &p.Kills, &p.ISKDestroyed); err != nil {
			return nil, fmt.Errorf("repository: top pilots: %w", err)
		}
		out = append(out, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: top pilots: %w", err)
	}
	return out, nil
}

// CorporationSummary counts KILLs the corporation took part in (each
// killmail once) and LOSSes it suffered.
func (r *Reports) CorporationSummary(ctx context.Context, corporation string, rg Range) (sum CorporationSummary, err error) {
	defer func(start time.Time) { r.s.observe("report_corporation_summary", start, err) }(time.Now())
	sum.Corporation = corporation
	from, to := r.s.d.timeArg(rg.start()), r.s.d.timeArg(rg.end())

	err = r.s.db.QueryRowContext(ctx, r.s.d.rebind(`SELECT COUNT(*), COALESCE(SUM(k.value), 0)
		FROM killmails k
		WHERE k.kill_type = ? AND k.kill_datetime >= ? AND k.kill_datetime < ?
		AND EXISTS (
			SELECT 1 FROM killmail_attackers ka
			JOIN corporations c ON ka.attacker_corporation_id = c.corporation_id
			WHERE ka.killmail_id = k.killmail_id AND c.corporation_name = ?
		)`), string(model.KindKill), from, to, corporation).Scan(&sum.TotalKills, &sum.ISKDestroyed)
	if err != nil {
		return CorporationSummary{}, fmt.Errorf("repository: corporation kills: %w", err)
	}

	err = r.s.db.QueryRowContext(ctx, r.s.d.rebind(`SELECT COUNT(*), COALESCE(SUM(k.value), 0)
		FROM killmails k
		JOIN corporations c ON k.victim_corporation_id = c.corporation_id
		WHERE k.kill_type = ? AND k.kill_datetime >= ? AND k.kill_datetime < ? AND c.corporation_name = ?`),
		string(model.KindLoss), from, to, corporation).Scan(&sum.TotalLosses, &sum.ISKLost)
	if err != nil {
		return CorporationSummary{}, fmt.Errorf("repository: corporation losses: %w", err)
	}
	return sum, nil
}

// HourlyDistribution buckets killmails by UTC hour. The peak is the busiest
// hour, the earliest on ties, and 0 when the range is empty.
func (r *Reports) HourlyDistribution(ctx context.Context, rg Range) (dist HourlyDistribution, err error) {
	defer func(start time.Time) { r.s.observe("report_hourly", start, err) }(time.Now())
	rows, err := r.s.db.QueryContext(ctx, r.s.d.rebind(`SELECT kill_datetime FROM killmails
		WHERE kill_datetime >= ? AND kill_datetime < ?`),
		r.s.d.timeArg(rg.start()), r.s.d.timeArg(rg.end()))
	if err != nil {
		return dist, fmt.Errorf("repository: hourly distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw any
		if err = rows.Scan(&raw); err != nil {
			return HourlyDistribution{}, fmt.Errorf("repository: hourly distribution: %w", err)
		}
		if ts, ok, terr := scanTime(raw); terr == nil && ok {
			dist.Hours[ts.Hour()]++
		}
	}
	if err = rows.Err(); err != nil {
		return HourlyDistribution{}, fmt.Errorf("repository: hourly distribution: %w", err)
	}
	for h, n := range dist.Hours {
		if n > dist.PeakCount {
			dist.PeakHour, dist.PeakCount = h, n
		}
	}
	return dist, nil
}

type shipLoss struct {
	pilot string
	at    time.Time
	value float64
}

// shipLosses loads the killmails where a pilot of corporation lost a ship
// named shipName. Names match case-insensitively.
func (r *Reports) shipLosses(ctx context.Context, corporation, shipName string, rg Range) ([]shipLoss, error) {
	corporation, shipName = strings.TrimSpace(corporation), strings.TrimSpace(shipName)
	if corporation == "" || shipName == "" {
		return nil, fmt.Errorf("%w: corporation and ship name are required", ErrInvalidFilter)
	}
	q := `SELECT p.pilot_name, k.kill_datetime, k.value
		FROM killmails k
		JOIN pilots p ON k.pilot_id = p.pilot_id
		JOIN ships s ON k.ship_id = s.ship_id
		JOIN corporations c ON k.victim_corporation_id = c.corporation_id
		WHERE LOWER(c.corporation_name) = LOWER(?) AND LOWER(s.ship_name) = LOWER(?)`
	args := []any{corporation, shipName}
	if !rg.unbounded() {
		q += ` AND k.kill_datetime >= ? AND k.kill_datetime < ?`
		args = append(args, r.s.d.timeArg(rg.start()), r.s.d.timeArg(rg.end()))
	}
	rows, err := r.s.db.QueryContext(ctx, r.s.d.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shipLoss
	for rows.Next() {
		var (
			l   shipLoss
			raw any
		)
		if err := rows.Scan(&l.pilot, &raw, &l.value); err != nil {
			return nil, err
		}
		ts, ok, terr := scanTime(raw)
		if terr != nil || !ok {
			continue
		}
		l.at = ts
		out = append(out, l)
	}
	return out, rows.Err()
}

// ShipLossesByMonth breaks the corporation's losses of one hull down per
// pilot per UTC month, newest month first and most losses first within it.
func (r *Reports) ShipLossesByMonth(ctx context.Context, corporation, shipName string, rg Range) (out []MonthlyShipLoss, err error) {
	defer func(start time.Time) { r.s.observe("report_ship_losses_monthly", start, err) }(time.Now())
	losses, err := r.shipLosses(ctx, corporation, shipName, rg)
	if err != nil {
		return nil, fmt.Errorf("repository: ship losses by month: %w", err)
	}

	type key struct{ month, pilot string }
	buckets := map[key]*MonthlyShipLoss{}
	for _, l := range losses {
		k := key{l.at.Format(MonthLayout), l.pilot}
		b := buckets[k]
		if b == nil {
			b = &MonthlyShipLoss{Month: k.month, PilotName: k.pilot}
			buckets[k] = b
		}
		b.Losses++
		b.ISKLost += l.value
	}

	out = make([]MonthlyShipLoss, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Month != b.Month {
			return a.Month > b.Month
		}
		if a.Losses != b.Losses {
			return a.Losses > b.Losses
		}
		return a.PilotName < b.PilotName
	})
	return out, nil
}

// ShipLossRanking ranks the corporation's pilots by how many ships named
// shipName they lost in rg, then by value lost. Pass AllTime for no bound.
func (r *Reports) ShipLossRanking(ctx context.Context, corporation, shipName string, rg Range) (out []ShipLossRank, err error) {
	defer func(start time.Time) { r.s.observe("report_ship_loss_ranking", start, err) }(time.Now())
	losses, err := r.shipLosses(ctx, corporation, shipName, rg)
	if err != nil {
		return nil, fmt.Errorf("repository: ship loss ranking: %w", err)
	}

	byPilot := map[string]*ShipLossRank{}
	for _, l := range losses {
		rk := byPilot[l.pilot]
		if rk == nil {
			rk = &ShipLossRank{PilotName: l.pilot, FirstLoss: l.at, LastLoss: l.at}
			byPilot[l.pilot] = rk
		}
		rk.Losses++
		rk.ISKLost += l.value
		if l.at.Before(rk.FirstLoss) {
			rk.FirstLoss = l.at
		}
		if l.at.After(rk.LastLoss) {
			rk.LastLoss = l.at
		}
	}

	out = make([]ShipLossRank, 0, len(byPilot))
	for _, rk := range byPilot {
		rk.AverageISK = rk.ISKLost / float64(rk.Losses)
		rk.SpanDays = int(rk.LastLoss.Sub(rk.FirstLoss) / (24 * time.Hour))
		out = append(out, *rk)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Losses != b.Losses {
			return a.Losses > b.Losses
		}
		if a.ISKLost != b.ISKLost {
			return a.ISKLost > b.ISKLost
		}
		return a.PilotName < b.PilotName
	})
	return out, nil
}

// Totals counts rows across the store.
func (r *Reports) Totals(ctx context.Context) (t Totals, err error) {
	defer func(start time.Time) { r.s.observe("report_totals", start, err) }(time.Now())
	err = r.s.db.QueryRowContext(ctx, r.s.d.rebind(`SELECT
		(SELECT COUNT(*) FROM killmails),
		(SELECT COUNT(*) FROM killmails WHERE kill_type = ?),
		(SELECT COUNT(*) FROM killmails WHERE kill_type = ?),
		(SELECT COUNT(*) FROM killmail_attackers),
		(SELECT COUNT(*) FROM pilots),
		(SELECT COUNT(*) FROM corporations)`),
		string(model.KindKill), string(model.KindLoss),
	).Scan(&t.Killmails, &t.Kills, &t.Losses, &t.Attackers, &t.Pilots, &t.Corporations)
	if err != nil {
		return Totals{}, fmt.Errorf("repository: totals: %w", err)
	}
	if oldest, ok, err := r.s.OldestKillTime(ctx); err != nil {
		return Totals{}, err
	} else if ok {
		t.Oldest = &oldest
	}
	if newest, ok, err := r.s.NewestKillTime(ctx); err != nil {
		return Totals{}, err
	} else if ok {
		t.Newest = &newest
	}
	return t, nil
}
