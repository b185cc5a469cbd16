package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/okian/killsync/internal/adapters/repository"
	"github.com/okian/killsync/pkg/logger"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// ReportsHandler serves the aggregate report endpoints.
type ReportsHandler struct {
	reports     Reports
	corporation string
	now         func() time.Time
	logger      logger.Logger
}

// NewReportsHandler creates report handlers. corporation is the default
// filter when a request names none.
func NewReportsHandler(reports Reports, corporation string) *ReportsHandler {
	return &ReportsHandler{
		reports:     reports,
		corporation: corporation,
		now:         time.Now,
		logger:      logger.Nop(),
	}
}

// HandleDaily handles GET /api/v1/stats/daily.
func (h *ReportsHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	rg, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	out, err := h.reports.DailyStats(r.Context(), rg)
	h.respond(w, r, out, err)
}

// HandleHourly handles GET /api/v1/stats/hourly.
func (h *ReportsHandler) HandleHourly(w http.ResponseWriter, r *http.Request) {
	rg, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	out, err := h.reports.HourlyDistribution(r.Context(), rg)
	h.respond(w, r, out, err)
}

// HandleTopShipTypes handles GET /api/v1/ship-types/top.
func (h *ReportsHandler) HandleTopShipTypes(w http.ResponseWriter, r *http.Request) {
	rg, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	out, err := h.reports.TopShipTypes(r.Context(), rg, limit)
	h.respond(w, r, out, err)
}

// HandleTopPilots handles GET /api/v1/pilots/top.
func (h *ReportsHandler) HandleTopPilots(w http.ResponseWriter, r *http.Request) {
	rg, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	out, err := h.reports.TopPilots(r.Context(), h.corporationParam(r), rg, limit)
	h.respond(w, r, out, err)
}

// HandleCorporationSummary handles GET /api/v1/corporations/summary.
func (h *ReportsHandler) HandleCorporationSummary(w http.ResponseWriter, r *http.Request) {
	rg, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	out, err := h.reports.CorporationSummary(r.Context(), h.corporationParam(r), rg)
	h.respond(w, r, out, err)
}

type shipLossesResponse struct {
	Ship        string                       `json:"ship"`
	Corporation string                       `json:"corporation"`
	From        string                       `json:"from,omitempty"`
	To          string                       `json:"to,omitempty"`
	ByMonth     []repository.MonthlyShipLoss `json:"by_month"`
	Ranking     []repository.ShipLossRank    `json:"ranking"`
}

// HandleShipLosses handles GET /api/v1/ships/{name}/losses. all=true drops
// the date range.
func (h *ReportsHandler) HandleShipLosses(w http.ResponseWriter, r *http.Request) {
	ship, err := url.PathUnescape(chi.URLParam(r, "name"))
	if ship = strings.TrimSpace(ship); err != nil || ship == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: ship name is required", ErrBadRequest))
		return
	}
	resp := shipLossesResponse{Ship: ship, Corporation: h.corporationParam(r)}

	rg := repository.AllTime
	all, err := parseBool(r.URL.Query().Get("all"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if !all {
		var ok bool
		if rg, ok = h.parseRange(w, r); !ok {
			return
		}
		resp.From, resp.To = rg.From.Format(repository.DateLayout), rg.To.Format(repository.DateLayout)
	}

	ctx := r.Context()
	if resp.ByMonth, err = h.reports.ShipLossesByMonth(ctx, resp.Corporation, ship, rg); err != nil {
		h.respond(w, r, nil, err)
		return
	}
	resp.Ranking, err = h.reports.ShipLossRanking(ctx, resp.Corporation, ship, rg)
	h.respond(w, r, resp, err)
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: all must be a boolean", ErrBadRequest)
	}
	return b, nil
}

func (h *ReportsHandler) parseRange(w http.ResponseWriter, r *http.Request) (repository.Range, bool) {
	q := r.URL.Query()
	rg, err := repository.ParseRange(q.Get("from"), q.Get("to"), h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return repository.Range{}, false
	}
	return rg, true
}

func (h *ReportsHandler) corporationParam(r *http.Request) string {
	if c := strings.TrimSpace(r.URL.Query().Get("corporation")); c != "" {
		return c
	}
	return h.corporation
}

// parseLimit accepts 1..maxLimit and defaults to defaultLimit.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		writeError(w, http.StatusBadRequest, "bad_request",
			fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, maxLimit))
		return 0, false
	}
	return n, true
}

func (h *ReportsHandler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		status, code := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error(r.Context(), "report query failed", logger.String("path", r.URL.Path), logger.Error(err))
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
