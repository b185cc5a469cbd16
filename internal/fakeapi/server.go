package fakeapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/killsync/internal/domain/model"
)

// Server serves a Feed under both upstream URL layouts:
//
//	GET /api/corporationID/{corp}/page/{page}/
//	GET /latest/killmails/{id}/{hash}/
//	GET /latest/{characters|corporations}/{id}/
//	GET /latest/universe/{systems|types|groups}/{id}/
type Server struct {
	feed *Feed

	requests atomic.Int64
	limited  atomic.Int64

	mu   sync.Mutex
	hits map[string]int
}

// NewServer creates a Server for feed.
func NewServer(feed *Feed) *Server {
	return &Server{feed: feed, hits: make(map[string]int)}
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)
	r.Use(s.rateLimit)

	r.Get("/api/corporationID/{corp}/page/{page}/", s.page)
	r.Route("/latest", func(r chi.Router) {
		r.Use(esiHeaders)
		r.Get("/killmails/{id}/{hash}/", s.killmail)
		r.Get("/characters/{id}/", s.name("characters"))
		r.Get("/corporations/{id}/", s.name("corporations"))
		r.Get("/universe/systems/{id}/", s.name("universe/systems"))
		r.Get("/universe/types/{id}/", s.shipType)
		r.Get("/universe/groups/{id}/", s.name("universe/groups"))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	return r
}

// Requests returns how many requests reached the server.
func (s *Server) Requests() int64 { return s.requests.Load() }

// RateLimited returns how many requests were answered with 429.
func (s *Server) RateLimited() int64 { return s.limited.Load() }

// Hits returns how many requests were made for one URL path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	every := int64(s.feed.cfg.RateLimitEvery)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if every > 0 && s.requests.Load()%every == 0 {
			s.limited.Add(1)
			w.Header().Set("Retry-After", strconv.Itoa(s.feed.cfg.RetryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func esiHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("datasource") != "tranquility" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown datasource"})
			return
		}
		w.Header().Set("X-Esi-Error-Limit-Remain", "100")
		w.Header().Set("X-Esi-Error-Limit-Reset", "60")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	corp, err := strconv.ParseInt(chi.URLParam(r, "corp"), 10, 64)
	page, perr := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || perr != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	entries := []model.FeedEntry{}
	if corp == s.feed.cfg.CorporationID {
		if p := s.feed.Page(page); p != nil {
			entries = p
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) killmail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	d, ok := s.feed.Details[id]
	if err != nil || !ok || s.hashOf(id) != chi.URLParam(r, "hash") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Killmail not found"})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) hashOf(id int64) string {
	i := firstKillmailID + len(s.feed.Entries) - int(id)
	if i < 0 || i >= len(s.feed.Entries) {
		return ""
	}
	return s.feed.Entries[i].ZKB.Hash
}

func (s *Server) name(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		n, ok := s.feed.Names[kind][id]
		if err != nil || !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": kind + " not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": n})
	}
}

func (s *Server) shipType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	n, ok := s.feed.Names["universe/types"][id]
	if err != nil || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Type not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"type_id": id, "name": n, "group_id": s.feed.TypeGroups[id]})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
