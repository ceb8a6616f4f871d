// Package apitest runs an in-process imitation of the Eventify REST API for
// tests. Every list endpoint answers with the envelope the real backend uses,
// over deterministic seed data, and tests can inject latency and failures.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Row is one record served by a list endpoint.
type Row = map[string]any

// Recorded is a request the server received.
type Recorded struct {
	Method    string
	Path      string
	Query     url.Values
	Auth      string
	RequestID string
}

// Server is a fake Eventify API.
type Server struct {
	*httptest.Server

	// Token, when set, is required as a bearer token.
	Token string

	mu       sync.Mutex
	data     map[string][]Row
	latency  func(r *http.Request) time.Duration
	failures []int
	requests []Recorded
}

// New starts a server with the default seed data and closes it when the test
// ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{data: Seed()}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.record)
	r.Use(s.inject)
	r.Use(s.auth)

	r.Get("/events/", s.list("events", func(rows []Row, count int, _ pageInfo) any {
		return map[string]any{"events": rows, "organizers": []Row{}, "count": count}
	}))
	r.Get("/organizers/", s.list("organizers", func(rows []Row, count int, _ pageInfo) any {
		return map[string]any{"organizers": rows, "count": count}
	}))
	r.Route("/users", func(r chi.Router) {
		r.Get("/clients/", s.list("clients", totalPagesOnly))
		r.Get("/organizers/", s.list("admin-organizers", totalPagesOnly))
	})
	r.Route("/admin", func(r chi.Router) {
		r.Get("/events/", s.list("admin-events", successList("events")))
		r.Get("/wallet/", s.list("company-wallet", successList("transactions")))
	})
	r.Get("/coupon/coupons/", s.list("coupons", func(rows []Row, count int, p pageInfo) any {
		return map[string]any{"results": rows, "count": count, "next": p.nextURL, "previous": p.prevURL}
	}))
	r.Get("/organizer/organizer-events/", s.list("organizer-events", func(rows []Row, count int, p pageInfo) any {
		return map[string]any{
			"results":  map[string]any{"success": true, "count": count, "events": rows},
			"count":    count,
			"next":     p.nextURL,
			"previous": p.prevURL,
		}
	}))
	r.Get("/organizer/organizer-bookings/", s.list("bookings", func(rows []Row, count int, _ pageInfo) any {
		return map[string]any{"success": true, "bookings": rows, "count": count}
	}))
	r.Route("/wallet", func(r chi.Router) {
		r.Get("/transactions/", s.list("user-wallet", nestedWallet))
		r.Get("/organizer/transactions/", s.list("organizer-wallet", nestedWallet))
	})
	return r
}

func totalPagesOnly(rows []Row, _ int, p pageInfo) any {
	return map[string]any{"results": rows, "total_pages": p.totalPages}
}

func successList(key string) func([]Row, int, pageInfo) any {
	return func(rows []Row, count int, p pageInfo) any {
		return map[string]any{"success": true, key: rows, "count": count, "next": p.nextURL, "previous": p.prevURL}
	}
}

func nestedWallet(rows []Row, count int, p pageInfo) any {
	return map[string]any{
		"results": map[string]any{
			"wallet":       map[string]any{"wallet_id": "w-1", "balance": 1200},
			"transactions": rows,
		},
		"count":       count,
		"next":        p.nextURL,
		"previous":    p.prevURL,
		"total_pages": p.totalPages,
	}
}

type pageInfo struct {
	totalPages int
	nextURL    any
	prevURL    any
}

// list serves the named dataset: filters by query parameters, then slices
// the requested page. An out-of-range page answers with no rows, like a
// backend that clamps nothing.
func (s *Server) list(dataset string, envelope func([]Row, int, pageInfo) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		size := atoiDefault(q.Get("page_size"), 10)
		if dataset == "organizers" && q.Get("page_size") == "" {
			size = 12
		}
		if page < 1 || size < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid page"})
			return
		}

		s.mu.Lock()
		rows := filterRows(s.data[dataset], q)
		s.mu.Unlock()

		count := len(rows)
		totalPages := (count + size - 1) / size
		if totalPages < 1 {
			totalPages = 1
		}
		start := (page - 1) * size
		end := start + size
		if start > count {
			start = count
		}
		if end > count {
			end = count
		}

		info := pageInfo{totalPages: totalPages}
		if page < totalPages {
			info.nextURL = pageURL(r, page+1)
		}
		if page > 1 {
			info.prevURL = pageURL(r, page-1)
		}
		writeJSON(w, http.StatusOK, envelope(append([]Row{}, rows[start:end]...), count, info))
	}
}

func filterRows(rows []Row, q url.Values) []Row {
	var out []Row
	for _, row := range rows {
		if matches(row, q) {
			out = append(out, row)
		}
	}
	return out
}

func matches(row Row, q url.Values) bool {
	for key, vals := range q {
		val := vals[0]
		if val == "" || key == "page" || key == "page_size" {
			continue
		}
		if key == "search" {
			if !containsText(row, val) {
				return false
			}
			continue
		}
		field, ok := row[key]
		if !ok {
			continue
		}
		if fmt.Sprint(field) != val {
			return false
		}
	}
	return true
}

func containsText(row Row, needle string) bool {
	needle = strings.ToLower(needle)
	for _, v := range row {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func pageURL(r *http.Request, page int) string {
	u := *r.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return "http://" + r.Host + u.RequestURI()
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- middleware ---

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Recorded{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.Query(),
			Auth:      r.Header.Get("Authorization"),
			RequestID: r.Header.Get("X-Request-ID"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		latency := s.latency
		status := 0
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if latency != nil {
			if d := latency(r); d > 0 {
				select {
				case <-time.After(d):
				case <-r.Context().Done():
					return
				}
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]any{"error": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Authentication credentials were not provided."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- test controls ---

// SetLatency installs a function deciding how long each request is held
// before it is answered. nil removes it.
func (s *Server) SetLatency(fn func(r *http.Request) time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = fn
}

// FailNext makes the next len(statuses) requests answer with those statuses.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// SetRows replaces a dataset. Known datasets: events, organizers, clients,
// admin-organizers, admin-events, company-wallet, coupons, bookings,
// user-wallet, organizer-wallet.
func (s *Server) SetRows(dataset string, rows []Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[dataset] = rows
}

// Rows returns the rows of a dataset.
func (s *Server) Rows(dataset string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.data[dataset]...)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.requests...)
}

// RequestsTo returns the requests received for path.
func (s *Server) RequestsTo(path string) []Recorded {
	var out []Recorded
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// DatasetNames lists the datasets in a stable order.
func (s *Server) DatasetNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
