// Package groupserver implements the per-host group endpoint that groupsync
// coordinates. It is the reference host used by groupd and by tests.
package groupserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/dreamware/groupsync/internal/cluster"
	"github.com/dreamware/groupsync/internal/metrics"
	"github.com/dreamware/groupsync/internal/storage"
)

// Server serves group membership for one host.
type Server struct {
	store   storage.Store
	logger  *slog.Logger
	fault   func(r *http.Request) bool
	limiter *rate.Limiter
	mu      sync.RWMutex // protects fault and limiter
}

// New returns a Server backed by store. A nil logger discards output.
func New(store storage.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{store: store, logger: logger}
}

// SetFaultInjector installs fn; group requests for which it returns true are
// answered with 503 without touching the store. nil disables injection.
func (s *Server) SetFaultInjector(fn func(r *http.Request) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// SetRateLimit caps group requests at rps per second with the given burst.
// Requests over the limit get 429. rps <= 0 removes the limit.
func (s *Server) SetRateLimit(rps float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rps <= 0 {
		s.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// RandomFaults returns an injector failing roughly rate of all requests.
func RandomFaults(rate float64, seed int64) func(r *http.Request) bool {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(seed))
	return func(*http.Request) bool {
		mu.Lock()
		defer mu.Unlock()
		return rnd.Float64() < rate
	}
}

// Handler returns the routes served by a host:
//
//	/v1/group/    POST, DELETE, GET {id}, GET (list)
//	/health       liveness
//	/stats        group counters
//	/metrics      prometheus
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(cluster.GroupPath, s.handleGroup)
	mux.HandleFunc(cluster.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.store.Stats())
	})
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.DefaultRegistry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
	defer func() {
		metrics.HostRequests.WithLabelValues(r.Method, strconv.Itoa(rec.code)).Inc()
	}()

	if !s.allow() {
		http.Error(rec, "rate limited", http.StatusTooManyRequests)
		return
	}
	if s.injectFault(r) {
		s.logger.Info("injected fault", "method", r.Method, "path", r.URL.Path)
		http.Error(rec, "injected fault", http.StatusServiceUnavailable)
		return
	}

	id, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), cluster.GroupPath))
	if err != nil {
		http.Error(rec, "bad group id", http.StatusBadRequest)
		return
	}

	switch {
	case r.Method == http.MethodPost && id == "":
		s.handleCreate(rec, r)
	case r.Method == http.MethodDelete && id == "":
		s.handleDelete(rec, r)
	case r.Method == http.MethodGet && id != "":
		s.handleStatus(rec, id)
	case r.Method == http.MethodGet:
		writeJSON(rec, http.StatusOK, struct {
			Groups []string `json:"groups"`
		}{Groups: s.store.List()})
	default:
		http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGroupRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.Add(req.GroupID); err != nil {
		if errors.Is(err, storage.ErrGroupExists) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("group created", "group", req.GroupID)
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGroupRequest(w, r)
	if !ok {
		return
	}
	if err := s.store.Remove(req.GroupID); err != nil {
		if errors.Is(err, storage.ErrGroupNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.logger.Info("group deleted", "group", req.GroupID)
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleStatus(w http.ResponseWriter, id string) {
	if !s.store.Has(id) {
		http.Error(w, storage.ErrGroupNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cluster.GroupRequest{GroupID: id})
}

func (s *Server) injectFault(r *http.Request) bool {
	s.mu.RLock()
	fn := s.fault
	s.mu.RUnlock()
	return fn != nil && fn(r)
}

func (s *Server) allow() bool {
	s.mu.RLock()
	l := s.limiter
	s.mu.RUnlock()
	return l == nil || l.Allow()
}

func decodeGroupRequest(w http.ResponseWriter, r *http.Request) (cluster.GroupRequest, bool) {
	var req cluster.GroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return req, false
	}
	if strings.TrimSpace(req.GroupID) == "" {
		http.Error(w, "missing groupId", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
