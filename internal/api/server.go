// Package api provides the local HTTP control surface of the wake boost
// daemon: status, the wake_boost parameter, injected display events and
// the cycle journal.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/wakeboost/internal/boost"
	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/health"
)

// maxParamBody bounds a wake_boost write; the value is a decimal uint32.
const maxParamBody = 64

// Booster is the controller surface the API drives.
type Booster interface {
	Status() boost.Status
	DurationString() string
	SetDuration(value string) error
}

// PolicySource exposes applied CPU policies and forces recomputation.
type PolicySource interface {
	Policies() []domain.Policy
	UpdateAll() (int, error)
}

// DisplayInjector announces display transitions.
type DisplayInjector interface {
	Transition(b domain.BlankLevel)
	Last() (domain.BlankLevel, bool)
}

// History lists journaled boost cycles.
type History interface {
	Recent(limit int) ([]domain.BoostCycle, error)
}

// HealthReporter exposes the latest health check results.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// Server is the wake boost HTTP API server.
type Server struct {
	booster        Booster
	policies       PolicySource
	display        DisplayInjector
	history        History        // nil when the journal is disabled
	health         HealthReporter // nil when health checks are not wired
	metricsEnabled bool
	log            logr.Logger
}

// NewServer creates a new API server.
func NewServer(b Booster, p PolicySource, d DisplayInjector, log logr.Logger) *Server {
	return &Server{booster: b, policies: p, display: d, log: log.WithName("api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHistory sets the cycle journal served on /api/history.
func (s *Server) SetHistory(h History) { s.history = h }

// SetHealth sets the health reporter included in status responses.
func (s *Server) SetHealth(h HealthReporter) { s.health = h }

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Boost    boost.Status    `json:"boost"`
	Display  string          `json:"display,omitempty"`
	Policies []domain.Policy `json:"policies"`
	Healthy  bool            `json:"healthy"`
	Health   []health.Status `json:"health,omitempty"`
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/params/wake_boost", s.handleGetParam)
		r.Put("/params/wake_boost", s.handleSetParam)
		r.Post("/display/{state}", s.handleDisplay)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/history", s.handleHistory)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil && !s.health.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Boost:    s.booster.Status(),
		Policies: s.policies.Policies(),
		Healthy:  true,
	}
	if resp.Policies == nil {
		resp.Policies = []domain.Policy{}
	}
	if last, ok := s.display.Last(); ok {
		resp.Display = last.String()
	}
	if s.health != nil {
		resp.Health = s.health.Statuses()
		resp.Healthy = s.health.IsHealthy()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, s.booster.DurationString())
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxParamBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxParamBody {
		writeError(w, http.StatusRequestEntityTooLarge, "value too long")
		return
	}

	if err := s.booster.SetDuration(string(body)); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrControllerStopped):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeText(w, http.StatusOK, s.booster.DurationString())
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	level, err := domain.ParseBlankLevel(chi.URLParam(r, "state"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.display.Transition(level)
	writeJSON(w, http.StatusAccepted, map[string]string{"state": level.String()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	n, err := s.policies.UpdateAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	cycles, err := s.history.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cycles == nil {
		cycles = []domain.BoostCycle{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeText writes a parameter value the way a sysfs attribute reads.
func writeText(w http.ResponseWriter, status int, v string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, strings.TrimRight(v, "\n")+"\n")
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// requestLogger logs each request at V(1) with its status and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.V(1).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"latency", time.Since(start).String(),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}

// corsMiddleware lets browsers read the daemon but never drive it: reads
// carry CORS headers, writes that come with an Origin header are refused.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
			return
		default:
			if r.Header.Get("Origin") != "" {
				writeError(w, http.StatusForbidden, "cross-origin writes are not allowed")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
