package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"feedwire/internal/observability/logging"
	"feedwire/internal/resilience/circuitbreaker"
	"feedwire/internal/usecase/ingest"
)

// BreakerAdmin exposes per-domain breaker state and manual reset.
type BreakerAdmin interface {
	Snapshot() []circuitbreaker.DomainStats
	Reset(domain string)
}

var _ BreakerAdmin = (*circuitbreaker.Registry)(nil)

// CycleReporter exposes the controller's state and recent cycles.
type CycleReporter interface {
	State() ingest.State
	History() []ingest.CycleStats
}

// HealthServer provides HTTP endpoints for health checks:
//   - /health: liveness probe (always 200 OK)
//   - /health/ready: readiness probe (200 if ready, 503 if not)
//   - /health/breakers: per-domain circuit breaker state
//   - POST /health/breakers/{domain}/reset: force a known domain closed
//   - /health/cycles: controller state and recent cycle statistics
//
// The server supports graceful shutdown via context cancellation.
//
// Example usage:
//
//	healthServer := NewHealthServer(":9091", logger, registry, controller)
//	go func() {
//	    if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
//	        logger.Error("health server failed", slog.Any("error", err))
//	    }
//	}()
//	healthServer.SetReady(true)
type HealthServer struct {
	addr     string
	logger   *slog.Logger
	isReady  *atomic.Bool
	server   *http.Server
	breakers BreakerAdmin
	cycles   CycleReporter
}

// healthResponse is the JSON response format for health check endpoints.
type healthResponse struct {
	Status string `json:"status"`
}

type breakersResponse struct {
	Domains []circuitbreaker.DomainStats `json:"domains"`
	Open    int                          `json:"open"`
}

type cyclesResponse struct {
	State   ingest.State        `json:"state"`
	History []ingest.CycleStats `json:"history"`
}

// NewHealthServer creates a health server. breakers and cycles may be nil;
// their endpoints then return 404.
func NewHealthServer(addr string, logger *slog.Logger, breakers BreakerAdmin, cycles CycleReporter) *HealthServer {
	return &HealthServer{
		addr:     addr,
		logger:   logger,
		isReady:  &atomic.Bool{},
		breakers: breakers,
		cycles:   cycles,
	}
}

// Handler returns the endpoint mux wrapped with request id, access log and
// panic recovery middleware.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleLiveness)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	if h.breakers != nil {
		mux.HandleFunc("GET /health/breakers", h.handleBreakers)
		mux.HandleFunc("POST /health/breakers/{domain}/reset", h.handleBreakerReset)
	}
	if h.cycles != nil {
		mux.HandleFunc("GET /health/cycles", h.handleCycles)
	}
	return chain(mux, withRequestID(h.logger), accessLog, recoverPanic)
}

// Start serves until ctx is cancelled, then shuts down with a 5-second
// timeout and returns http.ErrServerClosed.
func (h *HealthServer) Start(ctx context.Context) error {
	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting", slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		h.logger.Info("health server stopped")
		return http.ErrServerClosed

	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return err
		}
		h.logger.Error("health server failed", slog.Any("error", err))
		return err
	}
}

// SetReady sets the readiness state reported by /health/ready.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("health server readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready"})
}

// handleBreakers always answers 200: open circuits are degraded sources,
// not an unhealthy worker.
func (h *HealthServer) handleBreakers(w http.ResponseWriter, r *http.Request) {
	resp := breakersResponse{Domains: h.breakers.Snapshot()}
	if resp.Domains == nil {
		resp.Domains = []circuitbreaker.DomainStats{}
	}
	for _, d := range resp.Domains {
		if d.State == circuitbreaker.StateOpen {
			resp.Open++
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleBreakerReset closes the circuit of a known domain.
func (h *HealthServer) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	domain := strings.ToLower(r.PathValue("domain"))
	for _, d := range h.breakers.Snapshot() {
		if d.Domain != domain {
			continue
		}
		h.breakers.Reset(domain)
		logging.FromContext(r.Context()).Info("circuit breaker reset by operator",
			slog.String("domain", domain),
			slog.String("previous_state", d.StateName))
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "reset"})
		return
	}
	h.writeJSON(w, http.StatusNotFound, healthResponse{Status: "unknown domain"})
}

func (h *HealthServer) handleCycles(w http.ResponseWriter, r *http.Request) {
	resp := cyclesResponse{State: h.cycles.State(), History: h.cycles.History()}
	if resp.History == nil {
		resp.History = []ingest.CycleStats{}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
