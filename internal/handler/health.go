package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/citafacil/citafacil/internal/identity"
	"github.com/citafacil/citafacil/internal/model"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// SessionState reports whether the active session has been restored.
type SessionState interface {
	Current() (*model.Session, identity.State)
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	storage  HealthChecker
	sessions SessionState
	backend  string
}

// NewHealthHandler creates a new HealthHandler. backend names the storage
// check in readiness output; sessions may be nil.
func NewHealthHandler(storage HealthChecker, backend string, sessions SessionState) *HealthHandler {
	if backend == "" {
		backend = "storage"
	}
	return &HealthHandler{storage: storage, sessions: sessions, backend: backend}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe with no dependency checks.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz returns 200 once storage answers and the session is restored.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.storage == nil {
		checks[h.backend] = "not configured"
		healthy = false
	} else if err := h.storage.Ping(ctx); err != nil {
		checks[h.backend] = "error: " + err.Error()
		healthy = false
	} else {
		checks[h.backend] = "ok"
	}

	if h.sessions != nil {
		_, state := h.sessions.Current()
		checks["session"] = state.String()
		if state != identity.StateReady {
			healthy = false
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Checks: checks})
}
