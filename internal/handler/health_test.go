package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/citafacil/citafacil/internal/identity"
	"github.com/citafacil/citafacil/internal/model"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

type mockSessionState struct {
	state identity.State
}

func (m mockSessionState) Current() (*model.Session, identity.State) {
	return nil, m.state
}

func TestHealthHandler_Healthz(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(nil, "", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		storage    HealthChecker
		sessions   SessionState
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			storage:    &mockHealthChecker{},
			sessions:   mockSessionState{identity.StateReady},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"redis": "ok", "session": "ready"},
		},
		{
			name:       "storage down",
			storage:    &mockHealthChecker{err: errors.New("connection refused")},
			sessions:   mockSessionState{identity.StateReady},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "error: connection refused"},
		},
		{
			name:       "session loading",
			storage:    &mockHealthChecker{},
			sessions:   mockSessionState{identity.StateLoading},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"session": "loading"},
		},
		{
			name:       "storage not configured",
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"redis": "not configured"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler(tt.storage, "redis", tt.sessions)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, resp.Checks[k], v)
				}
			}
		})
	}
}
