package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sanazindustrial/PROFGINE-sub004/internal/observability"
	"github.com/sanazindustrial/PROFGINE-sub004/middleware"
	"github.com/sanazindustrial/PROFGINE-sub004/models"
	"github.com/sanazindustrial/PROFGINE-sub004/services"
	"github.com/sanazindustrial/PROFGINE-sub004/services/admin"
	"github.com/sanazindustrial/PROFGINE-sub004/services/orchestrator"
	"github.com/sanazindustrial/PROFGINE-sub004/services/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAdminService is a mock implementation of AdminService
type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) Snapshot() admin.Status {
	args := m.Called()
	return args.Get(0).(admin.Status)
}

func (m *MockAdminService) Update(ctx context.Context, p orchestrator.PartialConfig, actor string) (orchestrator.Config, error) {
	args := m.Called(ctx, p, actor)
	return args.Get(0).(orchestrator.Config), args.Error(1)
}

func (m *MockAdminService) Replace(ctx context.Context, cfg orchestrator.Config, actor string) (orchestrator.Config, error) {
	args := m.Called(ctx, cfg, actor)
	return args.Get(0).(orchestrator.Config), args.Error(1)
}

func (m *MockAdminService) History(ctx context.Context, limit int) ([]*models.ConfigSnapshot, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ConfigSnapshot), args.Error(1)
}

func (m *MockAdminService) RecentDispatches(ctx context.Context, limit int) ([]*models.DispatchRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DispatchRecord), args.Error(1)
}

type fixedStats observability.DispatchStats

func (s fixedStats) Snapshot() observability.DispatchStats { return observability.DispatchStats(s) }

func testStatus() admin.Status {
	return admin.Status{
		Config: orchestrator.Config{
			EnabledProviders:   []string{"openai", "groq"},
			PreferredProviders: []string{"groq"},
			FallbackToFree:     true,
		},
		Providers: []providers.Descriptor{
			{Name: "openai", Cost: providers.CostPaid, Available: false},
			{Name: "groq", Cost: providers.CostFree, Available: true},
		},
		CandidateOrder: []string{"groq"},
	}
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func withActor(r *http.Request, subject string) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &middleware.Claims{Subject: subject, Roles: []string{"admin"}}))
}

func TestAdminHandler_ListProviders(t *testing.T) {
	svc := new(MockAdminService)
	svc.On("Snapshot").Return(testStatus())
	h := NewAdminHandler(svc, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleListProviders(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Providers      []providers.Descriptor `json:"providers"`
		CandidateOrder []string               `json:"candidateOrder"`
	}
	decodeData(t, w, &body)
	assert.Equal(t, testStatus().Providers, body.Providers)
	assert.Equal(t, []string{"groq"}, body.CandidateOrder)
	svc.AssertExpectations(t)
}

func TestAdminHandler_GetConfig(t *testing.T) {
	svc := new(MockAdminService)
	svc.On("Snapshot").Return(testStatus())
	h := NewAdminHandler(svc, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleGetConfig(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ai/config", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var status admin.Status
	decodeData(t, w, &status)
	assert.Equal(t, testStatus(), status)
}

func TestAdminHandler_PatchConfig(t *testing.T) {
	t.Run("applies partial update as the caller", func(t *testing.T) {
		svc := new(MockAdminService)
		svc.On("Update", mock.Anything, mock.MatchedBy(func(p orchestrator.PartialConfig) bool {
			return p.FallbackToFree != nil && !*p.FallbackToFree &&
				p.EnabledProviders == nil && p.PreferredProviders == nil
		}), "alice").Return(orchestrator.Config{}, nil)
		svc.On("Snapshot").Return(testStatus())
		h := NewAdminHandler(svc, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/ai/config", strings.NewReader(`{"fallbackToFree":false}`))
		w := httptest.NewRecorder()
		h.HandlePatchConfig(w, withActor(req, "alice"))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("anonymous actor without claims", func(t *testing.T) {
		svc := new(MockAdminService)
		svc.On("Update", mock.Anything, mock.Anything, "anonymous").Return(orchestrator.Config{}, nil)
		svc.On("Snapshot").Return(testStatus())
		h := NewAdminHandler(svc, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/ai/config", strings.NewReader(`{"preferredProviders":[]}`))
		w := httptest.NewRecorder()
		h.HandlePatchConfig(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		svc := new(MockAdminService)
		h := NewAdminHandler(svc, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/ai/config", strings.NewReader(`{"fallback":false}`))
		w := httptest.NewRecorder()
		h.HandlePatchConfig(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("maps service validation error", func(t *testing.T) {
		svc := new(MockAdminService)
		svc.On("Update", mock.Anything, mock.Anything, mock.Anything).
			Return(orchestrator.Config{}, services.NewDomainError(services.ErrorTypeValidation, "unknown provider", nil))
		h := NewAdminHandler(svc, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/ai/config", strings.NewReader(`{"enabledProviders":["ghost"]}`))
		w := httptest.NewRecorder()
		h.HandlePatchConfig(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Snapshot")
	})
}

func TestAdminHandler_PutConfig(t *testing.T) {
	t.Run("replaces configuration", func(t *testing.T) {
		want := orchestrator.Config{
			EnabledProviders:   []string{"groq"},
			PreferredProviders: []string{},
			FallbackToFree:     false,
		}
		svc := new(MockAdminService)
		svc.On("Replace", mock.Anything, want, "bob").Return(want, nil)
		svc.On("Snapshot").Return(testStatus())
		h := NewAdminHandler(svc, nil, zap.NewNop())

		body := `{"enabledProviders":["groq"],"preferredProviders":[],"fallbackToFree":false}`
		req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/ai/config", strings.NewReader(body))
		w := httptest.NewRecorder()
		h.HandlePutConfig(w, withActor(req, "bob"))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("requires every field", func(t *testing.T) {
		svc := new(MockAdminService)
		h := NewAdminHandler(svc, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/ai/config", strings.NewReader(`{"enabledProviders":["groq"]}`))
		w := httptest.NewRecorder()
		h.HandlePutConfig(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		details := body["details"].(map[string]interface{})
		assert.Contains(t, details, "preferredProviders")
		assert.Contains(t, details, "fallbackToFree")
		svc.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAdminHandler_ConfigHistory(t *testing.T) {
	t.Run("passes limit through", func(t *testing.T) {
		history := []*models.ConfigSnapshot{
			models.NewConfigSnapshot([]string{"groq"}, []string{}, true, "alice"),
		}
		svc := new(MockAdminService)
		svc.On("History", mock.Anything, 10).Return(history, nil)
		h := NewAdminHandler(svc, nil, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleConfigHistory(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ai/config/history?limit=10", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var got []models.ConfigSnapshot
		decodeData(t, w, &got)
		require.Len(t, got, 1)
		assert.Equal(t, "alice", got[0].UpdatedBy)
		svc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		svc := new(MockAdminService)
		h := NewAdminHandler(svc, nil, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleConfigHistory(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ai/config/history?limit=-1", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "History", mock.Anything, mock.Anything)
	})

	t.Run("history not kept", func(t *testing.T) {
		svc := new(MockAdminService)
		svc.On("History", mock.Anything, 0).
			Return(nil, services.NewDomainError(services.ErrorTypeNotFound, "configuration history is not persisted", nil))
		h := NewAdminHandler(svc, nil, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleConfigHistory(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ai/config/history", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminHandler_RecentDispatches(t *testing.T) {
	provider := "groq"
	records := []*models.DispatchRecord{{
		DispatchID: "d-1",
		Mode:       models.DispatchModeFallback,
		Provider:   &provider,
		Outcome:    models.DispatchSucceeded,
		Attempts:   json.RawMessage(`[]`),
		CreatedAt:  time.Now().UTC(),
	}}
	svc := new(MockAdminService)
	svc.On("RecentDispatches", mock.Anything, 0).Return(records, nil)
	h := NewAdminHandler(svc, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleRecentDispatches(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ai/dispatches", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var got []models.DispatchRecord
	decodeData(t, w, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "d-1", got[0].DispatchID)
	assert.Equal(t, models.DispatchSucceeded, got[0].Outcome)
}

func TestAdminHandler_Stats(t *testing.T) {
	t.Run("reports collected metrics", func(t *testing.T) {
		stats := fixedStats{Dispatches: 4, Failures: 1, Providers: []observability.ProviderStats{{Provider: "groq", Served: 3}}}
		h := NewAdminHandler(new(MockAdminService), stats, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ai/stats", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var got observability.DispatchStats
		decodeData(t, w, &got)
		assert.Equal(t, int64(4), got.Dispatches)
		assert.Equal(t, int64(1), got.Failures)
		assert.Equal(t, int64(3), got.Providers[0].Served)
	})

	t.Run("not enabled", func(t *testing.T) {
		h := NewAdminHandler(new(MockAdminService), nil, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ai/stats", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
