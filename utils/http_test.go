package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusOK, map[string]string{"message": "test"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteJSON(w, http.StatusNoContent, nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteOK(w, map[string]string{"result": "success"}))
	assert.Equal(t, http.StatusOK, w.Code)

	var response SuccessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	dataMap := response.Data.(map[string]interface{})
	assert.Equal(t, "success", dataMap["result"])
}

func TestReadJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{name: "valid", payload: `{"name":"groq"}`},
		{name: "empty", payload: ``, wantErr: "empty"},
		{name: "unknown field", payload: `{"name":"groq","extra":1}`, wantErr: "invalid JSON"},
		{name: "malformed", payload: `{"name":`, wantErr: "invalid JSON"},
		{name: "trailing object", payload: `{"name":"a"}{"name":"b"}`, wantErr: "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var dst body
			err := ReadJSON(req, &dst)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "groq", dst.Name)
		})
	}
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name        string
		write       func(w http.ResponseWriter) error
		wantStatus  int
		wantType    string
		wantMessage string
	}{
		{
			name:        "bad request",
			write:       func(w http.ResponseWriter) error { return WriteBadRequest(w, "Invalid input", nil) },
			wantStatus:  http.StatusBadRequest,
			wantType:    "bad_request",
			wantMessage: "Invalid input",
		},
		{
			name:        "unauthorized default",
			write:       func(w http.ResponseWriter) error { return WriteUnauthorized(w, "") },
			wantStatus:  http.StatusUnauthorized,
			wantType:    "unauthorized",
			wantMessage: "Authentication required",
		},
		{
			name:        "forbidden default",
			write:       func(w http.ResponseWriter) error { return WriteForbidden(w, "") },
			wantStatus:  http.StatusForbidden,
			wantType:    "forbidden",
			wantMessage: "Access forbidden",
		},
		{
			name:        "not found",
			write:       func(w http.ResponseWriter) error { return WriteNotFound(w, "No history") },
			wantStatus:  http.StatusNotFound,
			wantType:    "not_found",
			wantMessage: "No history",
		},
		{
			name:        "conflict",
			write:       func(w http.ResponseWriter) error { return WriteConflict(w, "Conflict", nil) },
			wantStatus:  http.StatusConflict,
			wantType:    "conflict",
			wantMessage: "Conflict",
		},
		{
			name:        "internal default",
			write:       func(w http.ResponseWriter) error { return WriteInternalServerError(w, "") },
			wantStatus:  http.StatusInternalServerError,
			wantType:    "internal_error",
			wantMessage: "Internal server error",
		},
		{
			name:        "bad gateway",
			write:       func(w http.ResponseWriter) error { return WriteBadGateway(w, "groq failed", nil) },
			wantStatus:  http.StatusBadGateway,
			wantType:    "bad_gateway",
			wantMessage: "groq failed",
		},
		{
			name:        "service unavailable default",
			write:       func(w http.ResponseWriter) error { return WriteServiceUnavailable(w, "", nil) },
			wantStatus:  http.StatusServiceUnavailable,
			wantType:    "service_unavailable",
			wantMessage: "Service unavailable",
		},
		{
			name:        "gateway timeout",
			write:       func(w http.ResponseWriter) error { return WriteGatewayTimeout(w, "") },
			wantStatus:  http.StatusGatewayTimeout,
			wantType:    "gateway_timeout",
			wantMessage: "Upstream timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, tt.write(w))

			assert.Equal(t, tt.wantStatus, w.Code)
			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantType, response.Error)
			assert.Equal(t, tt.wantMessage, response.Message)
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		status   int
		wantType string
	}{
		{http.StatusBadRequest, "bad_request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "not_found"},
		{http.StatusConflict, "conflict"},
		{StatusClientClosedRequest, "client_closed_request"},
		{http.StatusBadGateway, "bad_gateway"},
		{http.StatusServiceUnavailable, "service_unavailable"},
		{http.StatusGatewayTimeout, "gateway_timeout"},
		{http.StatusTeapot, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			w := httptest.NewRecorder()
			details := map[string]interface{}{"provider": "groq"}

			require.NoError(t, WriteError(w, tt.status, "msg", details))

			assert.Equal(t, tt.status, w.Code)
			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantType, response.Error)
			assert.Equal(t, "groq", response.Details["provider"])
		})
	}
}
