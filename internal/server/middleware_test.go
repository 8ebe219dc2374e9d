package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware_SessionFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "down", "MODEL_LOAD_ERROR")
	})
	handler := LoggingMiddleware(logger)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/sess-42", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "GET /sessions/{id}", entry["route"])
	assert.Equal(t, "sess-42", entry["session_id"])
	assert.EqualValues(t, http.StatusServiceUnavailable, entry["status"])
	assert.EqualValues(t, rec.Body.Len(), entry["response_bytes"])
	assert.NotContains(t, entry, "path")
}

func TestLoggingMiddleware_UnmatchedKeepsPath(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := LoggingMiddleware(logger)(http.NewServeMux())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "/nowhere", entry["path"])
	assert.NotContains(t, entry, "session_id")
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("panic before response", func(t *testing.T) {
		handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	})

	t.Run("panic after response started", func(t *testing.T) {
		handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("partial"))
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "partial", rec.Body.String())
	})
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantAllow  string
	}{
		{"listed origin", []string{"https://app.example"}, http.MethodGet, "https://app.example", false, http.StatusOK, "https://app.example"},
		{"unlisted origin", []string{"https://app.example"}, http.MethodGet, "https://evil.example", false, http.StatusOK, ""},
		{"wildcard", []string{"*"}, http.MethodPost, "https://any.example", false, http.StatusOK, "https://any.example"},
		{"preflight", []string{"*"}, http.MethodOptions, "https://any.example", true, http.StatusNoContent, "https://any.example"},
		{"no origin", []string{"*"}, http.MethodGet, "", false, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/sessions", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			CORSMiddleware(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantAllow != "" {
				assert.Equal(t, corsMethods, rec.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}
