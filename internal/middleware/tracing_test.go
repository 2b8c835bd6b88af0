package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestTracing_PassesThrough(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"state":"created"}`))
	})

	wrapped := Tracing()(handler)

	req := httptest.NewRequest("POST", "/api/v1/settlements", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, `{"state":"created"}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestTracing_WithRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Tracing())
	r.Get("/api/v1/settlements/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/settlements/0b6f7e0e", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Span name comes from the pattern, not the raw path; behavior here is
	// just that routing and the response survive instrumentation.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTracing_PreservesErrorStatus(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusConflict, http.StatusServiceUnavailable} {
		wrapped := Tracing()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		req := httptest.NewRequest("GET", "/api/v1/rotations/status", nil)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		assert.Equal(t, code, w.Code)
	}
}
