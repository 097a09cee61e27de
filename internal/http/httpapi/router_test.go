package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"posterd/internal/http/handlers"
	"posterd/internal/infra"
)

func TestRouterHealthAndRequestID(t *testing.T) {
	router := NewRouter(handlers.NewApp(&infra.Config{RateLimitPerMin: 5}, nil, nil, nil, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/posters/abc", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE status = %d, want 405", rr.Code)
	}
}
