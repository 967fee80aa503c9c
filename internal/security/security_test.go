package security_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-erp/internal/security"
)

func echoHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestBodyLimitAllowsSmallBody(t *testing.T) {
	t.Parallel()

	handler := security.BodyLimit{Max: 64}.Middleware(echoHandler(t))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ok":true}`)))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestBodyLimitRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	handler := security.BodyLimit{Max: 8}.Middleware(echoHandler(t))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 9))))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBodyLimitDisabledPassesThrough(t *testing.T) {
	t.Parallel()

	handler := security.BodyLimit{}.Middleware(echoHandler(t))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1<<16))))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHeadersSetWhenEnabled(t *testing.T) {
	t.Parallel()

	handler := security.Headers{Enable: true}.Middleware(echoHandler(t))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
	// No HSTS over plain HTTP.
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersDisabled(t *testing.T) {
	t.Parallel()

	handler := security.Headers{}.Middleware(echoHandler(t))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}
