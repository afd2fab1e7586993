package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func authedHandler(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	return Auth(apiKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func doRequest(h http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	h := authedHandler(t, "")
	rec := doRequest(h, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthBearerToken(t *testing.T) {
	h := authedHandler(t, "s3cret")

	rec := doRequest(h, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer s3cret")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Scheme matching is case-insensitive.
	rec = doRequest(h, func(r *http.Request) {
		r.Header.Set("Authorization", "bearer s3cret")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthAPIKeyHeader(t *testing.T) {
	h := authedHandler(t, "s3cret")
	rec := doRequest(h, func(r *http.Request) {
		r.Header.Set("X-API-Key", "s3cret")
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := authedHandler(t, "s3cret")
	rec := doRequest(h, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authentication token")
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestAuthRejectsWrongToken(t *testing.T) {
	h := authedHandler(t, "s3cret")

	rec := doRequest(h, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer nope")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid authentication token")

	rec = doRequest(h, func(r *http.Request) {
		r.Header.Set("X-API-Key", "nope")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthPrefersBearerOverAPIKey(t *testing.T) {
	h := authedHandler(t, "s3cret")
	rec := doRequest(h, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer nope")
		r.Header.Set("X-API-Key", "s3cret")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
