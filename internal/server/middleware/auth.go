package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth returns middleware that gates every request behind a shared API key.
// Clients may present the key as "Authorization: Bearer <key>" or in the
// X-API-Key header. With an empty key the middleware is a pass-through,
// which is how local development runs.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			got, ok := presentedKey(r)
			if !ok {
				deny(w, "missing authentication token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				deny(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey pulls the credential out of the request, preferring the
// Authorization header over X-API-Key when both are set.
func presentedKey(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, rest, found := strings.Cut(auth, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			if token := strings.TrimSpace(rest); token != "" {
				return token, true
			}
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}
	return "", false
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
