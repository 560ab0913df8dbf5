package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type callerKey struct{}

// CallerFromContext returns the caller name set by AuthMiddleware, or "".
func CallerFromContext(ctx context.Context) string {
	name, _ := ctx.Value(callerKey{}).(string)
	return name
}

// apiKeyFromRequest reads X-SafeOps-Key, falling back to a bearer token.
func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-SafeOps-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// matchCaller compares key against every configured key without stopping
// at the first hit.
func matchCaller(apiKeys map[string]string, key string) (string, bool) {
	var caller string
	found := false
	for k, name := range apiKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			caller, found = name, true
		}
	}
	return caller, found
}

// AuthMiddleware requires a key from apiKeys (key -> caller name) and stores
// the caller in the request context. An empty apiKeys disables the check.
func AuthMiddleware(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(apiKeys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKeyFromRequest(r)
			caller, ok := matchCaller(apiKeys, key)
			if key == "" || !ok {
				log.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_present", key != "").
					Msg("api_auth_rejected")
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
		})
	}
}

// CORSMiddleware answers preflight requests and sets CORS headers for the
// dashboard. An origin of "*" allows any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			switch origin := r.Header.Get("Origin"); {
			case allowed["*"]:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-SafeOps-Key")
			h.Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes {"error": code, "message": message}.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
