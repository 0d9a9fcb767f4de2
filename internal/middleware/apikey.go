package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// unauthenticated lists the paths monitoring polls without a key.
var unauthenticated = map[string]bool{
	"/api/health": true,
	"/metrics":    true,
}

// APIKey guards the API with a shared key, read from X-API-Key or from an
// "Authorization: Bearer" header for page scripts that cannot set custom
// headers on every fetch. An empty key disables the check.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if unauthenticated[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			switch provided := clientKey(r); {
			case provided == "":
				denyKey(w, "missing API key")
			case subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1:
				denyKey(w, "invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func clientKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func denyKey(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
