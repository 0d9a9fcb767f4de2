package middleware

import "net/http"

// Chain wraps the handler with the full middleware stack.
// Order: CORS → RequestID → Logging → Metrics → RateLimit → APIKey → MaxBytes → mux
// Timeouts are applied per route since streaming responses cannot carry one.
func Chain(handler http.Handler, rl *RateLimiter, apiKey string, maxBody int64) http.Handler {
	h := handler
	h = MaxBytes(maxBody)(h)
	h = APIKey(apiKey)(h)
	h = RateLimit(rl)(h)
	h = Metrics(h)
	h = Logging(h)
	h = RequestID(h)
	h = CORS(h)
	return h
}
