package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logging writes one line per request. Page routes also carry the page and
// comment ids from the matched pattern, which the mux fills in on r while
// next runs.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		attrs := []any{"request_id", orDash(RequestIDFromContext(r.Context())), "method", r.Method}
		if r.Pattern != "" {
			attrs = append(attrs, "route", r.Pattern)
		} else {
			attrs = append(attrs, "path", r.URL.Path)
		}
		if id := r.PathValue("id"); id != "" {
			attrs = append(attrs, "page", id)
		}
		if cid := r.PathValue("cid"); cid != "" {
			attrs = append(attrs, "comment", cid)
		}
		attrs = append(attrs, "status", sw.status, "duration_ms", time.Since(start).Milliseconds())
		slog.Info("request", attrs...)
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer's Flush.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
