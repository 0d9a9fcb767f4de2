package middleware

import (
	"net/http"
	"strconv"

	"github.com/watsumi/gentle-review/internal/metrics"
)

// Metrics records request count by method, route, and status code. The mux
// pattern is used when one matched so that page ids do not become labels.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		path := r.URL.Path
		if r.Pattern != "" {
			path = r.Pattern
		}
		metrics.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
	})
}
