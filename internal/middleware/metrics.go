package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/metrics"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// WithRequestMetrics records request counts and durations per route.
func WithRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordRequest(r.Method, routePattern(r), strconv.Itoa(status), time.Since(start).Seconds())
	})
}
