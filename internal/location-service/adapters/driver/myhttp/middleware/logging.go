package middleware

import (
	"net/http"
	"time"

	"bus-tracker/internal/mylogger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(log mylogger.Logger) func(http.Handler) http.Handler {
	log = log.Action("http_request")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			}
			if status >= http.StatusInternalServerError {
				log.Warn("request completed", args...)
				return
			}
			log.Info("request completed", args...)
		})
	}
}
