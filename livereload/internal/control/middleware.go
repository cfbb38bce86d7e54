package control

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/devlive/idgen"
)

var traceID = idgen.Prefixed("ctl_", idgen.NanoID(8))

// HeadToGet converts HEAD requests to GET so that handlers registered with
// r.Get() answer HEAD probes. net/http strips the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// NoStore marks every control response uncacheable and unsniffable.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// RequestLog tags each request with a short trace id, echoed in
// X-Trace-ID, and logs it at Debug once served.
func RequestLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := traceID()
			w.Header().Set("X-Trace-ID", id)
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("control: request",
				"trace_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"duration", time.Since(start))
		})
	}
}
