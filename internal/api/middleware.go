package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/auction-catalog/internal/logging"
	"github.com/fpang/auction-catalog/internal/metrics"
)

// OriginVerifyHeader carries the shared secret CloudFront injects.
const OriginVerifyHeader = "x-origin-verify"

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// withRequestLogging attaches a request-scoped logger to the context and
// logs entry and exit.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, id := logging.WithRequest(r)
		r = r.WithContext(ctx)
		w.Header().Set(logging.RequestIDHeader, id)

		logger := zerolog.Ctx(ctx)
		logger.Debug().Str("query", r.URL.RawQuery).Msg("Handler invoked")

		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sr, r)

		logger.Info().
			Int("status", sr.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Handler response")
	})
}

// withOriginVerify rejects requests lacking the configured x-origin-verify
// header. An empty secret disables the check.
func withOriginVerify(secret string, next http.Handler) http.Handler {
	if secret == "" {
		log.Warn().Msg("Origin verify secret not set, origin verification disabled")
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(OriginVerifyHeader) != secret {
			zerolog.Ctx(r.Context()).Warn().Msg("Blocked request: missing or invalid x-origin-verify header")
			httpError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withMetrics emits per-request EMF metrics: RequestLatencyMs and
// RequestCount by endpoint.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		metrics.Catalog().
			Dimension("Endpoint", endpointName(r)).
			Duration("RequestLatencyMs", time.Since(start)).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", sr.statusCode).
			Property("path", r.URL.Path).
			Flush()
	})
}

// endpointName returns a low-cardinality endpoint label. The ServeMux
// records the matched pattern on the request; unmatched paths have their
// ID-like segments collapsed.
func endpointName(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return normalizeEndpoint(r.URL.Path)
}

// normalizeEndpoint collapses parameterized paths:
// /api/batches/batch_abc123/results -> /api/batches/*/results
func normalizeEndpoint(path string) string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		if looksLikeID(p) {
			p = "*"
		}
		parts = append(parts, p)
	}
	return "/" + strings.Join(parts, "/")
}

// looksLikeID reports whether a path segment is an opaque identifier: a
// number, a prefixed ID such as batch_... or img_..., or a long
// hex/ULID-style token.
func looksLikeID(s string) bool {
	if s == "" {
		return false
	}
	if strings.Trim(s, "0123456789") == "" {
		return true
	}
	if i := strings.IndexByte(s, '_'); i > 0 && len(s)-i > 8 {
		return true
	}
	if len(s) < 16 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && c != '-' {
			return false
		}
	}
	return strings.ContainsAny(s, "0123456789")
}
