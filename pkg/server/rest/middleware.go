package rest

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/mod/semver"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

const (
	versionHeader = "X-Logger-Version"
	traceIDHeader = "X-Trace-ID"
)

// traceID exposes the request's trace ID to callers. Without an active
// trace the header is omitted.
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		if span != nil && span.SpanContext().IsValid() {
			w.Header().Set(traceIDHeader, span.SpanContext().TraceID().String())
		}
		next.ServeHTTP(w, r)
	})
}

// requireIngestToken guards the ingest routes with the shared token.
// Without a configured token everything passes.
func (s *Server) requireIngestToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" || utils.HashToken(token) != s.tokenHash {
			s.l.Debug("rejected ingest token", log.String("remote", r.RemoteAddr))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireLoggerVersion rejects loggers running firmware older than the
// configured minimum.
func (s *Server) requireLoggerVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.minLoggerVersion == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !CheckLoggerVersion(r.Header.Get(versionHeader), s.minLoggerVersion) {
			s.l.Debug("rejected logger version",
				log.String("version", r.Header.Get(versionHeader)),
				log.String("remote", r.RemoteAddr))
			http.Error(w, "logger version too old", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CheckLoggerVersion reports whether toCheck is at least minVersion.
// The leading "v" may be omitted on both sides.
func CheckLoggerVersion(toCheck, minVersion string) bool {
	if !strings.HasPrefix(toCheck, "v") {
		toCheck = "v" + toCheck
	}
	if !strings.HasPrefix(minVersion, "v") {
		minVersion = "v" + minVersion
	}
	return semver.Compare(toCheck, minVersion) >= 0
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return header[len(prefix):]
}
