package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/lookout/pkg/auth"
	"github.com/cuemby/lookout/pkg/metrics"
)

// AdminTokenHeader carries the admin credential alongside a regular bearer token
const AdminTokenHeader = "X-Admin-Token"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	})
}

// requireWrite guards mutating routes with the API token. The admin token
// is accepted too. With no API token configured the route is open.
func (s *Server) requireWrite(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next(w, r)
			return
		}
		token, ok := auth.ParseBearer(r.Header.Get("Authorization"))
		if ok && (auth.Match(token, s.apiToken) || auth.Match(token, s.adminToken)) {
			next(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="lookout"`)
		s.respondError(w, r, newError(http.StatusUnauthorized, CodeUnauthorized, "missing or invalid API token"))
	}
}

// checkAdmin validates the admin credential. It never passes when no admin
// token is configured, regardless of the API token setting.
func (s *Server) checkAdmin(r *http.Request) error {
	if s.adminToken == "" {
		return newError(http.StatusForbidden, CodeAdminRequired, "admin credential is not configured on this hub")
	}
	if auth.Match(r.Header.Get(AdminTokenHeader), s.adminToken) {
		return nil
	}
	if token, ok := auth.ParseBearer(r.Header.Get("Authorization")); ok && auth.Match(token, s.adminToken) {
		return nil
	}
	return newError(http.StatusForbidden, CodeAdminRequired, "this action requires the admin credential")
}
