package api

import (
	"net/http"
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint
// This is a simple liveness check - returns 200 if the process is alive
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: s.now(),
		Version:   s.version,
	})
}

// readyHandler implements the /ready endpoint
// The hub is ready once the registry file can be read under its lock
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true
	var message string

	if _, err := s.store.List(); err != nil {
		checks["registry"] = "unavailable"
		ready = false
		message = "Node registry not accessible"
	} else {
		checks["registry"] = "ok"
	}

	if s.broker != nil {
		checks["events"] = "ok"
	} else {
		checks["events"] = "disabled"
	}

	if s.discoverySecret != "" {
		checks["discovery"] = "enabled"
	} else {
		checks["discovery"] = "disabled"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: s.now(),
		Checks:    checks,
		Message:   message,
	})
}
