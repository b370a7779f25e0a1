package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/lookout/pkg/proxy"
	"github.com/cuemby/lookout/pkg/registry"
	"github.com/cuemby/lookout/pkg/ssrf"
)

// Error codes returned in the error envelope
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeNodeNotFound            = "NODE_NOT_FOUND"
	CodeNodeConflict            = "NODE_CONFLICT"
	CodeRegistryUnavailable     = "REGISTRY_UNAVAILABLE"
	CodeTargetBlocked           = "TARGET_BLOCKED"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeAdminRequired           = "ADMIN_REQUIRED"
	CodeDiscoveryDisabled       = "DISCOVERY_DISABLED"
	CodeRateLimited             = "RATE_LIMITED"
	CodeNodeUnreachable         = "NODE_UNREACHABLE"
	CodeNodeUnauthorized        = "NODE_UNAUTHORIZED"
	CodeTransportUnsupported    = "TRANSPORT_UNSUPPORTED"
	CodeDockerNotFound          = "DOCKER_CONTAINER_NOT_FOUND"
	CodeDockerActionUnsupported = "DOCKER_ACTION_UNSUPPORTED"
	CodeInvalidAction           = "INVALID_ACTION"
	CodeInternal                = "INTERNAL_ERROR"
)

// Error is the body of every failed response
type Error struct {
	Status  int            `json:"-"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error *Error `json:"error"`
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func (e *Error) with(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// classify maps a domain error to its response. Messages for outbound and
// storage failures are fixed strings so internal detail never reaches
// clients.
func classify(err error) *Error {
	var ve *registry.ValidationError
	var apiErr *Error

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &ve):
		return newError(http.StatusBadRequest, CodeValidation, ve.Error()).with("field", ve.Field)
	case errors.Is(err, registry.ErrNotFound):
		return newError(http.StatusNotFound, CodeNodeNotFound, "node not found")
	case errors.Is(err, registry.ErrConflict):
		return newError(http.StatusConflict, CodeNodeConflict, "a node with this id already exists")
	case errors.Is(err, registry.ErrUnavailable):
		e := newError(http.StatusServiceUnavailable, CodeRegistryUnavailable, "node registry is unavailable")
		if errors.Is(err, registry.ErrCorrupted) {
			e.with("reason", "corrupted")
		}
		return e
	case errors.Is(err, proxy.ErrNodeUnauthorized):
		return newError(http.StatusUnauthorized, CodeNodeUnauthorized, "node rejected the configured credentials")
	case errors.Is(err, proxy.ErrNodeUnreachable):
		return newError(http.StatusServiceUnavailable, CodeNodeUnreachable, "node is unreachable")
	case errors.Is(err, ssrf.ErrBlocked):
		return newError(http.StatusForbidden, CodeTargetBlocked, "target address is not allowed")
	case errors.Is(err, proxy.ErrTransportUnsupported):
		return newError(http.StatusBadRequest, CodeTransportUnsupported, "operation is not supported for this node's transport")
	case errors.Is(err, proxy.ErrDockerContainerNotFound):
		return newError(http.StatusNotFound, CodeDockerNotFound, "docker container not found")
	case errors.Is(err, proxy.ErrDockerActionUnsupported):
		return newError(http.StatusBadRequest, CodeDockerActionUnsupported, "docker action not supported").with("allowed", proxy.ContainerActions)
	case errors.Is(err, proxy.ErrInvalidAction):
		return newError(http.StatusBadRequest, CodeInvalidAction, "invalid action name")
	default:
		return newError(http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// Error implements error so handlers can return an *Error directly
func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends the error envelope for err
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Str("code", e.Code).Msg("Request failed")
	} else {
		s.logger.Debug().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Str("code", e.Code).Msg("Request rejected")
	}
	respondJSON(w, e.Status, errorEnvelope{Error: e})
}
