package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/lookout/pkg/auth"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/registry"
	"github.com/cuemby/lookout/pkg/transport"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/google/uuid"
)

// NodeID derives a stable id for a node that announces without one
func NodeID(baseURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(baseURL))).String()
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	result := "error"
	defer func() { metrics.AnnouncesTotal.WithLabelValues(result).Inc() }()

	if s.discoverySecret == "" {
		result = "disabled"
		s.respondError(w, r, newError(http.StatusForbidden, CodeDiscoveryDisabled, "node discovery is disabled on this hub"))
		return
	}
	if !s.limiter.allow(r) {
		result = "rate_limited"
		w.Header().Set("Retry-After", "1")
		s.respondError(w, r, newError(http.StatusTooManyRequests, CodeRateLimited, "too many announcements"))
		return
	}
	if err := auth.CheckRequest(r, s.discoverySecret); err != nil {
		result = "unauthorized"
		s.respondError(w, r, newError(http.StatusUnauthorized, CodeUnauthorized, "missing or invalid discovery secret"))
		return
	}

	var payload types.AnnouncementPayload
	if err := decodeJSON(r, &payload); err != nil {
		result = "invalid"
		s.respondError(w, r, err)
		return
	}
	if payload.Transport == "" {
		payload.Transport = types.TransportHTTP
	}
	if payload.Labels == nil {
		payload.Labels = map[string]string{}
	}
	if payload.Capabilities == nil {
		payload.Capabilities = []string{}
	}
	payload.BaseURL = strings.TrimSpace(payload.BaseURL)

	if err := transport.ValidateBaseURLForTransport(payload.BaseURL, payload.Transport); err != nil {
		result = "invalid"
		field := "base_url"
		if errors.Is(err, transport.ErrUnsupportedTransport) {
			field = "transport"
		}
		s.respondError(w, r, &registry.ValidationError{Field: field, Message: err.Error(), Err: err})
		return
	}
	if err := s.checkAnnouncedTarget(r, payload); err != nil {
		result = "blocked"
		s.logger.Warn().Str("base_url", payload.BaseURL).Err(err).Msg("Rejected announcement for blocked target")
		s.respondError(w, r, err)
		return
	}

	id := strings.TrimSpace(payload.ID)
	if id == "" {
		id = NodeID(payload.BaseURL)
	}

	now := s.now()
	stamp := types.Timestamp(now)
	create := types.NodeRecord{
		ID:           id,
		Name:         payload.Name,
		BaseURL:      payload.BaseURL,
		Transport:    payload.Transport,
		Auth:         &types.Auth{Type: types.AuthNone},
		Labels:       payload.Labels,
		Capabilities: payload.Capabilities,
		LastSeen:     stamp,
		Discovery: &types.Discovery{
			Source:         types.SourceDiscovered,
			FirstSeen:      stamp,
			LastAnnounceAt: stamp,
			Approved:       false,
		},
	}

	var revoked bool
	rec, verb, err := s.store.UpsertFromCurrent(id, create, func(current types.NodeRecord) (types.NodePatch, error) {
		patch, rev := announcePatch(current, payload, now)
		revoked = rev
		return patch, nil
	})
	if err != nil {
		result = "invalid"
		if !registry.IsValidation(err) {
			result = "error"
		}
		s.respondError(w, r, err)
		return
	}

	result = string(verb)
	meta := map[string]string{"base_url": rec.BaseURL, "transport": string(rec.Transport)}
	if verb == registry.VerbCreated {
		s.publish(events.EventNodeDiscovered, rec.ID, "Node discovered", meta)
		respondJSON(w, http.StatusCreated, nodeResponse{Node: rec.Redacted()})
		return
	}
	s.publish(events.EventNodeAnnounced, rec.ID, "Node announced", meta)
	if revoked {
		s.publish(events.EventNodeRevoked, rec.ID, "Approval revoked after target change", meta)
	}
	respondJSON(w, http.StatusOK, nodeResponse{Node: rec.Redacted()})
}

// checkAnnouncedTarget applies the SSRF guard to the host the hub would later
// contact: the node itself for http, the docker API proxy for docker
func (s *Server) checkAnnouncedTarget(r *http.Request, payload types.AnnouncementPayload) error {
	if payload.Transport == types.TransportDocker {
		target, err := transport.ParseDockerURL(payload.BaseURL)
		if err != nil {
			return &registry.ValidationError{Field: "base_url", Message: err.Error(), Err: err}
		}
		return s.guard.CheckHost(r.Context(), target.Host)
	}
	return s.guard.CheckURL(r.Context(), payload.BaseURL)
}

// announcePatch computes the refresh applied to an already registered node.
// Source, first_seen and auth always survive. Approval survives unless a
// discovered node moved to a different target.
func announcePatch(current types.NodeRecord, payload types.AnnouncementPayload, now time.Time) (types.NodePatch, bool) {
	disc := types.Discovery{Source: types.SourceDiscovered, FirstSeen: types.Timestamp(now)}
	if current.Discovery != nil {
		disc = *current.Discovery
	}

	announceAt := now
	if prev, err := types.ParseTimestamp(disc.LastAnnounceAt); err == nil && !announceAt.After(prev) {
		announceAt = prev.Add(time.Nanosecond)
	}
	disc.LastAnnounceAt = types.Timestamp(announceAt)

	revoked := false
	moved := current.BaseURL != payload.BaseURL || current.Transport != payload.Transport
	if moved && disc.Source == types.SourceDiscovered && disc.Approved {
		disc.Approved = false
		revoked = true
	}

	patch := types.NodePatch{
		BaseURL:   types.Ptr(payload.BaseURL),
		Transport: types.Ptr(payload.Transport),
		LastSeen:  types.Ptr(types.Timestamp(now)),
		Discovery: &disc,
	}
	if payload.Name != "" {
		patch.Name = types.Ptr(payload.Name)
	}
	if payload.Labels != nil {
		patch.Labels = payload.Labels
	}
	if payload.Capabilities != nil {
		patch.Capabilities = payload.Capabilities
	}
	return patch, revoked
}

type nodeResponse struct {
	Node types.NodeRecord `json:"node"`
}

type nodesResponse struct {
	Nodes []types.NodeRecord `json:"nodes"`
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return &registry.ValidationError{Field: "body", Message: "failed to read request body", Err: err}
	}
	if len(body) > maxRequestBytes {
		return &registry.ValidationError{Field: "body", Message: "request body too large"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &registry.ValidationError{Field: typeErr.Field, Message: "has the wrong type", Err: err}
		}
		return &registry.ValidationError{Field: "body", Message: "malformed JSON", Err: err}
	}
	return nil
}
