package api

import (
	"io"
	"net/http"

	"github.com/cuemby/lookout/pkg/proxy"
	"github.com/cuemby/lookout/pkg/registry"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/gorilla/mux"
)

type containerActionResponse struct {
	NodeID string        `json:"node_id"`
	Action string        `json:"action"`
	Status *proxy.Status `json:"status"`
}

func (s *Server) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	st, err := s.proxy.Status(r.Context(), rec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// handleNodeAction forwards an action to a node. Docker container actions
// also need the admin credential.
func (s *Server) handleNodeAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	action := vars["action"]

	if err := proxy.ValidateAction(action); err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.lookup(vars["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if proxy.RequiresAdmin(rec, action) {
		if err := s.checkAdmin(r); err != nil {
			s.logger.Warn().Str("node_id", rec.ID).Str("action", action).Msg("Container action without admin credential")
			s.respondError(w, r, err)
			return
		}
		st, err := s.proxy.ContainerAction(r.Context(), rec, action)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, containerActionResponse{NodeID: rec.ID, Action: action, Status: st})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		s.respondError(w, r, &registry.ValidationError{Field: "body", Message: "failed to read request body", Err: err})
		return
	}
	if len(body) > maxRequestBytes {
		s.respondError(w, r, &registry.ValidationError{Field: "body", Message: "request body too large"})
		return
	}

	res, err := s.proxy.Action(r.Context(), rec, action, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.List()
	recordOp("list", err)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if nodes == nil {
		nodes = []types.NodeRecord{}
	}

	overview, err := s.proxy.Overview(r.Context(), nodes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}
