package api

import (
	"net/http"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/registry"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/gorilla/mux"
)

func recordOp(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RegistryOperationsTotal.WithLabelValues(operation, result).Inc()
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.store.List()
	recordOp("list", err)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]types.NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Redacted())
	}
	respondJSON(w, http.StatusOK, nodesResponse{Nodes: out})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	rec, err := s.lookup(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nodeResponse{Node: rec.Redacted()})
}

// handleCreateNode registers a node by hand. Manual nodes are approved on
// creation and any client supplied discovery block is replaced. Omitted
// optional fields default to empty.
func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var rec types.NodeRecord
	if err := decodeJSON(r, &rec); err != nil {
		s.respondError(w, r, err)
		return
	}
	if rec.Auth == nil {
		rec.Auth = &types.Auth{Type: types.AuthNone}
	}
	if rec.Labels == nil {
		rec.Labels = map[string]string{}
	}
	if rec.Capabilities == nil {
		rec.Capabilities = []string{}
	}
	rec.Discovery = &types.Discovery{
		Source:    types.SourceManual,
		FirstSeen: types.Timestamp(s.now()),
		Approved:  true,
	}

	created, err := s.store.Create(rec)
	recordOp("create", err)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.publish(events.EventNodeCreated, created.ID, "Node created", map[string]string{"base_url": created.BaseURL})
	respondJSON(w, http.StatusCreated, nodeResponse{Node: created.Redacted()})
}

// handleUpdateNode applies a partial update. Discovery metadata is owned by
// the hub and silently ignored. A bearer auth block without a token keeps
// the stored token, so a redacted record can be sent back as-is.
func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch types.NodePatch
	if err := decodeJSON(r, &patch); err != nil {
		s.respondError(w, r, err)
		return
	}
	patch.Discovery = nil
	if patch.IsEmpty() {
		s.respondError(w, r, &registry.ValidationError{Field: "body", Message: "no updatable fields provided"})
		return
	}

	updated, err := s.store.UpdateFunc(id, func(current types.NodeRecord) (types.NodePatch, error) {
		p := patch
		if p.Auth != nil && p.Auth.Type == types.AuthBearer && p.Auth.Token == "" &&
			current.Auth != nil && current.Auth.Type == types.AuthBearer {
			a := *p.Auth
			a.Token = current.Auth.Token
			p.Auth = &a
		}
		return p, nil
	})
	recordOp("update", err)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.publish(events.EventNodeUpdated, updated.ID, "Node updated", nil)
	respondJSON(w, http.StatusOK, nodeResponse{Node: updated.Redacted()})
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	deleted, err := s.store.Delete(id)
	recordOp("delete", err)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !deleted {
		s.respondError(w, r, registry.ErrNotFound)
		return
	}

	s.publish(events.EventNodeDeleted, id, "Node deleted", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApproveNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	approved, err := s.store.UpdateFunc(id, func(current types.NodeRecord) (types.NodePatch, error) {
		disc := types.Discovery{Source: types.SourceManual, FirstSeen: types.Timestamp(s.now())}
		if current.Discovery != nil {
			disc = *current.Discovery
		}
		disc.Approved = true
		return types.NodePatch{Discovery: &disc}, nil
	})
	recordOp("approve", err)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.publish(events.EventNodeApproved, approved.ID, "Node approved", nil)
	respondJSON(w, http.StatusOK, nodeResponse{Node: approved.Redacted()})
}

// lookup loads one record or returns registry.ErrNotFound
func (s *Server) lookup(id string) (types.NodeRecord, error) {
	rec, err := s.store.Get(id)
	recordOp("get", err)
	if err != nil {
		return types.NodeRecord{}, err
	}
	if rec == nil {
		return types.NodeRecord{}, registry.ErrNotFound
	}
	return *rec, nil
}
