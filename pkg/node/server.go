package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/lookout/pkg/auth"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/rs/zerolog"
)

// ComponentCamera is the critical component gating readiness
const ComponentCamera = "camera"

const maxActionBody = 1 << 20

var actionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ActionFunc handles POST /api/actions/{action}. The returned value is
// encoded as the result.
type ActionFunc func(ctx context.Context, body []byte) (any, error)

// Trigger forces an immediate announce
type Trigger interface {
	Trigger()
}

// Options configures the node agent server
type Options struct {
	NodeID    string
	Version   string
	APIToken  string
	Health    *metrics.HealthChecker
	Announcer Trigger
}

// Server is the webcam node's HTTP surface probed by the hub
type Server struct {
	nodeID   string
	apiToken string
	health   *metrics.HealthChecker

	actions map[string]ActionFunc
	mu      sync.RWMutex

	mux    *http.ServeMux
	logger zerolog.Logger
}

// NewServer creates the node server. The built-in "announce" action is
// registered when an announcer is given.
func NewServer(opts Options) *Server {
	health := opts.Health
	if health == nil {
		health = metrics.NewHealthChecker(ComponentCamera)
	}
	if opts.Version != "" {
		health.SetVersion(opts.Version)
	}

	s := &Server{
		nodeID:   opts.NodeID,
		apiToken: opts.APIToken,
		health:   health,
		actions:  make(map[string]ActionFunc),
		mux:      http.NewServeMux(),
		logger:   log.WithComponent("node").With().Str("node_id", opts.NodeID).Logger(),
	}

	if opts.Announcer != nil {
		announcer := opts.Announcer
		s.actions["announce"] = func(context.Context, []byte) (any, error) {
			announcer.Trigger()
			return map[string]string{"announce": "triggered"}, nil
		}
	}

	s.mux.HandleFunc("GET /health", health.HealthHandler())
	s.mux.HandleFunc("GET /ready", health.ReadyHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("POST /api/actions/{action}", s.handleAction)
	return s
}

// Health returns the component tracker behind /health and /ready
func (s *Server) Health() *metrics.HealthChecker {
	return s.health
}

// Register adds or replaces an action handler
func (s *Server) Register(name string, fn ActionFunc) error {
	if !actionName.MatchString(name) {
		return fmt.Errorf("invalid action name %q", name)
	}
	if fn == nil {
		return errors.New("action handler is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[name] = fn
	return nil
}

// Actions lists the registered action names
func (s *Server) Actions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type actionResponse struct {
	NodeID string `json:"node_id,omitempty"`
	Action string `json:"action"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("action")

	if s.apiToken != "" {
		if err := auth.CheckRequest(r, s.apiToken); err != nil {
			metrics.NodeActionsTotal.WithLabelValues(name, "unauthorized").Inc()
			w.Header().Set("WWW-Authenticate", `Bearer realm="lookout-node"`)
			writeJSON(w, http.StatusUnauthorized, actionResponse{Action: name, Status: "error", Error: "unauthorized"})
			return
		}
	}

	s.mu.RLock()
	fn, ok := s.actions[name]
	s.mu.RUnlock()
	if !ok {
		metrics.NodeActionsTotal.WithLabelValues("unknown", "not_found").Inc()
		writeJSON(w, http.StatusNotFound, actionResponse{Action: name, Status: "error", Error: "unknown action"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxActionBody+1))
	if err != nil || len(body) > maxActionBody {
		metrics.NodeActionsTotal.WithLabelValues(name, "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, actionResponse{Action: name, Status: "error", Error: "unreadable or oversized body"})
		return
	}

	result, err := fn(r.Context(), body)
	if err != nil {
		metrics.NodeActionsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error().Err(err).Str("action", name).Msg("Action failed")
		writeJSON(w, http.StatusInternalServerError, actionResponse{NodeID: s.nodeID, Action: name, Status: "error", Error: err.Error()})
		return
	}

	metrics.NodeActionsTotal.WithLabelValues(name, "ok").Inc()
	s.logger.Info().Str("action", name).Msg("Action executed")
	writeJSON(w, http.StatusOK, actionResponse{NodeID: s.nodeID, Action: name, Status: "ok", Result: result})
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Node agent listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
