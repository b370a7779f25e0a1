package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/proxy"
	"github.com/cuemby/lookout/pkg/registry"
	"github.com/cuemby/lookout/pkg/ssrf"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	maxRequestBytes = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Options configures the hub API server
type Options struct {
	Store  *registry.Store
	Proxy  *proxy.Proxy
	Guard  *ssrf.Guard
	Broker *events.Broker

	// APIToken protects every mutating route. Empty disables write auth.
	APIToken string
	// AdminToken is required for docker container actions. Empty rejects them.
	AdminToken string
	// DiscoverySecret is the shared secret nodes announce with. Empty
	// disables the announce endpoint.
	DiscoverySecret string

	RatePerSecond float64
	Burst         int

	Version string
	Now     func() time.Time
}

// Server is the management hub HTTP API
type Server struct {
	store   *registry.Store
	proxy   *proxy.Proxy
	guard   *ssrf.Guard
	broker  *events.Broker
	limiter *rateLimiter

	apiToken        string
	adminToken      string
	discoverySecret string
	version         string
	now             func() time.Time

	router *mux.Router
	logger zerolog.Logger
}

// NewServer builds the hub API and registers its routes
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api: registry store is required")
	}
	if opts.Guard == nil {
		opts.Guard = ssrf.NewGuard(false)
	}
	if opts.Proxy == nil {
		opts.Proxy = proxy.New(proxy.Config{Guard: opts.Guard})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}

	s := &Server{
		store:           opts.Store,
		proxy:           opts.Proxy,
		guard:           opts.Guard,
		broker:          opts.Broker,
		limiter:         newRateLimiter(opts.RatePerSecond, opts.Burst),
		apiToken:        opts.APIToken,
		adminToken:      opts.AdminToken,
		discoverySecret: opts.DiscoverySecret,
		version:         opts.Version,
		now:             opts.Now,
		router:          mux.NewRouter(),
		logger:          log.WithComponent("api"),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.instrument)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/discovery/announce", s.handleAnnounce).Methods(http.MethodPost)

	api.HandleFunc("/nodes", s.handleListNodes).Methods(http.MethodGet)
	api.HandleFunc("/nodes", s.requireWrite(s.handleCreateNode)).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{id}", s.handleGetNode).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{id}", s.requireWrite(s.handleUpdateNode)).Methods(http.MethodPut)
	api.HandleFunc("/nodes/{id}", s.requireWrite(s.handleDeleteNode)).Methods(http.MethodDelete)
	api.HandleFunc("/nodes/{id}/discovery/approve", s.requireWrite(s.handleApproveNode)).Methods(http.MethodPost)

	api.HandleFunc("/nodes/{id}/status", s.handleNodeStatus).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{id}/actions/{action}", s.requireWrite(s.handleNodeAction)).Methods(http.MethodPost)
	api.HandleFunc("/management/overview", s.handleOverview).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusNotFound, errorEnvelope{Error: newError(http.StatusNotFound, "NOT_FOUND", "route not found")})
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second, // container stop waits out the grace period
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go s.limiter.run(ctx, time.Minute)
	if s.broker != nil {
		go s.logEvents(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Hub API listening")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("Hub API stopped")
	return nil
}

// logEvents writes every registry lifecycle event to the log
func (s *Server) logEvents(ctx context.Context) {
	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	logger := log.WithComponent("events")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			entry := logger.Info().
				Str("event", string(ev.Type)).
				Str("node_id", ev.NodeID)
			for k, v := range ev.Metadata {
				entry = entry.Str(k, v)
			}
			entry.Msg(ev.Message)
		}
	}
}

func (s *Server) publish(typ events.EventType, nodeID, message string, metadata map[string]string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:     typ,
		NodeID:   nodeID,
		Message:  message,
		Metadata: metadata,
	})
}
