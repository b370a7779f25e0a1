package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single announce request
const DefaultTimeout = 5 * time.Second

// Config configures an Announcer
type Config struct {
	ManagementURL string
	Token         string
	Interval      time.Duration
	NodeID        string
	Payload       types.AnnouncementPayload

	// Timeout for one request; DefaultTimeout when zero
	Timeout time.Duration

	// HTTPClient overrides the default client
	HTTPClient *http.Client
}

// Announcer periodically registers this node with the management hub.
// Failures are logged and retried with backoff, never returned.
type Announcer struct {
	url      string
	redacted string
	token    string
	interval time.Duration
	nodeID   string
	body     []byte
	client   *http.Client
	logger   zerolog.Logger

	// jitter returns a value in [0, max) seconds
	jitter func(max float64) float64

	trigger chan struct{}

	// guards the goroutine handle only
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	// owned by the loop goroutine
	failures int
}

// New validates cfg and returns a stopped announcer
func New(cfg Config) (*Announcer, error) {
	target, err := SanitizeURL(cfg.ManagementURL)
	if err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("announce interval must be positive")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("announce token must not be empty")
	}

	payload := cfg.Payload
	if payload.ID == "" {
		payload.ID = cfg.NodeID
	}
	if payload.Labels == nil {
		payload.Labels = map[string]string{}
	}
	if payload.Capabilities == nil {
		payload.Capabilities = []string{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode announce payload: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Announcer{
		url:      target,
		redacted: RedactURL(target),
		token:    cfg.Token,
		interval: cfg.Interval,
		nodeID:   payload.ID,
		body:     body,
		client:   client,
		logger:   log.WithComponent("discovery").With().Str("node_id", payload.ID).Logger(),
		jitter:   uniformJitter,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// URL returns the sanitised announce endpoint
func (a *Announcer) URL() string {
	return a.url
}

// Start launches the announce loop. Calling it while running is a no-op.
// A loop left behind by a Stop that timed out is waited for first.
func (a *Announcer) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return
	}
	if a.done != nil {
		<-a.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopCh := make(chan struct{})
	done := make(chan struct{})

	a.running = true
	a.stopCh = stopCh
	a.done = done
	a.cancel = cancel

	labels := pprof.Labels("component", "discovery-announcer", "node_id", a.nodeID)
	go pprof.Do(ctx, labels, func(ctx context.Context) {
		defer close(done)
		a.loop(ctx, stopCh)
	})

	a.logger.Info().Str("url", a.redacted).Dur("interval", a.interval).Msg("Discovery announcer started")
}

// Stop signals the loop and waits up to timeout for it to exit. It reports
// whether the loop finished in time. Stop on a stopped announcer returns true.
func (a *Announcer) Stop(timeout time.Duration) bool {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return true
	}
	close(a.stopCh)
	a.cancel()
	done := a.done
	a.running = false
	a.mu.Unlock()

	select {
	case <-done:
		a.logger.Info().Msg("Discovery announcer stopped")
		return true
	case <-time.After(timeout):
		a.logger.Warn().Dur("timeout", timeout).Msg("Discovery announcer did not stop in time")
		return false
	}
}

// Running reports whether the loop is active
func (a *Announcer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Trigger requests an immediate announce. It never blocks.
func (a *Announcer) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

func (a *Announcer) loop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		wait := a.step(ctx)

		timer := time.NewTimer(wait)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-a.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// step sends one announce, updates the failure counter and returns the
// wait before the next attempt
func (a *Announcer) step(ctx context.Context) time.Duration {
	if err := a.announce(ctx); err != nil {
		a.failures++
		wait := Backoff(a.interval, a.failures, a.jitter)
		metrics.AnnounceAttemptsTotal.WithLabelValues("failure").Inc()
		metrics.AnnounceConsecutiveFailures.Set(float64(a.failures))
		a.logger.Warn().
			Err(err).
			Str("url", a.redacted).
			Int("failures", a.failures).
			Dur("retry_in", wait).
			Msg("Announce failed")
		return wait
	}

	if a.failures > 0 {
		a.logger.Info().Int("after_failures", a.failures).Msg("Announce recovered")
	}
	a.failures = 0
	metrics.AnnounceAttemptsTotal.WithLabelValues("success").Inc()
	metrics.AnnounceConsecutiveFailures.Set(0)
	a.logger.Debug().Str("url", a.redacted).Msg("Announced")
	return a.interval
}

func (a *Announcer) announce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(a.body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		// url.Error embeds the request url; report only the cause
		return fmt.Errorf("request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return fmt.Errorf("hub responded %d", resp.StatusCode)
	}
}
