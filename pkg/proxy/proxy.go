package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/ssrf"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrNodeUnreachable covers timeouts, refused connections, DNS failures
	// and targets rejected by the SSRF guard
	ErrNodeUnreachable = errors.New("node unreachable")

	// ErrNodeUnauthorized is returned when a node rejects the hub's credentials
	ErrNodeUnauthorized = errors.New("node rejected credentials")

	// ErrTransportUnsupported is returned for an operation the node's transport cannot serve
	ErrTransportUnsupported = errors.New("operation not supported for this transport")

	// ErrDockerContainerNotFound is returned when the docker proxy has no such container
	ErrDockerContainerNotFound = errors.New("docker container not found")

	// ErrDockerActionUnsupported is returned for a container action other than start, stop or restart
	ErrDockerActionUnsupported = errors.New("docker action not supported")

	// ErrInvalidAction is returned for a malformed action name
	ErrInvalidAction = errors.New("invalid action name")
)

const (
	// DefaultTimeout bounds each fan-out to a node
	DefaultTimeout = 2500 * time.Millisecond

	// DefaultOverviewConcurrency bounds how many nodes the overview queries at once
	DefaultOverviewConcurrency = 8

	// DefaultStopTimeout is the grace period a stopped or restarted container
	// gets before the daemon kills it
	DefaultStopTimeout = 10 * time.Second

	maxBodyBytes   = 64 << 10
	maxActionBytes = 1 << 20
)

var actionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Config configures a Proxy
type Config struct {
	Guard               *ssrf.Guard
	Timeout             time.Duration
	OverviewConcurrency int

	// StopTimeout is sent to the daemon with stop and restart. Container
	// actions wait up to Timeout plus StopTimeout for the reply.
	StopTimeout time.Duration

	// Docker overrides how docker proxy clients are built
	Docker DockerClientFactory
}

// Proxy performs guarded outbound requests to registered nodes
type Proxy struct {
	guard       *ssrf.Guard
	timeout     time.Duration
	concurrency int
	stopTimeout time.Duration
	client      *http.Client
	docker      DockerClientFactory
	logger      zerolog.Logger
}

// New creates a proxy. A nil guard blocks private targets.
func New(cfg Config) *Proxy {
	guard := cfg.Guard
	if guard == nil {
		guard = ssrf.NewGuard(false)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	concurrency := cfg.OverviewConcurrency
	if concurrency <= 0 {
		concurrency = DefaultOverviewConcurrency
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	docker := cfg.Docker
	if docker == nil {
		docker = NewDockerClient
	}

	return &Proxy{
		guard:       guard,
		timeout:     timeout,
		concurrency: concurrency,
		stopTimeout: stopTimeout,
		client:      newGuardedClient(guard, timeout),
		docker:      docker,
		logger:      log.WithComponent("proxy"),
	}
}

// newGuardedClient returns a client that re-checks every dialed address and
// never follows redirects
func newGuardedClient(guard *ssrf.Guard, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           guard.DialContext(timeout),
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       30 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// ValidateAction checks an action name before it is placed in a url path
func ValidateAction(action string) error {
	if len(action) > 64 || !actionPattern.MatchString(action) {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	return nil
}

// RequiresAdmin reports whether running action on rec needs the admin credential
func RequiresAdmin(rec types.NodeRecord, action string) bool {
	return rec.Transport == types.TransportDocker
}

// Reason returns a client-safe label for a proxy failure
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNodeUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNodeUnreachable):
		return "unreachable"
	case errors.Is(err, ErrDockerContainerNotFound):
		return "container_not_found"
	case errors.Is(err, ErrTransportUnsupported):
		return "transport_unsupported"
	default:
		return "error"
	}
}

func authorize(req *http.Request, auth *types.Auth) {
	if auth == nil {
		return
	}
	if auth.Type == types.AuthBearer && auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// checkTarget runs the SSRF guard and maps a rejection to ErrNodeUnreachable
func (p *Proxy) checkTarget(ctx context.Context, host string) error {
	if err := p.guard.CheckHost(ctx, host); err != nil {
		return fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}
	return nil
}

// response is a bounded, fully read node response
type response struct {
	code int
	body []byte
}

func (p *Proxy) do(ctx context.Context, method, target string, auth *types.Auth, body io.Reader) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	authorize(req, auth)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}
	return &response{code: resp.StatusCode, body: data}, nil
}

func rejected(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

func observe(kind string, timer *metrics.Timer, err error) {
	outcome := "ok"
	if err != nil {
		outcome = Reason(err)
	}
	metrics.ProxyRequestsTotal.WithLabelValues(kind, outcome).Inc()
	timer.ObserveDurationVec(metrics.ProxyRequestDuration, kind)
}
