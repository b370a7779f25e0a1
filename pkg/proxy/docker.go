package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/transport"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// ContainerActions are the docker operations exposed through the hub
var ContainerActions = []string{"start", "stop", "restart"}

// DockerAPI is the subset of the docker client the proxy uses
type DockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	Close() error
}

// DockerClientFactory builds a client for the docker API proxy at target,
// dialing through httpClient. The docker SDK wraps httpClient's transport in
// place, so each call gets a client of its own.
type DockerClientFactory func(target transport.DockerTarget, httpClient *http.Client) (DockerAPI, error)

// NewDockerClient connects to a docker API proxy over plain tcp
func NewDockerClient(target transport.DockerTarget, httpClient *http.Client) (DockerAPI, error) {
	// WithHost rewrites the dialer of the client it sees, so it must run
	// before the guarded client is installed
	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+target.Addr()),
		client.WithHTTPClient(httpClient),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// withDocker parses the docker base_url, guards the proxy host and hands fn
// a client bounded by timeout
func (p *Proxy) withDocker(ctx context.Context, rec types.NodeRecord, timeout time.Duration, fn func(ctx context.Context, cli DockerAPI, target transport.DockerTarget) error) error {
	if rec.Transport != types.TransportDocker {
		return fmt.Errorf("%w: %q", ErrTransportUnsupported, rec.Transport)
	}
	target, err := transport.ParseDockerURL(rec.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid docker base_url", ErrNodeUnreachable)
	}
	if err := p.checkTarget(ctx, target.Host); err != nil {
		return err
	}

	cli, err := p.docker(target, newGuardedClient(p.guard, timeout))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}
	defer func() {
		if cerr := cli.Close(); cerr != nil {
			p.logger.Debug().Err(cerr).Msg("Failed to close docker client")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return classifyDocker(fn(ctx, cli, target))
}

func classifyDocker(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDockerActionUnsupported):
		return err
	case cerrdefs.IsNotFound(err):
		return fmt.Errorf("%w: %w", ErrDockerContainerNotFound, err)
	case cerrdefs.IsUnauthorized(err), cerrdefs.IsPermissionDenied(err):
		return fmt.Errorf("%w: %w", ErrNodeUnauthorized, err)
	default:
		return fmt.Errorf("%w: %w", ErrNodeUnreachable, err)
	}
}

func (p *Proxy) dockerStatus(ctx context.Context, rec types.NodeRecord) (st *Status, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("docker_status", timer, err) }()

	err = p.withDocker(ctx, rec, p.timeout, func(ctx context.Context, cli DockerAPI, target transport.DockerTarget) error {
		inspect, err := cli.ContainerInspect(ctx, target.ContainerID)
		if err != nil {
			return err
		}
		st = containerStatus(rec, target, inspect)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func containerStatus(rec types.NodeRecord, target transport.DockerTarget, inspect container.InspectResponse) *Status {
	cs := &ContainerState{ID: target.ContainerID}
	if inspect.ContainerJSONBase != nil && inspect.State != nil {
		cs.State = string(inspect.State.Status)
		cs.Running = inspect.State.Running
		if inspect.State.Health != nil {
			cs.Health = string(inspect.State.Health.Status)
		}
	}

	st := &Status{
		NodeID:    rec.ID,
		Transport: rec.Transport,
		Container: cs,
	}

	healthy := cs.Health == "" || cs.Health == string(container.Healthy)
	switch {
	case cs.Running && healthy:
		st.Status = StatusOnline
		st.Ready = true
		st.StreamAvailable = true
	case cs.Running:
		st.Status = StatusDegraded
	default:
		st.Status = StatusOffline
	}
	return st
}

// ContainerAction runs start, stop or restart on a docker node's container
func (p *Proxy) ContainerAction(ctx context.Context, rec types.NodeRecord, action string) (st *Status, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("docker_action", timer, err) }()

	if !slices.Contains(ContainerActions, action) {
		return nil, fmt.Errorf("%w: %q", ErrDockerActionUnsupported, action)
	}

	grace := int(p.stopTimeout.Seconds())
	stop := container.StopOptions{Timeout: &grace}

	// The daemon replies to stop only after the grace period has run out
	err = p.withDocker(ctx, rec, p.timeout+p.stopTimeout, func(ctx context.Context, cli DockerAPI, target transport.DockerTarget) error {
		var err error
		switch action {
		case "start":
			err = cli.ContainerStart(ctx, target.ContainerID, container.StartOptions{})
		case "stop":
			err = cli.ContainerStop(ctx, target.ContainerID, stop)
		case "restart":
			err = cli.ContainerRestart(ctx, target.ContainerID, stop)
		}
		if err != nil {
			return err
		}

		inspect, err := cli.ContainerInspect(ctx, target.ContainerID)
		if err != nil {
			return err
		}
		st = containerStatus(rec, target, inspect)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info().Str("node_id", rec.ID).Str("action", action).Msg("Container action completed")
	return st, nil
}
