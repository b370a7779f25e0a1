package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/types"
	"golang.org/x/sync/errgroup"
)

// Node status values
const (
	StatusOnline   = "online"
	StatusDegraded = "degraded"
	StatusError    = "error"
	StatusOffline  = "offline"
)

// Probe is one endpoint result. Body holds decoded JSON when the node sent
// JSON and the raw text otherwise.
type Probe struct {
	Code int `json:"code"`
	Body any `json:"body,omitempty"`
}

// ContainerState is the docker view of a node
type ContainerState struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Running bool   `json:"running"`
	Health  string `json:"health,omitempty"`
}

// Status is the synthesized state of one node
type Status struct {
	NodeID          string          `json:"node_id"`
	Transport       types.Transport `json:"transport"`
	Status          string          `json:"status"`
	Ready           bool            `json:"ready"`
	StreamAvailable bool            `json:"stream_available"`
	Health          *Probe          `json:"health,omitempty"`
	ReadyProbe      *Probe          `json:"ready_probe,omitempty"`
	Metrics         *Probe          `json:"metrics,omitempty"`
	Container       *ContainerState `json:"container,omitempty"`
}

// Status queries a node through its transport
func (p *Proxy) Status(ctx context.Context, rec types.NodeRecord) (*Status, error) {
	switch rec.Transport {
	case types.TransportHTTP:
		return p.httpStatus(ctx, rec)
	case types.TransportDocker:
		return p.dockerStatus(ctx, rec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrTransportUnsupported, rec.Transport)
	}
}

func (p *Proxy) httpStatus(ctx context.Context, rec types.NodeRecord) (st *Status, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("status", timer, err) }()

	u, err := url.Parse(rec.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base_url", ErrNodeUnreachable)
	}
	if err := p.checkTarget(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	paths := [3]string{"/health", "/ready", "/metrics"}
	var results [3]*response

	// No shared context cancellation: every probe must finish so a 401 on
	// one is seen even when another failed to connect.
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			resp, err := p.do(ctx, http.MethodGet, joinURL(rec.BaseURL, path), rec.Auth, nil)
			results[i] = resp
			return err
		})
	}
	waitErr := g.Wait()

	for _, r := range results {
		if r != nil && rejected(r.code) {
			return nil, ErrNodeUnauthorized
		}
	}
	if waitErr != nil {
		p.logger.Debug().Err(waitErr).Str("node_id", rec.ID).Msg("Node probe failed")
		return nil, waitErr
	}

	health, ready, metricsResp := results[0], results[1], results[2]
	st = &Status{
		NodeID:     rec.ID,
		Transport:  rec.Transport,
		Health:     toProbe(health, true),
		ReadyProbe: toProbe(ready, true),
		Metrics:    toProbe(metricsResp, false),
	}

	st.Ready = ready.code == http.StatusOK
	st.StreamAvailable = st.Ready && bodyStatus(ready.body) == "ready"

	switch {
	case health.code == http.StatusOK && st.Ready:
		st.Status = StatusOnline
	case health.code == http.StatusOK:
		st.Status = StatusDegraded
	default:
		st.Status = StatusError
	}
	return st, nil
}

func toProbe(r *response, decodeJSON bool) *Probe {
	probe := &Probe{Code: r.code}
	if len(r.body) == 0 {
		return probe
	}
	if decodeJSON {
		var v any
		if err := json.Unmarshal(r.body, &v); err == nil {
			probe.Body = v
			return probe
		}
	}
	probe.Body = string(r.body)
	return probe
}

func bodyStatus(body []byte) string {
	var v struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	return v.Status
}
