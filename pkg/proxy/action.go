package proxy

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/types"
)

// ActionResult is a node's reply to a proxied action
type ActionResult struct {
	NodeID     string `json:"node_id"`
	Action     string `json:"action"`
	StatusCode int    `json:"status_code"`
	OK         bool   `json:"ok"`
	Response   any    `json:"response,omitempty"`
}

// Action POSTs body to <base_url>/api/actions/<action> with the node's auth.
// Non-2xx replies other than 401/403 are returned as results, not errors.
func (p *Proxy) Action(ctx context.Context, rec types.NodeRecord, action string, body []byte) (res *ActionResult, err error) {
	if err := ValidateAction(action); err != nil {
		return nil, err
	}
	if rec.Transport != types.TransportHTTP {
		return nil, fmt.Errorf("%w: %q", ErrTransportUnsupported, rec.Transport)
	}
	if len(body) > maxActionBytes {
		return nil, fmt.Errorf("%w: request body too large", ErrInvalidAction)
	}

	timer := metrics.NewTimer()
	defer func() { observe("action", timer, err) }()

	u, err := url.Parse(rec.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base_url", ErrNodeUnreachable)
	}
	if err := p.checkTarget(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if len(body) == 0 {
		body = []byte("{}")
	}
	resp, err := p.do(ctx, http.MethodPost, joinURL(rec.BaseURL, "/api/actions/"+action), rec.Auth, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if rejected(resp.code) {
		return nil, ErrNodeUnauthorized
	}

	p.logger.Info().Str("node_id", rec.ID).Str("action", action).Int("code", resp.code).Msg("Action proxied")

	return &ActionResult{
		NodeID:     rec.ID,
		Action:     action,
		StatusCode: resp.code,
		OK:         resp.code >= 200 && resp.code < 300,
		Response:   toProbe(resp, true).Body,
	}, nil
}
