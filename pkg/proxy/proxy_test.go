package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/lookout/pkg/ssrf"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nodeStub struct {
	health, ready, metrics int
	readyStatus            string
	wantToken              string
	actionCalls            atomic.Int32
	lastActionBody         atomic.Value
}

func (n *nodeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if n.wantToken != "" && r.Header.Get("Authorization") != "Bearer "+n.wantToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch r.URL.Path {
	case "/health":
		w.WriteHeader(n.health)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	case "/ready":
		w.WriteHeader(n.ready)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": n.readyStatus})
	case "/metrics":
		w.WriteHeader(n.metrics)
		_, _ = io.WriteString(w, "# HELP up\nup 1\n")
	case "/api/actions/snapshot":
		n.actionCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		n.lastActionBody.Store(string(body))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "queued"})
	case "/redirect":
		http.Redirect(w, r, "http://example.com/", http.StatusFound)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func healthyNode() *nodeStub {
	return &nodeStub{health: 200, ready: 200, metrics: 200, readyStatus: "ready"}
}

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	return New(Config{Guard: ssrf.NewGuard(true), Timeout: time.Second})
}

func httpRecord(id, baseURL string, auth *types.Auth) types.NodeRecord {
	if auth == nil {
		auth = &types.Auth{Type: types.AuthNone}
	}
	return types.NodeRecord{
		ID:           id,
		Name:         id,
		BaseURL:      baseURL,
		Transport:    types.TransportHTTP,
		Auth:         auth,
		Labels:       map[string]string{},
		Capabilities: []string{},
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		node       *nodeStub
		wantStatus string
		wantReady  bool
		wantStream bool
	}{
		{"online", healthyNode(), StatusOnline, true, true},
		{"ready but not streaming", &nodeStub{health: 200, ready: 200, metrics: 200, readyStatus: "warming"}, StatusOnline, true, false},
		{"degraded", &nodeStub{health: 200, ready: 503, metrics: 200, readyStatus: "not_ready"}, StatusDegraded, false, false},
		{"error", &nodeStub{health: 500, ready: 503, metrics: 500, readyStatus: "not_ready"}, StatusError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.node)
			defer srv.Close()

			st, err := newTestProxy(t).Status(context.Background(), httpRecord("cam-1", srv.URL, nil))
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, st.Status)
			assert.Equal(t, tt.wantReady, st.Ready)
			assert.Equal(t, tt.wantStream, st.StreamAvailable)
			require.NotNil(t, st.Health)
			require.NotNil(t, st.Metrics)
			assert.Equal(t, "# HELP up\nup 1\n", st.Metrics.Body)
		})
	}
}

func TestHTTPStatusUsesNodeAuth(t *testing.T) {
	node := healthyNode()
	node.wantToken = "node-token"
	srv := httptest.NewServer(node)
	defer srv.Close()
	p := newTestProxy(t)

	_, err := p.Status(context.Background(), httpRecord("cam-1", srv.URL, nil))
	assert.ErrorIs(t, err, ErrNodeUnauthorized)

	st, err := p.Status(context.Background(), httpRecord("cam-1", srv.URL, &types.Auth{Type: types.AuthBearer, Token: "node-token"}))
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, st.Status)
}

func TestHTTPStatusUnauthorizedWinsOverUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			// Drop the connection without a response
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestProxy(t).Status(context.Background(), httpRecord("cam-1", srv.URL, nil))
	assert.ErrorIs(t, err, ErrNodeUnauthorized)
}

func TestHTTPStatusUnreachable(t *testing.T) {
	srv := httptest.NewServer(healthyNode())
	url := srv.URL
	srv.Close()

	_, err := newTestProxy(t).Status(context.Background(), httpRecord("cam-1", url, nil))
	assert.ErrorIs(t, err, ErrNodeUnreachable)
}

func TestHTTPStatusTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := New(Config{Guard: ssrf.NewGuard(true), Timeout: 100 * time.Millisecond})
	_, err := p.Status(context.Background(), httpRecord("cam-1", srv.URL, nil))
	assert.ErrorIs(t, err, ErrNodeUnreachable)
}

func TestStatusBlockedTargetIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(healthyNode())
	defer srv.Close()

	p := New(Config{Guard: ssrf.NewGuard(false)})
	_, err := p.Status(context.Background(), httpRecord("cam-1", srv.URL, nil))
	assert.ErrorIs(t, err, ErrNodeUnreachable)
	assert.ErrorIs(t, err, ssrf.ErrBlocked)
}

func TestStatusUnsupportedTransport(t *testing.T) {
	rec := httpRecord("cam-1", "http://10.0.0.1", nil)
	rec.Transport = "rtsp"

	_, err := newTestProxy(t).Status(context.Background(), rec)
	assert.ErrorIs(t, err, ErrTransportUnsupported)
}

func TestAction(t *testing.T) {
	node := healthyNode()
	srv := httptest.NewServer(node)
	defer srv.Close()
	p := newTestProxy(t)
	rec := httpRecord("cam-1", srv.URL, nil)

	res, err := p.Action(context.Background(), rec, "snapshot", []byte(`{"quality":90}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.True(t, res.OK)
	assert.Equal(t, map[string]any{"result": "queued"}, res.Response)
	assert.Equal(t, `{"quality":90}`, node.lastActionBody.Load())

	res, err = p.Action(context.Background(), rec, "unknown", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.False(t, res.OK)
}

func TestActionValidation(t *testing.T) {
	p := newTestProxy(t)
	rec := httpRecord("cam-1", "http://10.0.0.1", nil)

	for _, bad := range []string{"", "../admin", "a/b", ".hidden", "with space", "x?y=1"} {
		_, err := p.Action(context.Background(), rec, bad, nil)
		assert.ErrorIs(t, err, ErrInvalidAction, bad)
	}

	docker := rec
	docker.Transport = types.TransportDocker
	_, err := p.Action(context.Background(), docker, "snapshot", nil)
	assert.ErrorIs(t, err, ErrTransportUnsupported)
}

func TestActionUnauthorized(t *testing.T) {
	node := healthyNode()
	node.wantToken = "secret"
	srv := httptest.NewServer(node)
	defer srv.Close()

	_, err := newTestProxy(t).Action(context.Background(), httpRecord("cam-1", srv.URL, nil), "snapshot", nil)
	assert.ErrorIs(t, err, ErrNodeUnauthorized)
	assert.Equal(t, int32(0), node.actionCalls.Load())
}

func TestRedirectsAreNotFollowed(t *testing.T) {
	srv := httptest.NewServer(healthyNode())
	defer srv.Close()

	resp, err := newTestProxy(t).do(context.Background(), http.MethodGet, srv.URL+"/redirect", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.code)
}

func TestOverviewToleratesFailures(t *testing.T) {
	good := httptest.NewServer(healthyNode())
	defer good.Close()
	degraded := httptest.NewServer(&nodeStub{health: 200, ready: 503, metrics: 200, readyStatus: "not_ready"})
	defer degraded.Close()
	dead := httptest.NewServer(healthyNode())
	deadURL := dead.URL
	dead.Close()

	nodes := []types.NodeRecord{
		httpRecord("good", good.URL, nil),
		httpRecord("degraded", degraded.URL, nil),
		httpRecord("dead", deadURL, nil),
	}

	p := New(Config{Guard: ssrf.NewGuard(true), Timeout: time.Second, OverviewConcurrency: 2})
	ov, err := p.Overview(context.Background(), nodes)
	require.NoError(t, err)

	assert.Equal(t, 3, ov.Total)
	assert.Equal(t, 1, ov.Unavailable)
	assert.Equal(t, 1, ov.StreamAvailable)
	require.Len(t, ov.Nodes, 3)
	assert.Equal(t, StatusOnline, ov.Nodes[0].Status)
	assert.Equal(t, StatusDegraded, ov.Nodes[1].Status)
	assert.Equal(t, "unreachable", ov.Nodes[2].Status)
	assert.Equal(t, ErrNodeUnreachable.Error(), ov.Nodes[2].Error)
}

func TestOverviewEmpty(t *testing.T) {
	ov, err := newTestProxy(t).Overview(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ov.Total)
	assert.Empty(t, ov.Nodes)
}
