package ssrf

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func TestCheckURLLiterals(t *testing.T) {
	g := NewGuard(false)

	tests := []struct {
		url     string
		blocked bool
	}{
		{"http://127.0.0.1:9000", true},
		{"http://[::1]:9000", true},
		{"http://10.0.0.1", true},
		{"http://172.16.5.4", true},
		{"http://192.168.1.10", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http://0.0.0.0", true},
		{"http://100.64.1.1", true},
		{"http://224.0.0.1", true},
		{"http://255.255.255.255", true},
		{"http://[fe80::1]", true},
		{"http://[fc00::1]", true},
		{"http://[::ffff:127.0.0.1]", true},
		{"http://[2001:db8::1]", true},
		{"http://8.8.8.8", false},
		{"https://[2606:4700:4700::1111]", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := g.CheckURL(context.Background(), tt.url)
			if tt.blocked {
				assert.ErrorIs(t, err, ErrBlocked)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckHostResolves(t *testing.T) {
	g := NewGuard(false)
	g.Resolver = fakeResolver{
		"public.example":  {"93.184.216.34"},
		"sneaky.example":  {"93.184.216.34", "10.0.0.7"},
		"rebound.example": {"127.0.0.1"},
	}

	assert.NoError(t, g.CheckHost(context.Background(), "public.example"))
	assert.ErrorIs(t, g.CheckHost(context.Background(), "sneaky.example"), ErrBlocked)
	assert.ErrorIs(t, g.CheckHost(context.Background(), "rebound.example"), ErrBlocked)
	assert.ErrorIs(t, g.CheckHost(context.Background(), "unknown.example"), ErrBlocked)
}

func TestBlockedHostsApplyEvenWhenPrivateAllowed(t *testing.T) {
	g := NewGuard(true, "internal.corp")

	assert.ErrorIs(t, g.CheckHost(context.Background(), "localhost"), ErrBlocked)
	assert.ErrorIs(t, g.CheckHost(context.Background(), "Metadata.Google.Internal."), ErrBlocked)
	assert.ErrorIs(t, g.CheckHost(context.Background(), "db.internal.corp"), ErrBlocked)
	assert.NoError(t, g.CheckHost(context.Background(), "127.0.0.1"))
}

func TestDialContextRechecksAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	blocking := &http.Client{Transport: &http.Transport{DialContext: NewGuard(false).DialContext(time.Second)}}
	_, err := blocking.Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)

	allowing := &http.Client{Transport: &http.Transport{DialContext: NewGuard(true).DialContext(time.Second)}}
	resp, err := allowing.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
