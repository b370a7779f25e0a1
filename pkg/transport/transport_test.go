package transport

import (
	"errors"
	"testing"

	"github.com/cuemby/lookout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDockerURL_Valid(t *testing.T) {
	target, err := ParseDockerURL("docker://proxy:2375/abc_123.ok")
	require.NoError(t, err)
	assert.Equal(t, DockerTarget{Host: "proxy", Port: 2375, ContainerID: "abc_123.ok"}, target)
	assert.Equal(t, "proxy:2375", target.Addr())
}

func TestParseDockerURL_ForbiddenCharacters(t *testing.T) {
	tests := []string{
		"docker://proxy:2375/../../images/json",
		"docker://proxy:2375/%2e%2e/%2e%2e/images/json",
		"docker://proxy:2375/%2E%2E%2Fimages",
		"docker://proxy:2375/abc%5c..",
		"docker://proxy:2375/abc\\def",
		"docker://proxy:2375/abc?all=1",
		"docker://proxy:2375/abc#frag",
		"docker://proxy:2375?x=1",
		"docker://proxy:2375/..",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseDockerURL(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrForbiddenCharacters), "got %v", err)
		})
	}
}

func TestParseDockerURL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"wrong scheme", "http://proxy:2375/abc"},
		{"missing port", "docker://proxy/abc"},
		{"non numeric port", "docker://proxy:abc/abc"},
		{"port out of range", "docker://proxy:70000/abc"},
		{"missing host", "docker://:2375/abc"},
		{"no segment", "docker://proxy:2375"},
		{"empty segment", "docker://proxy:2375/"},
		{"two segments", "docker://proxy:2375/containers/abc"},
		{"leading dash", "docker://proxy:2375/-abc"},
		{"credentials", "docker://user:pw@proxy:2375/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDockerURL(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidURL), "got %v", err)
		})
	}
}

func TestValidateBaseURLForTransport(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		transport types.Transport
		wantErr   error
	}{
		{"http ok", "http://cam.example.com:9000", types.TransportHTTP, nil},
		{"https ok", "https://cam.example.com", types.TransportHTTP, nil},
		{"http with docker scheme", "docker://proxy:2375/abc", types.TransportHTTP, ErrInvalidURL},
		{"docker with http scheme", "http://cam:9000", types.TransportDocker, ErrInvalidURL},
		{"docker ok", "docker://proxy:2375/cam1", types.TransportDocker, nil},
		{"docker traversal", "docker://proxy:2375/../x", types.TransportDocker, ErrForbiddenCharacters},
		{"empty", "  ", types.TransportHTTP, ErrInvalidURL},
		{"missing host", "http:///path", types.TransportHTTP, ErrInvalidURL},
		{"bad port", "http://cam:0", types.TransportHTTP, ErrInvalidURL},
		{"unknown transport", "http://cam", types.Transport("grpc"), ErrUnsupportedTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURLForTransport(tt.raw, tt.transport)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
