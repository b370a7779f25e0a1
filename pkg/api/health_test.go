package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHealthHandler tests the /health endpoint
func TestHealthHandler(t *testing.T) {
	hub := newTestHub(t, func(o *Options) { o.Version = "test" })

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{
			name:           "GET request succeeds",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "POST request fails",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "DELETE request fails",
			method:         http.MethodDelete,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := hub.do(t, tt.method, "/health", nil)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				response := decode[HealthResponse](t, w)
				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, "test", response.Version)
				assert.NotZero(t, response.Timestamp)
			}
		})
	}
}

// TestReadyHandler tests the /ready endpoint
func TestReadyHandler(t *testing.T) {
	t.Run("ready with a readable registry", func(t *testing.T) {
		hub := newTestHub(t, nil)
		w := hub.do(t, http.MethodGet, "/ready", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		response := decode[ReadyResponse](t, w)
		assert.Equal(t, "ready", response.Status)
		assert.Equal(t, "ok", response.Checks["registry"])
		assert.Equal(t, "enabled", response.Checks["discovery"])
		assert.Equal(t, "disabled", response.Checks["events"])
	})

	t.Run("discovery disabled is still ready", func(t *testing.T) {
		hub := newTestHub(t, func(o *Options) { o.DiscoverySecret = "" })
		w := hub.do(t, http.MethodGet, "/ready", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "disabled", decode[ReadyResponse](t, w).Checks["discovery"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	hub := newTestHub(t, nil)
	hub.do(t, http.MethodGet, "/api/nodes", nil)

	w := hub.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lookout_api_requests_total")
}
