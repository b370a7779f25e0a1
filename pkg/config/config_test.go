package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	// An explicit env file that does not exist is an error
	require.Error(t, err)
	assert.Nil(t, cfg)

	cfg = Default()
	assert.Equal(t, ":8080", cfg.Hub.ListenAddr)
	assert.Equal(t, "/data/node-registry.json", cfg.Hub.RegistryPath)
	assert.Equal(t, 2500*time.Millisecond, cfg.Hub.Proxy.Timeout)
	assert.Equal(t, 8, cfg.Hub.Proxy.OverviewConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Hub.Proxy.StopTimeout)
	assert.Equal(t, 30, cfg.Node.IntervalSeconds)
	assert.False(t, cfg.Hub.SSRF.AllowPrivateTargets)
	assert.NoError(t, cfg.ValidateHub())
	assert.NoError(t, cfg.ValidateNode())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lookout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
hub:
  listen_addr: ":9999"
  registry_path: /tmp/reg.json
  discovery:
    shared_secret: from-file
  proxy:
    timeout: 4s
node:
  name: Porch
  labels:
    site: hq
`), 0o600))

	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOOKOUT_ADMIN_TOKEN=admin-from-dotenv\n"), 0o600))

	t.Setenv("LOOKOUT_DISCOVERY_SECRET", "from-env")
	t.Setenv("LOOKOUT_ALLOW_PRIVATE_TARGETS", "true")
	t.Setenv("LOOKOUT_BLOCKED_HOSTS", "a.internal, b.internal,,")
	t.Setenv("LOOKOUT_NODE_CAPABILITIES", "mjpeg,snapshot")
	t.Setenv("LOOKOUT_NODE_LABELS", "site=lab,floor=2")
	t.Cleanup(func() { os.Unsetenv("LOOKOUT_ADMIN_TOKEN") })

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9999", cfg.Hub.ListenAddr)
	assert.Equal(t, "/tmp/reg.json", cfg.Hub.RegistryPath)
	assert.Equal(t, 4*time.Second, cfg.Hub.Proxy.Timeout)
	assert.Equal(t, "from-env", cfg.Hub.Discovery.SharedSecret)
	assert.Equal(t, "admin-from-dotenv", cfg.Hub.AdminToken)
	assert.True(t, cfg.Hub.SSRF.AllowPrivateTargets)
	assert.Equal(t, []string{"a.internal", "b.internal"}, cfg.Hub.SSRF.BlockedHosts)
	assert.Equal(t, "Porch", cfg.Node.Name)
	assert.Equal(t, []string{"mjpeg", "snapshot"}, cfg.Node.Capabilities)
	assert.Equal(t, map[string]string{"site": "lab", "floor": "2"}, cfg.Node.Labels)
	// Defaults not named in the file survive
	assert.Equal(t, 1.0, cfg.Hub.Discovery.RatePerSecond)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("LOOKOUT_LOG_JSON", "sometimes")
	t.Setenv("LOOKOUT_PROXY_TIMEOUT", "soon")

	_, err := Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOOKOUT_LOG_JSON")
	assert.Contains(t, err.Error(), "LOOKOUT_PROXY_TIMEOUT")
}

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels("a=1, b = 2 ,c=")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": ""}, labels)

	_, err = ParseLabels("novalue")
	assert.Error(t, err)
}

func TestValidateHub(t *testing.T) {
	cfg := Default()
	cfg.Hub.APIToken = "same"
	cfg.Hub.AdminToken = "same"
	cfg.Hub.Proxy.OverviewConcurrency = 0
	cfg.Hub.Proxy.StopTimeout = 500 * time.Millisecond

	err := cfg.ValidateHub()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_token")
	assert.Contains(t, err.Error(), "overview_concurrency")
	assert.Contains(t, err.Error(), "stop_timeout")
}

func TestValidateNode(t *testing.T) {
	cfg := Default()
	cfg.Node.ManagementURL = "http://hub:8080"

	err := cfg.ValidateNode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node.token")
	assert.Contains(t, err.Error(), "node.base_url")

	cfg.Node.Token = "secret"
	cfg.Node.BaseURL = "http://10.0.0.5:9000"
	assert.NoError(t, cfg.ValidateNode())
	assert.True(t, cfg.Node.AnnounceEnabled())

	cfg.Node.Transport = "rtsp"
	assert.Error(t, cfg.ValidateNode())
}

func TestCameraCheckSettings(t *testing.T) {
	t.Setenv(EnvPrefix+"CAMERA_CHECK", "tcp://127.0.0.1:8554")
	t.Setenv(EnvPrefix+"CAMERA_CHECK_INTERVAL", "3s")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "tcp://127.0.0.1:8554", cfg.Node.CameraCheck)
	assert.Equal(t, 3*time.Second, cfg.Node.CameraCheckInterval)

	cfg.Node.CameraCheckInterval = 0
	assert.Error(t, cfg.ValidateNode())
}
