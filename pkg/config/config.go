package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LOOKOUT_"

// Config holds all application configuration
type Config struct {
	Log  LogConfig  `yaml:"log"`
	Hub  HubConfig  `yaml:"hub"`
	Node NodeConfig `yaml:"node"`
}

// LogConfig configures pkg/log
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// HubConfig configures the management hub
type HubConfig struct {
	ListenAddr   string          `yaml:"listen_addr"`
	RegistryPath string          `yaml:"registry_path"`
	APIToken     string          `yaml:"api_token"`
	AdminToken   string          `yaml:"admin_token"`
	Discovery    DiscoveryConfig `yaml:"discovery"`
	SSRF         SSRFConfig      `yaml:"ssrf"`
	Proxy        ProxyConfig     `yaml:"proxy"`
}

// DiscoveryConfig configures the announce endpoint
type DiscoveryConfig struct {
	SharedSecret  string  `yaml:"shared_secret"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// SSRFConfig configures outbound target checks
type SSRFConfig struct {
	AllowPrivateTargets bool     `yaml:"allow_private_targets"`
	BlockedHosts        []string `yaml:"blocked_hosts"`
}

// ProxyConfig configures outbound node requests
type ProxyConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	OverviewConcurrency int           `yaml:"overview_concurrency"`
	// StopTimeout is the container grace period sent with docker stop and restart
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// NodeConfig configures the webcam node agent
type NodeConfig struct {
	ListenAddr      string            `yaml:"listen_addr"`
	ManagementURL   string            `yaml:"management_url"`
	Token           string            `yaml:"token"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	NodeID          string            `yaml:"node_id"`
	Name            string            `yaml:"name"`
	BaseURL         string            `yaml:"base_url"`
	Transport       string            `yaml:"transport"`
	Capabilities    []string          `yaml:"capabilities"`
	Labels          map[string]string `yaml:"labels"`
	APIToken        string            `yaml:"api_token"`
	SettingsPath    string            `yaml:"settings_path"`

	// CameraCheck probes the capture pipeline: an http(s) stream url,
	// tcp://host:port or exec:<command>. Empty reports the camera present.
	CameraCheck         string        `yaml:"camera_check"`
	CameraCheckInterval time.Duration `yaml:"camera_check_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Hub: HubConfig{
			ListenAddr:   ":8080",
			RegistryPath: "/data/node-registry.json",
			Discovery: DiscoveryConfig{
				RatePerSecond: 1,
				Burst:         5,
			},
			Proxy: ProxyConfig{
				Timeout:             2500 * time.Millisecond,
				OverviewConcurrency: 8,
				StopTimeout:         10 * time.Second,
			},
		},
		Node: NodeConfig{
			ListenAddr:      ":9000",
			IntervalSeconds: 30,
			Transport:       "http",
			Capabilities:    []string{},
			Labels:          map[string]string{},
			SettingsPath:    "/data/node-settings.db",

			CameraCheckInterval: 10 * time.Second,
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if not
// empty), then a .env file, then LOOKOUT_* environment variables. Flag
// overrides and Validate are the caller's job.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile loads envFile, or ./.env when envFile is empty. A missing
// default .env is not an error; a missing explicit file is.
func loadEnvFile(envFile string) error {
	if envFile == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = SplitList(v)
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_JSON", &c.Log.JSON)

	str("HUB_LISTEN_ADDR", &c.Hub.ListenAddr)
	str("REGISTRY_PATH", &c.Hub.RegistryPath)
	str("API_TOKEN", &c.Hub.APIToken)
	str("ADMIN_TOKEN", &c.Hub.AdminToken)
	str("DISCOVERY_SECRET", &c.Hub.Discovery.SharedSecret)
	if v, ok := lookup("DISCOVERY_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDISCOVERY_RATE: %w", EnvPrefix, err))
		} else {
			c.Hub.Discovery.RatePerSecond = f
		}
	}
	integer("DISCOVERY_BURST", &c.Hub.Discovery.Burst)
	boolean("ALLOW_PRIVATE_TARGETS", &c.Hub.SSRF.AllowPrivateTargets)
	list("BLOCKED_HOSTS", &c.Hub.SSRF.BlockedHosts)
	if v, ok := lookup("PROXY_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPROXY_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Hub.Proxy.Timeout = d
		}
	}
	integer("OVERVIEW_CONCURRENCY", &c.Hub.Proxy.OverviewConcurrency)
	if v, ok := lookup("PROXY_STOP_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPROXY_STOP_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Hub.Proxy.StopTimeout = d
		}
	}

	str("NODE_LISTEN_ADDR", &c.Node.ListenAddr)
	str("MANAGEMENT_URL", &c.Node.ManagementURL)
	str("DISCOVERY_TOKEN", &c.Node.Token)
	integer("ANNOUNCE_INTERVAL", &c.Node.IntervalSeconds)
	str("NODE_ID", &c.Node.NodeID)
	str("NODE_NAME", &c.Node.Name)
	str("NODE_BASE_URL", &c.Node.BaseURL)
	str("NODE_TRANSPORT", &c.Node.Transport)
	list("NODE_CAPABILITIES", &c.Node.Capabilities)
	if v, ok := lookup("NODE_LABELS"); ok {
		labels, err := ParseLabels(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sNODE_LABELS: %w", EnvPrefix, err))
		} else {
			c.Node.Labels = labels
		}
	}
	str("NODE_API_TOKEN", &c.Node.APIToken)
	str("SETTINGS_PATH", &c.Node.SettingsPath)
	str("CAMERA_CHECK", &c.Node.CameraCheck)
	if v, ok := lookup("CAMERA_CHECK_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCAMERA_CHECK_INTERVAL: %w", EnvPrefix, err))
		} else {
			c.Node.CameraCheckInterval = d
		}
	}

	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// SplitList splits a comma separated value, dropping blanks
func SplitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseLabels parses "k1=v1,k2=v2"
func ParseLabels(v string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range SplitList(v) {
		k, val, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("label %q must be key=value", pair)
		}
		out[k] = strings.TrimSpace(val)
	}
	return out, nil
}

// ValidateHub checks the settings the hub needs
func (c *Config) ValidateHub() error {
	var errs []error
	h := c.Hub
	if h.ListenAddr == "" {
		errs = append(errs, errors.New("hub.listen_addr must not be empty"))
	}
	if h.RegistryPath == "" {
		errs = append(errs, errors.New("hub.registry_path must not be empty"))
	}
	if h.Discovery.RatePerSecond <= 0 {
		errs = append(errs, errors.New("hub.discovery.rate_per_second must be positive"))
	}
	if h.Discovery.Burst < 1 {
		errs = append(errs, errors.New("hub.discovery.burst must be at least 1"))
	}
	if h.Proxy.Timeout <= 0 {
		errs = append(errs, errors.New("hub.proxy.timeout must be positive"))
	}
	if h.Proxy.StopTimeout < time.Second {
		errs = append(errs, errors.New("hub.proxy.stop_timeout must be at least 1s"))
	}
	if h.Proxy.OverviewConcurrency < 1 {
		errs = append(errs, errors.New("hub.proxy.overview_concurrency must be at least 1"))
	}
	if h.APIToken != "" && h.APIToken == h.AdminToken {
		errs = append(errs, errors.New("hub.admin_token must differ from hub.api_token"))
	}
	return errors.Join(errs...)
}

// ValidateNode checks the settings the node agent needs. Announcing is
// optional: without a management url the node only serves its endpoints.
func (c *Config) ValidateNode() error {
	var errs []error
	n := c.Node
	if n.ListenAddr == "" {
		errs = append(errs, errors.New("node.listen_addr must not be empty"))
	}
	if n.Transport != "http" && n.Transport != "docker" {
		errs = append(errs, fmt.Errorf("node.transport %q must be http or docker", n.Transport))
	}
	if n.ManagementURL != "" {
		u, err := url.Parse(n.ManagementURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, errors.New("node.management_url must be an http(s) url"))
		}
		if n.Token == "" {
			errs = append(errs, errors.New("node.token is required when node.management_url is set"))
		}
		if n.BaseURL == "" {
			errs = append(errs, errors.New("node.base_url is required when node.management_url is set"))
		}
		if n.IntervalSeconds < 1 {
			errs = append(errs, errors.New("node.interval_seconds must be at least 1"))
		}
	}
	if n.CameraCheck != "" && n.CameraCheckInterval <= 0 {
		errs = append(errs, errors.New("node.camera_check_interval must be positive"))
	}
	return errors.Join(errs...)
}

// AnnounceEnabled reports whether the node should run the announcer
func (n NodeConfig) AnnounceEnabled() bool {
	return n.ManagementURL != ""
}
