package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/lookout/pkg/config"
	"github.com/cuemby/lookout/pkg/discovery"
	"github.com/cuemby/lookout/pkg/health"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/node"
	"github.com/cuemby/lookout/pkg/settings"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/spf13/cobra"
)

const cameraCheckTimeout = 3 * time.Second

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the webcam node agent",
	Long: `Run the webcam node agent.

The agent serves /health, /ready, /metrics and /api/actions/{action} for the
hub to probe. When a management url is configured it also announces the
node to the hub on a fixed interval, backing off while the hub is down.

Examples:
  lookout node --management-url http://hub:8080 --token SECRET \
    --base-url http://10.0.0.12:9000 --name "Front door"`,
	RunE: runNode,
}

func init() {
	nodeCmd.Flags().String("listen", "", "Listen address (default :9000)")
	nodeCmd.Flags().String("management-url", "", "Hub base url to announce to")
	nodeCmd.Flags().String("token", "", "Discovery shared secret")
	nodeCmd.Flags().Int("interval", 0, "Announce interval in seconds")
	nodeCmd.Flags().String("node-id", "", "Node id (generated and persisted when empty)")
	nodeCmd.Flags().String("name", "", "Display name")
	nodeCmd.Flags().String("base-url", "", "URL the hub should use to reach this node")
	nodeCmd.Flags().String("transport", "", "Transport the hub should use (http or docker)")
	nodeCmd.Flags().StringSlice("capability", nil, "Advertised capability (repeatable)")
	nodeCmd.Flags().String("camera-check", "", "Camera probe: stream url, tcp://host:port or exec:<command>")
}

func applyNodeFlags(cmd *cobra.Command, n *config.NodeConfig) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		n.ListenAddr, _ = flags.GetString("listen")
	}
	if flags.Changed("management-url") {
		n.ManagementURL, _ = flags.GetString("management-url")
	}
	if flags.Changed("token") {
		n.Token, _ = flags.GetString("token")
	}
	if flags.Changed("interval") {
		n.IntervalSeconds, _ = flags.GetInt("interval")
	}
	if flags.Changed("node-id") {
		n.NodeID, _ = flags.GetString("node-id")
	}
	if flags.Changed("name") {
		n.Name, _ = flags.GetString("name")
	}
	if flags.Changed("base-url") {
		n.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("transport") {
		n.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("capability") {
		n.Capabilities, _ = flags.GetStringSlice("capability")
	}
	if flags.Changed("camera-check") {
		n.CameraCheck, _ = flags.GetString("camera-check")
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyNodeFlags(cmd, &cfg.Node)

	// Persisted settings fill in what the config leaves open
	store, err := settings.NewBoltStore(cfg.Node.SettingsPath)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	defer store.Close()

	nodeID, err := store.EnsureNodeID(cfg.Node.NodeID)
	if err != nil {
		return err
	}
	cfg.Node.NodeID = nodeID

	saved, err := store.Load()
	if err != nil {
		return err
	}
	if cfg.Node.Name == "" {
		cfg.Node.Name = saved.Name
	}
	if cfg.Node.Name == "" {
		cfg.Node.Name = nodeID
	}
	if !cmd.Flags().Changed("interval") && saved.AnnounceIntervalSeconds > 0 {
		cfg.Node.IntervalSeconds = saved.AnnounceIntervalSeconds
	}
	labels := maps.Clone(saved.Labels)
	if labels == nil {
		labels = map[string]string{}
	}
	maps.Copy(labels, cfg.Node.Labels)

	if err := cfg.ValidateNode(); err != nil {
		return fmt.Errorf("invalid node configuration: %w", err)
	}

	logger := log.WithNodeID(nodeID)

	var announcer *discovery.Announcer
	opts := node.Options{
		NodeID:   nodeID,
		Version:  Version,
		APIToken: cfg.Node.APIToken,
		Health:   metrics.NewHealthChecker(node.ComponentCamera),
	}
	if cfg.Node.AnnounceEnabled() {
		announcer, err = discovery.New(discovery.Config{
			ManagementURL: cfg.Node.ManagementURL,
			Token:         cfg.Node.Token,
			Interval:      time.Duration(cfg.Node.IntervalSeconds) * time.Second,
			NodeID:        nodeID,
			Payload: types.AnnouncementPayload{
				ID:           nodeID,
				Name:         cfg.Node.Name,
				BaseURL:      cfg.Node.BaseURL,
				Transport:    types.Transport(cfg.Node.Transport),
				Capabilities: cfg.Node.Capabilities,
				Labels:       labels,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create announcer: %w", err)
		}
		opts.Announcer = announcer
	}

	srv := node.NewServer(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Node.CameraCheck != "" {
		checker, err := health.Parse(cfg.Node.CameraCheck, cameraCheckTimeout)
		if err != nil {
			return err
		}
		srv.Health().RegisterComponent(node.ComponentCamera, false, "checking")
		mon := health.NewMonitor(checker, health.Config{
			Interval: cfg.Node.CameraCheckInterval,
			Timeout:  cameraCheckTimeout,
			Retries:  3,
		}, func(healthy bool, msg string) {
			srv.Health().UpdateComponent(node.ComponentCamera, healthy, msg)
		})
		go mon.Run(ctx)
		logger.Info().Str("check", string(checker.Type())).Msg("Camera check enabled")
	} else {
		// Capture is handled by the camera process; the agent reports it present
		srv.Health().RegisterComponent(node.ComponentCamera, true, "external capture")
	}

	if announcer != nil {
		srv.Health().RegisterComponent("announcer", true, "running")
		announcer.Start()
		logger.Info().Str("management_url", announcer.URL()).Msg("Announcing to hub")
	} else {
		logger.Info().Msg("No management url configured; announcing disabled")
	}

	err = srv.ListenAndServe(ctx, cfg.Node.ListenAddr)

	if announcer != nil && !announcer.Stop(5*time.Second) {
		logger.Warn().Msg("Announcer did not stop in time")
	}
	if err != nil {
		return fmt.Errorf("node server error: %w", err)
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}
