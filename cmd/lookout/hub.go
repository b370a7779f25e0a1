package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/lookout/pkg/api"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/cuemby/lookout/pkg/proxy"
	"github.com/cuemby/lookout/pkg/registry"
	"github.com/cuemby/lookout/pkg/ssrf"
	"github.com/spf13/cobra"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the management hub",
	Long: `Run the management hub HTTP API.

The hub accepts node announcements on /api/discovery/announce, keeps the
node registry file and proxies status and action requests to nodes.

Examples:
  # LAN hub with discovery enabled
  lookout hub --discovery-secret "$(lookout token generate)"

  # Allow nodes on private addresses
  lookout hub --config hub.yaml --allow-private-targets`,
	RunE: runHub,
}

func init() {
	hubCmd.Flags().String("listen", "", "Listen address (default :8080)")
	hubCmd.Flags().String("registry", "", "Registry file path")
	hubCmd.Flags().String("api-token", "", "Token required on mutating routes")
	hubCmd.Flags().String("admin-token", "", "Token required for docker container actions")
	hubCmd.Flags().String("discovery-secret", "", "Shared secret nodes announce with (empty disables discovery)")
	hubCmd.Flags().Bool("allow-private-targets", false, "Allow nodes on loopback, private and link-local addresses")
}

func runHub(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Hub.ListenAddr, _ = flags.GetString("listen")
	}
	if flags.Changed("registry") {
		cfg.Hub.RegistryPath, _ = flags.GetString("registry")
	}
	if flags.Changed("api-token") {
		cfg.Hub.APIToken, _ = flags.GetString("api-token")
	}
	if flags.Changed("admin-token") {
		cfg.Hub.AdminToken, _ = flags.GetString("admin-token")
	}
	if flags.Changed("discovery-secret") {
		cfg.Hub.Discovery.SharedSecret, _ = flags.GetString("discovery-secret")
	}
	if flags.Changed("allow-private-targets") {
		cfg.Hub.SSRF.AllowPrivateTargets, _ = flags.GetBool("allow-private-targets")
	}
	if err := cfg.ValidateHub(); err != nil {
		return fmt.Errorf("invalid hub configuration: %w", err)
	}

	logger := log.WithComponent("hub")

	store, err := registry.NewStore(cfg.Hub.RegistryPath)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}

	guard := ssrf.NewGuard(cfg.Hub.SSRF.AllowPrivateTargets, cfg.Hub.SSRF.BlockedHosts...)
	px := proxy.New(proxy.Config{
		Guard:               guard,
		Timeout:             cfg.Hub.Proxy.Timeout,
		OverviewConcurrency: cfg.Hub.Proxy.OverviewConcurrency,
		StopTimeout:         cfg.Hub.Proxy.StopTimeout,
	})

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	srv, err := api.NewServer(api.Options{
		Store:           store,
		Proxy:           px,
		Guard:           guard,
		Broker:          broker,
		APIToken:        cfg.Hub.APIToken,
		AdminToken:      cfg.Hub.AdminToken,
		DiscoverySecret: cfg.Hub.Discovery.SharedSecret,
		RatePerSecond:   cfg.Hub.Discovery.RatePerSecond,
		Burst:           cfg.Hub.Discovery.Burst,
		Version:         Version,
	})
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(store, 0)
	collector.Start()
	defer collector.Stop()

	if cfg.Hub.Discovery.SharedSecret == "" {
		logger.Warn().Msg("Discovery secret not set; announce endpoint is disabled")
	}
	if cfg.Hub.APIToken == "" {
		logger.Warn().Msg("API token not set; mutating routes are unauthenticated")
	}
	if cfg.Hub.SSRF.AllowPrivateTargets {
		logger.Warn().Msg("Private node targets are allowed")
	}
	logger.Info().
		Str("registry", store.Path()).
		Str("version", Version).
		Msg("Starting management hub")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, cfg.Hub.ListenAddr); err != nil {
		return fmt.Errorf("hub API server error: %w", err)
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}
