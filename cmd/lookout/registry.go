package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/lookout/pkg/registry"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/spf13/cobra"
)

// Registry commands act on the registry file directly, under the same lock
// the hub uses, so they are safe while the hub is running
var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and edit the node registry file",
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		nodes, err := store.List()
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			out := make([]types.NodeRecord, 0, len(nodes))
			for _, n := range nodes {
				out = append(out, n.Redacted())
			}
			return printJSON(out)
		}

		if len(nodes) == 0 {
			fmt.Println("No nodes registered")
			return nil
		}
		fmt.Printf("Nodes (%d):\n", len(nodes))
		for _, n := range nodes {
			source := "-"
			if n.Discovery != nil {
				source = string(n.Discovery.Source)
			}
			fmt.Printf("  %s (%s)\n", n.ID, n.Name)
			fmt.Printf("    %s %s, source=%s, approved=%t, last seen %s\n",
				n.Transport, n.BaseURL, source, n.Approved(), n.LastSeen)
		}
		return nil
	},
}

var registryGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		rec, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("node %q: %w", args[0], registry.ErrNotFound)
		}
		return printJSON(rec.Redacted())
	},
}

var registryDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		deleted, err := store.Delete(args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("node %q: %w", args[0], registry.ErrNotFound)
		}
		fmt.Printf("✓ Node %s deleted\n", args[0])
		return nil
	},
}

var registryApproveCmd = &cobra.Command{
	Use:   "approve ID",
	Short: "Approve a discovered node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		rec, err := store.UpdateFunc(args[0], func(current types.NodeRecord) (types.NodePatch, error) {
			disc := types.Discovery{Source: types.SourceManual}
			if current.Discovery != nil {
				disc = *current.Discovery
			}
			disc.Approved = true
			return types.NodePatch{Discovery: &disc}, nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Node %s approved\n", rec.ID)
		return nil
	},
}

func init() {
	registryCmd.PersistentFlags().String("registry", "", "Registry file path (default from hub configuration)")
	registryListCmd.Flags().Bool("json", false, "Print JSON instead of a table")

	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryGetCmd)
	registryCmd.AddCommand(registryDeleteCmd)
	registryCmd.AddCommand(registryApproveCmd)
}

func openRegistry(cmd *cobra.Command) (*registry.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path := cfg.Hub.RegistryPath
	if cmd.Flags().Changed("registry") {
		path, _ = cmd.Flags().GetString("registry")
	}
	return registry.NewStore(path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
