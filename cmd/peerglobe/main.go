package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "peerglobe: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "peerglobe",
		Short: "Peer-to-peer network globe visualizer daemon",
		Long: `peerglobe ingests peer location snapshots from an upstream feed,
spreads coincident peers into a readable ring layout, synthesizes the full
connectivity arc graph, and streams the resulting dataset to browser-based
globe renderers over websockets.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath(), "Path to the YAML config file")
	return cmd
}

func defaultConfigPath() string {
	if v := os.Getenv("PEERGLOBE_CONFIG"); v != "" {
		return v
	}
	return "peerglobe.yaml"
}
