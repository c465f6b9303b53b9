package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <zip|url>",
	Short: "Imports a network export into storage",
	Args:  cobra.ExactArgs(1),
	RunE:  importRun,
}

func importRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := newManager(cfg)
	if err != nil {
		return err
	}

	if err := importNetwork(cmd.Context(), manager, cfg.Storage.Network, args[0]); err != nil {
		return err
	}

	network, err := manager.LoadNetwork(cmd.Context(), cfg.Storage.Network)
	if err != nil {
		return err
	}

	fmt.Printf(
		"%s: %d stations, %d interchanges, %d routes, %d connected route pairs\n",
		network.Name,
		len(network.Stations.All()),
		len(network.Interchanges.Stations()),
		len(network.Interchanges.Routes()),
		network.Costs.Pairs(),
	)

	return nil
}
