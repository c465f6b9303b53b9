package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tidbyt.dev/journeys/costs"
)

var changesCmd = &cobra.Command{
	Use:   "changes <from_station> <to_station>",
	Short: "Shows the fewest changes needed between two stations",
	Args:  cobra.ExactArgs(2),
	RunE:  changesRun,
}

func changesRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager, err := newManager(cfg)
	if err != nil {
		return err
	}

	network, err := manager.LoadNetwork(cmd.Context(), cfg.Storage.Network)
	if err != nil {
		return err
	}

	from := network.Interchanges.InterchangeRoutes(args[0])
	to := network.Interchanges.InterchangeRoutes(args[1])
	if len(from) == 0 {
		return fmt.Errorf("no routes at %s", args[0])
	}
	if len(to) == 0 {
		return fmt.Errorf("no routes at %s", args[1])
	}

	n := network.Costs.NumberOfChanges(from, to)
	if n == costs.Unreachable {
		fmt.Printf("%s -> %s: more than %d changes\n", args[0], args[1], costs.Depth)
		return nil
	}
	fmt.Printf("%s -> %s: %d changes\n", args[0], args[1], n)

	return nil
}
