package journeys

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tidbyt.dev/journeys/costs"
	"tidbyt.dev/journeys/index"
	"tidbyt.dev/journeys/storage"
)

const DefaultReachabilityCacheSize = 20000

// A loaded network and the indexes built over it. Read only, and
// shared between all requests against the network.
type Network struct {
	Name         string
	Graph        storage.Graph
	Interchanges *index.Interchanges
	Reachability *index.Reachability
	Stations     *index.Stations
	Costs        *costs.RouteToRouteCosts
}

// Builds the indexes for a network. The route to route cost index is
// the slow part, and honours ctx.
func NewNetwork(ctx context.Context, name string, graph storage.Graph, logger *slog.Logger) (*Network, error) {
	if logger == nil {
		logger = slog.Default()
	}
	startedAt := time.Now()

	interchanges, err := index.NewInterchanges(graph)
	if err != nil {
		return nil, fmt.Errorf("indexing interchanges: %w", err)
	}

	stations, err := index.NewStations(graph)
	if err != nil {
		return nil, fmt.Errorf("indexing stations: %w", err)
	}

	costIndex, err := costs.Build(ctx, interchanges, logger)
	if err != nil {
		return nil, fmt.Errorf("building route costs: %w", err)
	}

	logger.Info(
		"loaded network",
		"network", name,
		"stations", len(stations.All()),
		"interchanges", len(interchanges.Stations()),
		"routes", len(interchanges.Routes()),
		"elapsed", time.Since(startedAt),
	)

	return &Network{
		Name:         name,
		Graph:        graph,
		Interchanges: interchanges,
		Reachability: index.NewReachability(graph, interchanges, DefaultReachabilityCacheSize),
		Stations:     stations,
		Costs:        costIndex,
	}, nil
}
