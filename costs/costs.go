package costs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Maximum number of changes tracked between two routes.
const Depth = 4

// Cost reported for route pairs with no known connection within
// Depth changes, and for routes not in the index.
const Unreachable = math.MaxInt

const noPath byte = 0xFF

// Interchange topology the index is built from.
type Topology interface {
	// All routes, sorted.
	Routes() []string

	// All interchange stations, sorted.
	Stations() []string

	// Routes that can be boarded at a station, including any
	// reachable over a neighbour or group connection.
	InterchangeRoutes(stationID string) []string
}

// Minimum number of changes needed to get from one route to another,
// for every pair of routes. Built once and read concurrently.
type RouteToRouteCosts struct {
	routes []string
	index  map[string]int
	costs  [][]byte
	pairs  int
	logger *slog.Logger
}

// Builds the index. Routes sharing an interchange station are one
// change apart. Each following round extends every route's known set
// by the direct links of the routes discovered in the previous round.
func Build(ctx context.Context, topology Topology, logger *slog.Logger) (*RouteToRouteCosts, error) {
	if logger == nil {
		logger = slog.Default()
	}

	routes := topology.Routes()
	n := len(routes)

	c := &RouteToRouteCosts{
		routes: routes,
		index:  make(map[string]int, n),
		costs:  make([][]byte, n),
		logger: logger,
	}
	for i, route := range routes {
		c.index[route] = i
		row := make([]byte, n)
		for j := range row {
			row[j] = noPath
		}
		row[i] = 0
		c.costs[i] = row
	}

	for _, station := range topology.Stations() {
		calling := topology.InterchangeRoutes(station)
		for _, a := range calling {
			ia, ok := c.index[a]
			if !ok {
				logger.Warn("route at interchange missing from topology", "route_id", a, "station_id", station)
				continue
			}
			for _, b := range calling {
				ib, ok := c.index[b]
				if !ok || ia == ib {
					continue
				}
				c.costs[ia][ib] = 1
			}
		}
	}

	direct := make([][]int, n)
	for i := range c.costs {
		for j, cost := range c.costs[i] {
			if cost == 1 {
				direct[i] = append(direct[i], j)
			}
		}
	}

	frontier := direct
	rounds := 1
	for degree := 2; degree <= Depth; degree++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := make([][]int, n)
		found := make([]int, n)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				// Rows are owned by exactly one worker per round
				row := c.costs[i]
				for _, via := range frontier[i] {
					for _, j := range direct[via] {
						if row[j] == noPath {
							row[j] = byte(degree)
							next[i] = append(next[i], j)
						}
					}
				}
				found[i] = len(next[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("computing degree %d: %w", degree, err)
		}

		total := 0
		for _, f := range found {
			total += f
		}
		logger.Debug("route costs round", "degree", degree, "discovered", total)
		if total == 0 {
			break
		}

		rounds = degree
		frontier = next
	}

	for i := range c.costs {
		for j, cost := range c.costs[i] {
			if i != j && cost != noPath {
				c.pairs++
			}
		}
	}

	logger.Info("built route to route costs", "routes", n, "pairs", c.pairs, "rounds", rounds)
	if possible := n * (n - 1); c.pairs < possible {
		logger.Warn("route to route costs not fully connected", "pairs", c.pairs, "possible", possible, "depth", Depth)
	}

	return c, nil
}

// Number of connected route pairs, excluding each route to itself.
func (c *RouteToRouteCosts) Pairs() int {
	return c.pairs
}

func (c *RouteToRouteCosts) Routes() []string {
	return c.routes
}

// Changes needed to get from route a to route b. Unreachable if
// there's no known connection, or if either route is unknown.
func (c *RouteToRouteCosts) CostBetween(a, b string) int {
	ia, ok := c.index[a]
	if !ok {
		c.logger.Warn("route missing from cost index", "route_id", a)
		return Unreachable
	}
	ib, ok := c.index[b]
	if !ok {
		c.logger.Warn("route missing from cost index", "route_id", b)
		return Unreachable
	}

	cost := c.costs[ia][ib]
	if cost == noPath {
		return Unreachable
	}
	return int(cost)
}

// Lowest cost from a route to any of the destination routes.
func (c *RouteToRouteCosts) MinCost(route string, destinations []string) int {
	best := Unreachable
	for _, dest := range destinations {
		if cost := c.CostBetween(route, dest); cost < best {
			best = cost
			if best == 0 {
				break
			}
		}
	}
	return best
}

// Fewest changes needed between any start route and any end route.
func (c *RouteToRouteCosts) NumberOfChanges(startRoutes, endRoutes []string) int {
	best := Unreachable
	for _, start := range startRoutes {
		if cost := c.MinCost(start, endRoutes); cost < best {
			best = cost
		}
	}
	return best
}

// Orders items by the lowest cost from their route to any destination
// route. Ties keep their input order, and items on unreachable routes
// go last. The input is not modified.
func SortByDestinations[T any](c *RouteToRouteCosts, items []T, routeOf func(T) string, destinations []string) []T {
	type keyed struct {
		item T
		cost int
	}

	byRoute := map[string]int{}
	ks := make([]keyed, len(items))
	for i, item := range items {
		route := routeOf(item)
		cost, found := byRoute[route]
		if !found {
			cost = c.MinCost(route, destinations)
			byRoute[route] = cost
		}
		ks[i] = keyed{item, cost}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		return ks[i].cost < ks[j].cost
	})

	sorted := make([]T, len(ks))
	for i, k := range ks {
		sorted[i] = k.item
	}
	return sorted
}
