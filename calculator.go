package journeys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"tidbyt.dev/journeys/config"
	"tidbyt.dev/journeys/costs"
	"tidbyt.dev/journeys/mapper"
	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/search"
	"tidbyt.dev/journeys/storage"
)

// Plans journeys over a network.
type Calculator struct {
	network  *Network
	cfg      *config.Config
	logger   *slog.Logger
	ordering search.Ordering
}

type CalculatorOption func(*Calculator)

func WithLogger(l *slog.Logger) CalculatorOption {
	return func(c *Calculator) {
		c.logger = l
	}
}

// Overrides the configured search ordering.
func WithOrdering(o search.Ordering) CalculatorOption {
	return func(c *Calculator) {
		c.ordering = o
	}
}

func NewCalculator(network *Network, cfg *config.Config, opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		network:  network,
		cfg:      cfg,
		logger:   slog.Default(),
		ordering: search.BreadthFirst,
	}
	if cfg.DepthFirst {
		c.ordering = search.DepthFirst
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// A resolved endpoint: the node searches start from or end at, and
// the stations it covers.
type terminus struct {
	nodes    []*storage.Node
	stations []string
}

// Everything needed to run the searches for one start node.
type searchPlan struct {
	req               model.JourneyRequest
	graph             storage.Graph
	start             *storage.Node
	destinations      map[string]bool
	destinationRoutes []string
	constraints       *search.JourneyConstraints
	queryTimes        []time.Duration
	minChanges        int
}

// Per execution state, shared by the searches of one request.
type execution struct {
	visits   *search.PreviousVisits
	lowest   *search.LowestCostSeen
	recorder search.ReasonRecorder
	counter  *search.ReasonCounter
	searches int
}

func (c *Calculator) newExecution(req model.JourneyRequest) *execution {
	e := &execution{
		visits: search.NewPreviousVisits(c.cfg.MemoCacheSize),
		lowest: search.NewLowestCostSeen(),
	}
	if req.Diagnostics {
		d := search.NewDiagnosticRecorder()
		e.recorder, e.counter = d, d.ReasonCounter
	} else {
		e.counter = search.NewReasonCounter()
		e.recorder = e.counter
	}
	return e
}

func (c *Calculator) logStats(req model.JourneyRequest, e *execution, count int, err error) {
	attrs := []any{
		"request_id", req.ID.String(),
		"journeys", count,
		"searches", e.searches,
		"memo_size", e.visits.Len(),
		"memo_hits", e.visits.Hits(),
	}
	if lowest, found := e.lowest.Get(); found {
		attrs = append(attrs, "lowest_cost", lowest)
	}
	attrs = append(attrs, e.counter.LogAttrs()...)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	c.logger.Info("journey stream closed", attrs...)

	if count == 0 && err == nil {
		c.logger.Warn("no journeys found", "request", req.String())
	}
}

// Finds journeys between two endpoints. The returned stream must be
// closed.
func (c *Calculator) Calculate(ctx context.Context, req model.JourneyRequest, start, dest Endpoint) (*Stream, error) {
	graph := storage.NewOverlay(c.network.Graph)

	to, err := c.resolveDestination(graph, req, dest)
	if err != nil {
		return nil, fmt.Errorf("resolving destination: %w", err)
	}
	from, err := c.resolveStart(graph, req, start)
	if err != nil {
		return nil, fmt.Errorf("resolving start: %w", err)
	}

	e := c.newExecution(req)
	onClose := func(count int, err error) {
		c.logStats(req, e, count, err)
	}

	plans := []*searchPlan{}
	for _, node := range from.nodes {
		plan, err := c.plan(ctx, graph, req, node, from.stations, to)
		if err != nil {
			return nil, err
		}
		if plan != nil {
			plans = append(plans, plan)
		}
	}
	if len(plans) == 0 {
		return emptyStream(ctx, onClose), nil
	}

	return newStream(ctx, func(ctx context.Context, yield func(*model.Journey) bool) error {
		remaining := req.MaxResults
		for _, plan := range plans {
			found, stopped, err := c.execute(ctx, plan, e, remaining, yield)
			if err != nil {
				return err
			}
			if stopped {
				return nil
			}
			if req.MaxResults > 0 {
				remaining -= found
			}
		}
		return nil
	}, onClose), nil
}

func (c *Calculator) resolveStation(graph storage.Graph, stationID string) (terminus, error) {
	node, err := graph.Node(stationID)
	if errors.Is(err, storage.ErrNodeNotFound) {
		return terminus{}, fmt.Errorf("%w: %s", ErrUnknownStation, stationID)
	}
	if err != nil {
		return terminus{}, err
	}

	if node.Labels.Has(storage.LabelGrouped) {
		rels, err := graph.Outgoing(node.ID, storage.GroupedToChild)
		if err != nil {
			return terminus{}, fmt.Errorf("getting group members: %w", err)
		}
		t := terminus{nodes: []*storage.Node{node}}
		for _, rel := range rels {
			t.stations = append(t.stations, rel.End)
		}
		return t, nil
	}

	if !node.Labels.Has(storage.LabelStation) {
		return terminus{}, fmt.Errorf("%w: %s is a %s", ErrUnknownStation, stationID, node.Labels)
	}

	return terminus{nodes: []*storage.Node{node}, stations: []string{node.Station()}}, nil
}

// Stations within walking distance of a location, with the time it
// takes to walk there.
func (c *Calculator) walkable(lat, lon float64) ([]*storage.Node, []time.Duration, error) {
	nearby := c.network.Stations.Nearby(lat, lon, c.cfg.NearbyStationRangeKm, c.cfg.MaxNearbyStations)
	if len(nearby) == 0 {
		return nil, nil, fmt.Errorf("%w: %.5f,%.5f within %.1fkm", ErrNoNearbyStations, lat, lon, c.cfg.NearbyStationRangeKm)
	}

	nodes := make([]*storage.Node, 0, len(nearby))
	costs := make([]time.Duration, 0, len(nearby))
	for _, sd := range nearby {
		nodes = append(nodes, sd.Node)
		costs = append(costs, storage.WalkingTime(sd.DistanceKm, c.cfg.WalkingSpeedKmh))
	}
	return nodes, costs, nil
}

func (c *Calculator) resolveStart(graph *storage.Overlay, req model.JourneyRequest, ep Endpoint) (terminus, error) {
	if !ep.IsLocation() {
		return c.resolveStation(graph, ep.StationID)
	}

	stations, walks, err := c.walkable(ep.Lat, ep.Lon)
	if err != nil {
		return terminus{}, err
	}

	node := &storage.Node{
		ID:         "start:" + req.ID.String(),
		Labels:     storage.LabelQueryNode,
		Properties: storage.Properties{Lat: ep.Lat, Lon: ep.Lon},
	}
	if err := graph.AddNode(node); err != nil {
		return terminus{}, err
	}

	t := terminus{nodes: []*storage.Node{node}}
	for i, station := range stations {
		graph.AddRelationship(&storage.Relationship{
			Type:       storage.WalksToStation,
			Start:      node.ID,
			End:        station.ID,
			Properties: storage.Properties{StationID: station.Station(), Cost: walks[i]},
		})
		t.stations = append(t.stations, station.Station())
	}
	return t, nil
}

func (c *Calculator) resolveDestination(graph *storage.Overlay, req model.JourneyRequest, ep Endpoint) (terminus, error) {
	if !ep.IsLocation() {
		t, err := c.resolveStation(graph, ep.StationID)
		if err != nil {
			return terminus{}, err
		}

		// Arriving at any member of a group will do
		if t.nodes[0].Labels.Has(storage.LabelGrouped) {
			for _, stationID := range t.stations {
				node, err := graph.Node(stationID)
				if err != nil {
					return terminus{}, err
				}
				t.nodes = append(t.nodes, node)
			}
		}
		return t, nil
	}

	stations, walks, err := c.walkable(ep.Lat, ep.Lon)
	if err != nil {
		return terminus{}, err
	}

	node := &storage.Node{
		ID:         "dest:" + req.ID.String(),
		Labels:     storage.LabelQueryNode,
		Properties: storage.Properties{Lat: ep.Lat, Lon: ep.Lon},
	}
	if err := graph.AddNode(node); err != nil {
		return terminus{}, err
	}

	t := terminus{nodes: []*storage.Node{node}}
	for i, station := range stations {
		graph.AddRelationship(&storage.Relationship{
			Type:       storage.WalksFromStation,
			Start:      station.ID,
			End:        node.ID,
			Properties: storage.Properties{StationID: station.Station(), Cost: walks[i]},
		})
		t.stations = append(t.stations, station.Station())
	}
	return t, nil
}

// Routes that count towards reaching any of the stations, including
// those at linked stations.
func (c *Calculator) routesNear(stations []string) []string {
	set := map[string]bool{}
	for _, s := range stations {
		for _, r := range c.network.Interchanges.InterchangeRoutes(s) {
			set[r] = true
		}
	}
	routes := make([]string, 0, len(set))
	for r := range set {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}

// Plans the searches from one start node. Returns nil if there's
// nothing to search for.
func (c *Calculator) plan(
	ctx context.Context,
	graph storage.Graph,
	req model.JourneyRequest,
	start *storage.Node,
	startStations []string,
	to terminus,
) (*searchPlan, error) {

	destinations := map[string]bool{}
	for _, n := range to.nodes {
		destinations[n.ID] = true
	}
	if destinations[start.ID] {
		c.logger.Info("start is the destination", "node_id", start.ID)
		return nil, nil
	}

	minChanges := c.network.Costs.NumberOfChanges(c.routesNear(startStations), c.routesNear(to.stations))
	if minChanges == costs.Unreachable {
		// Not known within the index depth, so no lower bound
		minChanges = 0
	}
	if minChanges > req.MaxChanges {
		c.logger.Info(
			"journey needs more changes than allowed",
			"start", start.ID,
			"min_changes", minChanges,
			"max_changes", req.MaxChanges,
		)
		return nil, nil
	}

	constraints, err := search.NewJourneyConstraints(c.cfg, graph, req, to.stations)
	if err != nil {
		return nil, fmt.Errorf("building constraints: %w", err)
	}

	queryTimes, err := c.QueryTimes(ctx, graph, req, start.ID, destinations)
	if err != nil {
		return nil, err
	}

	return &searchPlan{
		req:               req,
		graph:             graph,
		start:             start,
		destinations:      destinations,
		destinationRoutes: c.routesNear(to.stations),
		constraints:       constraints,
		queryTimes:        queryTimes,
		minChanges:        minChanges,
	}, nil
}

// Departure times to search from. Arrive by requests depart early
// enough to make it, given an estimate of the journey cost.
func (c *Calculator) QueryTimes(
	ctx context.Context,
	graph storage.Graph,
	req model.JourneyRequest,
	startID string,
	destinations map[string]bool,
) ([]time.Duration, error) {

	var approx time.Duration
	if req.ArriveBy {
		cost, found, err := NewApproxCostCalculator(graph).Cost(ctx, startID, destinations)
		if err != nil {
			return nil, fmt.Errorf("estimating journey cost: %w", err)
		}
		if !found {
			c.logger.Warn("no approximate route", "start", startID)
		}
		approx = cost
	}

	return QueryTimes(c.cfg, req, approx), nil
}

// Departure times to search from, given an estimated journey cost for
// arrive by requests.
func QueryTimes(cfg *config.Config, req model.JourneyRequest, approxCost time.Duration) []time.Duration {
	first := req.Time
	if req.ArriveBy {
		first = req.Time - approxCost - cfg.MaxInitialWait()
		if first < 0 {
			first = 0
		}
	}

	n := cfg.NumberQueries
	if n < 1 || cfg.QueryInterval() <= 0 {
		n = 1
	}

	times := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		times = append(times, first+time.Duration(i)*cfg.QueryInterval())
	}
	return times
}

func pathKey(p search.Path) string {
	ids := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}
	return strings.Join(ids, "|")
}

// Runs the searches of a plan, for each change budget and query time,
// passing new journeys to yield. At most limit journeys are produced,
// unless limit is zero or less. Returns the number found and whether
// yield or the limit cut things short.
func (c *Calculator) execute(
	ctx context.Context,
	plan *searchPlan,
	e *execution,
	limit int,
	yield func(*model.Journey) bool,
) (int, bool, error) {

	if plan.req.MaxResults > 0 && limit <= 0 {
		return 0, true, nil
	}

	m := mapper.New(plan.graph, c.logger)
	seen := map[string]bool{}
	found := 0
	stopped := false

	for changes := plan.minChanges; changes <= plan.req.MaxChanges && !stopped; changes++ {
		heuristics := search.NewServiceHeuristics(
			plan.constraints,
			c.network.Reachability,
			c.cfg.MaxWait(),
			changes,
			c.logger,
		)

		for _, queryTime := range plan.queryTimes {
			traverser := search.NewTraverser(
				plan.graph,
				c.network.Costs,
				e.visits,
				e.lowest,
				search.WithOrdering(c.ordering),
				search.WithRecorder(e.recorder),
				search.WithLogger(c.logger),
			)
			e.searches++

			var mapErr error
			err := traverser.Search(ctx, search.PathRequest{
				Start:             plan.start,
				QueryTime:         queryTime,
				Destinations:      plan.destinations,
				DestinationRoutes: plan.destinationRoutes,
				Heuristics:        heuristics,
			}, func(tp search.TimedPath) bool {
				key := pathKey(tp.Path)
				if seen[key] {
					return true
				}
				seen[key] = true

				journey, err := m.Map(ctx, tp)
				if err != nil {
					mapErr = err
					return false
				}

				found++
				if !yield(journey) {
					stopped = true
					return false
				}
				if limit > 0 && found >= limit {
					stopped = true
					return false
				}
				return true
			})
			if err != nil {
				return found, stopped, fmt.Errorf("searching from %s: %w", plan.start.ID, err)
			}
			if mapErr != nil {
				return found, stopped, fmt.Errorf("mapping path: %w", mapErr)
			}
			if stopped {
				break
			}
		}
	}

	return found, stopped, nil
}
