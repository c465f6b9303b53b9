package search_test

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/journeys/config"
	"tidbyt.dev/journeys/costs"
	"tidbyt.dev/journeys/index"
	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/search"
	"tidbyt.dev/journeys/states"
	"tidbyt.dev/journeys/storage"
	"tidbyt.dev/journeys/testutil"
)

func hhmm(t *testing.T, s string) time.Duration {
	d, err := model.ParseTime(s)
	require.NoError(t, err)
	return d
}

// R1 (tram) runs A-B-C, R2 (bus) runs C-D. C is where they meet.
func tramAndBus() *testutil.NetworkBuilder {
	return testutil.NewNetworkBuilder().
		Station("A", 53.00, -2.0).
		Station("B", 53.01, -2.0).
		Station("C", 53.02, -2.0).
		Station("D", 53.03, -2.0).
		Service("wk", "20230101", "20231231").
		Trip("t1", "R1", "wk", model.ModeTram, "A@08:00", "B@08:10", "C@08:20").
		Trip("t1b", "R1", "wk", model.ModeTram, "A@08:30", "B@08:40", "C@08:50").
		Trip("t2", "R2", "wk", model.ModeBus, "C@08:30", "D@08:45").
		Trip("t2b", "R2", "wk", model.ModeBus, "C@09:00", "D@09:15")
}

type fixture struct {
	graph        storage.Graph
	interchanges *index.Interchanges
	reachability *index.Reachability
	costs        *costs.RouteToRouteCosts
	cfg          *config.Config
}

func newFixture(t *testing.T, backend string, b *testutil.NetworkBuilder, cfg *config.Config) *fixture {
	graph := b.Graph(t, backend)

	interchanges, err := index.NewInterchanges(graph)
	require.NoError(t, err)

	costIndex, err := costs.Build(context.Background(), interchanges, nil)
	require.NoError(t, err)

	if cfg == nil {
		cfg = config.Default()
	}

	return &fixture{
		graph:        graph,
		interchanges: interchanges,
		reachability: index.NewReachability(graph, interchanges, 100),
		costs:        costIndex,
		cfg:          cfg,
	}
}

type searchResult struct {
	paths    []search.TimedPath
	recorder *search.ReasonCounter
	err      error
}

func (f *fixture) search(
	t *testing.T,
	date string,
	from, to string,
	queryTime string,
	maxChanges int,
	opts ...search.TraverserOption,
) searchResult {
	req, err := model.NewJourneyRequest(date, hhmm(t, queryTime), false, maxChanges, f.cfg.MaxJourneyDuration(), 0)
	require.NoError(t, err)

	constraints, err := search.NewJourneyConstraints(f.cfg, f.graph, req, []string{to})
	require.NoError(t, err)

	start, err := f.graph.Node(from)
	require.NoError(t, err)

	recorder := search.NewReasonCounter()
	opts = append([]search.TraverserOption{search.WithRecorder(recorder)}, opts...)
	traverser := search.NewTraverser(
		f.graph,
		f.costs,
		search.NewPreviousVisits(1000),
		search.NewLowestCostSeen(),
		opts...,
	)

	result := searchResult{recorder: recorder}
	result.err = traverser.Search(context.Background(), search.PathRequest{
		Start:             start,
		QueryTime:         req.Time,
		Destinations:      map[string]bool{to: true},
		DestinationRoutes: f.interchanges.RoutesAt(to),
		Heuristics:        search.NewServiceHeuristics(constraints, f.reachability, f.cfg.MaxWait(), maxChanges, nil),
	}, func(tp search.TimedPath) bool {
		result.paths = append(result.paths, tp)
		return true
	})

	return result
}

func nodeIDs(p search.Path) []string {
	ids := []string{}
	for _, n := range p.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestSearchDirect(t *testing.T) {
	for _, backend := range testutil.Backends() {
		t.Run(backend, func(t *testing.T) {
			f := newFixture(t, backend, tramAndBus(), nil)

			r := f.search(t, "20230606", "A", "C", "07:55", 0)
			require.NoError(t, r.err)
			require.Equal(t, 1, len(r.paths))

			tp := r.paths[0]
			assert.Equal(t, hhmm(t, "08:20"), tp.Arrival)
			assert.Equal(t, hhmm(t, "07:55"), tp.QueryTime)
			assert.Equal(t, 0, tp.MaxChanges)
			assert.Equal(t, "A", tp.Path.Start().ID)
			assert.Equal(t, "C", tp.Path.End().ID)
			assert.Equal(t, len(tp.Path.Nodes)-1, tp.Path.Len())
			assert.Equal(t, []string{
				"A",
				testutil.PlatformID("A", "R1"),
				testutil.RouteStationID("A", "R1"),
				testutil.ServiceNodeID("A", "R1", "wk"),
				testutil.HourNodeID("A", "R1", "wk", 8),
				testutil.MinuteNodeID("A", "t1"),
				testutil.RouteStationID("B", "R1"),
				testutil.ServiceNodeID("B", "R1", "wk"),
				testutil.HourNodeID("B", "R1", "wk", 8),
				testutil.MinuteNodeID("B", "t1"),
				testutil.RouteStationID("C", "R1"),
				testutil.PlatformID("C", "R1"),
				"C",
			}, nodeIDs(tp.Path))

			// The later tram is too long a wait
			assert.True(t, r.recorder.Count(search.TooLongWait) > 0)
			assert.Equal(t, 1, r.recorder.Count(search.Arrived))
			assert.True(t, r.recorder.TotalChecked() > 0)
		})
	}
}

func TestSearchChangeRequired(t *testing.T) {
	for _, backend := range testutil.Backends() {
		t.Run(backend, func(t *testing.T) {
			f := newFixture(t, backend, tramAndBus(), nil)

			// Only reachable via the interchange at C
			r := f.search(t, "20230606", "A", "D", "07:55", 0)
			require.NoError(t, r.err)
			assert.Equal(t, 0, len(r.paths))
			assert.True(t, r.recorder.Count(search.TooManyChanges) > 0)

			r = f.search(t, "20230606", "A", "D", "07:55", 1)
			require.NoError(t, r.err)
			require.Equal(t, 1, len(r.paths))
			assert.Equal(t, hhmm(t, "08:45"), r.paths[0].Arrival)
			assert.Equal(t, "D", r.paths[0].Path.End().ID)

			// Missing the 08:30 bus means catching the 09:00
			r = f.search(t, "20230606", "A", "D", "08:25", 1)
			require.NoError(t, r.err)
			require.Equal(t, 1, len(r.paths))
			assert.Equal(t, hhmm(t, "09:15"), r.paths[0].Arrival)
		})
	}
}

func TestSearchServiceNotRunning(t *testing.T) {
	f := newFixture(t, "memory", tramAndBus(), nil)

	r := f.search(t, "20240606", "A", "C", "07:55", 0)
	require.NoError(t, r.err)
	assert.Equal(t, 0, len(r.paths))
	assert.True(t, r.recorder.Count(search.NotOnQueryDate) > 0)
}

func TestSearchStationClosed(t *testing.T) {
	cfg := config.Default()
	cfg.Closures = []config.Closure{{Stations: []string{"C"}, Begin: "20230601", End: "20230610"}}
	f := newFixture(t, "memory", tramAndBus(), cfg)

	r := f.search(t, "20230606", "A", "D", "07:55", 1)
	require.NoError(t, r.err)
	assert.Equal(t, 0, len(r.paths))
	assert.True(t, r.recorder.Count(search.StationClosed) > 0)

	// Closure over
	r = f.search(t, "20230611", "A", "D", "07:55", 1)
	require.NoError(t, r.err)
	assert.Equal(t, 1, len(r.paths))
}

func TestSearchDurationLimit(t *testing.T) {
	cfg := config.Default()
	cfg.MaxJourneyDurationMins = 30
	f := newFixture(t, "memory", tramAndBus(), cfg)

	r := f.search(t, "20230606", "A", "D", "07:55", 1)
	require.NoError(t, r.err)
	assert.Equal(t, 0, len(r.paths))
	assert.True(t, r.recorder.Count(search.TookTooLong) > 0)

	r = f.search(t, "20230606", "A", "C", "07:55", 1)
	require.NoError(t, r.err)
	assert.Equal(t, 1, len(r.paths))
}

func summarisePaths(r searchResult) []string {
	s := []string{}
	for _, p := range r.paths {
		s = append(s, strings.Join(nodeIDs(p.Path), ",")+"@"+model.FormatTime(p.Arrival))
	}
	sort.Strings(s)
	return s
}

// Tram R1 runs A-B-C. B can also be walked to from A, and E is only
// reachable on foot from B.
func tramWithWalks() *testutil.NetworkBuilder {
	return testutil.NewNetworkBuilder().
		Station("A", 53.00, -2.0).
		Station("B", 53.01, -2.0).
		Station("C", 53.02, -2.0).
		Station("E", 53.01, -2.01).
		Service("wk", "20230101", "20231231").
		Trip("t1", "R1", "wk", model.ModeTram, "A@08:00", "B@08:10", "C@08:20").
		Neighbour("A", "B", 10*time.Minute).
		Neighbour("B", "E", 5*time.Minute)
}

func TestSearchOrderingsAgree(t *testing.T) {
	for _, tc := range []struct {
		name      string
		network   func() *testutil.NetworkBuilder
		from, to  string
		queryTime string
		changes   int
		paths     int
	}{
		{"direct", tramAndBus, "A", "C", "07:55", 0, 1},
		{"one change", tramAndBus, "A", "D", "07:55", 1, 1},
		{"two changes allowed", tramAndBus, "B", "D", "07:55", 2, 1},

		// Walking to B and boarding there is hopeless, but riding
		// through B at the same time and alighting isn't
		{"walk and ride to same stop", tramWithWalks, "A", "E", "08:00", 0, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, "memory", tc.network(), nil)

			bfs := f.search(t, "20230606", tc.from, tc.to, tc.queryTime, tc.changes)
			dfs := f.search(t, "20230606", tc.from, tc.to, tc.queryTime, tc.changes, search.WithOrdering(search.DepthFirst))
			require.NoError(t, bfs.err)
			require.NoError(t, dfs.err)
			assert.Equal(t, tc.paths, len(bfs.paths), summarisePaths(bfs))
			assert.Equal(t, summarisePaths(bfs), summarisePaths(dfs))

			// Same again
			again := f.search(t, "20230606", tc.from, tc.to, tc.queryTime, tc.changes)
			assert.Equal(t, summarisePaths(bfs), summarisePaths(again))
		})
	}
}

func TestSearchRidesThroughClosedStation(t *testing.T) {
	cfg := config.Default()
	cfg.Closures = []config.Closure{{Stations: []string{"B"}, Begin: "20230606", End: "20230606"}}
	f := newFixture(t, "memory", tramAndBus(), cfg)

	for _, ordering := range []search.Ordering{search.BreadthFirst, search.DepthFirst} {
		t.Run(ordering.String(), func(t *testing.T) {
			// The tram calls at B, but nobody gets on or off there
			r := f.search(t, "20230606", "A", "C", "07:55", 0, search.WithOrdering(ordering))
			require.NoError(t, r.err)
			require.Equal(t, 1, len(r.paths))
			assert.Contains(t, nodeIDs(r.paths[0].Path), testutil.RouteStationID("B", "R1"))
			assert.Equal(t, hhmm(t, "08:20"), r.paths[0].Arrival)

			// Boarding at B isn't possible
			r = f.search(t, "20230606", "B", "C", "07:55", 0, search.WithOrdering(ordering))
			require.NoError(t, r.err)
			assert.Equal(t, 0, len(r.paths))
			assert.True(t, r.recorder.Count(search.StationClosed) > 0)
		})
	}
}

func TestSearchStopsWhenYieldDeclines(t *testing.T) {
	// Two identical trams: both arrive at the same cost
	b := testutil.NewNetworkBuilder().
		Station("A", 53.00, -2.0).
		Station("B", 53.01, -2.0).
		Service("wk", "20230101", "20231231").
		Trip("t1", "R1", "wk", model.ModeTram, "A@08:00", "B@08:10").
		Trip("t2", "R2", "wk", model.ModeTram, "A@08:00", "B@08:10")
	f := newFixture(t, "memory", b, nil)

	all := f.search(t, "20230606", "A", "B", "07:55", 0)
	require.NoError(t, all.err)
	assert.Equal(t, 2, len(all.paths))

	req, err := model.NewJourneyRequest("20230606", hhmm(t, "07:55"), false, 0, time.Hour, 0)
	require.NoError(t, err)
	constraints, err := search.NewJourneyConstraints(f.cfg, f.graph, req, []string{"B"})
	require.NoError(t, err)
	start, err := f.graph.Node("A")
	require.NoError(t, err)

	traverser := search.NewTraverser(f.graph, f.costs, search.NewPreviousVisits(100), search.NewLowestCostSeen())
	count := 0
	err = traverser.Search(context.Background(), search.PathRequest{
		Start:        start,
		QueryTime:    req.Time,
		Destinations: map[string]bool{"B": true},
		Heuristics:   search.NewServiceHeuristics(constraints, f.reachability, f.cfg.MaxWait(), 0, nil),
	}, func(tp search.TimedPath) bool {
		count++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = traverser.Search(ctx, search.PathRequest{
		Start:        start,
		QueryTime:    req.Time,
		Destinations: map[string]bool{"B": true},
		Heuristics:   search.NewServiceHeuristics(constraints, f.reachability, f.cfg.MaxWait(), 0, nil),
	}, func(tp search.TimedPath) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchMalformedGraph(t *testing.T) {
	// Departure without a trip
	s := storage.NewMemoryStorage()
	w, err := s.GetWriter("test")
	require.NoError(t, err)

	nodes := []*storage.Node{
		{ID: "A", Labels: storage.LabelStation},
		{ID: "B", Labels: storage.LabelStation},
		{ID: "RS:A", Labels: storage.LabelRouteStation | storage.LabelBus, Properties: storage.Properties{StationID: "A", RouteID: "R", Mode: model.ModeBus}},
		{ID: "RS:B", Labels: storage.LabelRouteStation | storage.LabelBus, Properties: storage.Properties{StationID: "B", RouteID: "R", Mode: model.ModeBus}},
		{ID: "SVC", Labels: storage.LabelService, Properties: storage.Properties{StationID: "A", ServiceID: "wk"}},
		{ID: "H", Labels: storage.LabelHour, Properties: storage.Properties{StationID: "A", Hour: 8}},
		{ID: "M", Labels: storage.LabelMinute, Properties: storage.Properties{StationID: "A", Time: 8 * time.Hour}},
	}
	for _, n := range nodes {
		require.NoError(t, w.WriteNode(n))
	}
	require.NoError(t, w.WriteCalendar(&model.Calendar{ServiceID: "wk", StartDate: "20230101", EndDate: "20231231", Weekday: 0x7f}))
	require.NoError(t, w.BeginRelationships())
	for _, r := range []*storage.Relationship{
		{Type: storage.Board, Start: "A", End: "RS:A"},
		{Type: storage.ToService, Start: "RS:A", End: "SVC", Properties: storage.Properties{ServiceID: "wk"}},
		{Type: storage.ToHour, Start: "SVC", End: "H"},
		{Type: storage.ToMinute, Start: "H", End: "M"},
		{Type: storage.BusGoesTo, Start: "M", End: "RS:B", Properties: storage.Properties{Cost: 5 * time.Minute}},
		{Type: storage.Depart, Start: "RS:B", End: "B"},
	} {
		require.NoError(t, w.WriteRelationship(r))
	}
	require.NoError(t, w.EndRelationships())
	require.NoError(t, w.Close())

	graph, err := s.GetReader("test")
	require.NoError(t, err)

	interchanges, err := index.NewInterchanges(graph)
	require.NoError(t, err)

	f := &fixture{
		graph:        graph,
		interchanges: interchanges,
		reachability: index.NewReachability(graph, interchanges, 10),
		cfg:          config.Default(),
	}

	r := f.search(t, "20230606", "A", "B", "07:55", 0)
	assert.ErrorIs(t, r.err, states.ErrInvariant)
}
