package costs_test

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/journeys/costs"
)

type topology map[string][]string

func (t topology) Routes() []string {
	seen := map[string]bool{}
	routes := []string{}
	for _, calling := range t {
		for _, r := range calling {
			if !seen[r] {
				seen[r] = true
				routes = append(routes, r)
			}
		}
	}
	sort.Strings(routes)
	return routes
}

func (t topology) Stations() []string {
	stations := []string{}
	for s := range t {
		stations = append(stations, s)
	}
	sort.Strings(stations)
	return stations
}

func (t topology) InterchangeRoutes(station string) []string {
	return t[station]
}

// Routes R0..R(n-1), with Ri and Ri+1 sharing station Si+1.
func chain(n int) topology {
	t := topology{}
	for i := 0; i < n-1; i++ {
		t[fmt.Sprintf("S%d", i+1)] = []string{fmt.Sprintf("R%d", i), fmt.Sprintf("R%d", i+1)}
	}
	return t
}

func TestCostBetweenExample(t *testing.T) {
	c, err := costs.Build(context.Background(), topology{
		"S": {"A", "B"},
		"T": {"B", "C"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, c.CostBetween("A", "A"))
	assert.Equal(t, 0, c.CostBetween("B", "B"))
	assert.Equal(t, 1, c.CostBetween("A", "B"))
	assert.Equal(t, 1, c.CostBetween("B", "A"))
	assert.Equal(t, 1, c.CostBetween("B", "C"))
	assert.Equal(t, 2, c.CostBetween("A", "C"))
	assert.Equal(t, 2, c.CostBetween("C", "A"))
	assert.Equal(t, 6, c.Pairs())
}

func TestCostBetweenChain(t *testing.T) {
	c, err := costs.Build(context.Background(), chain(7), nil)
	require.NoError(t, err)

	for j := 0; j <= costs.Depth; j++ {
		assert.Equal(t, j, c.CostBetween("R0", fmt.Sprintf("R%d", j)))
		assert.Equal(t, j, c.CostBetween(fmt.Sprintf("R%d", j), "R0"))
	}

	// Beyond the depth bound
	assert.Equal(t, costs.Unreachable, c.CostBetween("R0", "R5"))
	assert.Equal(t, costs.Unreachable, c.CostBetween("R6", "R0"))
	assert.Equal(t, 4, c.CostBetween("R2", "R6"))
}

func TestCostBetweenProperties(t *testing.T) {
	top := topology{
		"S1": {"A", "B", "C"},
		"S2": {"C", "D"},
		"S3": {"D", "E"},
		"S4": {"F", "G"},
	}
	c, err := costs.Build(context.Background(), top, nil)
	require.NoError(t, err)

	for _, a := range top.Routes() {
		assert.Equal(t, 0, c.CostBetween(a, a))
		for _, b := range top.Routes() {
			cost := c.CostBetween(a, b)
			assert.True(t, cost >= 0)
			assert.True(t, cost <= costs.Depth || cost == costs.Unreachable)

			// Interchange seeding is symmetric, and so is the rest
			assert.Equal(t, cost, c.CostBetween(b, a))
		}
	}

	for _, station := range top.Stations() {
		for _, a := range top.InterchangeRoutes(station) {
			for _, b := range top.InterchangeRoutes(station) {
				if a != b {
					assert.Equal(t, 1, c.CostBetween(a, b))
				}
			}
		}
	}

	assert.Equal(t, 3, c.CostBetween("A", "E"))
	assert.Equal(t, costs.Unreachable, c.CostBetween("A", "F"))
}

func TestCostBetweenUnknownRoute(t *testing.T) {
	c, err := costs.Build(context.Background(), chain(3), nil)
	require.NoError(t, err)

	assert.Equal(t, costs.Unreachable, c.CostBetween("R0", "nope"))
	assert.Equal(t, costs.Unreachable, c.CostBetween("nope", "R0"))
	assert.Equal(t, costs.Unreachable, c.CostBetween("nope", "nope"))
}

func TestBuildEmpty(t *testing.T) {
	c, err := costs.Build(context.Background(), topology{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Pairs())
	assert.Equal(t, 0, len(c.Routes()))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := costs.Build(ctx, chain(5), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNumberOfChanges(t *testing.T) {
	c, err := costs.Build(context.Background(), chain(6), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, c.NumberOfChanges([]string{"R1"}, []string{"R1"}))
	assert.Equal(t, 3, c.NumberOfChanges([]string{"R0"}, []string{"R3"}))
	assert.Equal(t, 1, c.NumberOfChanges([]string{"R0", "R2"}, []string{"R3", "R5"}))
	assert.Equal(t, costs.Unreachable, c.NumberOfChanges([]string{"R0"}, []string{"R5"}))
	assert.Equal(t, costs.Unreachable, c.NumberOfChanges(nil, []string{"R5"}))
}

func TestSortByDestinations(t *testing.T) {
	c, err := costs.Build(context.Background(), chain(7), nil)
	require.NoError(t, err)

	type candidate struct {
		name  string
		route string
	}
	routeOf := func(c candidate) string { return c.route }

	candidates := []candidate{
		{"a", "R6"},
		{"b", "R2"},
		{"c", "R3"},
		{"d", "R0"},
		{"e", "R3"},
		{"f", "unknown"},
		{"g", "R2"},
	}

	sorted := costs.SortByDestinations(c, candidates, routeOf, []string{"R3"})

	names := []string{}
	for _, s := range sorted {
		names = append(names, s.name)
	}
	// R3: 0, R2: 1, R0 and R6: 3, unknown last
	assert.Equal(t, []string{"c", "e", "b", "g", "a", "d", "f"}, names)

	// Costs are non-decreasing
	prev := 0
	for _, s := range sorted {
		cost := c.MinCost(s.route, []string{"R3"})
		assert.True(t, cost >= prev)
		prev = cost
	}

	// Input untouched
	assert.Equal(t, "a", candidates[0].name)

	// No destinations keeps input order
	sorted = costs.SortByDestinations(c, candidates, routeOf, nil)
	assert.Equal(t, candidates, sorted)
}
