package journeys_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/journeys"
	"tidbyt.dev/journeys/testutil"
)

func TestParseEndpoint(t *testing.T) {
	for _, tc := range []struct {
		in       string
		location bool
		station  string
		lat, lon float64
		err      bool
	}{
		{in: "A", station: "A"},
		{in: " 9400ZZMAALT ", station: "9400ZZMAALT"},
		{in: "53.4794,-2.2453", location: true, lat: 53.4794, lon: -2.2453},
		{in: "53.4794, -2.2453", location: true, lat: 53.4794, lon: -2.2453},
		{in: "north,south", station: "north,south"},
		{in: "91,0", err: true},
		{in: "0,181", err: true},
		{in: "", err: true},
	} {
		ep, err := journeys.ParseEndpoint(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.location, ep.IsLocation(), tc.in)
		if tc.location {
			assert.InDelta(t, tc.lat, ep.Lat, 1e-9, tc.in)
			assert.InDelta(t, tc.lon, ep.Lon, 1e-9, tc.in)
		} else {
			assert.Equal(t, tc.station, ep.StationID, tc.in)
			assert.Equal(t, tc.station, ep.String())
		}
	}

	assert.Equal(t, "53.00000,-2.00000", journeys.LocationEndpoint(53, -2).String())
}

func TestApproxCost(t *testing.T) {
	graph := tramAndBus().Graph(t, "memory")
	approx := journeys.NewApproxCostCalculator(graph)
	ctx := context.Background()

	// Timetabled waits aren't counted, only time on the move
	cost, found, err := approx.Cost(ctx, "A", map[string]bool{"C": true})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, hhmm(t, "00:20"), cost)

	cost, found, err = approx.Cost(ctx, "A", map[string]bool{"D": true, "B": true})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, hhmm(t, "00:10"), cost)

	// Nothing runs back from D
	_, found, err = approx.Cost(ctx, "D", map[string]bool{"A": true})
	require.NoError(t, err)
	assert.False(t, found)

	approx.MaxNodes = 2
	_, found, err = approx.Cost(ctx, "A", map[string]bool{"C": true})
	require.NoError(t, err)
	assert.False(t, found)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = approx.Cost(cancelled, "A", map[string]bool{testutil.RouteStationID("C", "R1"): true})
	assert.ErrorIs(t, err, context.Canceled)
}
