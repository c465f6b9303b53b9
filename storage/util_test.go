package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHaversineDistance(t *testing.T) {
	type point struct{ lat, lon float64 }
	loc := map[string]point{
		"nyc":    {40.700000, -74.100000},
		"philly": {40.000000, -75.200000},
		"sf":     {37.800000, -122.500000},
		"sto":    {59.300000, 17.900000},
		"lon":    {51.500000, -0.200000},
		"rey":    {64.100000, -21.900000},
	}

	for _, tc := range []struct {
		a, b     string
		expected float64
	}{
		{"nyc", "philly", 121.438585},
		{"nyc", "sf", 4127.311071},
		{"nyc", "sto", 6318.636281},
		{"philly", "lon", 5694.234270},
		{"sf", "rey", 6760.677281},
		{"sto", "lon", 1426.989197},
		{"lon", "rey", 1882.845837},
	} {
		a, b := loc[tc.a], loc[tc.b]
		assert.InDelta(t, tc.expected, HaversineDistance(a.lat, a.lon, b.lat, b.lon), 0.001, "%s-%s", tc.a, tc.b)
		assert.InDelta(t, tc.expected, HaversineDistance(b.lat, b.lon, a.lat, a.lon), 0.001, "%s-%s", tc.b, tc.a)
	}

	assert.Equal(t, 0.0, HaversineDistance(53.48, -2.24, 53.48, -2.24))
}

func TestWalkingTime(t *testing.T) {
	assert.Equal(t, 1*time.Minute, WalkingTime(0, 4.8))
	assert.Equal(t, 1*time.Minute, WalkingTime(0.05, 4.8))
	assert.Equal(t, 13*time.Minute, WalkingTime(1.0, 4.8))
	assert.Equal(t, 15*time.Minute, WalkingTime(1.2, 4.8))
	assert.Equal(t, time.Duration(0), WalkingTime(1.0, 0))
}
