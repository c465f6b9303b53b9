package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/journeys/model"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 25*time.Minute, cfg.MaxWait())
	assert.Equal(t, 15*time.Minute, cfg.MaxInitialWait())
	assert.Equal(t, 124*time.Minute, cfg.MaxJourneyDuration())
	assert.Equal(t, 12*time.Minute, cfg.QueryInterval())
	assert.Equal(t, []model.TransportMode{
		model.ModeTram,
		model.ModeBus,
		model.ModeTrain,
		model.ModeFerry,
		model.ModeSubway,
	}, cfg.Modes())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
transportModes: [tram]
maxWait: 30
depthFirst: true
closures:
  - stations: [A, B]
    begin: "20240101"
    end: "20240107"
  - stations: [C]
    begin: "20240105"
    end: "20240105"
storage:
  backend: sqlite
  directory: /tmp
  network: metrolink
`))
	require.NoError(t, err)

	assert.Equal(t, []model.TransportMode{model.ModeTram}, cfg.Modes())
	assert.Equal(t, 30*time.Minute, cfg.MaxWait())
	assert.True(t, cfg.DepthFirst)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "metrolink", cfg.Storage.Network)

	// Untouched fields keep defaults
	assert.Equal(t, 3, cfg.NumberQueries)
	assert.Equal(t, 4.8, cfg.WalkingSpeedKmh)

	assert.Equal(t, map[string]bool{}, cfg.ClosedStations("20231231"))
	assert.Equal(t, map[string]bool{"A": true, "B": true}, cfg.ClosedStations("20240101"))
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": true}, cfg.ClosedStations("20240105"))
	assert.Equal(t, map[string]bool{"A": true, "B": true}, cfg.ClosedStations("20240107"))
	assert.Equal(t, map[string]bool{}, cfg.ClosedStations("20240108"))
}

func TestParseInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
	}{
		{"unknown mode", "transportModes: [hovercraft]"},
		{"no modes", "transportModes: []"},
		{"zero max wait", "maxWait: 0"},
		{"negative walking", "maxWalkingConnections: -1"},
		{"zero queries", "numberQueries: 0"},
		{"bad backend", "storage: {backend: mongo, network: x}"},
		{"postgres without conn str", "storage: {backend: postgres, network: x}"},
		{"closure without stations", `closures: [{stations: [], begin: "20240101", end: "20240102"}]`},
		{"closure bad date", `closures: [{stations: [A], begin: "2024011", end: "20240102"}]`},
		{"closure impossible date", `closures: [{stations: [A], begin: "20240132", end: "20240201"}]`},
		{"closure reversed", `closures: [{stations: [A], begin: "20240105", end: "20240101"}]`},
		{"not yaml", "maxWait: [1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journeys.yml")
	require.NoError(t, os.WriteFile(path, []byte("maxNumResults: 2\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxNumResults)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}
