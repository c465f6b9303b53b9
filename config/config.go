package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/journeys/model"
)

// Stations closed for a range of service dates, both ends
// inclusive. Dates are YYYYMMDD.
type Closure struct {
	Stations []string `yaml:"stations" validate:"min=1,dive,required"`
	Begin    string   `yaml:"begin" validate:"len=8,numeric"`
	End      string   `yaml:"end" validate:"len=8,numeric"`
}

func (c Closure) Contains(date string) bool {
	return c.Begin <= date && date <= c.End
}

type StorageConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	Directory string `yaml:"directory"`
	ConnStr   string `yaml:"connStr" validate:"required_if=Backend postgres"`
	Network   string `yaml:"network" validate:"required"`
}

// Search configuration. Durations are given in whole minutes.
type Config struct {
	TransportModes          []string `yaml:"transportModes" validate:"min=1,dive,oneof=tram bus train ferry subway rail_replacement_bus"`
	MaxWaitMins             int      `yaml:"maxWait" validate:"gt=0"`
	MaxInitialWaitMins      int      `yaml:"maxInitialWait" validate:"gte=0"`
	MaxWalkingConnections   int      `yaml:"maxWalkingConnections" validate:"gte=0"`
	MaxNeighbourConnections int      `yaml:"maxNeighbourConnections" validate:"gte=0"`
	MaxJourneyDurationMins  int      `yaml:"maxJourneyDuration" validate:"gt=0"`
	NumberQueries           int      `yaml:"numberQueries" validate:"gt=0"`
	QueryIntervalMins       int      `yaml:"queryInterval" validate:"gte=0"`
	DepthFirst              bool     `yaml:"depthFirst"`
	MemoCacheSize           int      `yaml:"memoCacheSize" validate:"gt=0"`
	WalkingSpeedKmh         float64  `yaml:"walkingSpeedKmh" validate:"gt=0"`
	NearbyStationRangeKm    float64  `yaml:"nearbyStationRangeKm" validate:"gt=0"`
	MaxNearbyStations       int      `yaml:"maxNearbyStations" validate:"gt=0"`
	MaxNumResults           int      `yaml:"maxNumResults" validate:"gte=0"`
	BoxSizeKm               float64  `yaml:"boxSizeKm" validate:"gt=0"`

	Closures []Closure     `yaml:"closures" validate:"dive"`
	Storage  StorageConfig `yaml:"storage"`
}

func Default() *Config {
	return &Config{
		TransportModes:          []string{"tram", "bus", "train", "ferry", "subway"},
		MaxWaitMins:             25,
		MaxInitialWaitMins:      15,
		MaxWalkingConnections:   3,
		MaxNeighbourConnections: 2,
		MaxJourneyDurationMins:  124,
		NumberQueries:           3,
		QueryIntervalMins:       12,
		MemoCacheSize:           200000,
		WalkingSpeedKmh:         4.8,
		NearbyStationRangeKm:    1.0,
		MaxNearbyStations:       5,
		MaxNumResults:           5,
		BoxSizeKm:               2.0,
		Storage: StorageConfig{
			Backend: "memory",
			Network: "default",
		},
	}
}

// Loads configuration from a YAML file. Fields missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	for i, closure := range c.Closures {
		if closure.Begin > closure.End {
			return fmt.Errorf("closure %d ends (%s) before it begins (%s)", i, closure.End, closure.Begin)
		}
		for _, d := range []string{closure.Begin, closure.End} {
			if _, err := time.Parse("20060102", d); err != nil {
				return fmt.Errorf("closure %d: invalid date: %s", i, d)
			}
		}
	}
	return nil
}

func (c *Config) Modes() []model.TransportMode {
	modes := []model.TransportMode{}
	for _, name := range c.TransportModes {
		mode, err := model.ParseTransportMode(name)
		if err != nil {
			// Unreachable for validated config
			continue
		}
		modes = append(modes, mode)
	}
	return modes
}

// Stations closed on the given date.
func (c *Config) ClosedStations(date string) map[string]bool {
	closed := map[string]bool{}
	for _, closure := range c.Closures {
		if !closure.Contains(date) {
			continue
		}
		for _, station := range closure.Stations {
			closed[station] = true
		}
	}
	return closed
}

func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitMins) * time.Minute
}

func (c *Config) MaxInitialWait() time.Duration {
	return time.Duration(c.MaxInitialWaitMins) * time.Minute
}

func (c *Config) MaxJourneyDuration() time.Duration {
	return time.Duration(c.MaxJourneyDurationMins) * time.Minute
}

func (c *Config) QueryInterval() time.Duration {
	return time.Duration(c.QueryIntervalMins) * time.Minute
}
