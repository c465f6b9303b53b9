package search

import (
	"fmt"
	"time"

	"tidbyt.dev/journeys/config"
	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/storage"
)

// Limits derived from configuration and a journey request. Read only
// once built.
type JourneyConstraints struct {
	date          string
	running       map[string]bool
	endStations   map[string]bool
	closed        map[string]bool
	maxPathLength int
	maxWalking    int
	maxNeighbour  int
	maxDuration   time.Duration
}

func NewJourneyConstraints(
	cfg *config.Config,
	graph storage.Graph,
	req model.JourneyRequest,
	endStations []string,
) (*JourneyConstraints, error) {

	services, err := graph.ActiveServices(req.Date)
	if err != nil {
		return nil, fmt.Errorf("getting active services: %w", err)
	}

	c := &JourneyConstraints{
		date:         req.Date,
		running:      map[string]bool{},
		endStations:  map[string]bool{},
		closed:       cfg.ClosedStations(req.Date),
		maxWalking:   cfg.MaxWalkingConnections,
		maxNeighbour: cfg.MaxNeighbourConnections,
		maxDuration:  req.MaxJourneyDuration,
	}
	if c.maxDuration <= 0 {
		c.maxDuration = cfg.MaxJourneyDuration()
	}

	for _, s := range services {
		c.running[s] = true
	}
	for _, s := range endStations {
		c.endStations[s] = true
	}
	for _, mode := range cfg.Modes() {
		if l := mode.MaxPathLength(); l > c.maxPathLength {
			c.maxPathLength = l
		}
	}

	return c, nil
}

func (c *JourneyConstraints) Date() string {
	return c.date
}

func (c *JourneyConstraints) IsRunning(serviceID string) bool {
	return c.running[serviceID]
}

// Longest path, in relationships, worth following.
func (c *JourneyConstraints) MaxPathLength() int {
	return c.maxPathLength
}

// Destination stations. Must not be modified.
func (c *JourneyConstraints) EndStations() map[string]bool {
	return c.endStations
}

func (c *JourneyConstraints) MaxJourneyDuration() time.Duration {
	return c.maxDuration
}

func (c *JourneyConstraints) IsClosed(stationID string) bool {
	return c.closed[stationID]
}

func (c *JourneyConstraints) MaxWalkingConnections() int {
	return c.maxWalking
}

func (c *JourneyConstraints) MaxNeighbourConnections() int {
	return c.maxNeighbour
}
