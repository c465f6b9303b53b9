package index

import (
	"fmt"
	"sort"

	"tidbyt.dev/journeys/storage"
)

type StationDistance struct {
	Node       *storage.Node
	DistanceKm float64
}

// Station lookups by ID and by location.
type Stations struct {
	stations []*storage.Node
	byID     map[string]*storage.Node
}

func NewStations(graph storage.Graph) (*Stations, error) {
	nodes, err := graph.NodesByLabel(storage.LabelStation)
	if err != nil {
		return nil, fmt.Errorf("loading stations: %w", err)
	}

	s := &Stations{
		stations: nodes,
		byID:     map[string]*storage.Node{},
	}
	for _, node := range nodes {
		s.byID[node.Station()] = node
	}

	return s, nil
}

// Station node for a station ID.
func (s *Stations) Node(stationID string) (*storage.Node, bool) {
	node, ok := s.byID[stationID]
	return node, ok
}

// All station nodes, sorted by node ID.
func (s *Stations) All() []*storage.Node {
	return s.stations
}

// Stations within rangeKm of the given location, closest first. At
// most limit results (pass 0 for no limit.)
func (s *Stations) Nearby(lat, lon, rangeKm float64, limit int) []StationDistance {
	nearby := []StationDistance{}
	for _, node := range s.stations {
		d := storage.HaversineDistance(lat, lon, node.Lat, node.Lon)
		if d > rangeKm {
			continue
		}
		nearby = append(nearby, StationDistance{Node: node, DistanceKm: d})
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].DistanceKm < nearby[j].DistanceKm
	})

	if limit > 0 && len(nearby) > limit {
		nearby = nearby[:limit]
	}

	return nearby
}
