package index

import (
	"fmt"
	"sort"

	"tidbyt.dev/journeys/storage"
)

// Which routes call at which stations, and where passengers can change
// between routes.
type Interchanges struct {
	routesAt     map[string][]string
	connected    map[string][]string
	interchanges []string
	isChange     map[string]bool
	routes       []string
}

// Builds the index from the route station nodes of a graph. A station
// is an interchange if it's labelled as one, if more than one route
// calls there, or if it links to a neighbour or a station group.
func NewInterchanges(graph storage.Graph) (*Interchanges, error) {
	routeStations, err := graph.NodesByLabel(storage.LabelRouteStation)
	if err != nil {
		return nil, fmt.Errorf("loading route stations: %w", err)
	}

	routeSet := map[string]map[string]bool{}
	allRoutes := map[string]bool{}
	for _, rs := range routeStations {
		if rs.StationID == "" || rs.RouteID == "" {
			continue
		}
		if routeSet[rs.StationID] == nil {
			routeSet[rs.StationID] = map[string]bool{}
		}
		routeSet[rs.StationID][rs.RouteID] = true
		allRoutes[rs.RouteID] = true
	}

	stations, err := graph.NodesByLabel(storage.LabelStation)
	if err != nil {
		return nil, fmt.Errorf("loading stations: %w", err)
	}

	idx := &Interchanges{
		routesAt:  map[string][]string{},
		connected: map[string][]string{},
		isChange:  map[string]bool{},
		routes:    sortedKeys(allRoutes),
	}

	for station, routes := range routeSet {
		idx.routesAt[station] = sortedKeys(routes)
		if len(routes) > 1 {
			idx.isChange[station] = true
		}
	}

	// Stations linked by neighbour relationships or a shared group
	linked := map[string]map[string]bool{}
	groups := map[string][]string{}
	for _, node := range stations {
		station := node.Station()
		if node.Labels.Has(storage.LabelInterchange) {
			idx.isChange[station] = true
		}

		rels, err := graph.Outgoing(node.ID, storage.Neighbour, storage.GroupedToParent)
		if err != nil {
			return nil, fmt.Errorf("loading links from %s: %w", node.ID, err)
		}
		for _, rel := range rels {
			idx.isChange[station] = true
			if rel.Type == storage.GroupedToParent {
				groups[rel.End] = append(groups[rel.End], station)
				continue
			}
			if linked[station] == nil {
				linked[station] = map[string]bool{}
			}
			linked[station][rel.End] = true
		}
	}
	for _, members := range groups {
		for _, a := range members {
			for _, b := range members {
				if a == b {
					continue
				}
				if linked[a] == nil {
					linked[a] = map[string]bool{}
				}
				linked[a][b] = true
			}
		}
	}

	for station, others := range linked {
		routes := map[string]bool{}
		for _, r := range idx.routesAt[station] {
			routes[r] = true
		}
		for other := range others {
			for _, r := range idx.routesAt[other] {
				routes[r] = true
			}
		}
		idx.connected[station] = sortedKeys(routes)
	}

	idx.interchanges = sortedKeys(idx.isChange)

	return idx, nil
}

// Routes calling at a station, sorted.
func (i *Interchanges) RoutesAt(stationID string) []string {
	return i.routesAt[stationID]
}

// Routes that can be boarded from a station, either directly or
// after a neighbour or group connection. Sorted.
func (i *Interchanges) InterchangeRoutes(stationID string) []string {
	if routes, found := i.connected[stationID]; found {
		return routes
	}
	return i.routesAt[stationID]
}

// All interchange stations, sorted.
func (i *Interchanges) Stations() []string {
	return i.interchanges
}

func (i *Interchanges) IsInterchange(stationID string) bool {
	return i.isChange[stationID]
}

// All routes in the network, sorted.
func (i *Interchanges) Routes() []string {
	return i.routes
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
