package index

import (
	"fmt"

	"github.com/bluele/gcache"

	"tidbyt.dev/journeys/storage"
)

// Answers whether boarding at a route station can lead to a set of
// destination stations: either a destination is further along the
// route, or an interchange is, from which it may be reached.
type Reachability struct {
	graph        storage.Graph
	interchanges *Interchanges
	downstream   gcache.Cache
}

type downstreamStations struct {
	stations    map[string]bool
	interchange bool
}

var vehicleHops = []storage.RelationshipType{
	storage.ToService,
	storage.ToHour,
	storage.ToMinute,
}

var goesTo = []storage.RelationshipType{
	storage.TramGoesTo,
	storage.BusGoesTo,
	storage.TrainGoesTo,
	storage.FerryGoesTo,
	storage.SubwayGoesTo,
}

// Results for at most cacheSize route stations are kept.
func NewReachability(graph storage.Graph, interchanges *Interchanges, cacheSize int) *Reachability {
	r := &Reachability{
		graph:        graph,
		interchanges: interchanges,
	}
	r.downstream = gcache.New(cacheSize).
		LRU().
		LoaderFunc(func(key interface{}) (interface{}, error) {
			return r.loadDownstream(key.(string))
		}).
		Build()
	return r
}

func (r *Reachability) CanReach(routeStationID string, stations map[string]bool) (bool, error) {
	value, err := r.downstream.Get(routeStationID)
	if err != nil {
		return false, fmt.Errorf("computing reachability from %s: %w", routeStationID, err)
	}
	ds := value.(*downstreamStations)

	if ds.interchange {
		return true, nil
	}
	for station := range stations {
		if ds.stations[station] {
			return true, nil
		}
	}
	return false, nil
}

// Route stations following the given one on any trip.
func (r *Reachability) next(routeStationID string) ([]string, error) {
	frontier := []string{routeStationID}
	for _, relType := range vehicleHops {
		nextFrontier := []string{}
		for _, nodeID := range frontier {
			rels, err := r.graph.Outgoing(nodeID, relType)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				nextFrontier = append(nextFrontier, rel.End)
			}
		}
		frontier = nextFrontier
	}

	seen := map[string]bool{}
	next := []string{}
	for _, minuteID := range frontier {
		rels, err := r.graph.Outgoing(minuteID, goesTo...)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if !seen[rel.End] {
				seen[rel.End] = true
				next = append(next, rel.End)
			}
		}
	}

	return next, nil
}

func (r *Reachability) loadDownstream(routeStationID string) (*downstreamStations, error) {
	ds := &downstreamStations{
		stations: map[string]bool{},
	}

	visited := map[string]bool{routeStationID: true}
	queue := []string{routeStationID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next, err := r.next(current)
		if err != nil {
			return nil, err
		}

		for _, rsID := range next {
			if visited[rsID] {
				continue
			}
			visited[rsID] = true
			queue = append(queue, rsID)

			rs, err := r.graph.Node(rsID)
			if err != nil {
				return nil, err
			}
			ds.stations[rs.StationID] = true
			if r.interchanges.IsInterchange(rs.StationID) {
				ds.interchange = true
			}
		}
	}

	return ds, nil
}
