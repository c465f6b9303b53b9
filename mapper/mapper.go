package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/search"
	"tidbyt.dev/journeys/storage"
)

var ErrMalformedPath = errors.New("malformed path")

// Turns paths found by search into journeys with concrete times.
type Mapper struct {
	graph  storage.Graph
	logger *slog.Logger
}

func New(graph storage.Graph, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		graph:  graph,
		logger: logger,
	}
}

func (m *Mapper) Map(ctx context.Context, tp search.TimedPath) (*model.Journey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := tp.Path
	if path.Len() == 0 || len(path.Nodes) != path.Len()+1 {
		return nil, fmt.Errorf("%w: %d nodes and %d relationships", ErrMalformedPath, len(path.Nodes), path.Len())
	}

	w := &pathWalker{
		mapper:    m,
		queryTime: tp.QueryTime,
		locations: map[string]model.Location{},
	}

	var err error
	if path.Len() == 1 {
		err = w.direct(path)
	} else {
		err = w.walk(path)
	}
	if err != nil {
		return nil, err
	}

	visited, err := w.visited(path)
	if err != nil {
		return nil, err
	}

	journey := &model.Journey{
		Stages:           w.stages,
		QueryTime:        tp.QueryTime,
		Path:             visited,
		RequestedChanges: tp.MaxChanges,
	}

	m.logger.Debug(
		"mapped path",
		"start", path.Start().ID,
		"end", path.End().ID,
		"stages", len(journey.Stages),
		"departure", model.FormatTime(journey.FirstDeparture()),
		"arrival", model.FormatTime(journey.LastArrival()),
	)

	return journey, nil
}

// A walk or connection whose start time is only known once the next
// scheduled departure is seen.
type floatingStage struct {
	begin *time.Duration
	at    time.Duration
}

type pathWalker struct {
	mapper    *Mapper
	queryTime time.Duration
	locations map[string]model.Location

	// Before the first departure, times are unknown and costs
	// accumulate in offset.
	anchored bool
	now      time.Duration
	offset   time.Duration
	floating []floatingStage

	pending *model.VehicleStage
	stages  []model.TransportStage
}

func (w *pathWalker) advance(cost time.Duration) {
	if w.anchored {
		w.now += cost
	} else {
		w.offset += cost
	}
}

// Places a walk or connection: right away if the time is known,
// otherwise once it is.
func (w *pathWalker) place(stage model.TransportStage, begin *time.Duration, cost time.Duration) {
	if w.anchored {
		*begin = w.now
	} else {
		w.floating = append(w.floating, floatingStage{begin: begin, at: w.offset})
	}
	w.advance(cost)
	w.stages = append(w.stages, stage)
}

// Fixes the time to a scheduled departure. Anything before it ends
// just in time.
func (w *pathWalker) anchor(t time.Duration) {
	for _, f := range w.floating {
		*f.begin = t - (w.offset - f.at)
	}
	w.floating = nil
	w.anchored = true
	w.now = t
}

// Nothing scheduled was taken, so time runs from the query.
func (w *pathWalker) settle() {
	for _, f := range w.floating {
		*f.begin = w.queryTime + f.at
	}
	w.floating = nil
}

// Single relationship paths can only be a walk or a connection.
func (w *pathWalker) direct(path search.Path) error {
	rel := path.Relationships[0]
	if !rel.Type.IsWalk() && !isConnection(rel.Type) {
		return fmt.Errorf("%w: direct path via %s", ErrMalformedPath, rel.Type)
	}
	if err := w.step(path.Nodes[0], rel, path.Nodes[1]); err != nil {
		return err
	}
	w.settle()
	return nil
}

func (w *pathWalker) walk(path search.Path) error {
	for i, rel := range path.Relationships {
		if err := w.step(path.Nodes[i], rel, path.Nodes[i+1]); err != nil {
			return err
		}
	}

	if w.pending != nil {
		return fmt.Errorf("%w: ends on board %s", ErrMalformedPath, w.pending.RouteID)
	}
	w.settle()
	return nil
}

func isConnection(t storage.RelationshipType) bool {
	return t == storage.Neighbour || t == storage.GroupedToChild || t == storage.GroupedToParent
}

func (w *pathWalker) step(from *storage.Node, rel *storage.Relationship, to *storage.Node) error {
	if rel.Start != from.ID || rel.End != to.ID {
		return fmt.Errorf("%w: %s does not join %s and %s", ErrMalformedPath, rel, from.ID, to.ID)
	}

	switch {
	case rel.Type.IsBoard():
		if w.pending != nil {
			return fmt.Errorf("%w: boarding %s while on %s", ErrMalformedPath, to.RouteID, w.pending.RouteID)
		}
		first, err := w.station(to.Station())
		if err != nil {
			return err
		}
		mode := to.Mode
		if mode == model.ModeNone {
			mode = to.Labels.Mode()
		}
		w.pending = &model.VehicleStage{
			First:         first,
			RouteID:       to.RouteID,
			TransportMode: mode,
		}
		if from.Labels.Has(storage.LabelPlatform) {
			w.pending.BoardingPlatform = from.PlatformID
			if w.pending.BoardingPlatform == "" {
				w.pending.BoardingPlatform = from.ID
			}
		}
		w.advance(rel.Cost)

	case rel.Type == storage.ToService, rel.Type == storage.ToHour:
		w.advance(rel.Cost)

	case rel.Type == storage.ToMinute:
		if w.pending == nil {
			return fmt.Errorf("%w: departure at %s without boarding", ErrMalformedPath, to.ID)
		}
		tripID := rel.TripID
		if tripID == "" {
			tripID = to.TripID
		}

		if w.pending.TripID == "" {
			w.pending.TripID = tripID
			w.pending.DepartTime = to.Time
			if !w.anchored {
				w.anchor(to.Time)
			} else {
				w.now = to.Time
			}
			break
		}

		if tripID != w.pending.TripID {
			return fmt.Errorf("%w: trip %s continues as %s", ErrMalformedPath, w.pending.TripID, tripID)
		}
		if to.Time < w.now {
			return fmt.Errorf("%w: %s departs %s before arriving %s", ErrMalformedPath, to.ID, model.FormatTime(to.Time), model.FormatTime(w.now))
		}
		w.now = to.Time

	case rel.Type.IsGoesTo():
		if w.pending == nil || w.pending.TripID == "" {
			return fmt.Errorf("%w: %s without departure", ErrMalformedPath, rel.Type)
		}
		w.pending.StopSequences = append(w.pending.StopSequences, rel.StopSeq)
		w.now += rel.Cost

	case rel.Type.IsDepart():
		if w.pending == nil || w.pending.TripID == "" {
			return fmt.Errorf("%w: alighting at %s without travelling", ErrMalformedPath, from.ID)
		}
		last, err := w.station(from.Station())
		if err != nil {
			return err
		}
		stage := w.pending
		stage.Last = last
		stage.Cost = w.now - stage.DepartTime

		// Drop the stop alighted at
		if n := len(stage.StopSequences); n > 0 {
			stage.StopSequences = stage.StopSequences[:n-1]
		}

		w.stages = append(w.stages, stage)
		w.pending = nil
		w.advance(rel.Cost)

	case rel.Type == storage.EnterPlatform, rel.Type == storage.LeavePlatform:
		w.advance(rel.Cost)

	case rel.Type.IsWalk():
		start, err := w.location(from)
		if err != nil {
			return err
		}
		end, err := w.location(to)
		if err != nil {
			return err
		}
		direction := model.WalkToStation
		if rel.Type == storage.WalksFromStation {
			direction = model.WalkFromStation
		}
		stage := &model.WalkingStage{
			Start:     start,
			End:       end,
			Cost:      rel.Cost,
			Direction: direction,
		}
		w.place(stage, &stage.Begin, rel.Cost)

	case isConnection(rel.Type):
		start, err := w.location(from)
		if err != nil {
			return err
		}
		end, err := w.location(to)
		if err != nil {
			return err
		}
		stage := &model.ConnectingStage{
			Start: start,
			End:   end,
			Cost:  rel.Cost,
		}
		w.place(stage, &stage.Begin, rel.Cost)

	default:
		return fmt.Errorf("%w: unexpected %s", ErrMalformedPath, rel)
	}

	return nil
}

func (w *pathWalker) station(stationID string) (model.Location, error) {
	if loc, ok := w.locations[stationID]; ok {
		return loc, nil
	}

	node, err := w.mapper.graph.Node(stationID)
	if err != nil {
		return model.Location{}, fmt.Errorf("getting station %s: %w", stationID, err)
	}

	loc := model.Location{
		ID:   stationID,
		Kind: model.LocationStation,
		Lat:  node.Lat,
		Lon:  node.Lon,
	}
	w.locations[stationID] = loc
	return loc, nil
}

func (w *pathWalker) location(node *storage.Node) (model.Location, error) {
	switch {
	case node.Labels.Has(storage.LabelQueryNode):
		return model.Location{ID: node.ID, Kind: model.LocationMyLocation, Lat: node.Lat, Lon: node.Lon}, nil
	case node.Labels.Has(storage.LabelGrouped):
		return model.Location{ID: node.ID, Kind: model.LocationGroup, Lat: node.Lat, Lon: node.Lon}, nil
	case node.Labels.Has(storage.LabelPlatform):
		station, err := w.station(node.Station())
		if err != nil {
			return model.Location{}, err
		}
		return model.Location{ID: node.ID, Kind: model.LocationPlatform, Lat: station.Lat, Lon: station.Lon}, nil
	case node.Labels.Has(storage.LabelStation):
		if node.Lat != 0 || node.Lon != 0 {
			return model.Location{ID: node.Station(), Kind: model.LocationStation, Lat: node.Lat, Lon: node.Lon}, nil
		}
	}
	return w.station(node.Station())
}

// Stations, groups and coordinates the path passes, in order.
func (w *pathWalker) visited(path search.Path) ([]model.Location, error) {
	locations := []model.Location{}
	for _, node := range path.Nodes {
		l := node.Labels
		if !l.Has(storage.LabelStation) &&
			!l.Has(storage.LabelGrouped) &&
			!l.Has(storage.LabelQueryNode) &&
			!l.Has(storage.LabelRouteStation) {
			continue
		}

		loc, err := w.location(node)
		if err != nil {
			return nil, err
		}
		if n := len(locations); n > 0 && locations[n-1].ID == loc.ID {
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}
