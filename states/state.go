package states

import (
	"errors"
	"fmt"
	"time"

	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/storage"
)

// Returned (wrapped) when a branch breaks the rules of the state
// machine. Indicates a malformed graph or a bug, never a dead end.
var ErrInvariant = errors.New("traversal invariant violated")

type Kind int

const (
	NotStarted Kind = iota
	Walking
	AtStation
	AtPlatform
	Alighted
	AtGroup
	AtRouteStation
	OnService
	OnHour
	OnMinute
	Arrived
)

var kindNames = map[Kind]string{
	NotStarted:     "NotStarted",
	Walking:        "Walking",
	AtStation:      "AtStation",
	AtPlatform:     "AtPlatform",
	Alighted:       "Alighted",
	AtGroup:        "AtGroup",
	AtRouteStation: "AtRouteStation",
	OnService:      "OnService",
	OnHour:         "OnHour",
	OnMinute:       "OnMinute",
	Arrived:        "Arrived",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// At a station, platform or group, free to board.
func (k Kind) IsBoarding() bool {
	return k == AtStation || k == AtPlatform || k == AtGroup
}

// Between boarding and the next departure of a trip.
func (k Kind) IsOnVehicle() bool {
	return k == OnService || k == OnHour || k == OnMinute
}

var goesTo = []storage.RelationshipType{
	storage.TramGoesTo,
	storage.BusGoesTo,
	storage.TrainGoesTo,
	storage.FerryGoesTo,
	storage.SubwayGoesTo,
}

var outbound = map[Kind][]storage.RelationshipType{
	NotStarted: {
		storage.Board,
		storage.InterchangeBoard,
		storage.EnterPlatform,
		storage.WalksToStation,
		storage.WalksFromStation,
		storage.Neighbour,
		storage.GroupedToChild,
		storage.GroupedToParent,
	},
	Walking: {},
	AtStation: {
		storage.Board,
		storage.InterchangeBoard,
		storage.EnterPlatform,
		storage.WalksFromStation,
		storage.Neighbour,
		storage.GroupedToParent,
	},
	AtPlatform: {
		storage.Board,
		storage.InterchangeBoard,
	},
	Alighted: {
		storage.LeavePlatform,
	},
	AtGroup: {
		storage.GroupedToChild,
	},
	AtRouteStation: {
		storage.ToService,
	},
	OnService: {
		storage.ToHour,
	},
	OnHour: {
		storage.ToMinute,
	},
	OnMinute: goesTo,
	Arrived:   {},
}

var onTripOutbound = []storage.RelationshipType{
	storage.Depart,
	storage.InterchangeDepart,
	storage.ToService,
}

// Relationship types that may be followed from a state.
func Outbound(kind Kind, onTrip bool) []storage.RelationshipType {
	if kind == AtRouteStation && onTrip {
		return onTripOutbound
	}
	return outbound[kind]
}

func permitted(kind Kind, onTrip bool, relType storage.RelationshipType) bool {
	for _, t := range Outbound(kind, onTrip) {
		if t == relType {
			return true
		}
	}
	return false
}

// Where a branch is in its journey.
type TraversalState struct {
	Kind      Kind
	NodeID    string
	StationID string
	RouteID   string
	ServiceID string
	Mode      model.TransportMode

	// Boarded from a platform rather than from the station.
	FromPlatform bool

	// Continuing a trip, rather than having just boarded. Carried
	// from the route station down to the next departure.
	OnTrip bool

	Hour int

	// Scheduled departure, on minute nodes.
	Time time.Duration

	// Sum of all relationship costs along the branch. Never
	// decreases. Excludes waiting, which only the journey clock
	// accounts for.
	TotalCost time.Duration
}

// State at the first node of a search.
func Start(node *storage.Node) TraversalState {
	return TraversalState{
		Kind:      NotStarted,
		NodeID:    node.ID,
		StationID: node.Station(),
	}
}

// Final state of a branch that reached its destination.
func (s TraversalState) Arrive() TraversalState {
	s.Kind = Arrived
	return s
}

func (s TraversalState) Outbound() []storage.RelationshipType {
	return Outbound(s.Kind, s.OnTrip)
}

func (s TraversalState) String() string {
	return fmt.Sprintf("%s(%s cost=%s)", s.Kind, s.NodeID, s.TotalCost)
}

// One hop: a relationship and the node it leads to.
type Step struct {
	Rel  *storage.Relationship
	Node *storage.Node
}

// Follows a relationship from the current state, updating the journey
// in place. The journey must be a fork owned by the new branch.
func Next(current TraversalState, journey *JourneyState, step Step) (TraversalState, error) {
	rel, node := step.Rel, step.Node
	if rel.Start != current.NodeID || rel.End != node.ID {
		return TraversalState{}, fmt.Errorf("%w: %s does not lead from %s to %s", ErrInvariant, rel, current.NodeID, node.ID)
	}
	if !permitted(current.Kind, current.OnTrip, rel.Type) {
		return TraversalState{}, fmt.Errorf("%w: %s not permitted from %s", ErrInvariant, rel.Type, current)
	}
	if rel.Cost < 0 {
		return TraversalState{}, fmt.Errorf("%w: total cost decreasing over %s", ErrInvariant, rel)
	}

	total := current.TotalCost + rel.Cost
	journey.begin()

	next := TraversalState{
		NodeID:    node.ID,
		StationID: node.Station(),
		TotalCost: total,
	}

	switch {
	case rel.Type.IsBoard():
		journey.updateTotalCost(total)
		mode := node.Mode
		if mode == model.ModeNone {
			mode = rel.Mode
		}
		if err := journey.board(mode, total); err != nil {
			return TraversalState{}, err
		}
		next.Kind = AtRouteStation
		next.RouteID = node.RouteID
		next.Mode = mode
		next.FromPlatform = current.Kind == AtPlatform

	case rel.Type.IsDepart():
		journey.updateTotalCost(total)
		if err := journey.leave(current.Mode, total); err != nil {
			return TraversalState{}, err
		}
		next.Kind = AtStation
		if node.Labels.Has(storage.LabelPlatform) {
			next.Kind = Alighted
		}

	case rel.Type.IsGoesTo():
		if journey.TripID() == "" {
			return TraversalState{}, fmt.Errorf("%w: missing trip mid-flight at %s", ErrInvariant, current.NodeID)
		}
		if rel.TripID != "" && rel.TripID != journey.TripID() {
			return TraversalState{}, fmt.Errorf("%w: trip %s continuing as %s", ErrInvariant, journey.TripID(), rel.TripID)
		}
		journey.recordTime(current.Time, current.TotalCost)
		journey.updateTotalCost(total)
		journey.passStop(rel.StopSeq)
		next.Kind = AtRouteStation
		next.RouteID = node.RouteID
		next.Mode = current.Mode
		next.OnTrip = true

	case rel.Type == storage.ToService:
		journey.updateTotalCost(total)
		serviceID := rel.ServiceID
		if serviceID == "" {
			serviceID = node.ServiceID
		}
		if err := journey.setService(serviceID); err != nil {
			return TraversalState{}, err
		}
		next.Kind = OnService
		next.RouteID = current.RouteID
		next.ServiceID = serviceID
		next.Mode = current.Mode
		next.OnTrip = current.OnTrip

	case rel.Type == storage.ToHour:
		journey.updateTotalCost(total)
		next.Kind = OnHour
		next.RouteID = current.RouteID
		next.ServiceID = current.ServiceID
		next.Mode = current.Mode
		next.OnTrip = current.OnTrip
		next.Hour = node.Hour

	case rel.Type == storage.ToMinute:
		journey.updateTotalCost(total)
		tripID := rel.TripID
		if tripID == "" {
			tripID = node.TripID
		}
		if err := journey.setTrip(tripID); err != nil {
			return TraversalState{}, err
		}
		next.Kind = OnMinute
		next.RouteID = current.RouteID
		next.ServiceID = current.ServiceID
		next.Mode = current.Mode
		next.OnTrip = current.OnTrip
		next.Hour = current.Hour
		next.Time = node.Time

	case rel.Type == storage.EnterPlatform:
		journey.updateTotalCost(total)
		next.Kind = AtPlatform

	case rel.Type == storage.LeavePlatform:
		journey.updateTotalCost(total)
		next.Kind = AtStation

	case rel.Type == storage.WalksToStation:
		journey.walk()
		journey.updateTotalCost(total)
		next.Kind = AtStation

	case rel.Type == storage.WalksFromStation:
		journey.walk()
		journey.updateTotalCost(total)
		next.Kind = Walking

	case rel.Type == storage.Neighbour:
		journey.neighbour()
		journey.updateTotalCost(total)
		next.Kind = AtStation

	case rel.Type == storage.GroupedToParent:
		journey.neighbour()
		journey.updateTotalCost(total)
		next.Kind = AtGroup

	case rel.Type == storage.GroupedToChild:
		// Counted once per hop through a group, on the way up,
		// unless the journey starts at the group.
		if current.Kind == NotStarted {
			journey.neighbour()
		}
		journey.updateTotalCost(total)
		next.Kind = AtStation

	default:
		return TraversalState{}, fmt.Errorf("%w: unhandled relationship %s", ErrInvariant, rel.Type)
	}

	return next, nil
}
