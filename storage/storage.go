package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tidbyt.dev/journeys/model"
)

var ErrNodeNotFound = errors.New("node not found")

type Storage interface {
	// Names of all networks written so far, sorted.
	ListNetworks() ([]string, error)

	// Gets a reader for the named network.
	GetReader(network string) (Graph, error)

	// Gets a writer for the named network. Any existing network
	// by that name is replaced.
	GetWriter(network string) (GraphWriter, error)
}

// Read access to a time expanded transit network. Implementations
// must be safe for concurrent use once writing has finished.
//
// Returned nodes and relationships may be shared between callers and
// must not be modified.
type Graph interface {
	// Node with the given ID. Returns an error wrapping
	// ErrNodeNotFound if there's no such node.
	Node(id string) (*Node, error)

	// Relationships starting at the given node, in insertion
	// order. If types are given, only relationships of those
	// types are included.
	Outgoing(nodeID string, types ...RelationshipType) ([]*Relationship, error)

	// All nodes carrying every label in the given set, sorted
	// by ID.
	NodesByLabel(labels Labels) ([]*Node, error)

	// Services IDs for all services active on the given
	// date. Date is given as YYYYMMDD.
	ActiveServices(date string) ([]string, error)
}

// Writes a single network.
//
// Relationships tend to be plentiful, so BeginRelationships() and
// EndRelationships() are called before and after all calls to
// WriteRelationship(), allowing transactions/batching/whathaveyou.
type GraphWriter interface {
	WriteNode(node *Node) error
	BeginRelationships() error
	WriteRelationship(rel *Relationship) error
	EndRelationships() error
	WriteCalendar(cal *model.Calendar) error
	WriteCalendarDate(caldate *model.CalendarDate) error
	Close() error
}

// Node label set. A node typically carries one structural label
// (Station, Platform, ...) and, for route stations, a mode label.
type Labels uint32

const (
	LabelStation Labels = 1 << iota
	LabelPlatform
	LabelRouteStation
	LabelService
	LabelHour
	LabelMinute
	LabelQueryNode
	LabelGrouped
	LabelInterchange
	LabelTram
	LabelBus
	LabelTrain
	LabelFerry
	LabelSubway
)

var labelNames = []struct {
	label Labels
	name  string
}{
	{LabelStation, "STATION"},
	{LabelPlatform, "PLATFORM"},
	{LabelRouteStation, "ROUTE_STATION"},
	{LabelService, "SERVICE"},
	{LabelHour, "HOUR"},
	{LabelMinute, "MINUTE"},
	{LabelQueryNode, "QUERY_NODE"},
	{LabelGrouped, "GROUPED"},
	{LabelInterchange, "INTERCHANGE"},
	{LabelTram, "TRAM"},
	{LabelBus, "BUS"},
	{LabelTrain, "TRAIN"},
	{LabelFerry, "FERRY"},
	{LabelSubway, "SUBWAY"},
}

var modeLabels = map[model.TransportMode]Labels{
	model.ModeTram:               LabelTram,
	model.ModeBus:                LabelBus,
	model.ModeRailReplacementBus: LabelBus,
	model.ModeTrain:              LabelTrain,
	model.ModeFerry:              LabelFerry,
	model.ModeSubway:             LabelSubway,
}

// True if all labels in o are present.
func (l Labels) Has(o Labels) bool {
	return o != 0 && l&o == o
}

func (l Labels) Names() []string {
	names := []string{}
	for _, ln := range labelNames {
		if l&ln.label != 0 {
			names = append(names, ln.name)
		}
	}
	return names
}

func (l Labels) String() string {
	return strings.Join(l.Names(), "|")
}

// Transport mode given by the mode labels, if any.
func (l Labels) Mode() model.TransportMode {
	switch {
	case l&LabelTram != 0:
		return model.ModeTram
	case l&LabelBus != 0:
		return model.ModeBus
	case l&LabelTrain != 0:
		return model.ModeTrain
	case l&LabelFerry != 0:
		return model.ModeFerry
	case l&LabelSubway != 0:
		return model.ModeSubway
	}
	return model.ModeNone
}

func LabelForMode(mode model.TransportMode) Labels {
	return modeLabels[mode]
}

// Parses a list of label names, separated by '|'.
func ParseLabels(s string) (Labels, error) {
	var labels Labels
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	for _, part := range strings.Split(s, "|") {
		part = strings.ToUpper(strings.TrimSpace(part))
		found := false
		for _, ln := range labelNames {
			if ln.name == part {
				labels |= ln.label
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown label '%s'", part)
		}
	}
	return labels, nil
}

type RelationshipType int

const (
	TramGoesTo RelationshipType = iota + 1
	BusGoesTo
	TrainGoesTo
	FerryGoesTo
	SubwayGoesTo
	Board
	Depart
	InterchangeBoard
	InterchangeDepart
	EnterPlatform
	LeavePlatform
	WalksToStation
	WalksFromStation
	ToService
	ToHour
	ToMinute
	Neighbour
	GroupedToChild
	GroupedToParent
)

var relationshipNames = map[RelationshipType]string{
	TramGoesTo:        "TRAM_GOES_TO",
	BusGoesTo:         "BUS_GOES_TO",
	TrainGoesTo:       "TRAIN_GOES_TO",
	FerryGoesTo:       "FERRY_GOES_TO",
	SubwayGoesTo:      "SUBWAY_GOES_TO",
	Board:             "BOARD",
	Depart:            "DEPART",
	InterchangeBoard:  "INTERCHANGE_BOARD",
	InterchangeDepart: "INTERCHANGE_DEPART",
	EnterPlatform:     "ENTER_PLATFORM",
	LeavePlatform:     "LEAVE_PLATFORM",
	WalksToStation:    "WALKS_TO_STATION",
	WalksFromStation:  "WALKS_FROM_STATION",
	ToService:         "TO_SERVICE",
	ToHour:            "TO_HOUR",
	ToMinute:          "TO_MINUTE",
	Neighbour:         "NEIGHBOUR",
	GroupedToChild:    "GROUPED_TO_CHILD",
	GroupedToParent:   "GROUPED_TO_PARENT",
}

func (t RelationshipType) String() string {
	if name, ok := relationshipNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RELATIONSHIP(%d)", int(t))
}

func ParseRelationshipType(s string) (RelationshipType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, name := range relationshipNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown relationship type '%s'", s)
}

// All relationship types, in declaration order.
func RelationshipTypes() []RelationshipType {
	types := make([]RelationshipType, 0, len(relationshipNames))
	for t := range relationshipNames {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// True for the relationships connecting a minute node to the next
// route station on a trip.
func (t RelationshipType) IsGoesTo() bool {
	return t >= TramGoesTo && t <= SubwayGoesTo
}

func (t RelationshipType) IsBoard() bool {
	return t == Board || t == InterchangeBoard
}

func (t RelationshipType) IsDepart() bool {
	return t == Depart || t == InterchangeDepart
}

func (t RelationshipType) IsWalk() bool {
	return t == WalksToStation || t == WalksFromStation
}

// Mode travelled by a GOES_TO relationship.
func (t RelationshipType) Mode() model.TransportMode {
	switch t {
	case TramGoesTo:
		return model.ModeTram
	case BusGoesTo:
		return model.ModeBus
	case TrainGoesTo:
		return model.ModeTrain
	case FerryGoesTo:
		return model.ModeFerry
	case SubwayGoesTo:
		return model.ModeSubway
	}
	return model.ModeNone
}

func GoesToFor(mode model.TransportMode) RelationshipType {
	switch mode {
	case model.ModeTram:
		return TramGoesTo
	case model.ModeBus, model.ModeRailReplacementBus:
		return BusGoesTo
	case model.ModeTrain:
		return TrainGoesTo
	case model.ModeFerry:
		return FerryGoesTo
	case model.ModeSubway:
		return SubwayGoesTo
	}
	return 0
}

// Typed properties shared by nodes and relationships. Which fields
// are meaningful depends on the label or relationship type.
type Properties struct {
	StationID  string
	RouteID    string
	ServiceID  string
	TripID     string
	PlatformID string

	// Hour of day, on HOUR nodes and TO_HOUR relationships.
	Hour int

	// Offset from service day midnight, on MINUTE nodes and
	// TO_MINUTE relationships.
	Time time.Duration

	Mode model.TransportMode
	Lat  float64
	Lon  float64

	// Traversal cost of a relationship.
	Cost time.Duration

	// Stop sequence number of the stop a GOES_TO relationship
	// arrives at.
	StopSeq int
}

type Node struct {
	ID     string
	Labels Labels
	Properties
}

// Station the node belongs to. Station nodes lacking a station ID
// property are their own station.
func (n *Node) Station() string {
	if n.StationID == "" && n.Labels.Has(LabelStation) {
		return n.ID
	}
	return n.StationID
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.ID, n.Labels)
}

type Relationship struct {
	Type  RelationshipType
	Start string
	End   string
	Properties
}

func (r *Relationship) String() string {
	return fmt.Sprintf("%s-[%s]->%s", r.Start, r.Type, r.End)
}

func typeFilter(types []RelationshipType) map[RelationshipType]bool {
	if len(types) == 0 {
		return nil
	}
	filter := make(map[RelationshipType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	return filter
}
