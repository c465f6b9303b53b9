package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tidbyt.dev/journeys/costs"
	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/states"
	"tidbyt.dev/journeys/storage"
)

type Ordering int

const (
	BreadthFirst Ordering = iota
	DepthFirst
)

func (o Ordering) String() string {
	if o == DepthFirst {
		return "depth_first"
	}
	return "breadth_first"
}

// Relationship types a search ever follows.
var allowed = map[storage.RelationshipType]bool{
	storage.TramGoesTo:        true,
	storage.BusGoesTo:         true,
	storage.TrainGoesTo:       true,
	storage.FerryGoesTo:       true,
	storage.SubwayGoesTo:      true,
	storage.Board:             true,
	storage.Depart:            true,
	storage.InterchangeBoard:  true,
	storage.InterchangeDepart: true,
	storage.EnterPlatform:     true,
	storage.LeavePlatform:     true,
	storage.WalksToStation:    true,
	storage.WalksFromStation:  true,
	storage.Neighbour:         true,
	storage.GroupedToChild:    true,
	storage.GroupedToParent:   true,
	storage.ToService:         true,
	storage.ToHour:            true,
	storage.ToMinute:          true,
}

// A sequence of nodes and the relationships joining them.
type Path struct {
	Nodes         []*storage.Node
	Relationships []*storage.Relationship
}

// Number of relationships.
func (p Path) Len() int {
	return len(p.Relationships)
}

func (p Path) Start() *storage.Node {
	return p.Nodes[0]
}

func (p Path) End() *storage.Node {
	return p.Nodes[len(p.Nodes)-1]
}

// A path reaching a destination, with the parameters of the search
// that found it.
type TimedPath struct {
	Path       Path
	QueryTime  time.Duration
	MaxChanges int

	// Journey clock on arrival.
	Arrival time.Duration
}

// One search execution.
type PathRequest struct {
	Start     *storage.Node
	QueryTime time.Duration

	// Node IDs that end the journey.
	Destinations map[string]bool

	// Routes calling at the destination stations, for ordering
	// boardings.
	DestinationRoutes []string

	Heuristics *ServiceHeuristics
}

type branch struct {
	parent  *branch
	rel     *storage.Relationship
	node    *storage.Node
	state   states.TraversalState
	journey states.JourneyState
	depth   int
}

func (b *branch) path() Path {
	p := Path{
		Nodes:         make([]*storage.Node, b.depth+1),
		Relationships: make([]*storage.Relationship, b.depth),
	}
	for cur := b; cur != nil; cur = cur.parent {
		p.Nodes[cur.depth] = cur.node
		if cur.rel != nil {
			p.Relationships[cur.depth-1] = cur.rel
		}
	}
	return p
}

// Expands branches through the graph, pruning with an Evaluator.
type Traverser struct {
	graph    storage.Graph
	costs    *costs.RouteToRouteCosts
	visits   *PreviousVisits
	lowest   *LowestCostSeen
	recorder ReasonRecorder
	ordering Ordering
	logger   *slog.Logger
}

type TraverserOption func(*Traverser)

func WithOrdering(o Ordering) TraverserOption {
	return func(t *Traverser) {
		t.ordering = o
	}
}

func WithRecorder(r ReasonRecorder) TraverserOption {
	return func(t *Traverser) {
		t.recorder = r
	}
}

func WithLogger(l *slog.Logger) TraverserOption {
	return func(t *Traverser) {
		t.logger = l
	}
}

// The cost index may be nil, in which case boardings are tried in
// graph order.
func NewTraverser(
	graph storage.Graph,
	costIndex *costs.RouteToRouteCosts,
	visits *PreviousVisits,
	lowest *LowestCostSeen,
	opts ...TraverserOption,
) *Traverser {
	t := &Traverser{
		graph:    graph,
		costs:    costIndex,
		visits:   visits,
		lowest:   lowest,
		recorder: NewReasonCounter(),
		ordering: BreadthFirst,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Traverser) Recorder() ReasonRecorder {
	return t.recorder
}

// Runs the search, calling yield for each path reaching a destination.
// Stops early if yield returns false or the context is done.
func (t *Traverser) Search(ctx context.Context, req PathRequest, yield func(TimedPath) bool) error {
	evaluator := NewEvaluator(req.Heuristics, t.visits, t.lowest, t.recorder, req.Start.ID, req.Destinations)

	root := &branch{
		node:    req.Start,
		state:   states.Start(req.Start),
		journey: states.NewJourneyState(req.QueryTime),
	}

	frontier := []*branch{root}
	expanded, found := 0, 0
	startedAt := time.Now()

	defer func() {
		t.logger.Debug(
			"search finished",
			"start", req.Start.ID,
			"query_time", model.FormatTime(req.QueryTime),
			"max_changes", req.Heuristics.MaxChanges(),
			"ordering", t.ordering.String(),
			"expanded", expanded,
			"found", found,
			"memo_size", t.visits.Len(),
			"elapsed", time.Since(startedAt),
		)
	}()

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		var current *branch
		if t.ordering == DepthFirst {
			current = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		} else {
			current = frontier[0]
			frontier[0] = nil
			frontier = frontier[1:]
		}
		expanded++

		children, err := t.expand(current, req)
		if err != nil {
			return err
		}

		accepted := make([]*branch, 0, len(children))
		for _, child := range children {
			evaluation, _ := evaluator.Evaluate(&Candidate{
				Node:    child.node,
				Rel:     child.rel,
				State:   child.state,
				Journey: &child.journey,
				Depth:   child.depth,
			})

			switch evaluation {
			case IncludeAndPrune:
				child.state = child.state.Arrive()
				found++
				if !yield(TimedPath{
					Path:       child.path(),
					QueryTime:  req.QueryTime,
					MaxChanges: req.Heuristics.MaxChanges(),
					Arrival:    child.journey.Clock(),
				}) {
					return nil
				}
			case IncludeAndContinue:
				accepted = append(accepted, child)
			}
		}

		if t.ordering == DepthFirst {
			// First child on top of the stack
			for i := len(accepted) - 1; i >= 0; i-- {
				frontier = append(frontier, accepted[i])
			}
		} else {
			frontier = append(frontier, accepted...)
		}
	}

	return nil
}

// Children of a branch, with their states advanced.
func (t *Traverser) expand(b *branch, req PathRequest) ([]*branch, error) {
	types := b.state.Outbound()
	if len(types) == 0 {
		return nil, nil
	}

	rels, err := t.graph.Outgoing(b.node.ID, types...)
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", b.node.ID, err)
	}

	tripID := b.journey.TripID()
	serviceID := b.journey.ServiceID()

	children := make([]*branch, 0, len(rels))
	boards := 0
	for _, rel := range rels {
		if !allowed[rel.Type] {
			continue
		}

		// Stay on the current trip
		if tripID != "" {
			if (rel.Type == storage.ToMinute || rel.Type.IsGoesTo()) && rel.TripID != tripID {
				continue
			}
		}
		if b.state.OnTrip && serviceID != "" && rel.Type == storage.ToService && rel.ServiceID != "" && rel.ServiceID != serviceID {
			continue
		}

		node, err := t.graph.Node(rel.End)
		if err != nil {
			return nil, fmt.Errorf("following %s: %w", rel, err)
		}

		journey := b.journey
		state, err := states.Next(b.state, &journey, states.Step{Rel: rel, Node: node})
		if err != nil {
			return nil, err
		}

		if rel.Type.IsBoard() {
			boards++
		}

		children = append(children, &branch{
			parent:  b,
			rel:     rel,
			node:    node,
			state:   state,
			journey: journey,
			depth:   b.depth + 1,
		})
	}

	if boards > 1 && t.costs != nil && len(req.DestinationRoutes) > 0 {
		children = t.sortBoardings(children, req.DestinationRoutes)
	}

	return children, nil
}

// Puts boardings first, closest to the destination routes first.
func (t *Traverser) sortBoardings(children []*branch, destinationRoutes []string) []*branch {
	boards := []*branch{}
	others := []*branch{}
	for _, c := range children {
		if c.rel.Type.IsBoard() {
			boards = append(boards, c)
		} else {
			others = append(others, c)
		}
	}

	boards = costs.SortByDestinations(t.costs, boards, func(c *branch) string {
		return c.node.RouteID
	}, destinationRoutes)

	return append(boards, others...)
}
