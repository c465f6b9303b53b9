package search

import (
	"tidbyt.dev/journeys/states"
	"tidbyt.dev/journeys/storage"
)

type Evaluation int

const (
	IncludeAndContinue Evaluation = iota
	IncludeAndPrune
	ExcludeAndPrune
)

func (e Evaluation) String() string {
	switch e {
	case IncludeAndContinue:
		return "IncludeAndContinue"
	case IncludeAndPrune:
		return "IncludeAndPrune"
	case ExcludeAndPrune:
		return "ExcludeAndPrune"
	}
	return "Evaluation(?)"
}

// A candidate branch, as seen by the evaluator.
type Candidate struct {
	Node    *storage.Node
	Rel     *storage.Relationship
	State   states.TraversalState
	Journey *states.JourneyState
	Depth   int
}

func (c *Candidate) here() HowIGotHere {
	return HowIGotHere{
		NodeID: c.Node.ID,
		Depth:  c.Depth,
		Clock:  c.Journey.Clock(),
		OnTrip: c.State.OnTrip,
	}
}

// Decides the fate of each candidate branch of one search execution.
type Evaluator struct {
	heuristics   *ServiceHeuristics
	visits       *PreviousVisits
	lowest       *LowestCostSeen
	recorder     ReasonRecorder
	startNodeID  string
	destinations map[string]bool
}

// Destinations are node IDs: station nodes, or a query node for
// journeys ending at a location.
func NewEvaluator(
	heuristics *ServiceHeuristics,
	visits *PreviousVisits,
	lowest *LowestCostSeen,
	recorder ReasonRecorder,
	startNodeID string,
	destinations map[string]bool,
) *Evaluator {
	return &Evaluator{
		heuristics:   heuristics,
		visits:       visits,
		lowest:       lowest,
		recorder:     recorder,
		startNodeID:  startNodeID,
		destinations: destinations,
	}
}

func (e *Evaluator) prune(reason ServiceReason) (Evaluation, ServiceReason) {
	e.visits.Record(reason)
	return ExcludeAndPrune, reason
}

func (e *Evaluator) Evaluate(c *Candidate) (Evaluation, ServiceReason) {
	here := c.here()
	h := e.heuristics
	rec := e.recorder
	elapsed := c.Journey.Elapsed()

	if _, found := e.visits.Get(here.NodeID, here.Clock, here.OnTrip); found {
		return ExcludeAndPrune, record(rec, Cached, here)
	}

	if e.destinations[here.NodeID] {
		if e.lowest.TryArrive(elapsed) {
			return IncludeAndPrune, record(rec, Arrived, here)
		}
		return ExcludeAndPrune, record(rec, LongerThanPrevious, here)
	}

	if e.lowest.Exceeds(elapsed) {
		return ExcludeAndPrune, record(rec, HigherCost, here)
	}

	if r := h.CheckPathLength(here, rec); !r.IsValid() {
		return ExcludeAndPrune, r
	}
	if r := h.CheckNumberChanges(here, c.Journey.NumberOfChanges(), rec); !r.IsValid() {
		return ExcludeAndPrune, r
	}
	if r := h.CheckNumberWalkingConnections(here, c.Journey.WalkingConnections(), rec); !r.IsValid() {
		return ExcludeAndPrune, r
	}
	if r := h.CheckNumberNeighbourConnections(here, c.Journey.NeighbourConnections(), rec); !r.IsValid() {
		return ExcludeAndPrune, r
	}
	if r := h.JourneyDurationUnderLimit(here, elapsed, rec); !r.IsValid() {
		return ExcludeAndPrune, r
	}

	if here.NodeID == e.startNodeID {
		return ExcludeAndPrune, record(rec, ReturnedToStart, here)
	}

	labels := c.Node.Labels
	switch {
	case labels.Has(storage.LabelMinute):
		if r := h.CheckTime(here, c.Node.Time, c.State.OnTrip, rec); !r.IsValid() {
			return e.prune(r)
		}

	case labels.Has(storage.LabelHour):
		if r := h.InterestedInHour(here, c.Node.Hour, rec); !r.IsValid() {
			return e.prune(r)
		}

	case labels.Has(storage.LabelService):
		serviceID := c.Node.ServiceID
		if serviceID == "" {
			serviceID = c.State.ServiceID
		}
		if r := h.CheckServiceDate(here, serviceID, rec); !r.IsValid() {
			return e.prune(r)
		}

	case labels.Has(storage.LabelRouteStation):
		// Boarding checks. Riding through a closed station is fine.
		if !c.State.OnTrip {
			if r := h.CanReachDestination(here, c.Node.ID, rec); !r.IsValid() {
				return e.prune(r)
			}
			if r := h.CheckStationOpen(here, c.Node.Station(), rec); !r.IsValid() {
				return e.prune(r)
			}
		}

	case labels.Has(storage.LabelStation), labels.Has(storage.LabelPlatform):
		if r := h.CheckStationOpen(here, c.Node.Station(), rec); !r.IsValid() {
			return e.prune(r)
		}
	}

	if c.Rel != nil && c.Rel.Type.IsWalk() {
		return IncludeAndContinue, record(rec, WalkOk, here)
	}

	return IncludeAndContinue, record(rec, Continue, here)
}
