package search

import (
	"log/slog"
	"time"
)

// Can boarding at a route station lead to any of a set of stations.
type Reachability interface {
	CanReach(routeStationID string, stations map[string]bool) (bool, error)
}

// Pruning rules for one search. Each check records its decision and
// returns it.
type ServiceHeuristics struct {
	constraints  *JourneyConstraints
	reachability Reachability
	maxWait      time.Duration
	maxChanges   int
	logger       *slog.Logger
}

func NewServiceHeuristics(
	constraints *JourneyConstraints,
	reachability Reachability,
	maxWait time.Duration,
	maxChanges int,
	logger *slog.Logger,
) *ServiceHeuristics {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceHeuristics{
		constraints:  constraints,
		reachability: reachability,
		maxWait:      maxWait,
		maxChanges:   maxChanges,
		logger:       logger,
	}
}

func (h *ServiceHeuristics) Constraints() *JourneyConstraints {
	return h.constraints
}

func (h *ServiceHeuristics) MaxChanges() int {
	return h.maxChanges
}

func record(rec ReasonRecorder, code ReasonCode, here HowIGotHere) ServiceReason {
	reason := ServiceReason{Code: code, HowIGotHere: here}
	rec.Record(reason)
	return reason
}

func (h *ServiceHeuristics) CheckServiceDate(here HowIGotHere, serviceID string, rec ReasonRecorder) ServiceReason {
	if !h.constraints.IsRunning(serviceID) {
		return record(rec, NotOnQueryDate, here)
	}
	return record(rec, ServiceDateOk, here)
}

func (h *ServiceHeuristics) CheckNumberChanges(here HowIGotHere, changes int, rec ReasonRecorder) ServiceReason {
	if changes > h.maxChanges {
		return record(rec, TooManyChanges, here)
	}
	return record(rec, NumChangesOk, here)
}

func (h *ServiceHeuristics) CheckNumberWalkingConnections(here HowIGotHere, walks int, rec ReasonRecorder) ServiceReason {
	if walks > h.constraints.MaxWalkingConnections() {
		return record(rec, TooManyWalkingConnections, here)
	}
	return record(rec, NumWalkingConnectionsOk, here)
}

func (h *ServiceHeuristics) CheckNumberNeighbourConnections(here HowIGotHere, connections int, rec ReasonRecorder) ServiceReason {
	if connections > h.constraints.MaxNeighbourConnections() {
		return record(rec, TooManyNeighbourConnections, here)
	}
	return record(rec, NumNeighbourConnectionsOk, here)
}

func (h *ServiceHeuristics) CheckPathLength(here HowIGotHere, rec ReasonRecorder) ServiceReason {
	if here.Depth > h.constraints.MaxPathLength() {
		return record(rec, PathTooLong, here)
	}
	return record(rec, PathLengthOk, here)
}

// A departure is acceptable if it hasn't left yet and, unless the
// branch is already on that trip, it's no more than maxWait away.
func (h *ServiceHeuristics) CheckTime(here HowIGotHere, departure time.Duration, onTrip bool, rec ReasonRecorder) ServiceReason {
	if departure < here.Clock {
		return record(rec, AlreadyDeparted, here)
	}
	if !onTrip && departure-here.Clock > h.maxWait {
		return record(rec, TooLongWait, here)
	}
	return record(rec, ServiceTimeOk, here)
}

// Cheap filter ahead of CheckTime: some part of the hour must fall
// inside the wait window.
func (h *ServiceHeuristics) InterestedInHour(here HowIGotHere, hour int, rec ReasonRecorder) ServiceReason {
	begin := time.Duration(hour) * time.Hour
	end := begin + time.Hour - time.Minute
	if end < here.Clock || begin > here.Clock+h.maxWait {
		return record(rec, NotAtHour, here)
	}
	return record(rec, HourOk, here)
}

func (h *ServiceHeuristics) CheckStationOpen(here HowIGotHere, stationID string, rec ReasonRecorder) ServiceReason {
	if h.constraints.IsClosed(stationID) {
		return record(rec, StationClosed, here)
	}
	return record(rec, StationOpen, here)
}

// Lookup failures are treated as unreachable.
func (h *ServiceHeuristics) CanReachDestination(here HowIGotHere, routeStationID string, rec ReasonRecorder) ServiceReason {
	reachable, err := h.reachability.CanReach(routeStationID, h.constraints.EndStations())
	if err != nil {
		h.logger.Warn("reachability lookup failed", "node_id", routeStationID, "error", err)
		return record(rec, NotReachable, here)
	}
	if !reachable {
		return record(rec, NotReachable, here)
	}
	return record(rec, Reachable, here)
}

func (h *ServiceHeuristics) JourneyDurationUnderLimit(here HowIGotHere, elapsed time.Duration, rec ReasonRecorder) ServiceReason {
	if elapsed > h.constraints.MaxJourneyDuration() {
		return record(rec, TookTooLong, here)
	}
	return record(rec, DurationOk, here)
}
