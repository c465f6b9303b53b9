package states

import (
	"fmt"
	"time"

	"tidbyt.dev/journeys/model"
)

// Per branch bookkeeping of a journey in progress. JourneyState is a
// value type: assigning it forks the branch, and no mutation of the
// copy is visible through the original.
type JourneyState struct {
	queryTime time.Duration
	clock     time.Duration

	boardings  int
	walking    int
	neighbours int
	begun      bool

	// Set while on a vehicle.
	mode         model.TransportMode
	boarded      bool
	boardingTime time.Duration
	tripID       string
	serviceID    string
	stops        []int

	// Total cost when the clock was last anchored.
	offset time.Duration
}

func NewJourneyState(queryTime time.Duration) JourneyState {
	return JourneyState{
		queryTime: queryTime,
		clock:     queryTime,
	}
}

func (s *JourneyState) QueryTime() time.Duration {
	return s.queryTime
}

// Estimated time of day at the current node.
func (s *JourneyState) Clock() time.Duration {
	return s.clock
}

// Time elapsed since the query time, waits included.
func (s *JourneyState) Elapsed() time.Duration {
	return s.clock - s.queryTime
}

func (s *JourneyState) Boardings() int {
	return s.boardings
}

func (s *JourneyState) NumberOfChanges() int {
	if s.boardings == 0 {
		return 0
	}
	return s.boardings - 1
}

func (s *JourneyState) WalkingConnections() int {
	return s.walking
}

func (s *JourneyState) NeighbourConnections() int {
	return s.neighbours
}

func (s *JourneyState) HasBegun() bool {
	return s.begun
}

// Mode of the current vehicle, ModeNone if not on one.
func (s *JourneyState) Mode() model.TransportMode {
	return s.mode
}

func (s *JourneyState) OnVehicle() bool {
	return s.boarded
}

// Time of the last boarding (or scheduled departure since), only
// present while on a vehicle.
func (s *JourneyState) BoardingTime() (time.Duration, bool) {
	return s.boardingTime, s.boarded
}

func (s *JourneyState) TripID() string {
	return s.tripID
}

func (s *JourneyState) ServiceID() string {
	return s.serviceID
}

// Stop sequence numbers passed since boarding.
func (s *JourneyState) PassedStops() []int {
	stops := make([]int, len(s.stops))
	copy(stops, s.stops)
	return stops
}

func (s *JourneyState) begin() {
	s.begun = true
}

// Moves the clock to match a new total cost. On a vehicle the clock
// is derived from the boarding time, so rounding can't accumulate.
func (s *JourneyState) updateTotalCost(total time.Duration) {
	if s.boarded {
		s.clock = s.boardingTime + (total - s.offset)
		return
	}
	s.clock += total - s.offset
	s.offset = total
}

func (s *JourneyState) board(mode model.TransportMode, total time.Duration) error {
	if s.boarded && s.mode != mode {
		return fmt.Errorf("%w: boarding %s while on %s", ErrInvariant, mode, s.mode)
	}

	s.boardings++
	s.mode = mode
	s.boarded = true
	s.boardingTime = s.clock
	s.offset = total
	s.tripID = ""
	s.serviceID = ""
	s.stops = nil
	return nil
}

func (s *JourneyState) leave(mode model.TransportMode, total time.Duration) error {
	if !s.boarded {
		return fmt.Errorf("%w: leaving %s while not on a vehicle", ErrInvariant, mode)
	}
	if s.mode != mode {
		return fmt.Errorf("%w: leaving %s while on %s", ErrInvariant, mode, s.mode)
	}

	s.mode = model.ModeNone
	s.boarded = false
	s.boardingTime = 0
	s.offset = total
	s.tripID = ""
	s.serviceID = ""
	s.stops = nil
	return nil
}

func (s *JourneyState) setService(serviceID string) error {
	if !s.boarded {
		return fmt.Errorf("%w: service %s while not on a vehicle", ErrInvariant, serviceID)
	}
	if s.serviceID != "" && s.serviceID != serviceID {
		return fmt.Errorf("%w: switching service %s to %s mid-trip", ErrInvariant, s.serviceID, serviceID)
	}
	s.serviceID = serviceID
	return nil
}

func (s *JourneyState) setTrip(tripID string) error {
	if !s.boarded {
		return fmt.Errorf("%w: trip %s while not on a vehicle", ErrInvariant, tripID)
	}
	if tripID == "" {
		return fmt.Errorf("%w: departure without trip", ErrInvariant)
	}
	if s.tripID != "" && s.tripID != tripID {
		return fmt.Errorf("%w: switching trip %s to %s mid-flight", ErrInvariant, s.tripID, tripID)
	}
	s.tripID = tripID
	return nil
}

// Anchors the clock at a scheduled departure.
func (s *JourneyState) recordTime(t time.Duration, total time.Duration) {
	s.clock = t
	s.boardingTime = t
	s.offset = total
}

func (s *JourneyState) passStop(seq int) {
	// Full slice expression so appending never writes into an array
	// shared with a sibling branch.
	s.stops = append(s.stops[:len(s.stops):len(s.stops)], seq)
}

func (s *JourneyState) walk() {
	s.walking++
}

func (s *JourneyState) neighbour() {
	s.neighbours++
}

func (s JourneyState) String() string {
	return fmt.Sprintf(
		"clock=%s boardings=%d walking=%d neighbours=%d mode=%s trip=%s",
		model.FormatTime(s.clock), s.boardings, s.walking, s.neighbours, s.mode, s.tripID,
	)
}
