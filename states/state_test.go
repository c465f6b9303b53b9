package states

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/journeys/model"
	"tidbyt.dev/journeys/storage"
)

func hhmm(t *testing.T, s string) time.Duration {
	d, err := model.ParseTime(s)
	require.NoError(t, err)
	return d
}

type tramLine struct {
	station   *storage.Node
	platform  *storage.Node
	rsA       *storage.Node
	service   *storage.Node
	hour      *storage.Node
	minute    *storage.Node
	rsB       *storage.Node
	platformB *storage.Node
	stationB  *storage.Node
}

func newTramLine(t *testing.T) tramLine {
	return tramLine{
		station:   &storage.Node{ID: "A", Labels: storage.LabelStation},
		platform:  &storage.Node{ID: "P:A", Labels: storage.LabelPlatform, Properties: storage.Properties{StationID: "A"}},
		rsA:       &storage.Node{ID: "RS:A", Labels: storage.LabelRouteStation | storage.LabelTram, Properties: storage.Properties{StationID: "A", RouteID: "R1", Mode: model.ModeTram}},
		service:   &storage.Node{ID: "SVC:A", Labels: storage.LabelService, Properties: storage.Properties{StationID: "A", ServiceID: "s1"}},
		hour:      &storage.Node{ID: "H:A:8", Labels: storage.LabelHour, Properties: storage.Properties{StationID: "A", Hour: 8}},
		minute:    &storage.Node{ID: "M:A:t1", Labels: storage.LabelMinute, Properties: storage.Properties{StationID: "A", TripID: "t1", Hour: 8, Time: hhmm(t, "08:05")}},
		rsB:       &storage.Node{ID: "RS:B", Labels: storage.LabelRouteStation | storage.LabelTram, Properties: storage.Properties{StationID: "B", RouteID: "R1", Mode: model.ModeTram}},
		platformB: &storage.Node{ID: "P:B", Labels: storage.LabelPlatform, Properties: storage.Properties{StationID: "B"}},
		stationB:  &storage.Node{ID: "B", Labels: storage.LabelStation},
	}
}

func step(relType storage.RelationshipType, from, to *storage.Node, props storage.Properties) Step {
	return Step{
		Rel:  &storage.Relationship{Type: relType, Start: from.ID, End: to.ID, Properties: props},
		Node: to,
	}
}

func advance(t *testing.T, s TraversalState, j *JourneyState, st Step) TraversalState {
	next, err := Next(s, j, st)
	require.NoError(t, err)
	assert.True(t, next.TotalCost >= s.TotalCost)
	if j.Boardings() == 0 {
		assert.Equal(t, 0, j.NumberOfChanges())
	} else {
		assert.Equal(t, j.Boardings()-1, j.NumberOfChanges())
	}
	_, boarded := j.BoardingTime()
	assert.Equal(t, boarded, j.OnVehicle())
	assert.Equal(t, boarded, j.Mode() != model.ModeNone)
	return next
}

func TestTramJourney(t *testing.T) {
	l := newTramLine(t)
	j := NewJourneyState(hhmm(t, "08:00"))
	s := Start(l.station)

	assert.Equal(t, NotStarted, s.Kind)
	assert.Equal(t, "A", s.StationID)
	assert.False(t, j.HasBegun())

	s = advance(t, s, &j, step(storage.EnterPlatform, l.station, l.platform, storage.Properties{Cost: time.Minute}))
	assert.Equal(t, AtPlatform, s.Kind)
	assert.True(t, s.Kind.IsBoarding())
	assert.True(t, j.HasBegun())
	assert.Equal(t, hhmm(t, "08:01"), j.Clock())
	assert.Equal(t, time.Minute, s.TotalCost)

	s = advance(t, s, &j, step(storage.Board, l.platform, l.rsA, storage.Properties{}))
	assert.Equal(t, AtRouteStation, s.Kind)
	assert.True(t, s.FromPlatform)
	assert.False(t, s.OnTrip)
	assert.Equal(t, "R1", s.RouteID)
	assert.Equal(t, model.ModeTram, j.Mode())
	assert.Equal(t, 1, j.Boardings())
	assert.Equal(t, 0, j.NumberOfChanges())
	boardingTime, boarded := j.BoardingTime()
	assert.True(t, boarded)
	assert.Equal(t, hhmm(t, "08:01"), boardingTime)

	s = advance(t, s, &j, step(storage.ToService, l.rsA, l.service, storage.Properties{ServiceID: "s1"}))
	assert.Equal(t, OnService, s.Kind)
	assert.True(t, s.Kind.IsOnVehicle())
	assert.Equal(t, "s1", j.ServiceID())

	s = advance(t, s, &j, step(storage.ToHour, l.service, l.hour, storage.Properties{Hour: 8}))
	assert.Equal(t, OnHour, s.Kind)
	assert.Equal(t, 8, s.Hour)

	s = advance(t, s, &j, step(storage.ToMinute, l.hour, l.minute, storage.Properties{TripID: "t1"}))
	assert.Equal(t, OnMinute, s.Kind)
	assert.Equal(t, hhmm(t, "08:05"), s.Time)
	assert.Equal(t, "t1", j.TripID())

	// Clock still at arrival on the platform until the departure
	assert.Equal(t, hhmm(t, "08:01"), j.Clock())

	s = advance(t, s, &j, step(storage.TramGoesTo, l.minute, l.rsB, storage.Properties{TripID: "t1", Cost: 10 * time.Minute, StopSeq: 2}))
	assert.Equal(t, AtRouteStation, s.Kind)
	assert.True(t, s.OnTrip)
	assert.Equal(t, "B", s.StationID)
	assert.Equal(t, hhmm(t, "08:15"), j.Clock())
	assert.Equal(t, 11*time.Minute, s.TotalCost)
	assert.Equal(t, []int{2}, j.PassedStops())
	boardingTime, _ = j.BoardingTime()
	assert.Equal(t, hhmm(t, "08:05"), boardingTime)

	s = advance(t, s, &j, step(storage.Depart, l.rsB, l.platformB, storage.Properties{}))
	assert.Equal(t, Alighted, s.Kind)
	assert.Equal(t, []storage.RelationshipType{storage.LeavePlatform}, s.Outbound())
	assert.False(t, j.OnVehicle())
	assert.Equal(t, "", j.TripID())
	assert.Equal(t, 0, len(j.PassedStops()))

	s = advance(t, s, &j, step(storage.LeavePlatform, l.platformB, l.stationB, storage.Properties{Cost: time.Minute}))
	assert.Equal(t, AtStation, s.Kind)
	assert.Equal(t, hhmm(t, "08:16"), j.Clock())
	assert.Equal(t, 16*time.Minute, j.Elapsed())
	assert.Equal(t, 12*time.Minute, s.TotalCost)

	assert.Equal(t, Arrived, s.Arrive().Kind)
	assert.Equal(t, 0, len(s.Arrive().Outbound()))
}

func TestNotPermitted(t *testing.T) {
	l := newTramLine(t)

	for _, tc := range []struct {
		name  string
		state TraversalState
		step  Step
	}{
		{
			"depart right after boarding",
			TraversalState{Kind: AtRouteStation, NodeID: l.rsA.ID, Mode: model.ModeTram},
			step(storage.Depart, l.rsA, l.platform, storage.Properties{}),
		},
		{
			"board from a route station",
			TraversalState{Kind: AtRouteStation, NodeID: l.rsA.ID, OnTrip: true},
			step(storage.Board, l.rsA, l.rsB, storage.Properties{}),
		},
		{
			"walk from a platform",
			TraversalState{Kind: AtPlatform, NodeID: l.platform.ID},
			step(storage.WalksFromStation, l.platform, l.station, storage.Properties{}),
		},
		{
			"back out of a platform entered to board",
			TraversalState{Kind: AtPlatform, NodeID: l.platform.ID},
			step(storage.LeavePlatform, l.platform, l.station, storage.Properties{}),
		},
		{
			"board after alighting",
			TraversalState{Kind: Alighted, NodeID: l.platform.ID},
			step(storage.Board, l.platform, l.rsA, storage.Properties{}),
		},
		{
			"minute from a service",
			TraversalState{Kind: OnService, NodeID: l.service.ID},
			step(storage.ToMinute, l.service, l.minute, storage.Properties{TripID: "t1"}),
		},
		{
			"anything after arriving",
			TraversalState{Kind: Arrived, NodeID: l.station.ID},
			step(storage.EnterPlatform, l.station, l.platform, storage.Properties{}),
		},
		{
			"anything while walking",
			TraversalState{Kind: Walking, NodeID: l.station.ID},
			step(storage.Neighbour, l.station, l.stationB, storage.Properties{}),
		},
		{
			"relationship from elsewhere",
			TraversalState{Kind: AtStation, NodeID: l.stationB.ID},
			step(storage.EnterPlatform, l.station, l.platform, storage.Properties{}),
		},
		{
			"negative cost",
			TraversalState{Kind: AtStation, NodeID: l.station.ID},
			step(storage.EnterPlatform, l.station, l.platform, storage.Properties{Cost: -time.Minute}),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			j := NewJourneyState(0)
			_, err := Next(tc.state, &j, tc.step)
			assert.ErrorIs(t, err, ErrInvariant)
		})
	}
}

func TestMissingTripMidFlight(t *testing.T) {
	l := newTramLine(t)
	j := NewJourneyState(hhmm(t, "08:00"))
	require.NoError(t, j.board(model.ModeTram, 0))

	s := TraversalState{Kind: OnMinute, NodeID: l.minute.ID, Mode: model.ModeTram, Time: hhmm(t, "08:05")}
	_, err := Next(s, &j, step(storage.TramGoesTo, l.minute, l.rsB, storage.Properties{TripID: "t1", Cost: time.Minute}))
	assert.ErrorIs(t, err, ErrInvariant)

	// Other trip
	require.NoError(t, j.setTrip("t2"))
	_, err = Next(s, &j, step(storage.TramGoesTo, l.minute, l.rsB, storage.Properties{TripID: "t1", Cost: time.Minute}))
	assert.ErrorIs(t, err, ErrInvariant)

	// Trip can't change, or be empty
	assert.ErrorIs(t, j.setTrip("t3"), ErrInvariant)
	assert.ErrorIs(t, j.setTrip(""), ErrInvariant)
	assert.NoError(t, j.setTrip("t2"))

	require.NoError(t, j.setService("s1"))
	assert.ErrorIs(t, j.setService("s2"), ErrInvariant)
}

func TestBoardAndLeaveInvariants(t *testing.T) {
	j := NewJourneyState(0)

	assert.ErrorIs(t, j.leave(model.ModeTram, 0), ErrInvariant)
	assert.ErrorIs(t, j.setTrip("t1"), ErrInvariant)

	require.NoError(t, j.board(model.ModeTram, 0))
	assert.ErrorIs(t, j.board(model.ModeBus, 0), ErrInvariant)
	assert.ErrorIs(t, j.leave(model.ModeBus, 0), ErrInvariant)
	assert.True(t, j.OnVehicle())

	require.NoError(t, j.leave(model.ModeTram, 0))
	assert.False(t, j.OnVehicle())
	_, boarded := j.BoardingTime()
	assert.False(t, boarded)

	require.NoError(t, j.board(model.ModeBus, 0))
	assert.Equal(t, 2, j.Boardings())
	assert.Equal(t, 1, j.NumberOfChanges())
}

func TestForkedJourneysAreIndependent(t *testing.T) {
	j := NewJourneyState(hhmm(t, "10:00"))
	require.NoError(t, j.board(model.ModeTrain, 0))
	require.NoError(t, j.setTrip("t1"))
	j.passStop(2)
	j.passStop(3)

	fork := j
	j.passStop(4)
	fork.passStop(40)
	fork.walk()
	fork.updateTotalCost(5 * time.Minute)

	assert.Equal(t, []int{2, 3, 4}, j.PassedStops())
	assert.Equal(t, []int{2, 3, 40}, fork.PassedStops())
	assert.Equal(t, 0, j.WalkingConnections())
	assert.Equal(t, 1, fork.WalkingConnections())
	assert.Equal(t, hhmm(t, "10:00"), j.Clock())
	assert.Equal(t, hhmm(t, "10:05"), fork.Clock())

	// Mutating the returned slice doesn't leak back
	stops := j.PassedStops()
	stops[0] = 99
	assert.Equal(t, []int{2, 3, 4}, j.PassedStops())
}

func TestClockDerivedFromBoardingTime(t *testing.T) {
	j := NewJourneyState(hhmm(t, "09:00"))

	j.updateTotalCost(3 * time.Minute)
	assert.Equal(t, hhmm(t, "09:03"), j.Clock())

	require.NoError(t, j.board(model.ModeTram, 3*time.Minute))
	j.recordTime(hhmm(t, "09:10"), 3*time.Minute)
	j.updateTotalCost(5 * time.Minute)
	j.updateTotalCost(8 * time.Minute)
	assert.Equal(t, hhmm(t, "09:15"), j.Clock())

	require.NoError(t, j.leave(model.ModeTram, 8*time.Minute))
	j.updateTotalCost(10 * time.Minute)
	assert.Equal(t, hhmm(t, "09:17"), j.Clock())
	assert.Equal(t, 17*time.Minute, j.Elapsed())
}

func TestWalksAndConnections(t *testing.T) {
	query := &storage.Node{ID: "Q", Labels: storage.LabelQueryNode}
	a := &storage.Node{ID: "A", Labels: storage.LabelStation}
	b := &storage.Node{ID: "B", Labels: storage.LabelStation}
	c := &storage.Node{ID: "C", Labels: storage.LabelStation}
	group := &storage.Node{ID: "G:x", Labels: storage.LabelGrouped}
	end := &storage.Node{ID: "E", Labels: storage.LabelQueryNode}

	j := NewJourneyState(hhmm(t, "12:00"))
	s := Start(query)

	s = advance(t, s, &j, step(storage.WalksToStation, query, a, storage.Properties{Cost: 4 * time.Minute}))
	assert.Equal(t, AtStation, s.Kind)
	assert.Equal(t, 1, j.WalkingConnections())

	s = advance(t, s, &j, step(storage.Neighbour, a, b, storage.Properties{Cost: 2 * time.Minute}))
	assert.Equal(t, AtStation, s.Kind)
	assert.Equal(t, 1, j.NeighbourConnections())

	s = advance(t, s, &j, step(storage.GroupedToParent, b, group, storage.Properties{}))
	assert.Equal(t, AtGroup, s.Kind)
	assert.Equal(t, 2, j.NeighbourConnections())

	s = advance(t, s, &j, step(storage.GroupedToChild, group, c, storage.Properties{}))
	assert.Equal(t, AtStation, s.Kind)
	assert.Equal(t, 2, j.NeighbourConnections())

	s = advance(t, s, &j, step(storage.WalksFromStation, c, end, storage.Properties{Cost: 3 * time.Minute}))
	assert.Equal(t, Walking, s.Kind)
	assert.Equal(t, 2, j.WalkingConnections())
	assert.Equal(t, hhmm(t, "12:09"), j.Clock())
	assert.Equal(t, 0, j.Boardings())
	assert.Equal(t, 0, len(s.Outbound()))

	// Starting at a group counts the hop down
	j = NewJourneyState(0)
	_ = advance(t, Start(group), &j, step(storage.GroupedToChild, group, c, storage.Properties{}))
	assert.Equal(t, 1, j.NeighbourConnections())
}

func TestOutbound(t *testing.T) {
	assert.Equal(t, []storage.RelationshipType{storage.ToService}, Outbound(AtRouteStation, false))
	assert.Contains(t, Outbound(AtRouteStation, true), storage.Depart)
	assert.Contains(t, Outbound(AtRouteStation, true), storage.InterchangeDepart)
	assert.Contains(t, Outbound(AtRouteStation, true), storage.ToService)
	assert.Equal(t, 5, len(Outbound(OnMinute, false)))
	assert.NotContains(t, Outbound(AtStation, false), storage.WalksToStation)
	assert.Contains(t, Outbound(NotStarted, false), storage.WalksToStation)
	assert.Equal(t, 0, len(Outbound(Walking, false)))
}
