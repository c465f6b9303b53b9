package model

import (
	"time"
)

// One leg of a journey.
type TransportStage interface {
	Mode() TransportMode
	FirstLocation() Location
	LastLocation() Location
	FirstDepartureTime() time.Duration
	ExpectedArrivalTime() time.Duration
	Duration() time.Duration
}

// A ride on a scheduled vehicle.
type VehicleStage struct {
	First         Location
	Last          Location
	RouteID       string
	TripID        string
	TransportMode TransportMode

	// Platform boarded from, if any.
	BoardingPlatform string

	DepartTime time.Duration
	Cost       time.Duration

	// Stop sequence numbers of intermediate stops, in order. The
	// alighting stop is not included.
	StopSequences []int
}

func (s *VehicleStage) Mode() TransportMode { return s.TransportMode }
func (s *VehicleStage) FirstLocation() Location { return s.First }
func (s *VehicleStage) LastLocation() Location { return s.Last }
func (s *VehicleStage) FirstDepartureTime() time.Duration { return s.DepartTime }
func (s *VehicleStage) ExpectedArrivalTime() time.Duration { return s.DepartTime + s.Cost }
func (s *VehicleStage) Duration() time.Duration { return s.Cost }
func (s *VehicleStage) PassedStops() int { return len(s.StopSequences) }
func (s *VehicleStage) HasBoardingPlatform() bool { return s.BoardingPlatform != "" }

type WalkDirection int

const (
	WalkToStation WalkDirection = iota
	WalkFromStation
)

type WalkingStage struct {
	Start     Location
	End       Location
	Begin     time.Duration
	Cost      time.Duration
	Direction WalkDirection
}

func (s *WalkingStage) Mode() TransportMode { return ModeWalk }
func (s *WalkingStage) FirstLocation() Location { return s.Start }
func (s *WalkingStage) LastLocation() Location { return s.End }
func (s *WalkingStage) FirstDepartureTime() time.Duration { return s.Begin }
func (s *WalkingStage) ExpectedArrivalTime() time.Duration { return s.Begin + s.Cost }
func (s *WalkingStage) Duration() time.Duration { return s.Cost }

// A connection between neighbouring stations, or between a station
// group and one of its members.
type ConnectingStage struct {
	Start Location
	End   Location
	Begin time.Duration
	Cost  time.Duration
}

func (s *ConnectingStage) Mode() TransportMode { return ModeConnect }
func (s *ConnectingStage) FirstLocation() Location { return s.Start }
func (s *ConnectingStage) LastLocation() Location { return s.End }
func (s *ConnectingStage) FirstDepartureTime() time.Duration { return s.Begin }
func (s *ConnectingStage) ExpectedArrivalTime() time.Duration { return s.Begin + s.Cost }
func (s *ConnectingStage) Duration() time.Duration { return s.Cost }

type Journey struct {
	Stages    []TransportStage
	QueryTime time.Duration

	// Every location visited, in order.
	Path []Location

	// The change budget of the search that found this journey.
	RequestedChanges int
}

func (j *Journey) FirstDeparture() time.Duration {
	if len(j.Stages) == 0 {
		return j.QueryTime
	}
	return j.Stages[0].FirstDepartureTime()
}

func (j *Journey) LastArrival() time.Duration {
	if len(j.Stages) == 0 {
		return j.QueryTime
	}
	return j.Stages[len(j.Stages)-1].ExpectedArrivalTime()
}

func (j *Journey) NumberOfChanges() int {
	vehicles := 0
	for _, stage := range j.Stages {
		if stage.Mode().IsVehicle() {
			vehicles++
		}
	}
	if vehicles == 0 {
		return 0
	}
	return vehicles - 1
}
