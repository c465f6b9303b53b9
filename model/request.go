package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// A request for journeys. Treat as immutable once created: pass by
// value, never modify fields in place.
type JourneyRequest struct {
	ID uuid.UUID

	// Service date as YYYYMMDD.
	Date string

	// Offset from service day midnight. Departure time, unless
	// ArriveBy is set.
	Time     time.Duration
	ArriveBy bool

	MaxChanges         int
	MaxJourneyDuration time.Duration

	// Record a reason for every heuristic decision.
	Diagnostics bool

	// At most this many journeys are returned. Zero or less means
	// no limit.
	MaxResults int
}

func NewJourneyRequest(
	date string,
	queryTime time.Duration,
	arriveBy bool,
	maxChanges int,
	maxJourneyDuration time.Duration,
	maxResults int,
) (JourneyRequest, error) {

	if _, err := time.Parse("20060102", date); err != nil {
		return JourneyRequest{}, fmt.Errorf("invalid date: %s", date)
	}
	if queryTime < 0 {
		return JourneyRequest{}, fmt.Errorf("negative query time")
	}
	if maxChanges < 0 {
		return JourneyRequest{}, fmt.Errorf("negative max changes")
	}
	if maxJourneyDuration <= 0 {
		return JourneyRequest{}, fmt.Errorf("max journey duration must be positive")
	}

	return JourneyRequest{
		ID:                 uuid.New(),
		Date:               date,
		Time:               queryTime,
		ArriveBy:           arriveBy,
		MaxChanges:         maxChanges,
		MaxJourneyDuration: maxJourneyDuration,
		MaxResults:         maxResults,
	}, nil
}

// Returns a copy of the request with diagnostics enabled.
func (r JourneyRequest) WithDiagnostics() JourneyRequest {
	r.Diagnostics = true
	return r
}

// Two requests are equal if they'd produce the same journeys. ID,
// diagnostics and result limit are ignored.
func (r JourneyRequest) Equal(o JourneyRequest) bool {
	return r.Date == o.Date &&
		r.Time == o.Time &&
		r.ArriveBy == o.ArriveBy &&
		r.MaxChanges == o.MaxChanges &&
		r.MaxJourneyDuration == o.MaxJourneyDuration
}

func (r JourneyRequest) String() string {
	dir := "depart"
	if r.ArriveBy {
		dir = "arrive"
	}
	return fmt.Sprintf("%s %s %s changes=%d max=%s id=%s",
		r.Date, dir, FormatTime(r.Time), r.MaxChanges, r.MaxJourneyDuration, r.ID)
}
