package search

import (
	"fmt"
	"sort"
	"time"

	"tidbyt.dev/journeys/model"
)

// Why a branch was continued, accepted or pruned.
type ReasonCode int

const (
	// Branch may continue.
	Continue ReasonCode = iota
	Arrived
	ServiceDateOk
	ServiceTimeOk
	NumChangesOk
	NumWalkingConnectionsOk
	NumNeighbourConnectionsOk
	HourOk
	Reachable
	StationOpen
	DurationOk
	PathLengthOk
	WalkOk

	// Branch is pruned.
	Cached
	LongerThanPrevious
	HigherCost
	PathTooLong
	TooManyChanges
	TooManyWalkingConnections
	TooManyNeighbourConnections
	TookTooLong
	ReturnedToStart
	NotOnQueryDate
	AlreadyDeparted
	TooLongWait
	NotAtHour
	NotReachable
	StationClosed
)

var reasonNames = map[ReasonCode]string{
	Continue:                    "Continue",
	Arrived:                     "Arrived",
	ServiceDateOk:               "ServiceDateOk",
	ServiceTimeOk:               "ServiceTimeOk",
	NumChangesOk:                "NumChangesOk",
	NumWalkingConnectionsOk:     "NumWalkingConnectionsOk",
	NumNeighbourConnectionsOk:   "NumNeighbourConnectionsOk",
	HourOk:                      "HourOk",
	Reachable:                   "Reachable",
	StationOpen:                 "StationOpen",
	DurationOk:                  "DurationOk",
	PathLengthOk:                "PathLengthOk",
	WalkOk:                      "WalkOk",
	Cached:                      "Cached",
	LongerThanPrevious:          "LongerThanPrevious",
	HigherCost:                  "HigherCost",
	PathTooLong:                 "PathTooLong",
	TooManyChanges:              "TooManyChanges",
	TooManyWalkingConnections:   "TooManyWalkingConnections",
	TooManyNeighbourConnections: "TooManyNeighbourConnections",
	TookTooLong:                 "TookTooLong",
	ReturnedToStart:             "ReturnedToStart",
	NotOnQueryDate:              "NotOnQueryDate",
	AlreadyDeparted:             "AlreadyDeparted",
	TooLongWait:                 "TooLongWait",
	NotAtHour:                   "NotAtHour",
	NotReachable:                "NotReachable",
	StationClosed:               "StationClosed",
}

func (c ReasonCode) String() string {
	if name, ok := reasonNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ReasonCode(%d)", int(c))
}

func (c ReasonCode) IsValid() bool {
	return c < Cached
}

// True for codes that depend only on the node, the time it was
// reached and whether the branch is riding a vehicle, so the decision
// holds for any branch getting there the same way.
func (c ReasonCode) memoizable() bool {
	switch c {
	case NotAtHour, AlreadyDeparted, TooLongWait, NotOnQueryDate, NotReachable, StationClosed:
		return true
	}
	return false
}

// Where a branch is when a heuristic is applied.
type HowIGotHere struct {
	NodeID string
	Depth  int
	Clock  time.Duration
	OnTrip bool
}

type ServiceReason struct {
	Code ReasonCode
	HowIGotHere
}

func (r ServiceReason) IsValid() bool {
	return r.Code.IsValid()
}

func (r ServiceReason) String() string {
	return fmt.Sprintf("%s@%s(%s depth=%d)", r.Code, r.NodeID, model.FormatTime(r.Clock), r.Depth)
}

// Receives every heuristic decision made during a search.
type ReasonRecorder interface {
	Record(reason ServiceReason)
}

// Counts decisions by reason code. Not safe for concurrent use: each
// search execution gets its own.
type ReasonCounter struct {
	counts map[ReasonCode]int
	total  int
}

func NewReasonCounter() *ReasonCounter {
	return &ReasonCounter{counts: map[ReasonCode]int{}}
}

func (c *ReasonCounter) Record(reason ServiceReason) {
	c.counts[reason.Code]++
	c.total++
}

func (c *ReasonCounter) Count(code ReasonCode) int {
	return c.counts[code]
}

func (c *ReasonCounter) TotalChecked() int {
	return c.total
}

// Counts as slog attributes, most frequent first.
func (c *ReasonCounter) LogAttrs() []any {
	codes := make([]ReasonCode, 0, len(c.counts))
	for code := range c.counts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if c.counts[codes[i]] != c.counts[codes[j]] {
			return c.counts[codes[i]] > c.counts[codes[j]]
		}
		return codes[i] < codes[j]
	})

	attrs := []any{"total_checked", c.total}
	for _, code := range codes {
		attrs = append(attrs, code.String(), c.counts[code])
	}
	return attrs
}

// Keeps every decision, for rendering the explored graph after the
// fact.
type DiagnosticRecorder struct {
	*ReasonCounter
	Reasons []ServiceReason
}

func NewDiagnosticRecorder() *DiagnosticRecorder {
	return &DiagnosticRecorder{ReasonCounter: NewReasonCounter()}
}

func (d *DiagnosticRecorder) Record(reason ServiceReason) {
	d.ReasonCounter.Record(reason)
	d.Reasons = append(d.Reasons, reason)
}

// Decisions made at a node, in order.
func (d *DiagnosticRecorder) ReasonsAt(nodeID string) []ServiceReason {
	reasons := []ServiceReason{}
	for _, r := range d.Reasons {
		if r.NodeID == nodeID {
			reasons = append(reasons, r)
		}
	}
	return reasons
}
