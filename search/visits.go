package search

import (
	"sync"
	"time"

	"github.com/bluele/gcache"
)

type visitKey struct {
	nodeID string
	clock  time.Duration
	onTrip bool
}

// Decisions already made at (node, clock, on trip), so branches
// arriving at the same node at the same time the same way can be
// pruned without rerunning the heuristics. Boarding checks don't apply
// to a branch riding through, hence the trip flag. Scoped to one
// search execution.
type PreviousVisits struct {
	cache gcache.Cache

	mutex sync.Mutex
	hits  int
}

// Keeps at most size decisions, evicting the least recently used.
func NewPreviousVisits(size int) *PreviousVisits {
	if size <= 0 {
		size = 1
	}
	return &PreviousVisits{
		cache: gcache.New(size).LRU().Build(),
	}
}

func (p *PreviousVisits) Get(nodeID string, clock time.Duration, onTrip bool) (ReasonCode, bool) {
	value, err := p.cache.Get(visitKey{nodeID, clock, onTrip})
	if err != nil {
		return Continue, false
	}

	p.mutex.Lock()
	p.hits++
	p.mutex.Unlock()

	return value.(ReasonCode), true
}

// Memoizes a decision, if it's one that only depends on where and how
// the branch got here and nothing is recorded yet. Returns true if
// recorded.
func (p *PreviousVisits) Record(reason ServiceReason) bool {
	if !reason.Code.memoizable() {
		return false
	}

	key := visitKey{reason.NodeID, reason.Clock, reason.OnTrip}
	if p.cache.Has(key) {
		return false
	}
	p.cache.Set(key, reason.Code)
	return true
}

func (p *PreviousVisits) Len() int {
	return p.cache.Len(false)
}

func (p *PreviousVisits) Hits() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.hits
}

// Drops everything, ahead of an unrelated search.
func (p *PreviousVisits) Reset() {
	p.cache.Purge()

	p.mutex.Lock()
	p.hits = 0
	p.mutex.Unlock()
}

// Lowest cost of any journey to the destination found so far, for
// branch and bound.
type LowestCostSeen struct {
	mutex    sync.Mutex
	cost     time.Duration
	found    bool
	arrivals int
}

func NewLowestCostSeen() *LowestCostSeen {
	return &LowestCostSeen{}
}

func (l *LowestCostSeen) Get() (time.Duration, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.cost, l.found
}

// Records an arrival at the given cost, unless a cheaper one is known.
func (l *LowestCostSeen) TryArrive(cost time.Duration) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.found && cost > l.cost {
		return false
	}
	l.cost = cost
	l.found = true
	l.arrivals++
	return true
}

// True if an arrival cheaper than cost is known.
func (l *LowestCostSeen) Exceeds(cost time.Duration) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.found && cost > l.cost
}

func (l *LowestCostSeen) Arrivals() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.arrivals
}
