package journeys

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"tidbyt.dev/journeys/storage"
)

// Estimates journey cost ignoring the timetable: the cheapest sum of
// relationship costs between two points. Never more than the real
// journey takes, since waits aren't counted.
type ApproxCostCalculator struct {
	graph storage.Graph

	// Nodes settled before giving up. Zero means no limit.
	MaxNodes int
}

func NewApproxCostCalculator(graph storage.Graph) *ApproxCostCalculator {
	return &ApproxCostCalculator{graph: graph}
}

type queueItem struct {
	nodeID string
	cost   time.Duration
}

type costQueue []queueItem

func (q costQueue) Len() int { return len(q) }

func (q costQueue) Less(i, j int) bool {
	if q[i].cost == q[j].cost {
		return q[i].nodeID < q[j].nodeID
	}
	return q[i].cost < q[j].cost
}

func (q costQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *costQueue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *costQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// Lowest cost from the start node to any of the destination nodes.
// Returns false if none can be reached.
func (a *ApproxCostCalculator) Cost(ctx context.Context, startID string, destinations map[string]bool) (time.Duration, bool, error) {
	best := map[string]time.Duration{startID: 0}
	settled := map[string]bool{}
	queue := &costQueue{{nodeID: startID}}

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}

		item := heap.Pop(queue).(queueItem)
		if settled[item.nodeID] {
			continue
		}
		settled[item.nodeID] = true

		if destinations[item.nodeID] {
			return item.cost, true, nil
		}
		if a.MaxNodes > 0 && len(settled) >= a.MaxNodes {
			break
		}

		rels, err := a.graph.Outgoing(item.nodeID)
		if err != nil {
			return 0, false, fmt.Errorf("expanding %s: %w", item.nodeID, err)
		}
		for _, rel := range rels {
			if settled[rel.End] {
				continue
			}
			cost := item.cost + rel.Cost
			if prev, found := best[rel.End]; found && prev <= cost {
				continue
			}
			best[rel.End] = cost
			heap.Push(queue, queueItem{nodeID: rel.End, cost: cost})
		}
	}

	return 0, false, nil
}
