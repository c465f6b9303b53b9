package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"tidbyt.dev/journeys/model"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	mutex    sync.RWMutex
	Networks map[string]*MemoryGraph
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Networks: map[string]*MemoryGraph{},
	}
}

func (s *MemoryStorage) ListNetworks() ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := []string{}
	for name := range s.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStorage) GetReader(network string) (Graph, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	g, ok := s.Networks[network]
	if !ok {
		return nil, fmt.Errorf("network %s not found", network)
	}
	return g, nil
}

func (s *MemoryStorage) GetWriter(network string) (GraphWriter, error) {
	g := NewMemoryGraph()

	s.mutex.Lock()
	s.Networks[network] = g
	s.mutex.Unlock()

	return g, nil
}

// A network held in maps. Reads are lock free: all writing must be
// done before the graph is shared.
type MemoryGraph struct {
	nodes        map[string]*Node
	outgoing     map[string][]*Relationship
	calendar     map[string]*model.Calendar
	calendarDate map[string][]*model.CalendarDate
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes:        map[string]*Node{},
		outgoing:     map[string][]*Relationship{},
		calendar:     map[string]*model.Calendar{},
		calendarDate: map[string][]*model.CalendarDate{},
	}
}

func (g *MemoryGraph) WriteNode(node *Node) error {
	if node.ID == "" {
		return fmt.Errorf("node without ID")
	}
	g.nodes[node.ID] = node
	return nil
}

func (g *MemoryGraph) BeginRelationships() error {
	return nil
}

func (g *MemoryGraph) WriteRelationship(rel *Relationship) error {
	g.outgoing[rel.Start] = append(g.outgoing[rel.Start], rel)
	return nil
}

func (g *MemoryGraph) EndRelationships() error {
	return nil
}

func (g *MemoryGraph) WriteCalendar(cal *model.Calendar) error {
	g.calendar[cal.ServiceID] = cal
	return nil
}

func (g *MemoryGraph) WriteCalendarDate(cd *model.CalendarDate) error {
	g.calendarDate[cd.ServiceID] = append(g.calendarDate[cd.ServiceID], cd)
	return nil
}

func (g *MemoryGraph) Close() error {
	return nil
}

func (g *MemoryGraph) Node(id string) (*Node, error) {
	node, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return node, nil
}

func (g *MemoryGraph) Outgoing(nodeID string, types ...RelationshipType) ([]*Relationship, error) {
	rels := g.outgoing[nodeID]

	filter := typeFilter(types)
	if filter == nil {
		return rels, nil
	}

	matching := []*Relationship{}
	for _, rel := range rels {
		if filter[rel.Type] {
			matching = append(matching, rel)
		}
	}
	return matching, nil
}

func (g *MemoryGraph) NodesByLabel(labels Labels) ([]*Node, error) {
	nodes := []*Node{}
	for _, node := range g.nodes {
		if node.Labels.Has(labels) {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes, nil
}

func (g *MemoryGraph) ActiveServices(date string) ([]string, error) {
	services := map[string]bool{}

	parsedDate, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	for _, calendar := range g.calendar {
		if calendar.Weekday&(1<<parsedDate.Weekday()) == 0 {
			continue
		}
		if calendar.StartDate > date {
			continue
		}
		if calendar.EndDate < date {
			continue
		}
		services[calendar.ServiceID] = true
	}

	for _, cds := range g.calendarDate {
		for _, cd := range cds {
			if cd.Date == date {
				if cd.ExceptionType == model.ExceptionTypeAdded {
					services[cd.ServiceID] = true
				} else if cd.ExceptionType == model.ExceptionTypeRemoved {
					services[cd.ServiceID] = false
				}
			}
		}
	}

	activeServices := []string{}
	for serviceID, active := range services {
		if active {
			activeServices = append(activeServices, serviceID)
		}
	}
	sort.Strings(activeServices)

	return activeServices, nil
}
