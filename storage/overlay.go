package storage

import (
	"fmt"
	"sort"
	"sync"
)

// A Graph with per-request additions layered over a shared base
// graph. The base graph is never written to.
type Overlay struct {
	base Graph

	mutex    sync.RWMutex
	nodes    map[string]*Node
	outgoing map[string][]*Relationship
}

func NewOverlay(base Graph) *Overlay {
	return &Overlay{
		base:     base,
		nodes:    map[string]*Node{},
		outgoing: map[string][]*Relationship{},
	}
}

func (o *Overlay) AddNode(node *Node) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, found := o.nodes[node.ID]; found {
		return fmt.Errorf("node %s already in overlay", node.ID)
	}
	if _, err := o.base.Node(node.ID); err == nil {
		return fmt.Errorf("node %s already in base graph", node.ID)
	}

	o.nodes[node.ID] = node
	return nil
}

// Adds a relationship. Either end may be a base graph node.
func (o *Overlay) AddRelationship(rel *Relationship) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.outgoing[rel.Start] = append(o.outgoing[rel.Start], rel)
}

func (o *Overlay) Node(id string) (*Node, error) {
	o.mutex.RLock()
	node, found := o.nodes[id]
	o.mutex.RUnlock()

	if found {
		return node, nil
	}
	return o.base.Node(id)
}

func (o *Overlay) Outgoing(nodeID string, types ...RelationshipType) ([]*Relationship, error) {
	o.mutex.RLock()
	_, local := o.nodes[nodeID]
	extra := o.outgoing[nodeID]
	o.mutex.RUnlock()

	rels := []*Relationship{}
	if !local {
		baseRels, err := o.base.Outgoing(nodeID, types...)
		if err != nil {
			return nil, err
		}
		rels = append(rels, baseRels...)
	}

	filter := typeFilter(types)
	for _, rel := range extra {
		if filter == nil || filter[rel.Type] {
			rels = append(rels, rel)
		}
	}

	return rels, nil
}

func (o *Overlay) NodesByLabel(labels Labels) ([]*Node, error) {
	nodes, err := o.base.NodesByLabel(labels)
	if err != nil {
		return nil, err
	}

	o.mutex.RLock()
	added := false
	for _, node := range o.nodes {
		if node.Labels.Has(labels) {
			nodes = append(nodes, node)
			added = true
		}
	}
	o.mutex.RUnlock()

	if added {
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].ID < nodes[j].ID
		})
	}

	return nodes, nil
}

func (o *Overlay) ActiveServices(date string) ([]string, error) {
	return o.base.ActiveServices(date)
}
