package graph

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
	"github.com/eleven-am/loom/internal/xjson"
)

// Store is an in-memory GraphStore. Production embeds the real snapshot
// store behind the same port; this implementation backs tests and
// single-process use.
type Store struct {
	logger *slog.Logger

	mu        sync.RWMutex
	nodes     map[string]*domain.Node
	nodeOrder []string
	edges     []*domain.Edge
	edgeSeq   int64
	subs      []chan ports.GraphEvent
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		logger: logger.With("component", "graph-store"),
		nodes:  make(map[string]*domain.Node),
	}
}

func (s *Store) GetNode(id string) (*domain.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return cloneNode(node), true
}

func (s *Store) GetNodes() []*domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		if node, ok := s.nodes[id]; ok {
			out = append(out, cloneNode(node))
		}
	}
	return out
}

func (s *Store) GetEdges() []*domain.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Edge, len(s.edges))
	for i, e := range s.edges {
		clone := *e
		out[i] = &clone
	}
	return out
}

func (s *Store) MergeNodeData(id string, patch map[string]interface{}) error {
	s.mu.Lock()
	node, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNodeNotFound
	}

	merged, err := domain.MergeData(node.DurableData, patch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	node.DurableData = merged
	s.mu.Unlock()

	s.publish(ports.GraphEvent{Type: ports.GraphEventNodeData, NodeID: id})
	return nil
}

func (s *Store) AddNodes(nodes []*domain.Node) error {
	s.mu.Lock()
	added := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if _, exists := s.nodes[n.ID]; exists {
			continue
		}
		s.nodes[n.ID] = cloneNode(n)
		s.nodeOrder = append(s.nodeOrder, n.ID)
		added = append(added, n.ID)
	}
	s.mu.Unlock()

	for _, id := range added {
		s.publish(ports.GraphEvent{Type: ports.GraphEventNodesAdded, NodeID: id})
	}
	return nil
}

func (s *Store) AddEdges(edges []*domain.Edge) error {
	s.mu.Lock()
	added := make([]string, 0, len(edges))
	var nodeID string
	for _, e := range edges {
		if s.findEdge(e.ID) != nil {
			continue
		}
		s.edgeSeq++
		clone := *e
		clone.Seq = s.edgeSeq
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = time.Now()
		}
		s.edges = append(s.edges, &clone)
		added = append(added, clone.ID)
		nodeID = clone.TargetID
	}
	s.mu.Unlock()

	if len(added) > 0 {
		s.publish(ports.GraphEvent{Type: ports.GraphEventEdgesAdded, NodeID: nodeID, EdgeIDs: added})
	}
	return nil
}

func (s *Store) RemoveEdges(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	kept := s.edges[:0]
	removed := make([]string, 0, len(ids))
	var nodeID string
	for _, e := range s.edges {
		if drop[e.ID] {
			removed = append(removed, e.ID)
			nodeID = e.TargetID
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	s.mu.Unlock()

	if len(removed) > 0 {
		s.publish(ports.GraphEvent{Type: ports.GraphEventEdgesRemoved, NodeID: nodeID, EdgeIDs: removed})
	}
	return nil
}

func (s *Store) Subscribe(buffer int) (<-chan ports.GraphEvent, func()) {
	ch := make(chan ports.GraphEvent, buffer)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// publish sends while holding the read lock so a concurrent cancel cannot
// close a channel mid-send. Sends never block, so the lock is short.
func (s *Store) publish(event ports.GraphEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.logger.Debug("graph event dropped, subscriber full",
				"event_type", event.Type,
				"node_id", event.NodeID,
			)
		}
	}
}

func (s *Store) findEdge(id string) *domain.Edge {
	for _, e := range s.edges {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func cloneNode(n *domain.Node) *domain.Node {
	clone := *n
	if n.DurableData != nil {
		data, err := xjson.Marshal(n.DurableData)
		if err == nil {
			var copied map[string]interface{}
			if xjson.Unmarshal(data, &copied) == nil {
				clone.DurableData = copied
				return &clone
			}
		}
		copied := make(map[string]interface{}, len(n.DurableData))
		for k, v := range n.DurableData {
			copied[k] = v
		}
		clone.DurableData = copied
	}
	return &clone
}
