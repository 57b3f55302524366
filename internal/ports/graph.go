package ports

import (
	"github.com/eleven-am/loom/internal/domain"
)

// GraphStore is the snapshot store collaborator. Node durable data is
// mutated only through MergeNodeData so concurrent effects merge rather
// than overwrite each other.
type GraphStore interface {
	GetNode(id string) (*domain.Node, bool)
	GetNodes() []*domain.Node
	GetEdges() []*domain.Edge
	MergeNodeData(id string, patch map[string]interface{}) error
	AddNodes(nodes []*domain.Node) error
	AddEdges(edges []*domain.Edge) error
	RemoveEdges(ids []string) error
}

type GraphEventType int

const (
	GraphEventNodeData GraphEventType = iota
	GraphEventEdgesAdded
	GraphEventEdgesRemoved
	GraphEventNodesAdded
)

type GraphEvent struct {
	Type    GraphEventType
	NodeID  string
	EdgeIDs []string
}

// GraphWatcher is implemented by stores that can report changes; the
// engine uses it to re-run edge admission after upstream payload changes.
type GraphWatcher interface {
	Subscribe(buffer int) (<-chan GraphEvent, func())
}
