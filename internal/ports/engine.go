package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

// Resolver walks a node's inbound edges and produces the typed input set
// for its current mode. Resolution is pure apart from truncation notices.
type Resolver interface {
	Resolve(nodeID string, mode domain.Mode) ([]domain.ResolvedInput, error)
}

// AdmissionPolicy guards edge connections. CanAdmit runs synchronously
// during drag-to-connect; ReconcileEdges runs after payload or mode
// changes and auto-prunes violations, returning the removed edge ids.
type AdmissionPolicy interface {
	CanAdmit(candidate *domain.Edge) bool
	ReconcileEdges(nodeID string) ([]string, error)
}

// NodeState is the read-only projection the UI renders.
type NodeState struct {
	Status    domain.RunStatus
	Progress  int
	LastError string
}

// Lifecycle owns the per-node job state machine. Adopt resumes polling
// for a job discovered during reconciliation without resubmitting.
type Lifecycle interface {
	Submit(ctx context.Context, nodeID string) error
	Adopt(nodeID string, job *domain.Job)
	CancelPolling(nodeID string)
	State(nodeID string) NodeState
}

// Materializer turns a succeeded job into downstream result nodes,
// at most once per job regardless of how often success is observed.
type Materializer interface {
	Materialize(nodeID string, job *domain.Job) (createdNodeIDs []string, err error)
}

// Reconciler aligns local durable state with remote truth; run once per
// node mount.
type Reconciler interface {
	Reconcile(ctx context.Context, nodeID string) error
}
