package ports

import (
	"context"

	"github.com/eleven-am/loom/internal/domain"
)

// JobAPI is the remote job store collaborator. Implementations wrap the
// transport; the engine never constructs requests itself.
type JobAPI interface {
	SubmitJob(ctx context.Context, payload domain.SubmitPayload) (jobID string, charge domain.ChargeInfo, err error)
	GetJobStatus(ctx context.Context, jobID string) (*domain.Job, error)

	// GetActiveJobForNode returns a non-terminal job owned by the node,
	// or nil when none exists. Used to adopt jobs whose durable handle
	// was lost mid-crash.
	GetActiveJobForNode(ctx context.Context, nodeID string) (*domain.Job, error)

	// GetPendingMaterializations lists succeeded jobs whose results were
	// never materialized on any client.
	GetPendingMaterializations(ctx context.Context, nodeID string) ([]*domain.Job, error)
	AcknowledgeMaterialized(ctx context.Context, jobID string) error
}

// Billing is fire-and-forget; the backend charges and refunds server-side,
// the engine only asks the UI layer to re-fetch the balance.
type Billing interface {
	RefreshBalance()
}
