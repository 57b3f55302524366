package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Reconciler aligns a node's durable job state with remote truth on mount.
// It resolves the three-way conflict between the persisted job handle, the
// job's true remote status, and any result already materialized
// downstream, without duplicating side effects: the materializer's
// duplicate-URL scan and suppression pre-check make the success path
// idempotent.
type Reconciler struct {
	graph        ports.GraphStore
	jobs         ports.JobAPI
	materializer ports.Materializer
	manager      ports.Lifecycle
	notices      ports.NoticePort
	logger       *slog.Logger
}

func NewReconciler(graph ports.GraphStore, jobs ports.JobAPI, materializer ports.Materializer, manager ports.Lifecycle, notices ports.NoticePort, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		graph:        graph,
		jobs:         jobs,
		materializer: materializer,
		manager:      manager,
		notices:      notices,
		logger:       logger.With("component", "recovery-reconciler"),
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, nodeID string) error {
	node, ok := r.graph.GetNode(nodeID)
	if !ok {
		return domain.ErrNodeNotFound
	}
	if !node.Kind.Generator() {
		return nil
	}

	if jobID := domain.JobID(node); jobID != "" {
		return r.reconcileHandle(ctx, nodeID, jobID)
	}

	// The node may believe it was generating while the durable write of
	// the job handle itself was lost mid-crash; ask the backend for any
	// job it still owns and adopt it.
	if domain.Orphaned(node) {
		adopted, err := r.adoptActiveJob(ctx, node)
		if err != nil {
			r.logger.Warn("active job lookup failed", "node_id", nodeID, "error", err)
		}
		if adopted {
			return nil
		}
	}

	return r.sweepPending(ctx, nodeID)
}

func (r *Reconciler) adoptActiveJob(ctx context.Context, node *domain.Node) (bool, error) {
	active, err := r.jobs.GetActiveJobForNode(ctx, node.ID)
	if err != nil {
		return false, err
	}
	if active != nil && !active.Status.Terminal() {
		if err := r.graph.MergeNodeData(node.ID, map[string]interface{}{
			domain.DataJobID:      active.ID,
			domain.DataGenerating: true,
		}); err != nil {
			r.logger.Error("failed to persist adopted job handle", "node_id", node.ID, "error", err)
		}
		r.manager.Adopt(node.ID, active)
		return true, nil
	}
	// Flag set but nothing running remotely: the job finished or failed
	// while we were away; clear the flag and fall through to the sweep.
	if err := r.graph.MergeNodeData(node.ID, map[string]interface{}{
		domain.DataGenerating: false,
	}); err != nil {
		r.logger.Error("failed to clear orphan flag", "node_id", node.ID, "error", err)
	}
	return false, nil
}

func (r *Reconciler) reconcileHandle(ctx context.Context, nodeID, jobID string) error {
	// A downstream result referencing this node means a previous success
	// path already ran; release the guard and stop before re-querying.
	if r.hasDownstreamResult(nodeID) {
		r.clearHandle(nodeID)
		r.logger.Debug("result already materialized, handle released", "node_id", nodeID, "job_id", jobID)
		return nil
	}

	job, err := r.jobs.GetJobStatus(ctx, jobID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			r.clearHandle(nodeID)
			return nil
		}
		return err
	}

	switch job.Status {
	case domain.JobStatusSuccess:
		if _, err := r.materializer.Materialize(nodeID, job); err != nil {
			return err
		}
		if err := r.jobs.AcknowledgeMaterialized(ctx, job.ID); err != nil {
			r.logger.Warn("failed to acknowledge materialization", "job_id", job.ID, "error", err)
		}
		r.clearHandle(nodeID)
		r.notices.Publish(domain.Notice{
			Kind:      domain.NoticeJobSucceeded,
			Level:     domain.NoticeSuccess,
			NodeID:    nodeID,
			Message:   "generation finished while you were away",
			EmittedAt: time.Now(),
		})
		r.logger.Info("completed job recovered", "node_id", nodeID, "job_id", jobID)

	case domain.JobStatusPending, domain.JobStatusProcessing:
		r.manager.Adopt(nodeID, job)

	case domain.JobStatusFailure:
		r.clearHandle(nodeID)
		message := job.ErrorMessage
		if message == "" {
			message = "generation failed while you were away"
		}
		r.notices.Publish(domain.Notice{
			Kind:      domain.NoticeJobFailed,
			Level:     domain.NoticeError,
			NodeID:    nodeID,
			Message:   message,
			EmittedAt: time.Now(),
		})

	case domain.JobStatusNotFound:
		r.clearHandle(nodeID)
	}
	return nil
}

// sweepPending restores result nodes for jobs that succeeded but were
// never materialized on any client, then acknowledges them so the sweep
// converges.
func (r *Reconciler) sweepPending(ctx context.Context, nodeID string) error {
	pending, err := r.jobs.GetPendingMaterializations(ctx, nodeID)
	if err != nil {
		r.logger.Debug("pending materialization lookup failed", "node_id", nodeID, "error", err)
		return nil
	}

	for _, job := range pending {
		if _, err := r.materializer.Materialize(nodeID, job); err != nil {
			r.logger.Error("pending materialization failed", "node_id", nodeID, "job_id", job.ID, "error", err)
			continue
		}
		// Acknowledged even when suppressed, so a dismissed result is not
		// offered again on the next mount.
		if err := r.jobs.AcknowledgeMaterialized(ctx, job.ID); err != nil {
			r.logger.Warn("failed to acknowledge materialization", "job_id", job.ID, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) hasDownstreamResult(nodeID string) bool {
	node, ok := r.graph.GetNode(nodeID)
	if !ok {
		return false
	}
	previewKind := node.Kind.PreviewKind()
	for _, edge := range r.graph.GetEdges() {
		if edge.SourceID != nodeID {
			continue
		}
		if target, ok := r.graph.GetNode(edge.TargetID); ok && target.Kind == previewKind && previewPayload(target) != "" {
			return true
		}
	}
	return false
}

func (r *Reconciler) clearHandle(nodeID string) {
	if err := r.graph.MergeNodeData(nodeID, map[string]interface{}{
		domain.DataJobID:      "",
		domain.DataGenerating: false,
		domain.DataProgress:   0,
	}); err != nil {
		r.logger.Error("failed to clear job handle", "node_id", nodeID, "error", err)
	}
}
