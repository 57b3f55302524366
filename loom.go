// Package loom manages the asynchronous generation-job lifecycle behind a
// node-based creation canvas.
//
// Each generator node on the canvas resolves typed inputs from its inbound
// edges, submits a long-running job to a remote backend, polls it to a
// terminal state, and materializes the results as downstream preview
// nodes exactly once. Loom keeps that cycle correct across page reloads,
// network interruption, and concurrent edits:
//   - Input resolution and edge admission keep the graph within each
//     mode's type and arity constraints
//   - The lifecycle manager enforces at most one live job per node and
//     polls with fixed intervals and local attempt ceilings
//   - The materializer deduplicates by result URL and honors a durable
//     suppression ledger of user-dismissed results
//   - The reconciler re-aligns persisted job handles with remote truth on
//     every node mount, adopting orphaned jobs and restoring lost results
//
// Basic usage:
//
//	engine, _ := loom.New(loom.Config{
//	    Graph:   store,
//	    Jobs:    jobAPI,
//	    Billing: billing,
//	    Logger:  logger,
//	})
//	defer engine.Close()
//
//	engine.Reconcile(ctx, nodeID) // on node mount
//	engine.Submit(ctx, nodeID)    // on user action
package loom

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/eleven-am/loom/internal/adapters/engine"
	"github.com/eleven-am/loom/internal/adapters/graph"
	"github.com/eleven-am/loom/internal/adapters/ledger"
	"github.com/eleven-am/loom/internal/adapters/notices"
	"github.com/eleven-am/loom/internal/adapters/resolver"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Engine wires the resolver, admission policy, lifecycle manager,
// materializer, and reconciler around a graph store and job API.
type Engine struct {
	config    Config
	graph     ports.GraphStore
	ledger    ports.SuppressionLedger
	center    *notices.Center
	resolver  *resolver.Engine
	admission ports.AdmissionPolicy
	manager   *engine.Manager
	recon     ports.Reconciler
	logger    *slog.Logger

	mu        sync.Mutex
	closed    bool
	stopWatch func()
	watchWG   sync.WaitGroup
}

// New validates the configuration and assembles an Engine. The suppression
// ledger is opened here and owned by the Engine; Close releases it.
func New(config Config) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.Engine.SetDefaults()

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	store := config.Graph
	if store == nil {
		store = graph.NewStore(logger)
	}

	supp := config.Suppression
	if supp == nil {
		opened, err := ledger.Open(ledger.Options{
			Path:     config.LedgerPath,
			InMemory: config.LedgerPath == "",
			TTL:      config.SuppressionTTL,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		supp = opened
	}

	center := notices.NewCenter(logger)
	res := resolver.NewEngine(store, center, config.Engine.Resolution, logger)
	admission := resolver.NewPolicy(store, center, config.Engine.Resolution, logger)
	materializer := engine.NewMaterializer(store, supp, config.Engine.Materializer, logger)
	manager := engine.NewManager(store, config.Jobs, config.Billing, res, materializer, center, config.Engine.Poll, logger)
	recon := engine.NewReconciler(store, config.Jobs, materializer, manager, center, logger)

	e := &Engine{
		config:    config,
		graph:     store,
		ledger:    supp,
		center:    center,
		resolver:  res,
		admission: admission,
		manager:   manager,
		recon:     recon,
		logger:    logger.With("component", "loom"),
	}
	e.watchGraph()
	return e, nil
}

// Graph returns the store the engine operates on; useful when loom created
// the in-memory store itself.
func (e *Engine) Graph() ports.GraphStore {
	return e.graph
}

// Submit starts a generation job for the node. It fails with a validation
// error when required inputs are missing, the node is locked, or a job is
// already live.
func (e *Engine) Submit(ctx context.Context, nodeID string) error {
	return e.manager.Submit(ctx, nodeID)
}

// CancelPolling stops the node's poll loop and ignores late results. The
// remote job keeps running; there is no client-side hard cancel.
func (e *Engine) CancelPolling(nodeID string) {
	e.manager.CancelPolling(nodeID)
}

// State returns the node's lifecycle projection for rendering.
func (e *Engine) State(nodeID string) NodeState {
	return e.manager.State(nodeID)
}

// Reconcile aligns the node's durable job state with remote truth. Call
// once per node mount.
func (e *Engine) Reconcile(ctx context.Context, nodeID string) error {
	return e.recon.Reconcile(ctx, nodeID)
}

// Resolve computes the node's current typed input set.
func (e *Engine) Resolve(nodeID string) ([]ResolvedInput, error) {
	node, ok := e.graph.GetNode(nodeID)
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	return e.resolver.Resolve(nodeID, domain.ModeOf(node))
}

// CanAdmit is the synchronous connect-time admission check.
func (e *Engine) CanAdmit(candidate *Edge) bool {
	return e.admission.CanAdmit(candidate)
}

// ReconcileEdges prunes inbound edges the node's mode no longer accepts,
// returning the removed edge ids.
func (e *Engine) ReconcileEdges(nodeID string) ([]string, error) {
	return e.admission.ReconcileEdges(nodeID)
}

// Suppress records that the user dismissed a result, preventing any future
// materialization of the same job or source node.
func (e *Engine) Suppress(entry SuppressionEntry) error {
	return e.ledger.Suppress(entry)
}

// Notices subscribes to transient user-facing messages.
func (e *Engine) Notices(buffer int) (<-chan Notice, func()) {
	return e.center.Subscribe(buffer)
}

// Close stops all poll loops and the graph watcher, and closes the
// suppression ledger when the engine opened it.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrClosed
	}
	e.closed = true
	stop := e.stopWatch
	e.mu.Unlock()

	// Poll loops merge-write into the store; they stop before the watcher
	// subscription is torn down.
	e.manager.Stop()
	if stop != nil {
		stop()
	}
	e.watchWG.Wait()

	if e.config.Suppression == nil {
		return e.ledger.Close()
	}
	return nil
}

// watchGraph re-runs edge admission whenever the store reports a change
// that can invalidate an existing connection.
func (e *Engine) watchGraph() {
	watcher, ok := e.graph.(ports.GraphWatcher)
	if !ok {
		return
	}
	events, cancel := watcher.Subscribe(64)
	e.stopWatch = cancel

	e.watchWG.Add(1)
	go func() {
		defer e.watchWG.Done()
		for event := range events {
			if event.Type == ports.GraphEventEdgesRemoved {
				continue
			}
			for _, nodeID := range e.affectedTargets(event) {
				if _, err := e.admission.ReconcileEdges(nodeID); err != nil && err != domain.ErrNodeNotFound {
					e.logger.Warn("edge reconciliation failed", "node_id", nodeID, "error", err)
				}
			}
			for _, nodeID := range e.promptSyncTargets(event) {
				e.syncPrompt(nodeID)
			}
		}
	}()
}

// promptSyncTargets picks the generators whose prompt should follow the
// event: downstream generators when an upstream payload changed, the edge
// target when a connection appeared. A node's own data change never syncs
// the node itself, so manual prompt edits are not fought.
func (e *Engine) promptSyncTargets(event ports.GraphEvent) []string {
	var targets []string
	isGenerator := func(id string) bool {
		node, ok := e.graph.GetNode(id)
		return ok && node.Kind.Generator()
	}

	switch event.Type {
	case ports.GraphEventNodeData:
		for _, edge := range e.graph.GetEdges() {
			if edge.SourceID == event.NodeID && isGenerator(edge.TargetID) {
				targets = append(targets, edge.TargetID)
			}
		}
	case ports.GraphEventEdgesAdded:
		if isGenerator(event.NodeID) {
			targets = append(targets, event.NodeID)
		}
	}
	return targets
}

// syncPrompt mirrors the first connected text payload into the node's
// durable prompt, matching what submission would use.
func (e *Engine) syncPrompt(nodeID string) {
	node, ok := e.graph.GetNode(nodeID)
	if !ok {
		return
	}
	text, ok := e.resolver.FirstTextInput(nodeID)
	if !ok || text == "" || text == domain.Prompt(node) {
		return
	}
	if err := e.graph.MergeNodeData(nodeID, map[string]interface{}{
		domain.DataPrompt: text,
	}); err != nil {
		e.logger.Warn("prompt sync failed", "node_id", nodeID, "error", err)
	}
}

// affectedTargets finds generator nodes whose input set the event can
// change: the event's own target plus every generator downstream of a
// node whose payload shape changed.
func (e *Engine) affectedTargets(event ports.GraphEvent) []string {
	seen := map[string]bool{}
	var targets []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		if node, ok := e.graph.GetNode(id); ok && node.Kind.Generator() {
			seen[id] = true
			targets = append(targets, id)
		}
	}

	add(event.NodeID)
	if event.Type == ports.GraphEventNodeData {
		for _, edge := range e.graph.GetEdges() {
			if edge.SourceID == event.NodeID {
				add(edge.TargetID)
			}
		}
	}
	return targets
}
