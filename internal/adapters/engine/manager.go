package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Manager owns the per-node job state machine:
// IDLE -> SUBMITTING -> PROCESSING -> {SUCCESS, FAILURE, TIMEOUT} -> IDLE.
// At most one live job per node; the guard releases when the durable job
// handle is cleared on a terminal transition.
type Manager struct {
	graph        ports.GraphStore
	jobs         ports.JobAPI
	billing      ports.Billing
	resolver     ports.Resolver
	materializer ports.Materializer
	notices      ports.NoticePort
	config       domain.PollConfig
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*pollSession
	states   map[string]ports.NodeState
}

func NewManager(
	graph ports.GraphStore,
	jobs ports.JobAPI,
	billing ports.Billing,
	resolver ports.Resolver,
	materializer ports.Materializer,
	notices ports.NoticePort,
	config domain.PollConfig,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		graph:        graph,
		jobs:         jobs,
		billing:      billing,
		resolver:     resolver,
		materializer: materializer,
		notices:      notices,
		config:       config,
		logger:       logger.With("component", "job-lifecycle"),
		sessions:     make(map[string]*pollSession),
		states:       make(map[string]ports.NodeState),
	}
}

func (m *Manager) Submit(ctx context.Context, nodeID string) error {
	node, ok := m.graph.GetNode(nodeID)
	if !ok {
		return domain.ErrNodeNotFound
	}
	if !node.Kind.Generator() {
		return domain.NewValidationError("node kind does not submit jobs", map[string]interface{}{"kind": node.Kind})
	}
	if domain.Locked(node) {
		return domain.ErrNodeLocked
	}

	mode := domain.ModeOf(node)
	inputs, err := m.resolver.Resolve(nodeID, mode)
	if err != nil {
		return err
	}
	payload, err := buildPayload(node, mode, inputs)
	if err != nil {
		return err
	}

	// The node is reserved in the session map before the remote call, in
	// the same critical section as both one-live-job checks, so concurrent
	// submits cannot each pass the guard and double-submit.
	placeholder := newPollSession(nodeID, "", node.Kind)
	m.mu.Lock()
	if _, live := m.sessions[nodeID]; live {
		m.mu.Unlock()
		return domain.ErrJobActive
	}
	if domain.JobID(node) != "" {
		m.mu.Unlock()
		return domain.ErrJobActive
	}
	m.sessions[nodeID] = placeholder
	m.states[nodeID] = ports.NodeState{Status: domain.RunSubmitting}
	m.mu.Unlock()

	jobID, charge, err := m.jobs.SubmitJob(ctx, payload)
	if err != nil {
		m.removeSession(placeholder, ports.NodeState{Status: domain.RunIdle, LastError: err.Error()})
		if domain.IsPermission(err) {
			m.notices.Publish(domain.Notice{
				Kind:      domain.NoticePermissionDenied,
				Level:     domain.NoticeError,
				NodeID:    nodeID,
				Message:   "this account does not have access to this feature",
				EmittedAt: time.Now(),
			})
		}
		return err
	}

	// The durable handle is written before local state flips so a crash
	// between acceptance and the first poll stays recoverable.
	if err := m.graph.MergeNodeData(nodeID, map[string]interface{}{
		domain.DataJobID:      jobID,
		domain.DataGenerating: true,
		domain.DataProgress:   0,
	}); err != nil {
		m.logger.Error("failed to persist job handle", "node_id", nodeID, "job_id", jobID, "error", err)
	}

	if charge.CreditsCharged > 0 || charge.FreeUsage {
		m.billing.RefreshBalance()
	}
	m.notices.Publish(startNotice(nodeID, charge))

	m.logger.Info("job submitted",
		"node_id", nodeID,
		"job_id", jobID,
		"mode", mode,
		"credits_charged", charge.CreditsCharged,
	)

	m.startSession(node, jobID, 0)
	return nil
}

// Adopt resumes polling for a job discovered during reconciliation,
// without resubmitting. A node that already owns a live session keeps it;
// adoption never supersedes an in-flight submit or poll loop.
func (m *Manager) Adopt(nodeID string, job *domain.Job) {
	node, ok := m.graph.GetNode(nodeID)
	if !ok {
		return
	}
	session := newPollSession(nodeID, job.ID, node.Kind)

	m.mu.Lock()
	if _, live := m.sessions[nodeID]; live {
		m.mu.Unlock()
		session.stop()
		return
	}
	m.sessions[nodeID] = session
	m.states[nodeID] = ports.NodeState{Status: domain.RunProcessing, Progress: job.Progress}
	m.mu.Unlock()

	m.logger.Info("adopting in-flight job", "node_id", nodeID, "job_id", job.ID, "status", job.Status)
	go m.poll(session)
}

func (m *Manager) CancelPolling(nodeID string) {
	m.mu.Lock()
	session, ok := m.sessions[nodeID]
	if ok {
		delete(m.sessions, nodeID)
	}
	m.states[nodeID] = ports.NodeState{Status: domain.RunIdle}
	m.mu.Unlock()

	if ok {
		session.stop()
		m.logger.Debug("polling cancelled", "node_id", nodeID, "job_id", session.jobID)
	}
}

func (m *Manager) State(nodeID string) ports.NodeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[nodeID]; ok {
		return state
	}
	return ports.NodeState{Status: domain.RunIdle}
}

// Stop cancels every live poll loop; used on shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	sessions := make([]*pollSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*pollSession)
	m.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
}

func (m *Manager) startSession(node *domain.Node, jobID string, progress int) {
	session := newPollSession(node.ID, jobID, node.Kind)

	m.mu.Lock()
	if existing, ok := m.sessions[node.ID]; ok {
		existing.stop()
	}
	m.sessions[node.ID] = session
	m.states[node.ID] = ports.NodeState{Status: domain.RunProcessing, Progress: progress}
	m.mu.Unlock()

	go m.poll(session)
}

func (m *Manager) setState(nodeID string, state ports.NodeState) {
	m.mu.Lock()
	m.states[nodeID] = state
	m.mu.Unlock()
}

func (m *Manager) removeSession(s *pollSession, state ports.NodeState) {
	m.mu.Lock()
	if current, ok := m.sessions[s.nodeID]; ok && current == s {
		delete(m.sessions, s.nodeID)
	}
	m.states[s.nodeID] = state
	m.mu.Unlock()
}

func buildPayload(node *domain.Node, mode domain.Mode, inputs []domain.ResolvedInput) (domain.SubmitPayload, error) {
	var (
		prompt string
		images []string
		videos []string
	)
	for _, input := range inputs {
		switch input.Kind {
		case domain.InputText:
			if prompt == "" {
				prompt = input.Payload
			}
		case domain.InputImage:
			images = append(images, input.Payload)
		case domain.InputVideo:
			videos = append(videos, input.Payload)
		}
	}
	// Connected text drives the prompt; the node's own stored prompt is
	// the fallback when nothing is wired in.
	if prompt == "" {
		prompt = domain.Prompt(node)
	}

	// A first+last-frame request with a single connected image degrades
	// to first-frame rather than failing.
	if mode == domain.ModeFirstLastFrame && len(images) == 1 {
		mode = domain.ModeFirstFrame
	}

	if mode.RequiresPrompt() && prompt == "" {
		return domain.SubmitPayload{}, domain.NewValidationError("a prompt is required for this mode", map[string]interface{}{"mode": mode})
	}
	if min := mode.MinImages(); len(images) < min {
		return domain.SubmitPayload{}, domain.NewValidationError(
			fmt.Sprintf("this mode needs at least %d connected image(s)", min),
			map[string]interface{}{"mode": mode, "connected": len(images)},
		)
	}

	return domain.SubmitPayload{
		NodeID:          node.ID,
		Kind:            node.Kind,
		Mode:            mode,
		Prompt:          prompt,
		Ratio:           domain.Ratio(node),
		Duration:        domain.Duration(node),
		ModelID:         dataStringOf(node, domain.DataModelID),
		ReferenceImages: images,
		ReferenceVideos: videos,
	}, nil
}

func startNotice(nodeID string, charge domain.ChargeInfo) domain.Notice {
	notice := domain.Notice{
		Kind:      domain.NoticeJobStarted,
		Level:     domain.NoticeSuccess,
		NodeID:    nodeID,
		Message:   "generation started",
		EmittedAt: time.Now(),
	}
	switch {
	case charge.FreeUsage:
		notice.Message = fmt.Sprintf("generation started, %d free use(s) left today", charge.FreeUsageRemaining)
	case charge.CreditsCharged > 0:
		notice.Message = fmt.Sprintf("generation started, %d credit(s) charged", charge.CreditsCharged)
	}
	return notice
}

func dataStringOf(node *domain.Node, key string) string {
	if node.DurableData == nil {
		return ""
	}
	s, _ := node.DurableData[key].(string)
	return s
}
