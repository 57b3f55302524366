package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// pollSession is the owned, mutable state of one poll loop. Attempt count
// and liveness live here instead of in closures so late responses can
// check whether the loop is still wanted before touching shared state.
type pollSession struct {
	nodeID string
	jobID  string
	kind   domain.NodeKind

	attempts          int
	transportFailures int
	lastProgress      int

	alive  atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

func newPollSession(nodeID, jobID string, kind domain.NodeKind) *pollSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &pollSession{
		nodeID:       nodeID,
		jobID:        jobID,
		kind:         kind,
		lastProgress: -1,
		ctx:          ctx,
		cancel:       cancel,
	}
	s.alive.Store(true)
	return s
}

func (s *pollSession) stop() {
	s.alive.Store(false)
	s.cancel()
}

// poll re-checks the remote job at a fixed interval until a terminal
// status or the attempt ceiling. Transport errors back off inside the
// loop and never fail the job themselves.
func (m *Manager) poll(s *pollSession) {
	interval := m.config.IntervalFor(s.kind)
	maxAttempts := m.config.MaxAttemptsFor(s.kind)
	delay := interval

	for {
		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
		if !s.alive.Load() {
			return
		}

		s.attempts++
		if s.attempts > maxAttempts {
			m.handleTimeout(s)
			return
		}

		job, err := m.jobs.GetJobStatus(s.ctx, s.jobID)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.transportFailures++
			delay = interval + time.Duration(s.transportFailures)*m.config.TransportBackoff
			if delay > m.config.TransportBackoffMax {
				delay = m.config.TransportBackoffMax
			}
			m.logger.Warn("poll transport error, retrying",
				"node_id", s.nodeID,
				"job_id", s.jobID,
				"consecutive_failures", s.transportFailures,
				"error", err,
			)
			continue
		}
		s.transportFailures = 0
		delay = interval

		switch job.Status {
		case domain.JobStatusPending, domain.JobStatusProcessing:
			m.observeProgress(s, job)
		case domain.JobStatusSuccess:
			m.handleSuccess(s, job)
			return
		case domain.JobStatusFailure:
			m.handleFailure(s, job)
			return
		case domain.JobStatusNotFound:
			m.handleNotFound(s)
			return
		}
	}
}

func (m *Manager) observeProgress(s *pollSession, job *domain.Job) {
	if !s.alive.Load() {
		return
	}
	m.setState(s.nodeID, ports.NodeState{Status: domain.RunProcessing, Progress: job.Progress})

	// Progress is mirrored into durable data only for long-running kinds
	// to bound write frequency.
	if s.kind.LongRunning() && job.Progress != s.lastProgress {
		s.lastProgress = job.Progress
		if err := m.graph.MergeNodeData(s.nodeID, map[string]interface{}{
			domain.DataProgress: job.Progress,
		}); err != nil {
			m.logger.Debug("progress mirror failed", "node_id", s.nodeID, "error", err)
		}
	}
}

func (m *Manager) handleSuccess(s *pollSession, job *domain.Job) {
	if !s.alive.Load() {
		return
	}

	created, err := m.materializer.Materialize(s.nodeID, job)
	if err != nil {
		// The durable handle stays in place so the next reconciliation
		// can retry materialization.
		m.logger.Error("materialization failed", "node_id", s.nodeID, "job_id", job.ID, "error", err)
		m.removeSession(s, ports.NodeState{Status: domain.RunFailed, LastError: err.Error()})
		return
	}
	if err := m.jobs.AcknowledgeMaterialized(s.ctx, job.ID); err != nil {
		m.logger.Warn("failed to acknowledge materialization", "job_id", job.ID, "error", err)
	}

	patch := map[string]interface{}{
		domain.DataJobID:      "",
		domain.DataGenerating: false,
		domain.DataProgress:   100,
	}
	if urls := job.URLs(); len(urls) == 1 {
		patch[domain.DataResultURL] = urls[0]
	} else if len(urls) > 1 {
		patch[domain.DataResultURLs] = urls
	}
	if err := m.graph.MergeNodeData(s.nodeID, patch); err != nil {
		m.logger.Error("failed to clear job handle", "node_id", s.nodeID, "error", err)
	}

	m.billing.RefreshBalance()
	m.notices.Publish(domain.Notice{
		Kind:      domain.NoticeJobSucceeded,
		Level:     domain.NoticeSuccess,
		NodeID:    s.nodeID,
		Message:   "generation finished",
		Details:   map[string]interface{}{"created_nodes": created},
		EmittedAt: time.Now(),
	})

	m.logger.Info("job succeeded",
		"node_id", s.nodeID,
		"job_id", job.ID,
		"results", len(job.URLs()),
		"created_nodes", len(created),
	)
	m.removeSession(s, ports.NodeState{Status: domain.RunSucceeded, Progress: 100})
}

func (m *Manager) handleFailure(s *pollSession, job *domain.Job) {
	if !s.alive.Load() {
		return
	}

	if err := m.graph.MergeNodeData(s.nodeID, map[string]interface{}{
		domain.DataJobID:        "",
		domain.DataGenerating:   false,
		domain.DataProgress:     0,
		domain.DataErrorMessage: job.ErrorMessage,
	}); err != nil {
		m.logger.Error("failed to clear job handle", "node_id", s.nodeID, "error", err)
	}

	message := job.ErrorMessage
	if message == "" {
		message = "generation failed, credits were refunded, please try again"
	}
	m.notices.Publish(domain.Notice{
		Kind:      domain.NoticeJobFailed,
		Level:     domain.NoticeError,
		NodeID:    s.nodeID,
		Message:   message,
		EmittedAt: time.Now(),
	})

	// Chargeable jobs are refunded server-side; only the balance needs a
	// re-fetch here.
	m.billing.RefreshBalance()

	m.logger.Warn("job failed", "node_id", s.nodeID, "job_id", job.ID, "remote_error", job.ErrorMessage)
	m.removeSession(s, ports.NodeState{Status: domain.RunFailed, LastError: message})
}

func (m *Manager) handleTimeout(s *pollSession) {
	if !s.alive.Load() {
		return
	}

	if err := m.graph.MergeNodeData(s.nodeID, map[string]interface{}{
		domain.DataJobID:      "",
		domain.DataGenerating: false,
		domain.DataProgress:   0,
	}); err != nil {
		m.logger.Error("failed to clear job handle", "node_id", s.nodeID, "error", err)
	}

	m.notices.Publish(domain.Notice{
		Kind:      domain.NoticeJobTimedOut,
		Level:     domain.NoticeError,
		NodeID:    s.nodeID,
		Message:   "generation is taking longer than expected, reload to check for results",
		EmittedAt: time.Now(),
	})

	m.logger.Warn("poll ceiling reached", "node_id", s.nodeID, "job_id", s.jobID, "attempts", s.attempts)
	m.removeSession(s, ports.NodeState{Status: domain.RunTimedOut})
}

func (m *Manager) handleNotFound(s *pollSession) {
	if !s.alive.Load() {
		return
	}

	// The job expired or never existed; reset silently.
	if err := m.graph.MergeNodeData(s.nodeID, map[string]interface{}{
		domain.DataJobID:      "",
		domain.DataGenerating: false,
		domain.DataProgress:   0,
	}); err != nil {
		m.logger.Error("failed to clear job handle", "node_id", s.nodeID, "error", err)
	}

	m.logger.Debug("job not found, state reset", "node_id", s.nodeID, "job_id", s.jobID)
	m.removeSession(s, ports.NodeState{Status: domain.RunIdle})
}
