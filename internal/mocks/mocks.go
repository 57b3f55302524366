package mocks

import (
	"context"
	"sync"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockJobAPI struct {
	mock.Mock
}

func (m *MockJobAPI) SubmitJob(ctx context.Context, payload domain.SubmitPayload) (string, domain.ChargeInfo, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Get(1).(domain.ChargeInfo), args.Error(2)
}

func (m *MockJobAPI) GetJobStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	args := m.Called(ctx, jobID)
	if job, ok := args.Get(0).(*domain.Job); ok {
		return job, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobAPI) GetActiveJobForNode(ctx context.Context, nodeID string) (*domain.Job, error) {
	args := m.Called(ctx, nodeID)
	if job, ok := args.Get(0).(*domain.Job); ok {
		return job, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobAPI) GetPendingMaterializations(ctx context.Context, nodeID string) ([]*domain.Job, error) {
	args := m.Called(ctx, nodeID)
	if jobs, ok := args.Get(0).([]*domain.Job); ok {
		return jobs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobAPI) AcknowledgeMaterialized(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

type MockBilling struct {
	mock.Mock
}

func (m *MockBilling) RefreshBalance() {
	m.Called()
}

type MockSuppressionLedger struct {
	mock.Mock
}

func (m *MockSuppressionLedger) Suppress(entry domain.SuppressionEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockSuppressionLedger) IsSuppressed(taskID, sourceNodeID string) (bool, error) {
	args := m.Called(taskID, sourceNodeID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSuppressionLedger) Clear() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSuppressionLedger) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NoticeRecorder collects published notices for assertions.
type NoticeRecorder struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (r *NoticeRecorder) Publish(notice domain.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

func (r *NoticeRecorder) Notices() []domain.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

func (r *NoticeRecorder) ByKind(kind domain.NoticeKind) []domain.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notice
	for _, n := range r.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
