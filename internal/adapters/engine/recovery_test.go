package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recoveryFixture struct {
	*lifecycleFixture
	reconciler *Reconciler
}

func newRecoveryFixture(t *testing.T) *recoveryFixture {
	t.Helper()
	f := newLifecycleFixture(t)
	materializer := NewMaterializer(f.store, f.ledger, domain.MaterializerConfig{
		PreviewWidth:  400,
		DefaultHeight: 300,
		SpacingX:      200,
		SpacingY:      100,
	}, testLogger())
	reconciler := NewReconciler(f.store, f.jobs, materializer, f.manager, f.recorder, testLogger())
	return &recoveryFixture{lifecycleFixture: f, reconciler: reconciler}
}

func TestReconcile_CompletedJobRecoveredOnMount(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataJobID: "job-1"})

	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(&domain.Job{ID: "job-1", Status: domain.JobStatusSuccess, ResultURL: "https://cdn/out.mp4"}, nil).Once()
	f.jobs.On("AcknowledgeMaterialized", mock.Anything, "job-1").Return(nil).Once()
	f.ledger.On("IsSuppressed", "job-1", "gen").Return(false, nil)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	node, _ := f.store.GetNode("gen")
	assert.Empty(t, domain.JobID(node))
	assert.Len(t, f.store.GetNodes(), 2)
	assert.Len(t, f.recorder.ByKind(domain.NoticeJobSucceeded), 1)
	f.jobs.AssertExpectations(t)
}

func TestReconcile_Converges(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataJobID: "job-1"})

	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(&domain.Job{ID: "job-1", Status: domain.JobStatusSuccess, ResultURL: "https://cdn/out.mp4"}, nil).Once()
	f.jobs.On("AcknowledgeMaterialized", mock.Anything, "job-1").Return(nil).Once()
	f.jobs.On("GetPendingMaterializations", mock.Anything, "gen").Return(nil, nil)
	f.ledger.On("IsSuppressed", "job-1", "gen").Return(false, nil)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))
	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	// Second pass finds no handle and a clean backlog; nothing new appears.
	assert.Len(t, f.store.GetNodes(), 2)
	assert.Len(t, f.recorder.ByKind(domain.NoticeJobSucceeded), 1)
}

func TestReconcile_DownstreamResultShortCircuits(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataJobID: "job-1"})
	require.NoError(t, f.store.AddNodes([]*domain.Node{{
		ID:          "preview-old",
		Kind:        domain.KindVideoPreview,
		DurableData: map[string]interface{}{domain.DataVideoURL: "https://cdn/out.mp4"},
	}}))
	require.NoError(t, f.store.AddEdges([]*domain.Edge{{ID: "e-old", SourceID: "gen", TargetID: "preview-old"}}))

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	node, _ := f.store.GetNode("gen")
	assert.Empty(t, domain.JobID(node))
	f.jobs.AssertNotCalled(t, "GetJobStatus", mock.Anything, mock.Anything)
}

func TestReconcile_AdoptsInFlightJob(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataJobID: "job-1"})

	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(&domain.Job{ID: "job-1", Status: domain.JobStatusProcessing, Progress: 30}, nil).Once()
	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(&domain.Job{ID: "job-1", Status: domain.JobStatusSuccess, ResultURL: "https://cdn/out.mp4"}, nil)
	f.jobs.On("AcknowledgeMaterialized", mock.Anything, "job-1").Return(nil)
	f.ledger.On("IsSuppressed", "job-1", "gen").Return(false, nil)
	f.billing.On("RefreshBalance").Return()

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))
	assert.NotEqual(t, domain.RunIdle, f.manager.State("gen").Status)

	f.awaitStatus(t, "gen", domain.RunSucceeded)
	node, _ := f.store.GetNode("gen")
	assert.Empty(t, domain.JobID(node))
}

func TestReconcile_OrphanFlagAdoptsActiveJob(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataGenerating: true})

	f.jobs.On("GetActiveJobForNode", mock.Anything, "gen").
		Return(&domain.Job{ID: "job-9", Status: domain.JobStatusProcessing, Progress: 70}, nil).Once()
	f.jobs.On("GetJobStatus", mock.Anything, "job-9").
		Return(&domain.Job{ID: "job-9", Status: domain.JobStatusProcessing, Progress: 70}, nil)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	node, _ := f.store.GetNode("gen")
	assert.Equal(t, "job-9", domain.JobID(node))
	assert.Equal(t, domain.RunProcessing, f.manager.State("gen").Status)
}

func TestReconcile_OrphanFlagClearedWhenNothingRuns(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataGenerating: true})

	f.jobs.On("GetActiveJobForNode", mock.Anything, "gen").Return(nil, nil).Once()
	f.jobs.On("GetPendingMaterializations", mock.Anything, "gen").Return(nil, nil).Once()

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	node, _ := f.store.GetNode("gen")
	assert.False(t, domain.Orphaned(node))
	assert.Equal(t, domain.RunIdle, f.manager.State("gen").Status)
}

func TestReconcile_PendingSweepRestoresResults(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", nil)

	f.jobs.On("GetPendingMaterializations", mock.Anything, "gen").
		Return([]*domain.Job{
			{ID: "job-a", Status: domain.JobStatusSuccess, ResultURL: "https://cdn/a.mp4"},
			{ID: "job-b", Status: domain.JobStatusSuccess, ResultURL: "https://cdn/b.mp4"},
		}, nil).Once()
	f.jobs.On("AcknowledgeMaterialized", mock.Anything, "job-a").Return(nil).Once()
	f.jobs.On("AcknowledgeMaterialized", mock.Anything, "job-b").Return(nil).Once()
	f.ledger.On("IsSuppressed", "job-a", "gen").Return(false, nil)
	f.ledger.On("IsSuppressed", "job-b", "gen").Return(false, nil)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))
	assert.Len(t, f.store.GetNodes(), 3)
	f.jobs.AssertExpectations(t)
}

func TestReconcile_SuppressedPendingJobStillAcknowledged(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", nil)

	f.jobs.On("GetPendingMaterializations", mock.Anything, "gen").
		Return([]*domain.Job{{ID: "job-a", Status: domain.JobStatusSuccess, ResultURL: "https://cdn/a.mp4"}}, nil).Once()
	f.jobs.On("AcknowledgeMaterialized", mock.Anything, "job-a").Return(nil).Once()
	f.ledger.On("IsSuppressed", "job-a", "gen").Return(true, nil)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))
	assert.Len(t, f.store.GetNodes(), 1)
	f.jobs.AssertExpectations(t)
}

func TestReconcile_SuppressedSuccessClearsHandleWithoutResults(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataJobID: "job-1"})

	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(&domain.Job{ID: "job-1", Status: domain.JobStatusSuccess, ResultURL: "https://cdn/out.mp4"}, nil).Once()
	f.jobs.On("AcknowledgeMaterialized", mock.Anything, "job-1").Return(nil).Once()
	f.ledger.On("IsSuppressed", "job-1", "gen").Return(true, nil)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	node, _ := f.store.GetNode("gen")
	assert.Empty(t, domain.JobID(node))
	assert.Len(t, f.store.GetNodes(), 1)
}

func TestReconcile_RemoteFailureWhileAway(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataJobID: "job-1"})

	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(&domain.Job{ID: "job-1", Status: domain.JobStatusFailure, ErrorMessage: "content policy"}, nil).Once()

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	node, _ := f.store.GetNode("gen")
	assert.Empty(t, domain.JobID(node))

	failures := f.recorder.ByKind(domain.NoticeJobFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, "content policy", failures[0].Message)
}

func TestReconcile_ExpiredJobClearsSilently(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataJobID: "job-1"})

	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(nil, errors.New("job not found")).Once()

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	node, _ := f.store.GetNode("gen")
	assert.Empty(t, domain.JobID(node))
	assert.Empty(t, f.recorder.Notices())
}

func TestReconcile_IgnoresNonGenerators(t *testing.T) {
	f := newRecoveryFixture(t)
	require.NoError(t, f.store.AddNodes([]*domain.Node{{
		ID:          "preview",
		Kind:        domain.KindVideoPreview,
		DurableData: map[string]interface{}{domain.DataJobID: "job-1"},
	}}))

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "preview"))
	f.jobs.AssertNotCalled(t, "GetJobStatus", mock.Anything, mock.Anything)
	f.jobs.AssertNotCalled(t, "GetActiveJobForNode", mock.Anything, mock.Anything)
}

func TestReconcile_UnknownNode(t *testing.T) {
	f := newRecoveryFixture(t)
	err := f.reconciler.Reconcile(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

// Guards against the adoption path re-running a poll loop that Submit
// already owns.
func TestReconcile_DoesNotDisturbLiveSession(t *testing.T) {
	f := newRecoveryFixture(t)
	f.addGenerator(t, "gen", map[string]interface{}{domain.DataPrompt: "a red fox"})

	f.jobs.On("SubmitJob", mock.Anything, mock.Anything).
		Return("job-1", domain.ChargeInfo{}, nil).Once()
	f.jobs.On("GetJobStatus", mock.Anything, "job-1").
		Return(&domain.Job{ID: "job-1", Status: domain.JobStatusPending}, nil)

	require.NoError(t, f.manager.Submit(context.Background(), "gen"))
	require.NoError(t, f.reconciler.Reconcile(context.Background(), "gen"))

	assert.Equal(t, domain.RunProcessing, f.manager.State("gen").Status)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, domain.RunProcessing, f.manager.State("gen").Status)
}
