package resolver

import (
	"testing"

	"github.com/eleven-am/loom/internal/adapters/graph"
	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolicy(t *testing.T) (*Policy, *graph.Store, *mocks.NoticeRecorder) {
	t.Helper()
	store := graph.NewStore(testLogger())
	recorder := &mocks.NoticeRecorder{}
	policy := NewPolicy(store, recorder, domain.ResolutionConfig{DefaultMaxReference: 7}, testLogger())
	return policy, store, recorder
}

func TestCanAdmit_RejectsSecondText(t *testing.T) {
	policy, store, _ := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "gen", Kind: domain.KindVideo},
		{ID: "t1", Kind: domain.KindTextPreview, DurableData: map[string]interface{}{domain.DataText: "one"}},
		{ID: "t2", Kind: domain.KindTextPreview, DurableData: map[string]interface{}{domain.DataText: "two"}},
	}))
	connect(t, store, "e-1", "t1", "gen")

	assert.False(t, policy.CanAdmit(&domain.Edge{ID: "e-2", SourceID: "t2", TargetID: "gen"}))
}

func TestCanAdmit_RejectsVideoOutsideEditMode(t *testing.T) {
	policy, store, _ := newTestPolicy(t)

	clip := &domain.Node{
		ID:          "clip",
		Kind:        domain.KindVideoPreview,
		DurableData: map[string]interface{}{domain.DataVideoURL: "https://cdn/clip.mp4"},
	}
	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "gen", Kind: domain.KindVideo},
		{ID: "edit", Kind: domain.KindEditing},
		clip,
	}))

	assert.False(t, policy.CanAdmit(&domain.Edge{ID: "e-1", SourceID: "clip", TargetID: "gen"}))
	assert.True(t, policy.CanAdmit(&domain.Edge{ID: "e-2", SourceID: "clip", TargetID: "edit"}))
}

func TestCanAdmit_EnforcesModeImageCap(t *testing.T) {
	policy, store, _ := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "gen", Kind: domain.KindVideo, DurableData: map[string]interface{}{domain.DataMode: "first-frame"}},
		imageNode("a", "https://cdn/a.png"),
		imageNode("b", "https://cdn/b.png"),
	}))

	require.True(t, policy.CanAdmit(&domain.Edge{ID: "e-a", SourceID: "a", TargetID: "gen"}))
	connect(t, store, "e-a", "a", "gen")

	assert.False(t, policy.CanAdmit(&domain.Edge{ID: "e-b", SourceID: "b", TargetID: "gen"}))
}

func TestCanAdmit_UnconfiguredSourceAlwaysAdmitted(t *testing.T) {
	policy, store, _ := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "gen", Kind: domain.KindVideo, DurableData: map[string]interface{}{domain.DataMode: "first-frame"}},
		imageNode("a", "https://cdn/a.png"),
		{ID: "upload", Kind: domain.KindUpload},
	}))
	connect(t, store, "e-a", "a", "gen")

	assert.True(t, policy.CanAdmit(&domain.Edge{ID: "e-up", SourceID: "upload", TargetID: "gen"}))
}

func TestCanAdmit_NonGeneratorTarget(t *testing.T) {
	policy, store, _ := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "preview", Kind: domain.KindImagePreview},
		imageNode("a", "https://cdn/a.png"),
	}))

	assert.False(t, policy.CanAdmit(&domain.Edge{ID: "e-a", SourceID: "a", TargetID: "preview"}))
}

func TestReconcileEdges_PrunesExcessAndNotifies(t *testing.T) {
	policy, store, recorder := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "gen", Kind: domain.KindVideo, DurableData: map[string]interface{}{domain.DataMode: "first-frame"}},
		imageNode("a", "https://cdn/a.png"),
		imageNode("b", "https://cdn/b.png"),
		imageNode("c", "https://cdn/c.png"),
	}))
	connect(t, store, "e-a", "a", "gen")
	connect(t, store, "e-b", "b", "gen")
	connect(t, store, "e-c", "c", "gen")

	removed, err := policy.ReconcileEdges("gen")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e-b", "e-c"}, removed)

	edges := store.GetEdges()
	require.Len(t, edges, 1)
	assert.Equal(t, "e-a", edges[0].ID)

	pruned := recorder.ByKind(domain.NoticeEdgesPruned)
	require.Len(t, pruned, 1)
	assert.Equal(t, "gen", pruned[0].NodeID)
}

func TestReconcileEdges_Idempotent(t *testing.T) {
	policy, store, recorder := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "gen", Kind: domain.KindVideo, DurableData: map[string]interface{}{domain.DataMode: "first-frame"}},
		imageNode("a", "https://cdn/a.png"),
		imageNode("b", "https://cdn/b.png"),
	}))
	connect(t, store, "e-a", "a", "gen")
	connect(t, store, "e-b", "b", "gen")

	removed, err := policy.ReconcileEdges("gen")
	require.NoError(t, err)
	assert.Len(t, removed, 1)

	removed, err = policy.ReconcileEdges("gen")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, recorder.ByKind(domain.NoticeEdgesPruned), 1)
}

func TestReconcileEdges_KeepsImagesInTextMode(t *testing.T) {
	policy, store, recorder := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "gen", Kind: domain.KindVideo},
		imageNode("img", "https://cdn/ref.png"),
	}))
	connect(t, store, "e-img", "img", "gen")

	removed, err := policy.ReconcileEdges("gen")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, store.GetEdges(), 1)
	assert.Empty(t, recorder.ByKind(domain.NoticeEdgesPruned))

	// Connecting further images is also tolerated while in text mode.
	assert.True(t, policy.CanAdmit(&domain.Edge{ID: "e-2", SourceID: "img", TargetID: "gen"}))
}

func TestReconcileEdges_KeepsVideoInEditMode(t *testing.T) {
	policy, store, _ := newTestPolicy(t)

	require.NoError(t, store.AddNodes([]*domain.Node{
		{ID: "edit", Kind: domain.KindEditing},
		{ID: "clip", Kind: domain.KindVideoPreview, DurableData: map[string]interface{}{domain.DataVideoURL: "https://cdn/clip.mp4"}},
	}))
	connect(t, store, "e-clip", "clip", "edit")

	removed, err := policy.ReconcileEdges("edit")
	require.NoError(t, err)
	assert.Empty(t, removed)
}
