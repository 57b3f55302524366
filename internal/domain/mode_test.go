package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMode_ImageCap(t *testing.T) {
	assert.Equal(t, 0, ModeTextToResult.ImageCap(7))
	assert.Equal(t, 1, ModeFirstFrame.ImageCap(7))
	assert.Equal(t, 1, ModeLastFrame.ImageCap(7))
	assert.Equal(t, 2, ModeFirstLastFrame.ImageCap(7))
	assert.Equal(t, 7, ModeMultiReference.ImageCap(7))
	assert.Equal(t, 5, ModeMultiReference.ImageCap(5))
}

func TestMode_MinImages(t *testing.T) {
	assert.Equal(t, 0, ModeTextToResult.MinImages())
	assert.Equal(t, 1, ModeFirstFrame.MinImages())
	assert.Equal(t, 2, ModeFirstLastFrame.MinImages())
	assert.Equal(t, 1, ModeMultiReference.MinImages())
}

func TestMode_RequiresPrompt(t *testing.T) {
	assert.True(t, ModeTextToResult.RequiresPrompt())
	assert.True(t, ModeMultiReference.RequiresPrompt())
	assert.False(t, ModeFirstFrame.RequiresPrompt())
	assert.False(t, ModeFirstLastFrame.RequiresPrompt())
}

func TestModeOf_FallsBackByKind(t *testing.T) {
	assert.Equal(t, ModeMultiReference, ModeOf(&Node{Kind: KindImage}))
	assert.Equal(t, ModeEdit, ModeOf(&Node{Kind: KindEditing}))
	assert.Equal(t, ModeTextToResult, ModeOf(&Node{Kind: KindVideo}))

	configured := &Node{
		Kind:        KindVideo,
		DurableData: map[string]interface{}{DataMode: "first-last-frame"},
	}
	assert.Equal(t, ModeFirstLastFrame, ModeOf(configured))

	garbage := &Node{
		Kind:        KindVideo,
		DurableData: map[string]interface{}{DataMode: "bogus"},
	}
	assert.Equal(t, ModeTextToResult, ModeOf(garbage))
}

func TestJob_URLs(t *testing.T) {
	assert.Nil(t, (&Job{}).URLs())
	assert.Equal(t, []string{"u1"}, (&Job{ResultURL: "u1"}).URLs())
	assert.Equal(t, []string{"u1", "u2"}, (&Job{ResultURL: "ignored", ResultURLs: []string{"u1", "u2"}}).URLs())
}
