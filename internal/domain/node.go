package domain

import (
	"time"
)

type Node struct {
	ID          string                 `json:"id"`
	Kind        NodeKind               `json:"kind"`
	Position    Position               `json:"position"`
	Size        Size                   `json:"size"`
	DurableData map[string]interface{} `json:"durable_data,omitempty"`
}

type NodeKind string

const (
	KindImage       NodeKind = "image"
	KindVideo       NodeKind = "video"
	KindEditing     NodeKind = "editing"
	KindStoryboard  NodeKind = "storyboard"
	KindCharacter   NodeKind = "character"
	KindAudioDesign NodeKind = "audio-design"

	KindUpload        NodeKind = "upload"
	KindAssetSelector NodeKind = "asset-selector"
	KindText          NodeKind = "text"

	KindImagePreview NodeKind = "image-preview"
	KindVideoPreview NodeKind = "video-preview"
	KindAudioPreview NodeKind = "audio-preview"
	KindTextPreview  NodeKind = "text-preview"
)

// Generator reports whether nodes of this kind submit jobs, as opposed to
// holding assets or materialized previews.
func (k NodeKind) Generator() bool {
	switch k {
	case KindImage, KindVideo, KindEditing, KindStoryboard, KindCharacter, KindAudioDesign:
		return true
	}
	return false
}

// PreviewKind returns the kind of result node a generator of this kind
// materializes downstream.
func (k NodeKind) PreviewKind() NodeKind {
	switch k {
	case KindVideo, KindEditing:
		return KindVideoPreview
	case KindAudioDesign:
		return KindAudioPreview
	case KindStoryboard:
		return KindTextPreview
	default:
		return KindImagePreview
	}
}

// LongRunning kinds mirror poll progress into durable data so a reload can
// restore the progress bar; short ops skip the extra writes.
func (k NodeKind) LongRunning() bool {
	return k == KindVideo || k == KindEditing || k == KindStoryboard
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Edge struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	TargetID     string    `json:"target_id"`
	TargetHandle string    `json:"target_handle,omitempty"`
	Seq          int64     `json:"seq"`
	CreatedAt    time.Time `json:"created_at"`
}

type InputKind string

const (
	InputText  InputKind = "text"
	InputImage InputKind = "image"
	InputVideo InputKind = "video"
)

// ResolvedInput is derived per resolution pass and never persisted.
type ResolvedInput struct {
	Kind         InputKind `json:"kind"`
	Payload      string    `json:"payload"`
	OriginEdgeID string    `json:"origin_edge_id"`
}

type Asset struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}
