package loom

import (
	"errors"
	"log/slog"
	"time"

	"github.com/eleven-am/loom/internal/domain"
	"github.com/eleven-am/loom/internal/ports"
)

// Node is a vertex in the generation graph: either a generation producer
// or a passive asset/preview holder.
type Node = domain.Node

// Edge is a directed, optionally handle-qualified connection between two
// nodes.
type Edge = domain.Edge

// Job is the remote generation unit, referenced by an opaque id.
type Job = domain.Job

// JobStatus is the remote job state as reported by the backend.
type JobStatus = domain.JobStatus

const (
	JobStatusPending    = domain.JobStatusPending
	JobStatusProcessing = domain.JobStatusProcessing
	JobStatusSuccess    = domain.JobStatusSuccess
	JobStatusFailure    = domain.JobStatusFailure
	JobStatusNotFound   = domain.JobStatusNotFound
)

// Mode is a node's generation mode, constraining its input set.
type Mode = domain.Mode

const (
	ModeTextToResult   = domain.ModeTextToResult
	ModeFirstFrame     = domain.ModeFirstFrame
	ModeLastFrame      = domain.ModeLastFrame
	ModeFirstLastFrame = domain.ModeFirstLastFrame
	ModeMultiReference = domain.ModeMultiReference
	ModeEdit           = domain.ModeEdit
)

// NodeKind identifies a node family.
type NodeKind = domain.NodeKind

const (
	KindImage       = domain.KindImage
	KindVideo       = domain.KindVideo
	KindEditing     = domain.KindEditing
	KindStoryboard  = domain.KindStoryboard
	KindCharacter   = domain.KindCharacter
	KindAudioDesign = domain.KindAudioDesign

	KindUpload        = domain.KindUpload
	KindAssetSelector = domain.KindAssetSelector
	KindText          = domain.KindText

	KindImagePreview = domain.KindImagePreview
	KindVideoPreview = domain.KindVideoPreview
	KindAudioPreview = domain.KindAudioPreview
	KindTextPreview  = domain.KindTextPreview
)

// ResolvedInput is one typed input produced by a resolution pass.
type ResolvedInput = domain.ResolvedInput

// SubmitPayload is the job request the backend receives.
type SubmitPayload = domain.SubmitPayload

// ChargeInfo reports how a submission was paid for.
type ChargeInfo = domain.ChargeInfo

// SuppressionEntry records a dismissed result by task id, source node id,
// or both.
type SuppressionEntry = domain.SuppressionEntry

// Notice is a transient user-facing message emitted by the engine.
type Notice = domain.Notice

// NodeState is the read-only lifecycle projection exposed to the UI.
type NodeState = ports.NodeState

// RunStatus enumerates the local state machine's states.
type RunStatus = domain.RunStatus

const (
	RunIdle       = domain.RunIdle
	RunSubmitting = domain.RunSubmitting
	RunProcessing = domain.RunProcessing
	RunSucceeded  = domain.RunSucceeded
	RunFailed     = domain.RunFailed
	RunTimedOut   = domain.RunTimedOut
)

// GraphStore is the snapshot store collaborator the engine operates on.
type GraphStore = ports.GraphStore

// JobAPI is the remote job store collaborator.
type JobAPI = ports.JobAPI

// Billing triggers fire-and-forget balance refreshes.
type Billing = ports.Billing

// EngineConfig tunes polling, resolution caps, and materializer geometry.
type EngineConfig = domain.EngineConfig

// PollConfig tunes poll intervals, attempt ceilings, and transport backoff.
type PollConfig = domain.PollConfig

// Config assembles an Engine.
type Config struct {
	// Graph is the snapshot store; nil creates an in-memory store.
	Graph GraphStore

	// Jobs is required: the remote job API collaborator.
	Jobs JobAPI

	// Billing is required: balance refresh hook after charges and
	// refunds.
	Billing Billing

	// Suppression overrides the built-in badger ledger; nil opens one at
	// LedgerPath (in-memory when the path is empty).
	Suppression ports.SuppressionLedger
	LedgerPath  string

	// SuppressionTTL bounds how long dismissals are honored; zero keeps
	// them until explicitly cleared.
	SuppressionTTL time.Duration

	Engine EngineConfig
	Logger *slog.Logger
}

func (c Config) validate() error {
	if c.Jobs == nil {
		return errors.New("loom: Config.Jobs is required")
	}
	if c.Billing == nil {
		return errors.New("loom: Config.Billing is required")
	}
	return nil
}
