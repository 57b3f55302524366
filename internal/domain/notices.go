package domain

import (
	"time"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

type NoticeKind string

const (
	NoticeInputsTruncated  NoticeKind = "inputs-truncated"
	NoticeEdgesPruned      NoticeKind = "edges-pruned"
	NoticeJobStarted       NoticeKind = "job-started"
	NoticeJobSucceeded     NoticeKind = "job-succeeded"
	NoticeJobFailed        NoticeKind = "job-failed"
	NoticeJobTimedOut      NoticeKind = "job-timed-out"
	NoticePermissionDenied NoticeKind = "permission-denied"
)

// Notice is a transient user-facing message; the engine emits them and
// never retains them.
type Notice struct {
	Kind      NoticeKind             `json:"kind"`
	Level     NoticeLevel            `json:"level"`
	NodeID    string                 `json:"node_id"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	EmittedAt time.Time              `json:"emitted_at"`
}
