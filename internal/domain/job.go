package domain

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusSuccess    JobStatus = "SUCCESS"
	JobStatusFailure    JobStatus = "FAILURE"
	JobStatusNotFound   JobStatus = "NOT_FOUND"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// Job mirrors the remote generation unit. The backend owns it; the engine
// only reads it and copies a subset into node durable data for recovery.
type Job struct {
	ID           string            `json:"id"`
	Status       JobStatus         `json:"status"`
	Progress     int               `json:"progress"`
	ResultURL    string            `json:"result_url,omitempty"`
	ResultURLs   []string          `json:"result_urls,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// URLs returns every result URL; batch jobs populate ResultURLs, single
// jobs only ResultURL.
func (j *Job) URLs() []string {
	if len(j.ResultURLs) > 0 {
		return j.ResultURLs
	}
	if j.ResultURL != "" {
		return []string{j.ResultURL}
	}
	return nil
}

type SubmitPayload struct {
	NodeID          string   `json:"node_id"`
	Kind            NodeKind `json:"kind"`
	Mode            Mode     `json:"mode"`
	Prompt          string   `json:"prompt,omitempty"`
	Ratio           string   `json:"ratio,omitempty"`
	Duration        int      `json:"duration,omitempty"`
	ModelID         string   `json:"model_id,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	ReferenceVideos []string `json:"reference_videos,omitempty"`
}

// ChargeInfo comes back with an accepted submission and drives the
// post-submit balance refresh and user notice.
type ChargeInfo struct {
	CreditsCharged     int  `json:"credits_charged"`
	FreeUsage          bool `json:"free_usage"`
	FreeUsageRemaining int  `json:"free_usage_remaining"`
}

// SuppressionEntry records a user dismissal; either field may be empty but
// not both.
type SuppressionEntry struct {
	TaskID       string `json:"task_id,omitempty"`
	SourceNodeID string `json:"source_node_id,omitempty"`
}

func (e SuppressionEntry) Empty() bool {
	return e.TaskID == "" && e.SourceNodeID == ""
}

// RunStatus is the local state machine projection exposed to the UI.
type RunStatus string

const (
	RunIdle       RunStatus = "idle"
	RunSubmitting RunStatus = "submitting"
	RunProcessing RunStatus = "processing"
	RunSucceeded  RunStatus = "succeeded"
	RunFailed     RunStatus = "failed"
	RunTimedOut   RunStatus = "timed_out"
)
