package domain

import "strings"

// AspectRatio enumerates the frame shapes the video model accepts.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
)

// ParseAspectRatio validates a wire-format aspect ratio. An empty value
// selects landscape, matching the original API default.
func ParseAspectRatio(s string) (AspectRatio, bool) {
	switch AspectRatio(strings.TrimSpace(s)) {
	case "":
		return AspectLandscape, true
	case AspectLandscape:
		return AspectLandscape, true
	case AspectPortrait:
		return AspectPortrait, true
	case AspectSquare:
		return AspectSquare, true
	default:
		return "", false
	}
}

// GenerationRequest is the accepted, immutable input of one pipeline run.
type GenerationRequest struct {
	Prompt      string
	AspectRatio AspectRatio
	Enhance     bool
}

// EnhancedPrompt records what the generation model was actually asked for.
// Enhanced equals Original when enhancement was skipped or fell back.
type EnhancedPrompt struct {
	Original     string
	Enhanced     string
	UsedFallback bool
}

// JobState enumerates remote job lifecycle states.
type JobState string

const (
	JobSubmitted JobState = "SUBMITTED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
	JobTimedOut  JobState = "TIMED_OUT"
)

// Terminal reports whether no further state transition can occur.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimedOut
}

// Job is the local view of a remote generation operation. ID is opaque and
// assigned by the remote service; ResultRef is populated only on success and
// points at a transient remote file that must be persisted promptly.
type Job struct {
	ID        string
	State     JobState
	ResultRef string
	Error     string
}

// StorageBackend names the destination an artifact was persisted to.
type StorageBackend string

const (
	BackendCDN   StorageBackend = "cdn"
	BackendLocal StorageBackend = "local"
)

// StoredArtifact describes the persisted video. Created once per succeeded
// job and immutable thereafter.
type StoredArtifact struct {
	URI      string
	Backend  StorageBackend
	Bytes    int64
	Filename string
}

// GenerationResult aggregates everything one pipeline run produced. It is
// owned exclusively by the invocation that built it.
type GenerationResult struct {
	Prompt   EnhancedPrompt
	Job      Job
	Artifact StoredArtifact
}

// CloudVideo is one entry of the storage backend's listing.
type CloudVideo struct {
	PublicID  string  `json:"public_id"`
	SecureURL string  `json:"secure_url"`
	Format    string  `json:"format,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Bytes     int64   `json:"bytes,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Filename  string  `json:"filename"`
}
