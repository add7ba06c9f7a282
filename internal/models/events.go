package models

// Event types published when a processing attempt ends.
const (
	EventRecordingCompleted = "recording.completed"
	EventRecordingFailed    = "recording.failed"
)

// RecordingCompleted is emitted once a transcript has been persisted and
// linked to its recording.
type RecordingCompleted struct {
	EventType     string  `json:"eventType" validate:"required,eq=recording.completed"`
	RecordingID   string  `json:"recordingId" validate:"required"`
	UserID        string  `json:"userId" validate:"required"`
	SessionID     string  `json:"sessionId,omitempty"`
	TranscriptID  string  `json:"transcriptId" validate:"required"`
	Timestamp     int64   `json:"timestamp" validate:"required"`
	SegmentCount  int     `json:"segmentCount" validate:"gte=0"`
	Duration      float64 `json:"duration" validate:"gte=0"`
	IsRetry       bool    `json:"isRetry"`
	RetryCount    int     `json:"retryCount" validate:"gte=0"`
	ParentSession bool    `json:"parentSession"`
}

// RecordingFailed is emitted when an attempt ends in the failed state.
type RecordingFailed struct {
	EventType   string `json:"eventType" validate:"required,eq=recording.failed"`
	RecordingID string `json:"recordingId" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
	SessionID   string `json:"sessionId,omitempty"`
	Timestamp   int64  `json:"timestamp" validate:"required"`
	ErrorKind   string `json:"errorKind" validate:"required"`
	Error       string `json:"error" validate:"required"`
	RetryCount  int    `json:"retryCount" validate:"gte=0"`
}
