package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Channel identifies which capture source a piece of audio or text came from.
type Channel string

const (
	// ChannelInput is the microphone.
	ChannelInput Channel = "input"
	// ChannelOutput is the system / output audio.
	ChannelOutput Channel = "output"
)

// Label returns the rendered transcript label for the channel.
func (c Channel) Label() string {
	switch c {
	case ChannelInput:
		return "MICROPHONE"
	case ChannelOutput:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelInput || c == ChannelOutput
}

// RecordingType describes the capture topology.
type RecordingType string

const (
	RecordingTypeSingle    RecordingType = "single"
	RecordingTypeDual      RecordingType = "dual"
	RecordingTypeSegmented RecordingType = "segmented"
)

// AudioFile is one uploaded audio artifact. Immutable once stored.
type AudioFile struct {
	Path         string    `json:"path" validate:"required"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size" validate:"gte=0"`
	MimeType     string    `json:"mimeType"`
	Channel      Channel   `json:"channel" validate:"required,oneof=input output"`
	SegmentIndex int       `json:"segmentIndex"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// AudioFiles is a JSONB column of audio artifacts.
type AudioFiles []AudioFile

func (a AudioFiles) Value() (driver.Value, error) { return jsonValue(a) }

func (a *AudioFiles) Scan(src any) error { return scanJSON(src, a) }

// ByChannel returns the first artifact captured on the given channel.
func (a AudioFiles) ByChannel(ch Channel) (AudioFile, bool) {
	for _, f := range a {
		if f.Channel == ch {
			return f, true
		}
	}
	return AudioFile{}, false
}

// TotalSize sums the byte size of every artifact.
func (a AudioFiles) TotalSize() int64 {
	var n int64
	for _, f := range a {
		n += f.Size
	}
	return n
}

// StringList is a JSONB column of ids.
type StringList []string

func (s StringList) Value() (driver.Value, error) { return jsonValue(s) }

func (s *StringList) Scan(src any) error { return scanJSON(src, s) }

// Contains reports whether id is present.
func (s StringList) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// RecordingMetadata aggregates capture information for a recording or parent session.
type RecordingMetadata struct {
	Duration         float64       `json:"duration"`
	SegmentCount     int           `json:"segmentCount"`
	TotalSegments    int           `json:"totalSegments"`
	CurrentSegment   int           `json:"currentSegment"`
	HasInputAudio    bool          `json:"hasInputAudio"`
	HasOutputAudio   bool          `json:"hasOutputAudio"`
	Sources          []Channel     `json:"sources"`
	RecordingType    RecordingType `json:"recordingType"`
	TotalFileSize    int64         `json:"totalFileSize"`
	SessionStartTime *time.Time    `json:"sessionStartTime,omitempty"`
	SessionEndTime   *time.Time    `json:"sessionEndTime,omitempty"`
}

func (m RecordingMetadata) Value() (driver.Value, error) { return jsonValue(m) }

func (m *RecordingMetadata) Scan(src any) error { return scanJSON(src, m) }

// Recording is one capture attempt, or one chunk of a segmented capture.
//
// Parent and chunk reference each other only by id. ChunkRecordingIDs is
// resolved through storage at read time; nothing here owns another Recording.
type Recording struct {
	ID                string            `gorm:"type:varchar(36);primaryKey"                    json:"id"`
	UserID            string            `gorm:"type:varchar(64);not null;index:idx_rec_user"   json:"userId"`
	SessionID         string            `gorm:"type:varchar(64);index:idx_rec_session"         json:"sessionId"`
	ParentSessionID   string            `gorm:"type:varchar(64);index:idx_rec_parent_session"  json:"parentSessionId,omitempty"`
	ParentRecordingID string            `gorm:"type:varchar(36)"                               json:"parentRecordingId,omitempty"`
	IsParentSession   bool              `gorm:"default:false;index:idx_rec_user"               json:"isParentSession"`
	ChunkRecordingIDs StringList        `gorm:"type:jsonb;default:'[]'"                        json:"chunkRecordingIds,omitempty"`
	Status            Status            `gorm:"type:varchar(20);not null;index:idx_rec_status" json:"status"`
	AudioFiles        AudioFiles        `gorm:"type:jsonb;default:'[]'"                        json:"audioFiles"`
	TranscriptID      string            `gorm:"type:varchar(36)"                               json:"transcriptId,omitempty"`
	Metadata          RecordingMetadata `gorm:"type:jsonb"                                     json:"metadata"`
	Error             string            `gorm:"type:text"                                      json:"error,omitempty"`
	RetryCount        int               `gorm:"default:0"                                      json:"retryCount"`
	LastRetryAt       *time.Time        `json:"lastRetryAt,omitempty"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	AudioDeletedAt    *time.Time        `json:"audioDeletedAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func (Recording) TableName() string { return "recordings" }

// IsChunk reports whether the recording belongs to a parent session.
func (r *Recording) IsChunk() bool {
	return r.ParentSessionID != ""
}

// Clone returns a deep copy safe to hand across goroutines.
func (r *Recording) Clone() *Recording {
	if r == nil {
		return nil
	}
	c := *r
	c.ChunkRecordingIDs = append(StringList(nil), r.ChunkRecordingIDs...)
	c.AudioFiles = append(AudioFiles(nil), r.AudioFiles...)
	c.Metadata.Sources = append([]Channel(nil), r.Metadata.Sources...)
	return &c
}

// Segment is a timed span of transcribed text attributed to one channel.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Source  Channel `json:"source"`
	Speaker string  `json:"speaker,omitempty"`
}

// Segments is a JSONB column of segments.
type Segments []Segment

func (s Segments) Value() (driver.Value, error) { return jsonValue(s) }

func (s *Segments) Scan(src any) error { return scanJSON(src, s) }

// TranscriptMetadata summarises a persisted transcript.
type TranscriptMetadata struct {
	Duration       float64   `json:"duration"`
	SegmentCount   int       `json:"segmentCount"`
	Sources        []Channel `json:"sources"`
	HasInputAudio  bool      `json:"hasInputAudio"`
	HasOutputAudio bool      `json:"hasOutputAudio"`
	Language       string    `json:"language,omitempty"`
}

func (m TranscriptMetadata) Value() (driver.Value, error) { return jsonValue(m) }

func (m *TranscriptMetadata) Scan(src any) error { return scanJSON(src, m) }

// Transcript is the reconciled output of one successful processing attempt.
// A transcript is never edited after creation; a retry produces a new one.
type Transcript struct {
	ID                  string             `gorm:"type:varchar(36);primaryKey"                        json:"id"`
	RecordingID         string             `gorm:"type:varchar(36);not null;index:idx_tr_recording"   json:"recordingId"`
	UserID              string             `gorm:"type:varchar(64);not null"                          json:"userId"`
	Content             string             `gorm:"type:text"                                          json:"content"`
	Segments            Segments           `gorm:"type:jsonb;default:'[]'"                            json:"segments"`
	Metadata            TranscriptMetadata `gorm:"type:jsonb"                                         json:"metadata"`
	IsRetry             bool               `gorm:"default:false"                                      json:"isRetry"`
	OriginalRecordingID string             `gorm:"type:varchar(36)"                                   json:"originalRecordingId,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
}

func (Transcript) TableName() string { return "transcripts" }

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
