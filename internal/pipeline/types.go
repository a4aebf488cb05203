package pipeline

import (
	"time"
)

// CameraStatus describes the externally visible state of a camera source
type CameraStatus string

const (
	// StatusActive - the camera is connected and producing frames
	StatusActive CameraStatus = "active"
	// StatusDegraded - the camera keeps failing but retries continue
	StatusDegraded CameraStatus = "degraded"
	// StatusDisconnected - the camera is stopped or disabled
	StatusDisconnected CameraStatus = "disconnected"
)

// Rotation is the clockwise rotation applied to frames before they leave the source
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Frame represents a captured video frame.
// Frames are never mutated after creation; the stage currently holding a
// frame owns it exclusively. Dropping a frame is a valid terminal state.
type Frame struct {
	CameraID  string    // Camera identifier
	Seq       uint64    // Monotonic sequence number, survives reconnects
	Timestamp time.Time // Capture timestamp
	Data      []byte    // JPEG frame data, rotation already applied
	Width     int       // Frame width (if known)
	Height    int       // Frame height (if known)
}

// BBox represents a face bounding box in pixel coordinates
type BBox struct {
	X1 float32 `json:"x1"` // Left
	Y1 float32 `json:"y1"` // Top
	X2 float32 `json:"x2"` // Right
	Y2 float32 `json:"y2"` // Bottom
}

// DetectedFace is one face found in a frame by the inference backend.
// Immutable after creation; references exactly one frame.
type DetectedFace struct {
	CameraID   string    `json:"camera_id"`
	FrameSeq   uint64    `json:"frame_seq"`
	Timestamp  time.Time `json:"timestamp"`
	BBox       BBox      `json:"bbox"`
	Confidence float32   `json:"confidence"` // Detector confidence [0-1]
	Embedding  []float32 `json:"-"`          // Fixed dimensionality, not serialized
	Age        *int      `json:"age,omitempty"`
	Gender     string    `json:"gender,omitempty"` // "Male", "Female" or empty
}

// KnownIdentity is an enrolled identity with one or more reference embeddings.
// Read-only from the pipeline's perspective; the matcher holds identities in
// immutable snapshots that are replaced wholesale.
type KnownIdentity struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Embeddings [][]float32 `json:"-"`
}

// MatchResult pairs a detected face with the best-matching identity.
// Transient; consumed immediately by the alert throttle.
type MatchResult struct {
	Face         *DetectedFace
	IdentityID   string // Empty when unknown
	IdentityName string
	Similarity   float32 // Cosine similarity in [-1, 1]
	Known        bool    // True when similarity cleared the recognition threshold
}

// AlertEvent is the terminal output of the pipeline. Ownership passes to
// the event sinks; the pipeline never touches an event after publishing.
type AlertEvent struct {
	ID           string    `json:"id"`
	CameraID     string    `json:"camera_id"`
	CameraName   string    `json:"camera_name"`
	IdentityID   string    `json:"identity_id,omitempty"` // Empty for unknown faces
	IdentityName string    `json:"identity_name"`         // "Unknown" when not recognized
	Similarity   float32   `json:"similarity"`
	Age          *int      `json:"age,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	FrameSeq     uint64    `json:"frame_seq"`
	FrameData    []byte    `json:"-"` // Triggering frame, for screenshot sinks
}

// StatusUpdate reports a camera status transition to observers
type StatusUpdate struct {
	CameraID  string       `json:"camera_id"`
	Status    CameraStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// EventSink consumes alert events. Publish must not block the pipeline for
// more than a short bounded duration; slow consumers buffer or drop on their
// own side.
type EventSink interface {
	Publish(event *AlertEvent)
}

// StatusListener receives camera status transitions
type StatusListener interface {
	OnStatus(update StatusUpdate)
}

// UnknownIdentityName is the display name used for sub-threshold matches
const UnknownIdentityName = "Unknown"
