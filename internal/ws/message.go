package ws

import (
	"encoding/base64"
	"time"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

// AlertMessage is an alert event broadcast to websocket clients
type AlertMessage struct {
	Type         string    `json:"type"` // "alert"
	ID           string    `json:"id"`
	CameraID     string    `json:"camera_id"`
	CameraName   string    `json:"camera_name"`
	IdentityID   string    `json:"identity_id,omitempty"`
	IdentityName string    `json:"identity_name"`
	Similarity   float32   `json:"similarity"`
	Age          *int      `json:"age,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Frame        string    `json:"frame,omitempty"` // Base64 encoded JPEG
}

// StatusMessage is a camera status broadcast
type StatusMessage struct {
	Type      string                `json:"type"` // "camera_status"
	CameraID  string                `json:"camera_id"`
	Status    pipeline.CameraStatus `json:"status"`
	Reason    string                `json:"reason,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// NewAlertMessage converts a pipeline event into its broadcast form,
// embedding the triggering frame when present
func NewAlertMessage(event *pipeline.AlertEvent) *AlertMessage {
	msg := &AlertMessage{
		Type:         "alert",
		ID:           event.ID,
		CameraID:     event.CameraID,
		CameraName:   event.CameraName,
		IdentityID:   event.IdentityID,
		IdentityName: event.IdentityName,
		Similarity:   event.Similarity,
		Age:          event.Age,
		Gender:       event.Gender,
		Timestamp:    event.Timestamp,
	}
	if len(event.FrameData) > 0 {
		msg.Frame = base64.StdEncoding.EncodeToString(event.FrameData)
	}
	return msg
}

// NewStatusMessage converts a status update into its broadcast form
func NewStatusMessage(update pipeline.StatusUpdate) *StatusMessage {
	return &StatusMessage{
		Type:      "camera_status",
		CameraID:  update.CameraID,
		Status:    update.Status,
		Reason:    update.Reason,
		Timestamp: update.Timestamp,
	}
}
