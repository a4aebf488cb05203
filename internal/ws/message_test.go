package ws

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

func TestNewAlertMessage(t *testing.T) {
	age := 29
	event := &pipeline.AlertEvent{
		ID: "e1", CameraID: "cam1", CameraName: "Front",
		IdentityID: "alice", IdentityName: "Alice",
		Similarity: 0.87, Age: &age, Gender: "Female",
		Timestamp: time.Now(), FrameSeq: 12,
		FrameData: []byte{0xFF, 0xD8, 0xFF, 0xD9},
	}

	msg := NewAlertMessage(event)

	assert.Equal(t, "alert", msg.Type)
	assert.Equal(t, "alice", msg.IdentityID)
	assert.Equal(t, base64.StdEncoding.EncodeToString(event.FrameData), msg.Frame)
}

func TestNewAlertMessageWithoutFrame(t *testing.T) {
	msg := NewAlertMessage(&pipeline.AlertEvent{ID: "e1", IdentityName: "Unknown"})
	assert.Empty(t, msg.Frame)
}

func TestNewStatusMessage(t *testing.T) {
	update := pipeline.StatusUpdate{
		CameraID: "cam1", Status: pipeline.StatusDegraded,
		Reason: "stream interrupted", Timestamp: time.Now(),
	}

	msg := NewStatusMessage(update)

	assert.Equal(t, "camera_status", msg.Type)
	assert.Equal(t, pipeline.StatusDegraded, msg.Status)
	assert.Equal(t, "stream interrupted", msg.Reason)
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	assert.Zero(t, hub.ClientCount())

	// Broadcasting to nobody must not panic
	hub.BroadcastAlert(NewAlertMessage(&pipeline.AlertEvent{ID: "e1"}))
	hub.BroadcastStatus(NewStatusMessage(pipeline.StatusUpdate{CameraID: "cam1"}))
	hub.CloseAll()
}
