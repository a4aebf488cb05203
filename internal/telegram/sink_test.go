package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

func TestFormatAlertKnownIdentity(t *testing.T) {
	age := 52
	event := &pipeline.AlertEvent{
		CameraName: "Front Door", IdentityID: "alice", IdentityName: "Alice",
		Similarity: 0.873, Age: &age, Gender: "Female",
		Timestamp: time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC),
	}

	msg := formatAlert(event)

	assert.Contains(t, msg, "Face Recognized")
	assert.Contains(t, msg, "Alice")
	assert.Contains(t, msg, "Front Door")
	assert.Contains(t, msg, "Confidence: 87%")
	assert.Contains(t, msg, "Age: ~52")
	assert.Contains(t, msg, "Gender: Female")
}

func TestFormatAlertUnknownFace(t *testing.T) {
	event := &pipeline.AlertEvent{
		CameraName: "Back Yard", IdentityName: pipeline.UnknownIdentityName,
		Similarity: 0.3, Timestamp: time.Now(),
	}

	msg := formatAlert(event)

	assert.Contains(t, msg, "Unknown Face Detected")
	assert.Contains(t, msg, "Unknown")
	assert.NotContains(t, msg, "Confidence")
}

func TestSinkSkipsWhenDisabled(t *testing.T) {
	bot := NewBot(Config{Enabled: false})
	sink := NewSink(bot)
	defer sink.Close()

	// Publishing while disabled must not queue or block
	sink.Publish(&pipeline.AlertEvent{ID: "e1"})
	assert.Empty(t, sink.events)
}

func TestBotDisabledErrors(t *testing.T) {
	bot := NewBot(Config{Enabled: false})

	err := bot.SendMessage(context.Background(), "hi")
	assert.Error(t, err)
}

func TestBotUpdateConfig(t *testing.T) {
	bot := NewBot(Config{Enabled: false})
	assert.False(t, bot.IsEnabled())

	bot.UpdateConfig(Config{Enabled: true, BotToken: "t", ChatID: "c"})
	assert.True(t, bot.IsEnabled())

	bot.SetEnabled(false)
	assert.False(t, bot.IsEnabled())
}
