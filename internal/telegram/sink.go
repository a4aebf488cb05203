package telegram

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

// sinkBuffer bounds the notification queue. Telegram round trips are
// slow; alerts beyond this backlog are dropped rather than delaying the
// pipeline.
const sinkBuffer = 32

// Sink delivers alert events to Telegram asynchronously. Implements
// pipeline.EventSink.
type Sink struct {
	bot       *Bot
	events    chan *pipeline.AlertEvent
	closeOnce sync.Once
	done      chan struct{}
}

// NewSink starts the delivery goroutine
func NewSink(bot *Bot) *Sink {
	s := &Sink{
		bot:    bot,
		events: make(chan *pipeline.AlertEvent, sinkBuffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish queues an alert for delivery without blocking
func (s *Sink) Publish(event *pipeline.AlertEvent) {
	if !s.bot.IsEnabled() {
		return
	}
	select {
	case s.events <- event:
	default:
		log.Printf("[Telegram] notification queue full, dropping alert %s", event.ID)
	}
}

// Close stops the delivery goroutine after draining queued alerts
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *Sink) run() {
	defer close(s.done)
	for event := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.send(ctx, event)
		cancel()
		if err != nil {
			log.Printf("[Telegram] failed to deliver alert %s: %v", event.ID, err)
		}
	}
}

func (s *Sink) send(ctx context.Context, event *pipeline.AlertEvent) error {
	message := formatAlert(event)
	if len(event.FrameData) > 0 {
		return s.bot.SendPhoto(ctx, event.FrameData, message)
	}
	return s.bot.SendMessage(ctx, message)
}

// formatAlert builds the notification caption
func formatAlert(event *pipeline.AlertEvent) string {
	zoneName, _ := event.Timestamp.Zone()

	var header string
	if event.IdentityID != "" {
		header = "🚨 <b>Face Recognized!</b>"
	} else {
		header = "❓ <b>Unknown Face Detected!</b>"
	}

	message := fmt.Sprintf(
		"%s\n\n"+
			"👤 Name: %s\n"+
			"📹 Camera: %s\n"+
			"🕐 Time: %s %s",
		header,
		event.IdentityName,
		event.CameraName,
		event.Timestamp.Format("2 Jan 2006, 15:04:05"), zoneName,
	)

	if event.IdentityID != "" {
		message += fmt.Sprintf("\n🎯 Confidence: %.0f%%", event.Similarity*100)
	}
	if event.Age != nil {
		message += fmt.Sprintf("\n🎂 Age: ~%d", *event.Age)
	}
	if event.Gender != "" {
		message += fmt.Sprintf("\n⚧ Gender: %s", event.Gender)
	}
	return message
}

var _ pipeline.EventSink = (*Sink)(nil)
