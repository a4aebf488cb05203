package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

// sinkBuffer bounds the write-behind queue. Publish drops when the writer
// cannot keep up; persistence lag must never stall the pipeline.
const sinkBuffer = 256

// Sink persists alert events asynchronously. It implements
// pipeline.EventSink with a single writer goroutine so sqlite sees
// serialized writes.
type Sink struct {
	store         *Store
	screenshotDir string
	events        chan *pipeline.AlertEvent
	closeOnce     sync.Once
	done          chan struct{}
}

// NewSink starts the writer goroutine. screenshotDir may be empty to skip
// saving triggering frames.
func NewSink(store *Store, screenshotDir string) *Sink {
	s := &Sink{
		store:         store,
		screenshotDir: screenshotDir,
		events:        make(chan *pipeline.AlertEvent, sinkBuffer),
		done:          make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish queues an alert for persistence without blocking
func (s *Sink) Publish(event *pipeline.AlertEvent) {
	select {
	case s.events <- event:
	default:
		log.Printf("[Store] write queue full, dropping alert %s", event.ID)
	}
}

// Close stops the writer after draining queued events
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *Sink) run() {
	defer close(s.done)
	for event := range s.events {
		framePath := s.saveFrame(event)
		rec := &AlertRecord{
			ID:           event.ID,
			CameraID:     event.CameraID,
			CameraName:   event.CameraName,
			IdentityID:   event.IdentityID,
			IdentityName: event.IdentityName,
			Similarity:   float64(event.Similarity),
			Age:          event.Age,
			Gender:       event.Gender,
			Timestamp:    event.Timestamp,
			FrameSeq:     event.FrameSeq,
			FramePath:    framePath,
		}
		if err := s.store.SaveAlert(rec); err != nil {
			log.Printf("[Store] failed to persist alert %s: %v", event.ID, err)
		}
	}
}

// saveFrame writes the triggering frame to the screenshot directory and
// returns its path, or empty when disabled or on failure
func (s *Sink) saveFrame(event *pipeline.AlertEvent) string {
	if s.screenshotDir == "" || len(event.FrameData) == 0 {
		return ""
	}
	name := fmt.Sprintf("%s_%s_%s.jpg", event.Timestamp.Format("20060102_150405"), event.CameraID, event.ID)
	path := filepath.Join(s.screenshotDir, name)
	if err := os.WriteFile(path, event.FrameData, 0o644); err != nil {
		log.Printf("[Store] failed to save screenshot %s: %v", path, err)
		return ""
	}
	return path
}

var _ pipeline.EventSink = (*Sink)(nil)
