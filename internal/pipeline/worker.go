package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/inference"
)

// inferenceDegradedAfter is the number of consecutive inference failures
// for one camera before its status is reported degraded
const inferenceDegradedAfter = 3

// WorkerPool runs a fixed number of detection workers. Each worker pulls
// frames from the dispatcher, sends them to the inference backend,
// matches the resulting faces against the enrolled identities and emits
// throttled alert events. Stages never block each other: a slow backend
// only grows the dispatcher queues, which shed oldest frames per camera.
type WorkerPool struct {
	settings   *Settings
	dispatcher *FrameDispatcher
	client     inference.Client
	matcher    Matcher
	throttle   *AlertThrottle
	sink       EventSink
	listener   StatusListener
	stats      *StatsRegistry
	cameraName func(id string) string

	mu          sync.Mutex
	infFailures map[string]int // consecutive inference failures per camera

	wg sync.WaitGroup
}

// NewWorkerPool wires the processing stages together. cameraName resolves
// display names for alert events and may be nil.
func NewWorkerPool(settings *Settings, dispatcher *FrameDispatcher, client inference.Client, matcher Matcher, throttle *AlertThrottle, sink EventSink, listener StatusListener, stats *StatsRegistry, cameraName func(id string) string) *WorkerPool {
	if cameraName == nil {
		cameraName = func(id string) string { return id }
	}
	return &WorkerPool{
		settings:    settings,
		dispatcher:  dispatcher,
		client:      client,
		matcher:     matcher,
		throttle:    throttle,
		sink:        sink,
		listener:    listener,
		stats:       stats,
		cameraName:  cameraName,
		infFailures: make(map[string]int),
	}
}

// Start launches the workers. They exit when the dispatcher is closed and
// drained or when the context is canceled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.settings.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log.Printf("[Worker %d] started", id)

	for {
		frame, ok := p.dispatcher.Pop()
		if !ok {
			log.Printf("[Worker %d] dispatcher closed, exiting", id)
			return
		}
		if ctx.Err() != nil {
			return
		}

		batch := []*Frame{frame}
		for len(batch) < p.settings.BatchSize {
			next := p.dispatcher.TryPop()
			if next == nil {
				break
			}
			batch = append(batch, next)
		}

		for _, f := range batch {
			if ctx.Err() != nil {
				return
			}
			p.process(ctx, f)
		}
	}
}

// process runs one frame through detection, matching and throttling
func (p *WorkerPool) process(ctx context.Context, frame *Frame) {
	detectCtx, cancel := context.WithTimeout(ctx, p.settings.InferenceTimeout())
	faces, err := p.client.Detect(detectCtx, frame.Data)
	cancel()
	if err != nil {
		p.onInferenceFailure(frame, err)
		return
	}
	p.onInferenceSuccess(frame.CameraID)

	stats := p.stats.Camera(frame.CameraID)
	for i := range faces {
		face := &faces[i]
		// Detections below the confidence floor are discarded before any
		// matching or throttle state is touched.
		if face.Confidence < p.settings.DetectionFloor {
			continue
		}
		stats.FaceDetected()

		detected := &DetectedFace{
			CameraID:   frame.CameraID,
			FrameSeq:   frame.Seq,
			Timestamp:  frame.Timestamp,
			BBox:       BBox{X1: face.BBox[0], Y1: face.BBox[1], X2: face.BBox[2], Y2: face.BBox[3]},
			Confidence: face.Confidence,
			Embedding:  face.Embedding,
			Age:        face.Age,
			Gender:     face.Gender,
		}

		match := p.matcher.Match(detected)
		if !p.throttle.Allow(frame.CameraID, match.IdentityID) {
			stats.AlertSuppressed()
			continue
		}
		stats.AlertEmitted()
		p.sink.Publish(p.buildEvent(frame, &match))
	}
}

func (p *WorkerPool) buildEvent(frame *Frame, match *MatchResult) *AlertEvent {
	return &AlertEvent{
		ID:           uuid.New().String(),
		CameraID:     frame.CameraID,
		CameraName:   p.cameraName(frame.CameraID),
		IdentityID:   match.IdentityID,
		IdentityName: match.IdentityName,
		Similarity:   match.Similarity,
		Age:          match.Face.Age,
		Gender:       match.Face.Gender,
		Timestamp:    match.Face.Timestamp,
		FrameSeq:     frame.Seq,
		FrameData:    frame.Data,
	}
}

func (p *WorkerPool) onInferenceFailure(frame *Frame, err error) {
	p.stats.Camera(frame.CameraID).InferenceFailure()
	infErr := &InferenceError{CameraID: frame.CameraID, FrameSeq: frame.Seq, Err: err}
	log.Printf("[Worker] %v", infErr)

	p.mu.Lock()
	p.infFailures[frame.CameraID]++
	failures := p.infFailures[frame.CameraID]
	p.mu.Unlock()

	if failures == inferenceDegradedAfter && p.listener != nil {
		p.listener.OnStatus(StatusUpdate{
			CameraID:  frame.CameraID,
			Status:    StatusDegraded,
			Reason:    infErr.Error(),
			Timestamp: time.Now(),
		})
	}
}

func (p *WorkerPool) onInferenceSuccess(cameraID string) {
	p.mu.Lock()
	recovered := p.infFailures[cameraID] >= inferenceDegradedAfter
	p.infFailures[cameraID] = 0
	p.mu.Unlock()

	if recovered && p.listener != nil {
		p.listener.OnStatus(StatusUpdate{
			CameraID:  cameraID,
			Status:    StatusActive,
			Timestamp: time.Now(),
		})
	}
}
