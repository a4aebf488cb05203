package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/inference"
)

// throttleSweepInterval is how often idle throttle entries are collected
const throttleSweepInterval = 5 * time.Minute

// stopGrace bounds how long Stop waits for workers to drain
const stopGrace = 10 * time.Second

// Manager owns the whole capture-to-alert pipeline: one source per
// enabled camera, the shared dispatcher, the worker pool, the matcher,
// the throttle and the event bus. Cameras are isolated from each other;
// losing one never affects the rest.
type Manager struct {
	settings *Settings
	client   inference.Client
	matcher  Matcher
	bus      *EventBus
	factory  GrabberFactory

	dispatcher *FrameDispatcher
	throttle   *AlertThrottle
	pool       *WorkerPool
	stats      *StatsRegistry

	mu      sync.Mutex
	sources map[string]*CameraSource
	lastSeq map[string]uint64 // highest sequence emitted per camera id
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager builds a stopped pipeline. factory may be nil to use the
// default grabber selection.
func NewManager(settings *Settings, client inference.Client, matcher Matcher, bus *EventBus, factory GrabberFactory) *Manager {
	m := &Manager{
		settings:   settings,
		client:     client,
		matcher:    matcher,
		bus:        bus,
		factory:    factory,
		dispatcher: NewFrameDispatcher(settings.QueueCapacity),
		throttle:   NewAlertThrottle(settings.AlertWindow),
		stats:      NewStatsRegistry(),
		sources:    make(map[string]*CameraSource),
		lastSeq:    make(map[string]uint64),
	}
	m.pool = NewWorkerPool(settings, m.dispatcher, client, matcher, m.throttle, bus, bus, m.stats, m.cameraName)
	return m
}

func (m *Manager) cameraName(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if src, ok := m.sources[id]; ok && src.Config().Name != "" {
		return src.Config().Name
	}
	for i := range m.settings.Cameras {
		if m.settings.Cameras[i].ID == id && m.settings.Cameras[i].Name != "" {
			return m.settings.Cameras[i].Name
		}
	}
	return id
}

// Start launches the worker pool and one source per enabled camera
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	m.pool.Start(runCtx)

	for i := range m.settings.Cameras {
		cfg := m.settings.Cameras[i]
		if !cfg.Enabled {
			continue
		}
		m.startSourceLocked(runCtx, cfg)
	}
	log.Printf("[Pipeline] started with %d cameras, %d workers", len(m.sources), m.settings.Workers)

	go m.sweepLoop(runCtx)
	return nil
}

func (m *Manager) startSourceLocked(ctx context.Context, cfg CameraConfig) {
	src := NewCameraSource(cfg, m.settings, m.dispatcher, m.factory, m.bus, m.stats.Camera(cfg.ID))
	// A re-enabled camera continues its sequence so frames from the
	// previous epoch still queued cannot collide with new ones.
	src.seq.Store(m.lastSeq[cfg.ID])
	m.sources[cfg.ID] = src
	src.Start(ctx)
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(throttleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.throttle.Sweep()
		}
	}
}

// Stop shuts the pipeline down in order: sources first, then the
// dispatcher so workers drain the remaining frames, bounded by a grace
// period. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	sources := make(map[string]*CameraSource, len(m.sources))
	for id, src := range m.sources {
		sources[id] = src
	}
	dispatcher := m.dispatcher
	pool := m.pool
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	for _, src := range sources {
		src.Stop()
	}
	dispatcher.Close()

	m.mu.Lock()
	for id, src := range sources {
		m.lastSeq[id] = src.seq.Load()
	}
	m.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		pool.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(stopGrace):
		log.Printf("[Pipeline] workers did not drain within %s, canceling", stopGrace)
	}

	cancel()
	<-done
	log.Printf("[Pipeline] stopped")
}

// Reload applies a new configuration value wholesale: the pipeline stops,
// swaps in the new settings and restarts. Queued frames are drained
// before the swap, never processed under mixed settings.
func (m *Manager) Reload(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	m.Stop()

	m.mu.Lock()
	m.settings = settings
	m.dispatcher = NewFrameDispatcher(settings.QueueCapacity)
	m.throttle = NewAlertThrottle(settings.AlertWindow)
	m.pool = NewWorkerPool(settings, m.dispatcher, m.client, m.matcher, m.throttle, m.bus, m.bus, m.stats, m.cameraName)
	m.sources = make(map[string]*CameraSource)
	m.mu.Unlock()

	log.Printf("[Pipeline] configuration reloaded")
	return m.Start(ctx)
}

// EnableCamera starts the source for a configured camera. Unknown ids
// return a ConfigError.
func (m *Manager) EnableCamera(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return ErrClosed
	}
	if _, ok := m.sources[id]; ok {
		return nil
	}
	for i := range m.settings.Cameras {
		if m.settings.Cameras[i].ID == id {
			m.startSourceLocked(ctx, m.settings.Cameras[i])
			log.Printf("[Pipeline] camera %s enabled", id)
			return nil
		}
	}
	return &ConfigError{Field: "camera", Reason: "unknown camera id " + id}
}

// DisableCamera stops the source for a camera. Frames already queued are
// still processed; unknown ids are a no-op.
func (m *Manager) DisableCamera(id string) {
	m.mu.Lock()
	src, ok := m.sources[id]
	if ok {
		delete(m.sources, id)
	}
	m.mu.Unlock()
	if ok {
		src.Stop()
		m.mu.Lock()
		m.lastSeq[id] = src.seq.Load()
		m.mu.Unlock()
		log.Printf("[Pipeline] camera %s disabled", id)
	}
}

// CameraStatuses reports the state of every configured camera, including
// disabled ones
func (m *Manager) CameraStatuses() []StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StatusUpdate, 0, len(m.settings.Cameras))
	for i := range m.settings.Cameras {
		cfg := &m.settings.Cameras[i]
		update := StatusUpdate{CameraID: cfg.ID, Status: StatusDisconnected, Timestamp: time.Now()}
		if src, ok := m.sources[cfg.ID]; ok {
			status, lastErr := src.Status()
			update.Status = status
			if lastErr != nil && status != StatusActive {
				update.Reason = lastErr.Error()
			}
		}
		out = append(out, update)
	}
	return out
}

// Stats returns per-camera counters plus dispatcher drop counts
func (m *Manager) Stats() map[string]CameraStatsSnapshot {
	m.mu.Lock()
	dispatcher := m.dispatcher
	m.mu.Unlock()

	snap := m.stats.Snapshot()
	for id, drops := range dispatcher.Drops() {
		s := snap[id]
		s.FramesDropped = drops
		snap[id] = s
	}
	return snap
}

// Suppressed returns the total number of throttled alerts
func (m *Manager) Suppressed() uint64 {
	m.mu.Lock()
	throttle := m.throttle
	m.mu.Unlock()
	return throttle.Suppressed()
}
