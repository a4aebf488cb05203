package pipeline

import (
	"sync"
	"sync/atomic"
)

// CameraStats holds per-camera counters. All methods are safe for
// concurrent use; reads are approximate snapshots.
type CameraStats struct {
	captured          atomic.Uint64
	dropped           atomic.Uint64
	sourceFailures    atomic.Uint64
	inferenceFailures atomic.Uint64
	facesDetected     atomic.Uint64
	alertsEmitted     atomic.Uint64
	alertsSuppressed  atomic.Uint64
}

func (s *CameraStats) FrameCaptured()    { s.captured.Add(1) }
func (s *CameraStats) FrameDropped()     { s.dropped.Add(1) }
func (s *CameraStats) SourceFailure()    { s.sourceFailures.Add(1) }
func (s *CameraStats) InferenceFailure() { s.inferenceFailures.Add(1) }
func (s *CameraStats) FaceDetected()     { s.facesDetected.Add(1) }
func (s *CameraStats) AlertEmitted()     { s.alertsEmitted.Add(1) }
func (s *CameraStats) AlertSuppressed()  { s.alertsSuppressed.Add(1) }

// CameraStatsSnapshot is a point-in-time copy of the counters
type CameraStatsSnapshot struct {
	FramesCaptured    uint64 `json:"frames_captured"`
	FramesDropped     uint64 `json:"frames_dropped"`
	SourceFailures    uint64 `json:"source_failures"`
	InferenceFailures uint64 `json:"inference_failures"`
	FacesDetected     uint64 `json:"faces_detected"`
	AlertsEmitted     uint64 `json:"alerts_emitted"`
	AlertsSuppressed  uint64 `json:"alerts_suppressed"`
}

// Snapshot copies the current counter values
func (s *CameraStats) Snapshot() CameraStatsSnapshot {
	return CameraStatsSnapshot{
		FramesCaptured:    s.captured.Load(),
		FramesDropped:     s.dropped.Load(),
		SourceFailures:    s.sourceFailures.Load(),
		InferenceFailures: s.inferenceFailures.Load(),
		FacesDetected:     s.facesDetected.Load(),
		AlertsEmitted:     s.alertsEmitted.Load(),
		AlertsSuppressed:  s.alertsSuppressed.Load(),
	}
}

// StatsRegistry maps camera ids to their counters
type StatsRegistry struct {
	mu      sync.Mutex
	cameras map[string]*CameraStats
}

// NewStatsRegistry creates an empty registry
func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{cameras: make(map[string]*CameraStats)}
}

// Camera returns the counters for a camera, creating them on first use
func (r *StatsRegistry) Camera(id string) *CameraStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.cameras[id]
	if !ok {
		s = &CameraStats{}
		r.cameras[id] = s
	}
	return s
}

// Snapshot copies every camera's counters
func (r *StatsRegistry) Snapshot() map[string]CameraStatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]CameraStatsSnapshot, len(r.cameras))
	for id, s := range r.cameras {
		out[id] = s.Snapshot()
	}
	return out
}
