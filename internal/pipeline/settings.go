package pipeline

import (
	"time"
)

// CameraConfig describes one camera source.
// Created from configuration at startup; a camera may be enabled or
// disabled at runtime.
type CameraConfig struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Source   string   `yaml:"source" json:"source"` // Device path, RTSP/HTTP URL or file path
	Width    int      `yaml:"width" json:"width"`
	Height   int      `yaml:"height" json:"height"`
	FPS      int      `yaml:"fps" json:"fps"`
	Rotation Rotation `yaml:"rotate" json:"rotate"` // Clockwise: 0, 90, 180, 270
	Enabled  bool     `yaml:"enabled" json:"enabled"`
}

// BackoffConfig controls the reconnect policy of a camera source
type BackoffConfig struct {
	Base   time.Duration `yaml:"base" json:"base"`     // First retry delay
	Cap    time.Duration `yaml:"cap" json:"cap"`       // Maximum delay
	Jitter float64       `yaml:"jitter" json:"jitter"` // Fraction of the delay, e.g. 0.2 for +/-20%
}

// Settings is the immutable configuration value the pipeline captures at
// start. Hot reload swaps the whole value, never individual fields.
type Settings struct {
	DetectionFloor       float32        // Minimum detector confidence for a candidate face
	RecognitionThreshold float32        // Minimum similarity for a known-identity match
	AlertWindow          time.Duration  // Rate-limit window per (camera, identity)
	Workers              int            // Detection worker pool size
	QueueCapacity        int            // Per-camera frame queue capacity
	EmbeddingDim         int            // Fixed embedding dimensionality, system-wide
	BatchSize            int            // Max frames a worker groups per inference pass
	ConnectTimeout       time.Duration  // Bound on opening a camera source
	DegradedAfter        int            // Consecutive failures before a camera is marked degraded
	Backoff              BackoffConfig  // Reconnect policy
	Cameras              []CameraConfig // Configured camera sources
}

// DefaultSettings returns the pipeline defaults used where the
// configuration file leaves values unset
func DefaultSettings() Settings {
	return Settings{
		DetectionFloor:       0.5,
		RecognitionThreshold: 0.6,
		AlertWindow:          30 * time.Second,
		Workers:              4,
		QueueCapacity:        8,
		EmbeddingDim:         512,
		BatchSize:            1,
		ConnectTimeout:       10 * time.Second,
		DegradedAfter:        3,
		Backoff: BackoffConfig{
			Base:   time.Second,
			Cap:    30 * time.Second,
			Jitter: 0.2,
		},
	}
}

// InferenceTimeout bounds one detection round trip. Derived rather than
// configured; the backend either answers quickly or the frame is stale.
func (s *Settings) InferenceTimeout() time.Duration {
	return 15 * time.Second
}

// Validate checks internal consistency. A failed validation is a
// ConfigError: fatal at startup, never a per-frame condition.
func (s *Settings) Validate() error {
	if s.DetectionFloor < 0 || s.DetectionFloor > 1 {
		return &ConfigError{Field: "detection_floor", Reason: "must be in [0, 1]"}
	}
	if s.RecognitionThreshold < -1 || s.RecognitionThreshold > 1 {
		return &ConfigError{Field: "recognition_threshold", Reason: "must be in [-1, 1]"}
	}
	if s.AlertWindow <= 0 {
		return &ConfigError{Field: "alert_window", Reason: "must be positive"}
	}
	if s.Workers <= 0 {
		return &ConfigError{Field: "workers", Reason: "must be positive"}
	}
	if s.QueueCapacity <= 0 {
		return &ConfigError{Field: "queue_capacity", Reason: "must be positive"}
	}
	if s.EmbeddingDim <= 0 {
		return &ConfigError{Field: "embedding_dim", Reason: "must be positive"}
	}
	if s.BatchSize <= 0 {
		return &ConfigError{Field: "batch_size", Reason: "must be positive"}
	}
	if s.DegradedAfter <= 0 {
		return &ConfigError{Field: "degraded_after", Reason: "must be positive"}
	}
	if s.Backoff.Base <= 0 || s.Backoff.Cap < s.Backoff.Base {
		return &ConfigError{Field: "backoff", Reason: "base must be positive and cap >= base"}
	}
	if s.Backoff.Jitter < 0 || s.Backoff.Jitter >= 1 {
		return &ConfigError{Field: "backoff.jitter", Reason: "must be in [0, 1)"}
	}
	seen := make(map[string]bool, len(s.Cameras))
	for i := range s.Cameras {
		cam := &s.Cameras[i]
		if cam.ID == "" {
			return &ConfigError{Field: "cameras", Reason: "camera id must not be empty"}
		}
		if seen[cam.ID] {
			return &ConfigError{Field: "cameras", Reason: "duplicate camera id " + cam.ID}
		}
		seen[cam.ID] = true
		if cam.Source == "" {
			return &ConfigError{Field: "cameras." + cam.ID, Reason: "source must not be empty"}
		}
		if cam.FPS <= 0 {
			return &ConfigError{Field: "cameras." + cam.ID, Reason: "fps must be positive"}
		}
		switch cam.Rotation {
		case Rotate0, Rotate90, Rotate180, Rotate270:
		default:
			return &ConfigError{Field: "cameras." + cam.ID, Reason: "rotate must be 0, 90, 180 or 270"}
		}
	}
	return nil
}
