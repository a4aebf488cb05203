package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := DefaultSettings()
	assert.NoError(t, s.Validate())
}

func TestSettingsValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
		field  string
	}{
		{"negative detection floor", func(s *Settings) { s.DetectionFloor = -0.1 }, "detection_floor"},
		{"detection floor above one", func(s *Settings) { s.DetectionFloor = 1.1 }, "detection_floor"},
		{"recognition threshold out of range", func(s *Settings) { s.RecognitionThreshold = 1.5 }, "recognition_threshold"},
		{"zero alert window", func(s *Settings) { s.AlertWindow = 0 }, "alert_window"},
		{"zero workers", func(s *Settings) { s.Workers = 0 }, "workers"},
		{"zero queue capacity", func(s *Settings) { s.QueueCapacity = 0 }, "queue_capacity"},
		{"zero embedding dim", func(s *Settings) { s.EmbeddingDim = 0 }, "embedding_dim"},
		{"zero batch size", func(s *Settings) { s.BatchSize = 0 }, "batch_size"},
		{"zero degraded after", func(s *Settings) { s.DegradedAfter = 0 }, "degraded_after"},
		{"cap below base", func(s *Settings) { s.Backoff.Cap = s.Backoff.Base / 2 }, "backoff"},
		{"jitter out of range", func(s *Settings) { s.Backoff.Jitter = 1 }, "backoff.jitter"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)

			err := s.Validate()

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestSettingsValidateCameras(t *testing.T) {
	base := func() Settings {
		s := DefaultSettings()
		s.Cameras = []CameraConfig{
			{ID: "cam1", Source: "/dev/video0", FPS: 10, Enabled: true},
		}
		return s
	}

	s := base()
	require.NoError(t, s.Validate())

	s = base()
	s.Cameras[0].ID = ""
	assert.Error(t, s.Validate())

	s = base()
	s.Cameras = append(s.Cameras, CameraConfig{ID: "cam1", Source: "/dev/video1", FPS: 10})
	assert.Error(t, s.Validate())

	s = base()
	s.Cameras[0].Source = ""
	assert.Error(t, s.Validate())

	s = base()
	s.Cameras[0].FPS = 0
	assert.Error(t, s.Validate())

	s = base()
	s.Cameras[0].Rotation = 45
	assert.Error(t, s.Validate())

	s = base()
	s.Cameras[0].Rotation = Rotate270
	assert.NoError(t, s.Validate())
}

func TestBackoffProgression(t *testing.T) {
	settings := DefaultSettings()
	settings.Backoff = BackoffConfig{Base: time.Second, Cap: 8 * time.Second, Jitter: 0}
	src := NewCameraSource(CameraConfig{ID: "cam1", Source: "x"}, &settings, NewFrameDispatcher(1), nil, nil, nil)

	d := settings.Backoff.Base
	var seen []time.Duration
	for i := 0; i < 5; i++ {
		d = src.nextBackoff(d)
		seen = append(seen, d)
	}

	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second,
	}, seen)
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	settings := DefaultSettings()
	settings.Backoff = BackoffConfig{Base: time.Second, Cap: 30 * time.Second, Jitter: 0.2}
	src := NewCameraSource(CameraConfig{ID: "cam1", Source: "x"}, &settings, NewFrameDispatcher(1), nil, nil, nil)

	for i := 0; i < 100; i++ {
		next := src.nextBackoff(10 * time.Second)
		assert.GreaterOrEqual(t, next, settings.Backoff.Base)
		assert.LessOrEqual(t, next, 24*time.Second) // 20s cap step +20%
	}
}
