package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
)

// Config is the full application configuration loaded from YAML.
// The value is immutable once loaded; hot reload produces a fresh value
// and swaps it atomically through Store.
type Config struct {
	App struct {
		ListenAddr    string `yaml:"listen_addr"`
		DatabasePath  string `yaml:"database_path"`
		ScreenshotDir string `yaml:"screenshot_dir"`
	} `yaml:"app"`

	Recognition struct {
		DetectionThreshold   float32       `yaml:"detection_threshold"`
		RecognitionThreshold float32       `yaml:"recognition_threshold"`
		EmbeddingDim         int           `yaml:"embedding_dim"`
		MaxBatchSize         int           `yaml:"max_batch_size"`
		Endpoint             string        `yaml:"endpoint"`
		Timeout              time.Duration `yaml:"timeout"`
	} `yaml:"recognition"`

	Pipeline struct {
		Workers        int                    `yaml:"workers"`
		QueueCapacity  int                    `yaml:"queue_capacity"`
		AlertWindow    time.Duration          `yaml:"alert_window"`
		ConnectTimeout time.Duration          `yaml:"connect_timeout"`
		DegradedAfter  int                    `yaml:"degraded_after"`
		Backoff        pipeline.BackoffConfig `yaml:"backoff"`
	} `yaml:"pipeline"`

	Cameras []pipeline.CameraConfig `yaml:"cameras"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`

	Auth struct {
		Username     string        `yaml:"username"`
		PasswordHash string        `yaml:"password_hash"` // bcrypt
		JWTSecret    string        `yaml:"jwt_secret"`
		TokenExpiry  time.Duration `yaml:"token_expiry"`
	} `yaml:"auth"`
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := pipeline.DefaultSettings()
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = ":8080"
	}
	if c.App.DatabasePath == "" {
		c.App.DatabasePath = "facetracker.db"
	}
	if c.Recognition.DetectionThreshold == 0 {
		c.Recognition.DetectionThreshold = def.DetectionFloor
	}
	if c.Recognition.RecognitionThreshold == 0 {
		c.Recognition.RecognitionThreshold = def.RecognitionThreshold
	}
	if c.Recognition.EmbeddingDim == 0 {
		c.Recognition.EmbeddingDim = def.EmbeddingDim
	}
	if c.Recognition.MaxBatchSize == 0 {
		c.Recognition.MaxBatchSize = def.BatchSize
	}
	if c.Recognition.Endpoint == "" {
		c.Recognition.Endpoint = "http://localhost:18081"
	}
	if c.Recognition.Timeout == 0 {
		c.Recognition.Timeout = 5 * time.Second
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = def.Workers
	}
	if c.Pipeline.QueueCapacity == 0 {
		c.Pipeline.QueueCapacity = def.QueueCapacity
	}
	if c.Pipeline.AlertWindow == 0 {
		c.Pipeline.AlertWindow = def.AlertWindow
	}
	if c.Pipeline.ConnectTimeout == 0 {
		c.Pipeline.ConnectTimeout = def.ConnectTimeout
	}
	if c.Pipeline.DegradedAfter == 0 {
		c.Pipeline.DegradedAfter = def.DegradedAfter
	}
	if c.Pipeline.Backoff.Base == 0 {
		c.Pipeline.Backoff.Base = def.Backoff.Base
	}
	if c.Pipeline.Backoff.Cap == 0 {
		c.Pipeline.Backoff.Cap = def.Backoff.Cap
	}
	if c.Pipeline.Backoff.Jitter == 0 {
		c.Pipeline.Backoff.Jitter = def.Backoff.Jitter
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 24 * time.Hour
	}
	for i := range c.Cameras {
		if c.Cameras[i].Name == "" {
			c.Cameras[i].Name = "Camera " + c.Cameras[i].ID
		}
		if c.Cameras[i].FPS == 0 {
			c.Cameras[i].FPS = 10
		}
	}
}

// Validate checks the whole configuration. A failure is fatal at startup.
func (c *Config) Validate() error {
	settings := c.Settings()
	if err := settings.Validate(); err != nil {
		return err
	}
	if c.Recognition.Endpoint == "" {
		return &pipeline.ConfigError{Field: "recognition.endpoint", Reason: "must not be empty"}
	}
	if c.Recognition.Timeout <= 0 {
		return &pipeline.ConfigError{Field: "recognition.timeout", Reason: "must be positive"}
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return &pipeline.ConfigError{Field: "telegram", Reason: "bot_token and chat_id required when enabled"}
	}
	return nil
}

// Settings extracts the pipeline configuration value captured at start
func (c *Config) Settings() pipeline.Settings {
	return pipeline.Settings{
		DetectionFloor:       c.Recognition.DetectionThreshold,
		RecognitionThreshold: c.Recognition.RecognitionThreshold,
		AlertWindow:          c.Pipeline.AlertWindow,
		Workers:              c.Pipeline.Workers,
		QueueCapacity:        c.Pipeline.QueueCapacity,
		EmbeddingDim:         c.Recognition.EmbeddingDim,
		BatchSize:            c.Recognition.MaxBatchSize,
		ConnectTimeout:       c.Pipeline.ConnectTimeout,
		DegradedAfter:        c.Pipeline.DegradedAfter,
		Backoff:              c.Pipeline.Backoff,
		Cameras:              c.Cameras,
	}
}
