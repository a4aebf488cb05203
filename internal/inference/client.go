// Package inference wraps the external face detection and embedding
// capability. The model itself runs in a sidecar service; the pipeline
// consumes it through the Client interface with an explicit lifecycle:
// constructed once, shared by all detection workers, closed at shutdown.
package inference

import (
	"context"
)

// Face is one detection returned by the backend: a bounding box, the
// detector confidence, the identity embedding and optional demographics.
type Face struct {
	BBox       [4]float32 `json:"bbox"` // x1, y1, x2, y2
	Confidence float32    `json:"confidence"`
	Embedding  []float32  `json:"embedding"`
	Age        *int       `json:"age,omitempty"`
	Gender     string     `json:"gender,omitempty"`
}

// Info describes the backend as reported by its health endpoint
type Info struct {
	Status       string `json:"status"`
	Device       string `json:"device"`
	ModelLoaded  bool   `json:"model_loaded"`
	EmbeddingDim int    `json:"embedding_dim"`
}

// Client is the opaque inference capability consumed by the detection
// worker pool. Implementations must be safe for concurrent use.
type Client interface {
	// Detect returns zero or more faces found in a JPEG image.
	// A transient backend failure returns an error; the caller skips the
	// frame and counts the failure.
	Detect(ctx context.Context, jpeg []byte) ([]Face, error)

	// Health probes the backend and returns its description. Used at
	// startup to verify the embedding dimensionality against configuration.
	Health(ctx context.Context) (*Info, error)

	// Close releases the connection to the backend. Idempotent.
	Close() error
}
