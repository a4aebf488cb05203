package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDecodesFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detect", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "frame.jpg", header.Filename)

		age := 31
		json.NewEncoder(w).Encode(detectResponse{
			Faces: []Face{{
				BBox:       [4]float32{10, 20, 110, 140},
				Confidence: 0.92,
				Embedding:  []float32{0.1, 0.2},
				Age:        &age,
				Gender:     "Male",
			}},
			Count:  1,
			Device: "cuda",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{Endpoint: srv.URL})
	faces, err := c.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.NoError(t, err)

	require.Len(t, faces, 1)
	assert.Equal(t, float32(0.92), faces[0].Confidence)
	assert.Equal(t, "Male", faces[0].Gender)
	require.NotNil(t, faces[0].Age)
	assert.Equal(t, 31, *faces[0].Age)
	assert.True(t, c.Healthy())
}

func TestDetectBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{Endpoint: srv.URL})
	_, err := c.Detect(context.Background(), []byte{0xFF, 0xD8})

	assert.Error(t, err)
	assert.False(t, c.Healthy())
}

func TestDetectUnreachableBackend(t *testing.T) {
	c := NewHTTPClient(HTTPClientConfig{Endpoint: "http://127.0.0.1:1"})

	_, err := c.Detect(context.Background(), []byte{0xFF, 0xD8})
	assert.Error(t, err)
	assert.False(t, c.Healthy())
}

func TestHealthReportsBackendState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(Info{
			Status: "healthy", Device: "cuda", ModelLoaded: true, EmbeddingDim: 512,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{Endpoint: srv.URL})
	info, err := c.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 512, info.EmbeddingDim)
	assert.True(t, c.Healthy())
}

func TestHealthModelNotLoaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Info{Status: "loading", ModelLoaded: false})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{Endpoint: srv.URL})
	info, err := c.Health(context.Background())

	assert.Error(t, err)
	require.NotNil(t, info)
	assert.False(t, c.Healthy())
}
