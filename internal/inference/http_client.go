package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

// HTTPClient talks to the recognition sidecar over HTTP. Frames are posted
// as multipart JPEG to /detect; /health reports model state and embedding
// dimensionality.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	mu       sync.RWMutex
	healthy  bool
	lastInfo *Info
}

// HTTPClientConfig holds configuration for the sidecar client
type HTTPClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type detectResponse struct {
	Faces           []Face  `json:"faces"`
	Count           int     `json:"count"`
	InferenceTimeMs float32 `json:"inference_time_ms"`
	Device          string  `json:"device"`
}

// NewHTTPClient creates a client for the recognition sidecar
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Detect posts a JPEG frame and decodes the detected faces
func (c *HTTPClient) Detect(ctx context.Context, jpeg []byte) ([]Face, error) {
	body, err := c.postImage(ctx, c.endpoint+"/detect", jpeg)
	if err != nil {
		c.setHealthy(false)
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode detect response: %w", err)
	}
	c.setHealthy(true)
	return resp.Faces, nil
}

// Health checks the sidecar and caches the last report
func (c *HTTPClient) Health(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.setHealthy(false)
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.setHealthy(false)
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		c.setHealthy(false)
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	c.mu.Lock()
	c.healthy = info.Status == "healthy" && info.ModelLoaded
	c.lastInfo = &info
	c.mu.Unlock()

	if !info.ModelLoaded {
		return &info, fmt.Errorf("backend unhealthy: status=%s, model_loaded=%v", info.Status, info.ModelLoaded)
	}
	return &info, nil
}

// Healthy reports the result of the most recent backend interaction
func (c *HTTPClient) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Close releases idle connections to the sidecar
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) setHealthy(healthy bool) {
	c.mu.Lock()
	c.healthy = healthy
	c.mu.Unlock()
}

// postImage sends a multipart JPEG upload and returns the raw response body
func (c *HTTPClient) postImage(ctx context.Context, url string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
