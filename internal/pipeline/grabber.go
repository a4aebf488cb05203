package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// FrameGrabber produces raw JPEG frames from one underlying device,
// stream or file. Open fails when the source cannot be reached; Read
// blocks until the next frame or a stream error. Close is idempotent and
// releases the device or connection deterministically.
type FrameGrabber interface {
	Open(ctx context.Context) error
	Read() ([]byte, error)
	Close() error
}

// GrabberFactory builds a grabber for a camera config. Sources pick a
// fresh grabber on every reconnect.
type GrabberFactory func(cfg CameraConfig) FrameGrabber

// NewGrabber selects a grabber implementation from the source descriptor:
// still-image HTTP endpoints are polled, everything else (RTSP, HTTP
// streams, V4L2 devices, files) goes through an ffmpeg JPEG pipe.
func NewGrabber(cfg CameraConfig) FrameGrabber {
	if isHTTPImageEndpoint(cfg.Source) {
		return newHTTPPollGrabber(cfg)
	}
	return newFFmpegGrabber(cfg)
}

func isHTTPImageEndpoint(source string) bool {
	return (strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")) &&
		(strings.Contains(source, ".jpg") || strings.Contains(source, ".jpeg") || strings.Contains(source, "image"))
}

func isNetworkSource(source string) bool {
	return strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "rtsp://")
}

// ffmpegGrabber decodes any supported source into an MJPEG pipe and
// extracts complete JPEG frames from it
type ffmpegGrabber struct {
	cfg    CameraConfig
	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    []byte
	chunk  []byte
	closed bool
}

func newFFmpegGrabber(cfg CameraConfig) *ffmpegGrabber {
	return &ffmpegGrabber{
		cfg:   cfg,
		buf:   make([]byte, 0, 1024*1024),
		chunk: make([]byte, 8192),
	}
}

func (g *ffmpegGrabber) args() []string {
	src := g.cfg.Source
	switch {
	case strings.HasPrefix(src, "rtsp://"):
		return []string{
			"-rtsp_transport", "tcp",
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", g.cfg.FPS),
			"-q:v", "5",
			"-",
		}
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return []string{
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", g.cfg.FPS),
			"-q:v", "5",
			"-",
		}
	case strings.HasPrefix(src, "/dev/"):
		return []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", g.cfg.Width, g.cfg.Height),
			"-framerate", fmt.Sprintf("%d", g.cfg.FPS),
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	default:
		// Video file, looped for replay sources
		return []string{
			"-stream_loop", "-1",
			"-re",
			"-i", src,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", g.cfg.FPS),
			"-q:v", "5",
			"-",
		}
	}
}

func (g *ffmpegGrabber) Open(ctx context.Context) error {
	cmd := exec.Command("ffmpeg", g.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Consume stderr silently so ffmpeg never blocks on a full pipe
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	g.cmd = cmd
	g.stdout = stdout
	g.closed = false

	// The process starts even when the source is unreachable; wait for the
	// first frame within the caller's deadline to confirm the connection.
	type result struct {
		frame []byte
		err   error
	}
	first := make(chan result, 1)
	go func() {
		frame, err := g.Read()
		first <- result{frame, err}
	}()

	select {
	case <-ctx.Done():
		g.Close()
		return ctx.Err()
	case r := <-first:
		if r.err != nil {
			g.Close()
			return r.err
		}
		// First frame is consumed by the connect probe; the source starts
		// emitting from the next one.
		return nil
	}
}

func (g *ffmpegGrabber) Read() ([]byte, error) {
	for {
		if frame := extractJPEGFrame(&g.buf); frame != nil {
			return frame, nil
		}
		n, err := g.stdout.Read(g.chunk)
		if n > 0 {
			g.buf = append(g.buf, g.chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (g *ffmpegGrabber) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if g.cmd != nil && g.cmd.Process != nil {
		g.cmd.Process.Kill()
		g.cmd.Wait()
	}
	return nil
}

// httpPollGrabber fetches still images from an HTTP endpoint at the
// configured frame rate
type httpPollGrabber struct {
	cfg      CameraConfig
	client   *http.Client
	interval time.Duration
	last     time.Time
	opened   bool
}

func newHTTPPollGrabber(cfg CameraConfig) *httpPollGrabber {
	interval := time.Second / time.Duration(cfg.FPS)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return &httpPollGrabber{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
	}
}

func (g *httpPollGrabber) Open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.Source, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	g.opened = true
	return nil
}

func (g *httpPollGrabber) Read() ([]byte, error) {
	if !g.opened {
		return nil, fmt.Errorf("grabber not opened")
	}
	if wait := g.interval - time.Since(g.last); wait > 0 {
		time.Sleep(wait)
	}
	g.last = time.Now()

	resp, err := g.client.Get(g.cfg.Source)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (g *httpPollGrabber) Close() error {
	g.opened = false
	g.client.CloseIdleConnections()
	return nil
}

// extractJPEGFrame extracts a complete JPEG frame (FFD8..FFD9) from the
// buffer, consuming it
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]
	return frame
}
