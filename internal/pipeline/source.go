package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// CameraSource owns the capture loop for one camera: it connects a
// grabber, paces frames to the configured rate, normalizes them
// (rotation, scaling) and pushes them into the dispatcher. On stream
// errors it reconnects forever with jittered exponential backoff; a
// removed source never takes the rest of the pipeline down.
type CameraSource struct {
	cfg        CameraConfig
	settings   *Settings
	dispatcher *FrameDispatcher
	factory    GrabberFactory
	listener   StatusListener
	stats      *CameraStats

	// seq is strictly increasing across reconnects for the lifetime of
	// the source
	seq atomic.Uint64

	mu       sync.Mutex
	status   CameraStatus
	lastErr  error
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	failures int
}

// NewCameraSource creates a source for one camera. The listener and stats
// may be nil.
func NewCameraSource(cfg CameraConfig, settings *Settings, dispatcher *FrameDispatcher, factory GrabberFactory, listener StatusListener, stats *CameraStats) *CameraSource {
	if factory == nil {
		factory = NewGrabber
	}
	return &CameraSource{
		cfg:        cfg,
		settings:   settings,
		dispatcher: dispatcher,
		factory:    factory,
		listener:   listener,
		stats:      stats,
		status:     StatusDisconnected,
	}
}

// Start launches the capture loop. Starting an already running source is
// a no-op.
func (s *CameraSource) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop terminates the capture loop and waits for it to exit. Idempotent.
func (s *CameraSource) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Status returns the current connection state and the last error seen
func (s *CameraSource) Status() (CameraStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

// Config returns the camera configuration this source was built with
func (s *CameraSource) Config() CameraConfig {
	return s.cfg
}

func (s *CameraSource) run(ctx context.Context) {
	defer close(s.done)
	defer s.setStatus(StatusDisconnected, nil)

	backoff := s.settings.Backoff.Base

	for {
		if ctx.Err() != nil {
			return
		}

		grabber := s.factory(s.cfg)
		if err := s.connect(ctx, grabber); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.onFailure(&SourceUnavailableError{CameraID: s.cfg.ID, Source: s.cfg.Source, Err: err})
			if !s.sleep(ctx, backoff) {
				return
			}
			backoff = s.nextBackoff(backoff)
			continue
		}

		s.mu.Lock()
		s.failures = 0
		s.mu.Unlock()
		s.setStatus(StatusActive, nil)
		log.Printf("[Camera %s] connected to %s", s.cfg.ID, s.cfg.Source)
		backoff = s.settings.Backoff.Base

		err := s.capture(ctx, grabber)
		grabber.Close()
		if ctx.Err() != nil {
			return
		}

		s.onFailure(&StreamInterruptedError{CameraID: s.cfg.ID, Err: err})
		log.Printf("[Camera %s] stream interrupted: %v, reconnecting", s.cfg.ID, err)
		if !s.sleep(ctx, backoff) {
			return
		}
		backoff = s.nextBackoff(backoff)
	}
}

func (s *CameraSource) connect(ctx context.Context, grabber FrameGrabber) error {
	timeout := s.settings.ConnectTimeout
	if !isNetworkSource(s.cfg.Source) {
		// Local devices and files fail fast; keep a short ceiling so a
		// wedged device node cannot hang the loop.
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return grabber.Open(connectCtx)
}

func (s *CameraSource) capture(ctx context.Context, grabber FrameGrabber) error {
	minInterval := time.Duration(0)
	if s.cfg.FPS > 0 {
		minInterval = time.Second / time.Duration(s.cfg.FPS)
	}
	var lastEmit time.Time

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, err := grabber.Read()
		if err != nil {
			return err
		}

		// Rate enforcement at the source: frames arriving faster than the
		// configured rate are dropped before any decoding work.
		now := time.Now()
		if minInterval > 0 && !lastEmit.IsZero() && now.Sub(lastEmit) < minInterval {
			continue
		}
		lastEmit = now

		frame, err := s.normalize(data, now)
		if err != nil {
			log.Printf("[Camera %s] dropping undecodable frame: %v", s.cfg.ID, err)
			continue
		}

		if !s.dispatcher.Push(frame) {
			return ErrClosed
		}
		if s.stats != nil {
			s.stats.FrameCaptured()
		}
	}
}

// normalize applies rotation and scaling and assigns the sequence number.
// Frames that need no transform pass through without a decode cycle.
func (s *CameraSource) normalize(data []byte, ts time.Time) (*Frame, error) {
	frame := &Frame{
		CameraID:  s.cfg.ID,
		Seq:       s.seq.Add(1),
		Timestamp: ts,
		Data:      data,
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
	}

	needRotate := s.cfg.Rotation != Rotate0
	needScale := s.cfg.Width > 0 && s.cfg.Height > 0
	if !needRotate && !needScale {
		return frame, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if needRotate {
		// Config rotation is clockwise; imaging rotates counterclockwise.
		switch s.cfg.Rotation {
		case Rotate90:
			img = imaging.Rotate270(img)
		case Rotate180:
			img = imaging.Rotate180(img)
		case Rotate270:
			img = imaging.Rotate90(img)
		}
	}

	bounds := img.Bounds()
	if needScale && (bounds.Dx() != s.cfg.Width || bounds.Dy() != s.cfg.Height) {
		dst := image.NewRGBA(image.Rect(0, 0, s.cfg.Width, s.cfg.Height))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	frame.Data = buf.Bytes()
	frame.Width = img.Bounds().Dx()
	frame.Height = img.Bounds().Dy()
	return frame, nil
}

func (s *CameraSource) onFailure(err error) {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	if s.stats != nil {
		s.stats.SourceFailure()
	}

	if failures >= s.settings.DegradedAfter {
		s.setStatus(StatusDegraded, err)
	} else {
		s.setStatus(StatusDisconnected, err)
	}
}

func (s *CameraSource) setStatus(status CameraStatus, err error) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()

	if changed && s.listener != nil {
		update := StatusUpdate{
			CameraID:  s.cfg.ID,
			Status:    status,
			Timestamp: time.Now(),
		}
		if err != nil {
			update.Reason = err.Error()
		}
		s.listener.OnStatus(update)
	}
}

// nextBackoff doubles the delay up to the cap and applies jitter so
// cameras sharing an upstream do not reconnect in lockstep
func (s *CameraSource) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > s.settings.Backoff.Cap {
		next = s.settings.Backoff.Cap
	}
	if j := s.settings.Backoff.Jitter; j > 0 {
		delta := float64(next) * j
		next = time.Duration(float64(next) + (rand.Float64()*2-1)*delta)
		if next < s.settings.Backoff.Base {
			next = s.settings.Backoff.Base
		}
	}
	return next
}

func (s *CameraSource) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
