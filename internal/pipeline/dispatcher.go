package pipeline

import (
	"sync"
)

// FrameDispatcher routes frames from all camera sources into one bounded
// structure feeding the worker pool. Push never blocks: when a camera's
// queue is full, the oldest frame of that same camera is evicted in favor
// of the new one, so a slow pipeline can never stall capture and one busy
// camera can never starve the others.
type FrameDispatcher struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	queues   map[string]*frameQueue
	order    []string // round-robin order across cameras
	next     int
	capacity int // per-camera queue capacity
	pending  int
	closed   bool
	drops    map[string]uint64
}

// frameQueue is a per-camera FIFO ring. Frames of one camera are never
// reordered or duplicated.
type frameQueue struct {
	frames []*Frame
	head   int
	count  int
}

func newFrameQueue(capacity int) *frameQueue {
	return &frameQueue{frames: make([]*Frame, capacity)}
}

func (q *frameQueue) push(f *Frame) (evicted *Frame) {
	if q.count == len(q.frames) {
		evicted = q.frames[q.head]
		q.frames[q.head] = nil
		q.head = (q.head + 1) % len(q.frames)
		q.count--
	}
	tail := (q.head + q.count) % len(q.frames)
	q.frames[tail] = f
	q.count++
	return evicted
}

func (q *frameQueue) pop() *Frame {
	if q.count == 0 {
		return nil
	}
	f := q.frames[q.head]
	q.frames[q.head] = nil
	q.head = (q.head + 1) % len(q.frames)
	q.count--
	return f
}

// NewFrameDispatcher creates a dispatcher with the given per-camera
// queue capacity
func NewFrameDispatcher(capacity int) *FrameDispatcher {
	d := &FrameDispatcher{
		queues:   make(map[string]*frameQueue),
		capacity: capacity,
		drops:    make(map[string]uint64),
	}
	d.notEmpty = sync.NewCond(&d.mu)
	return d
}

// Push enqueues a frame, evicting the oldest frame of the same camera when
// that camera's queue is full. Returns false if the frame was rejected
// because the dispatcher is closed.
func (d *FrameDispatcher) Push(frame *Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	q, ok := d.queues[frame.CameraID]
	if !ok {
		q = newFrameQueue(d.capacity)
		d.queues[frame.CameraID] = q
		d.order = append(d.order, frame.CameraID)
	}

	if evicted := q.push(frame); evicted != nil {
		d.drops[frame.CameraID]++
	} else {
		d.pending++
	}
	d.notEmpty.Signal()
	return true
}

// Pop blocks until a frame is available or the dispatcher is closed.
// Cameras are drained round-robin so no single camera monopolizes the
// worker pool; within one camera frames come out in capture order.
func (d *FrameDispatcher) Pop() (*Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for d.pending == 0 && !d.closed {
		d.notEmpty.Wait()
	}
	if d.pending == 0 && d.closed {
		return nil, false
	}
	return d.popLocked(), true
}

// TryPop returns the next frame without blocking, or nil when empty.
// Used by workers to group frames into a batch.
func (d *FrameDispatcher) TryPop() *Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == 0 {
		return nil
	}
	return d.popLocked()
}

func (d *FrameDispatcher) popLocked() *Frame {
	n := len(d.order)
	for i := 0; i < n; i++ {
		idx := (d.next + i) % n
		if f := d.queues[d.order[idx]].pop(); f != nil {
			d.next = (idx + 1) % n
			d.pending--
			return f
		}
	}
	return nil
}

// Len returns the number of queued frames for a camera
func (d *FrameDispatcher) Len(cameraID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[cameraID]; ok {
		return q.count
	}
	return 0
}

// Drops returns the per-camera eviction counters
func (d *FrameDispatcher) Drops() map[string]uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]uint64, len(d.drops))
	for id, n := range d.drops {
		out[id] = n
	}
	return out
}

// Close wakes all blocked consumers. Remaining frames are still drained by
// Pop before it reports closed. Idempotent.
func (d *FrameDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.notEmpty.Broadcast()
}
