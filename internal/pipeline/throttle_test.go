package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleFirstMatchAlerts(t *testing.T) {
	th := NewAlertThrottle(30 * time.Second)

	assert.True(t, th.Allow("cam1", "alice"))
}

func TestThrottleSuppressesWithinWindow(t *testing.T) {
	now := time.Now()
	th := NewAlertThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("cam1", "alice"))

	now = now.Add(5 * time.Second)
	assert.False(t, th.Allow("cam1", "alice"))
	assert.Equal(t, uint64(1), th.Suppressed())

	now = now.Add(26 * time.Second) // 31s after the alert
	assert.True(t, th.Allow("cam1", "alice"))
}

func TestThrottleWindowBoundaryAlerts(t *testing.T) {
	now := time.Now()
	th := NewAlertThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("cam1", "alice"))

	// Exactly one window later counts as expired
	now = now.Add(30 * time.Second)
	assert.True(t, th.Allow("cam1", "alice"))
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	now := time.Now()
	th := NewAlertThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("cam1", "alice"))
	assert.True(t, th.Allow("cam2", "alice"))
	assert.True(t, th.Allow("cam1", "bob"))
	assert.False(t, th.Allow("cam1", "alice"))
}

func TestThrottleUnknownFacesPerCamera(t *testing.T) {
	now := time.Now()
	th := NewAlertThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	// Unknown faces share one key per camera
	assert.True(t, th.Allow("cam1", ""))
	assert.False(t, th.Allow("cam1", ""))
	assert.True(t, th.Allow("cam2", ""))
}

func TestThrottleConcurrentSameKeyEmitsExactlyOne(t *testing.T) {
	th := NewAlertThrottle(30 * time.Second)

	var emitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.Allow("cam1", "alice") {
				emitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), emitted.Load())
	assert.Equal(t, uint64(31), th.Suppressed())
}

func TestThrottleAllowRetriesAfterSweepEviction(t *testing.T) {
	now := time.Now()
	th := NewAlertThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	key := throttleKey{CameraID: "cam1", IdentityID: "alice"}
	assert.True(t, th.Allow("cam1", "alice"))

	// A stalled caller fetched the entry from the map and then lost the
	// race: the entry goes idle and Sweep evicts it.
	th.mu.Lock()
	stale := th.entries[key]
	th.mu.Unlock()

	now = now.Add(31 * time.Second)
	th.Sweep()

	// A fresh call wins the new window
	assert.True(t, th.Allow("cam1", "alice"))

	// The stalled caller resumes against the evicted entry: its decision
	// is void, and the retry suppresses instead of emitting a duplicate
	_, valid := th.decide(key, stale)
	assert.False(t, valid)
	assert.False(t, th.Allow("cam1", "alice"))
	assert.Equal(t, uint64(1), th.Suppressed())
}

func TestThrottleSweepConcurrentWithAllow(t *testing.T) {
	th := NewAlertThrottle(time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			th.Sweep()
		}
	}()
	for i := 0; i < 500; i++ {
		th.Allow("cam1", "alice")
		th.Allow("cam1", "")
	}
	<-done
}

func TestThrottleSweepDropsIdleEntries(t *testing.T) {
	now := time.Now()
	th := NewAlertThrottle(30 * time.Second)
	th.now = func() time.Time { return now }

	th.Allow("cam1", "alice")
	th.Allow("cam1", "bob")

	now = now.Add(time.Minute)
	th.Sweep()

	th.mu.Lock()
	remaining := len(th.entries)
	th.mu.Unlock()
	assert.Zero(t, remaining)

	// After a sweep the key starts fresh
	assert.True(t, th.Allow("cam1", "alice"))
}
