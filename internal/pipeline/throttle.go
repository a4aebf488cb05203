package pipeline

import (
	"sync"
	"time"
)

// throttleKey identifies one rate-limit state machine. IdentityID is empty
// for unknown faces, which throttles them per camera.
type throttleKey struct {
	CameraID   string
	IdentityID string
}

// throttleEntry serializes near-simultaneous matches for the same key so
// exactly one alert is emitted per window: never zero, never duplicate.
type throttleEntry struct {
	mu        sync.Mutex
	lastAlert time.Time
}

// AlertThrottle decides whether a match produces a new alert or is
// suppressed as a duplicate. State lives only in memory; after a restart
// every key is freshly idle.
type AlertThrottle struct {
	window     time.Duration
	mu         sync.Mutex
	entries    map[throttleKey]*throttleEntry
	now        func() time.Time
	suppressed uint64
}

// NewAlertThrottle creates a throttle with the given rate-limit window
func NewAlertThrottle(window time.Duration) *AlertThrottle {
	return &AlertThrottle{
		window:  window,
		entries: make(map[throttleKey]*throttleEntry),
		now:     time.Now,
	}
}

// Allow reports whether an alert should be emitted for the match and, if
// so, records the emission time. Callers must only pass matches that
// cleared the detection-confidence floor; throttle state is never created
// for anything below it.
func (t *AlertThrottle) Allow(cameraID, identityID string) bool {
	key := throttleKey{CameraID: cameraID, IdentityID: identityID}

	for {
		t.mu.Lock()
		entry, ok := t.entries[key]
		if !ok {
			entry = &throttleEntry{}
			t.entries[key] = entry
		}
		t.mu.Unlock()

		allowed, valid := t.decide(key, entry)
		if valid {
			return allowed
		}
		// The entry was swept between the map fetch and the entry lock;
		// retry against whatever is registered now.
	}
}

// decide records or suppresses an emission on entry. valid is false when
// the entry is no longer the one registered for key, in which case the
// decision is void and the caller must retry. Lock order is entry.mu
// then t.mu, the same as Sweep.
func (t *AlertThrottle) decide(key throttleKey, entry *throttleEntry) (allowed, valid bool) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	t.mu.Lock()
	registered := t.entries[key] == entry
	t.mu.Unlock()
	if !registered {
		return false, false
	}

	now := t.now()
	if entry.lastAlert.IsZero() || now.Sub(entry.lastAlert) >= t.window {
		entry.lastAlert = now
		return true, true
	}

	t.mu.Lock()
	t.suppressed++
	t.mu.Unlock()
	return false, true
}

// Suppressed returns the number of matches suppressed so far
func (t *AlertThrottle) Suppressed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}

// Sweep drops entries idle for longer than the window so the map does not
// grow without bound on long runs with many transient unknowns. An entry
// is only removed while both its lock and the map lock are held, so a
// concurrent Allow either lands its emission before the removal or
// observes the eviction and retries.
func (t *AlertThrottle) Sweep() {
	t.mu.Lock()
	candidates := make(map[throttleKey]*throttleEntry, len(t.entries))
	for key, entry := range t.entries {
		candidates[key] = entry
	}
	t.mu.Unlock()

	now := t.now()
	for key, entry := range candidates {
		entry.mu.Lock()
		t.mu.Lock()
		if t.entries[key] == entry && now.Sub(entry.lastAlert) > t.window {
			delete(t.entries, key)
		}
		t.mu.Unlock()
		entry.mu.Unlock()
	}
}
