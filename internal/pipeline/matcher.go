package pipeline

import (
	"math"
	"sort"
	"sync/atomic"
)

// Matcher finds the best known identity for a detected face. Match is safe
// for concurrent use; identity changes install a fresh snapshot without
// blocking in-flight matches.
type Matcher interface {
	// Match returns the best identity for the face's embedding, or an
	// unknown result when the best similarity is below the recognition
	// threshold.
	Match(face *DetectedFace) MatchResult

	// SetIdentities replaces the whole identity set atomically
	SetIdentities(identities []KnownIdentity) error

	// AddIdentity adds or replaces one identity
	AddIdentity(identity KnownIdentity) error

	// RemoveIdentity deletes an identity by id; unknown ids are a no-op
	RemoveIdentity(id string)

	// Identities returns the identity set of the current snapshot
	Identities() []KnownIdentity
}

// identitySnapshot is an immutable view of the enrolled identities.
// Entries are sorted by identity id so that equal similarities resolve to
// the lowest id deterministically.
type identitySnapshot struct {
	identities []KnownIdentity
	refs       []embeddingRef
}

type embeddingRef struct {
	identityIdx int
	vector      []float32
	norm        float32
}

// CosineMatcher scans every reference embedding per match. O(identities x
// embeddings) per call, fine for tens to low hundreds of identities; swap
// in HNSWMatcher past that ceiling.
type CosineMatcher struct {
	dim       int
	threshold float32
	snap      atomic.Pointer[identitySnapshot]
}

// NewCosineMatcher creates a matcher with a fixed embedding dimensionality
// and recognition threshold
func NewCosineMatcher(dim int, threshold float32) *CosineMatcher {
	m := &CosineMatcher{dim: dim, threshold: threshold}
	m.snap.Store(buildSnapshot(nil))
	return m
}

func buildSnapshot(identities []KnownIdentity) *identitySnapshot {
	sorted := make([]KnownIdentity, len(identities))
	copy(sorted, identities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	snap := &identitySnapshot{identities: sorted}
	for i := range sorted {
		for _, emb := range sorted[i].Embeddings {
			snap.refs = append(snap.refs, embeddingRef{
				identityIdx: i,
				vector:      emb,
				norm:        vectorNorm(emb),
			})
		}
	}
	return snap
}

func (m *CosineMatcher) checkIdentity(identity *KnownIdentity) error {
	if identity.ID == "" {
		return &ConfigError{Field: "identity", Reason: "id must not be empty"}
	}
	for _, emb := range identity.Embeddings {
		if len(emb) != m.dim {
			return &ConfigError{Field: "identity " + identity.ID, Reason: "embedding dimensionality mismatch"}
		}
	}
	return nil
}

// Match scans the current snapshot. In-flight matches keep the snapshot
// they started with even if a swap happens mid-scan.
func (m *CosineMatcher) Match(face *DetectedFace) MatchResult {
	snap := m.snap.Load()
	result := MatchResult{Face: face, IdentityName: UnknownIdentityName, Similarity: -1}

	queryNorm := vectorNorm(face.Embedding)
	if queryNorm == 0 || len(snap.refs) == 0 {
		return result
	}

	bestIdx := -1
	var bestSim float32 = -1
	for _, ref := range snap.refs {
		if ref.norm == 0 {
			continue
		}
		sim := dot(ref.vector, face.Embedding) / (ref.norm * queryNorm)
		// Strictly greater keeps the first candidate on ties; refs are
		// ordered by identity id, so ties resolve to the lowest id.
		if sim > bestSim {
			bestSim = sim
			bestIdx = ref.identityIdx
		}
	}
	if bestIdx < 0 {
		return result
	}

	result.Similarity = bestSim
	if bestSim >= m.threshold {
		id := snap.identities[bestIdx]
		result.IdentityID = id.ID
		result.IdentityName = id.Name
		result.Known = true
	}
	return result
}

// SetIdentities replaces the identity set with a single snapshot swap
func (m *CosineMatcher) SetIdentities(identities []KnownIdentity) error {
	for i := range identities {
		if err := m.checkIdentity(&identities[i]); err != nil {
			return err
		}
	}
	m.snap.Store(buildSnapshot(identities))
	return nil
}

// AddIdentity installs a snapshot containing the new identity
func (m *CosineMatcher) AddIdentity(identity KnownIdentity) error {
	if err := m.checkIdentity(&identity); err != nil {
		return err
	}
	old := m.snap.Load()
	next := make([]KnownIdentity, 0, len(old.identities)+1)
	for _, id := range old.identities {
		if id.ID != identity.ID {
			next = append(next, id)
		}
	}
	next = append(next, identity)
	m.snap.Store(buildSnapshot(next))
	return nil
}

// RemoveIdentity installs a snapshot without the identity
func (m *CosineMatcher) RemoveIdentity(id string) {
	old := m.snap.Load()
	next := make([]KnownIdentity, 0, len(old.identities))
	for _, existing := range old.identities {
		if existing.ID != id {
			next = append(next, existing)
		}
	}
	m.snap.Store(buildSnapshot(next))
}

// Identities returns the identity set of the current snapshot
func (m *CosineMatcher) Identities() []KnownIdentity {
	snap := m.snap.Load()
	out := make([]KnownIdentity, len(snap.identities))
	copy(out, snap.identities)
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func vectorNorm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// Ensure CosineMatcher implements Matcher
var _ Matcher = (*CosineMatcher)(nil)
