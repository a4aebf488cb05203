package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors is the M parameter of the graph
const hnswMaxNeighbors = 16

// hnswSearchK bounds the candidate set per query; large enough to cover
// several embeddings per identity
const hnswSearchK = 10

// HNSWMatcher is a Matcher backed by an HNSW graph for approximate nearest
// neighbor search. Same contract as CosineMatcher; use it when the identity
// set outgrows the linear scan. Identity changes rebuild the graph into a
// fresh snapshot, so readers never observe a graph under mutation.
type HNSWMatcher struct {
	dim       int
	threshold float32
	snap      atomic.Pointer[hnswSnapshot]
}

type hnswSnapshot struct {
	identities []KnownIdentity       // sorted by id
	byKey      map[string]hnswEntry  // node key -> identity index + vector
	graph      *hnsw.Graph[string]   // nil when empty
}

type hnswEntry struct {
	identityIdx int
	vector      []float32
	norm        float32
}

// NewHNSWMatcher creates an indexed matcher with a fixed embedding
// dimensionality and recognition threshold
func NewHNSWMatcher(dim int, threshold float32) *HNSWMatcher {
	m := &HNSWMatcher{dim: dim, threshold: threshold}
	m.snap.Store(buildHNSWSnapshot(nil))
	return m
}

func buildHNSWSnapshot(identities []KnownIdentity) *hnswSnapshot {
	base := buildSnapshot(identities)
	snap := &hnswSnapshot{
		identities: base.identities,
		byKey:      make(map[string]hnswEntry),
	}
	if len(base.refs) == 0 {
		return snap
	}

	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	for i, ref := range base.refs {
		key := fmt.Sprintf("%s#%d", base.identities[ref.identityIdx].ID, i)
		g.Add(hnsw.MakeNode(key, ref.vector))
		snap.byKey[key] = hnswEntry{identityIdx: ref.identityIdx, vector: ref.vector, norm: ref.norm}
	}
	snap.graph = g
	return snap
}

func (m *HNSWMatcher) checkIdentity(identity *KnownIdentity) error {
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

// Match queries the graph and re-ranks candidates with exact cosine
// similarity. Ties resolve to the lowest identity id.
func (m *HNSWMatcher) Match(face *DetectedFace) MatchResult {
	snap := m.snap.Load()
	result := MatchResult{Face: face, IdentityName: UnknownIdentityName, Similarity: -1}

	queryNorm := vectorNorm(face.Embedding)
	if queryNorm == 0 || snap.graph == nil {
		return result
	}

	neighbors := snap.graph.Search(face.Embedding, hnswSearchK)
	bestIdx := -1
	var bestSim float32 = -1
	for _, n := range neighbors {
		entry, ok := snap.byKey[n.Key]
		if !ok || entry.norm == 0 {
			continue
		}
		sim := dot(entry.vector, face.Embedding) / (entry.norm * queryNorm)
		if sim > bestSim || (sim == bestSim && bestIdx >= 0 &&
			snap.identities[entry.identityIdx].ID < snap.identities[bestIdx].ID) {
			bestSim = sim
			bestIdx = entry.identityIdx
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

// SetIdentities rebuilds the graph and swaps the snapshot
func (m *HNSWMatcher) SetIdentities(identities []KnownIdentity) error {
	for i := range identities {
		if err := m.checkIdentity(&identities[i]); err != nil {
			return err
		}
	}
	m.snap.Store(buildHNSWSnapshot(identities))
	return nil
}

// AddIdentity rebuilds the graph including the new identity
func (m *HNSWMatcher) AddIdentity(identity KnownIdentity) error {
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
	m.snap.Store(buildHNSWSnapshot(next))
	return nil
}

// RemoveIdentity rebuilds the graph without the identity
func (m *HNSWMatcher) RemoveIdentity(id string) {
	old := m.snap.Load()
	next := make([]KnownIdentity, 0, len(old.identities))
	for _, existing := range old.identities {
		if existing.ID != id {
			next = append(next, existing)
		}
	}
	m.snap.Store(buildHNSWSnapshot(next))
}

// Identities returns the identity set of the current snapshot
func (m *HNSWMatcher) Identities() []KnownIdentity {
	snap := m.snap.Load()
	out := make([]KnownIdentity, len(snap.identities))
	copy(out, snap.identities)
	return out
}

// Ensure HNSWMatcher implements Matcher
var _ Matcher = (*HNSWMatcher)(nil)
