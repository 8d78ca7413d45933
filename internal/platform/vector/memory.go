package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type storedRecord struct {
	rec        Record
	norm       float64
	ingestedAt time.Time
	seq        uint64
}

// MemoryStore is an in-process Store used for local mode and tests. Each
// collection is a separate map, so cross-collection leakage is structurally
// impossible; the payload tag is still written and asserted to mirror the
// remote adapters.
type MemoryStore struct {
	mu        sync.RWMutex
	dim       int
	seq       uint64
	byCollect map[Collection]map[string]*storedRecord
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim: dim,
		byCollect: map[Collection]map[string]*storedRecord{
			CollectionKB:      {},
			CollectionUploads: {},
		},
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, collection Collection, records []Record) error {
	if !IsValidCollection(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, r := range records {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return fmt.Errorf("vector id is required")
		}
		if s.dim > 0 && len(r.Values) != s.dim {
			return fmt.Errorf("vector %q dimension mismatch: expected=%d got=%d", id, s.dim, len(r.Values))
		}
		meta := make(map[string]any, len(r.Metadata)+2)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta[MetaCollection] = string(collection)
		meta[MetaIngestedAt] = now.Format(time.RFC3339Nano)

		s.seq++
		s.byCollect[collection][id] = &storedRecord{
			rec:        Record{ID: id, Values: append([]float32(nil), r.Values...), Metadata: meta},
			norm:       vectorNorm(r.Values),
			ingestedAt: now,
			seq:        s.seq,
		}
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection Collection, q []float32, topK int, minSimilarity float64) ([]ScoredRecord, error) {
	if !IsValidCollection(collection) {
		return nil, fmt.Errorf("invalid collection %q", collection)
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	if s.dim > 0 && len(q) != s.dim {
		return nil, fmt.Errorf("query vector dimension mismatch: expected=%d got=%d", s.dim, len(q))
	}
	if topK <= 0 {
		topK = 10
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qNorm := vectorNorm(q)

	s.mu.RLock()
	type scored struct {
		rec        ScoredRecord
		ingestedAt time.Time
		seq        uint64
	}
	candidates := make([]scored, 0, len(s.byCollect[collection]))
	for _, st := range s.byCollect[collection] {
		sim := cosineSimilarity(q, qNorm, st.rec.Values, st.norm)
		if sim < minSimilarity {
			continue
		}
		candidates = append(candidates, scored{
			rec:        ScoredRecord{ID: st.rec.ID, Score: sim, Metadata: st.rec.Metadata},
			ingestedAt: st.ingestedAt,
			seq:        st.seq,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].rec.Score != candidates[j].rec.Score {
			return candidates[i].rec.Score > candidates[j].rec.Score
		}
		// Equal similarity: most recently ingested wins.
		if !candidates[i].ingestedAt.Equal(candidates[j].ingestedAt) {
			return candidates[i].ingestedAt.After(candidates[j].ingestedAt)
		}
		return candidates[i].seq > candidates[j].seq
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]ScoredRecord, 0, len(candidates))
	for _, c := range candidates {
		if err := AssertCollection(collection, c.rec); err != nil {
			return nil, err
		}
		out = append(out, c.rec)
	}
	return out, nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, collection Collection, documentID string) error {
	if !IsValidCollection(collection) {
		return fmt.Errorf("invalid collection %q", collection)
	}
	if strings.TrimSpace(documentID) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.byCollect[collection] {
		if docID, _ := st.rec.Metadata[MetaDocumentID].(string); docID == documentID {
			delete(s.byCollect[collection], id)
		}
	}
	return nil
}

func (s *MemoryStore) CountByDocument(ctx context.Context, collection Collection, documentID string) (int, error) {
	if !IsValidCollection(collection) {
		return 0, fmt.Errorf("invalid collection %q", collection)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.byCollect[collection] {
		if docID, _ := st.rec.Metadata[MetaDocumentID].(string); docID == documentID {
			n++
		}
	}
	return n, nil
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
