// Package vector implements the tenant-scoped vector index adapter:
// one flat, gob-encoded index file per tenant on local disk, cached in
// memory via hashicorp/golang-lru, with a writer-exclusive/reader-shared
// lock per tenant.
package vector

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ragforge/rag-mcp/internal/apperrors"
)

// Entry is one embedded chunk stored in a tenant's index.
type Entry struct {
	DocumentID string
	ChunkID    string
	Vector     []float32
	Metadata   map[string]string
}

// index is the gob-encoded on-disk representation of one tenant's
// vector index. Lookup is O(n) cosine similarity over Entries, resolved
// in favor of simplicity: tenant corpora are small enough that an ANN
// structure is not yet justified.
type index struct {
	Entries []Entry
}

// tenantLock bundles an in-memory index with an RWMutex: concurrent
// readers (search) proceed together, but a writer (ingest, rebuild)
// excludes all other access to that tenant's index.
type tenantLock struct {
	mu  sync.RWMutex
	idx *index
}

// Store is the tenant-scoped vector adapter.
type Store struct {
	rootDir string
	cache   *lru.Cache[string, *tenantLock]

	mu     sync.Mutex // guards creation of a tenant's *tenantLock
	locked map[string]*tenantLock
}

// New constructs a Store rooted at rootDir, keeping at most cacheSize
// tenant indexes resident in memory at once.
func New(rootDir string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = 64
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("vector: create root dir: %w", err)
	}
	c, err := lru.New[string, *tenantLock](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("vector: create lru cache: %w", err)
	}
	return &Store{rootDir: rootDir, cache: c, locked: make(map[string]*tenantLock)}, nil
}

func (s *Store) path(tenantID string) string {
	return filepath.Join(s.rootDir, fmt.Sprintf("tenant_%s.index", tenantID))
}

// acquire returns the tenantLock for tenantID, loading it from disk on
// first access and registering it in the LRU cache.
func (s *Store) acquire(tenantID string) (*tenantLock, error) {
	if tl, ok := s.cache.Get(tenantID); ok {
		return tl, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tl, ok := s.cache.Get(tenantID); ok {
		return tl, nil
	}

	idx, err := s.loadFromDisk(tenantID)
	if err != nil {
		return nil, err
	}
	tl := &tenantLock{idx: idx}
	s.cache.Add(tenantID, tl)
	return tl, nil
}

func (s *Store) loadFromDisk(tenantID string) (*index, error) {
	f, err := os.Open(s.path(tenantID))
	if os.IsNotExist(err) {
		return &index{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransient, "FR-VECTOR-001", fmt.Errorf("vector: open index: %w", err))
	}
	defer f.Close()

	var idx index
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "FR-VECTOR-002", fmt.Errorf("vector: decode index: %w", err))
	}
	return &idx, nil
}

func (s *Store) saveToDisk(tenantID string, idx *index) error {
	tmp := s.path(tenantID) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-VECTOR-003", fmt.Errorf("vector: create index file: %w", err))
	}
	if err := gob.NewEncoder(f).Encode(idx); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.KindInternal, "FR-VECTOR-004", fmt.Errorf("vector: encode index: %w", err))
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-VECTOR-003", err)
	}
	return os.Rename(tmp, s.path(tenantID))
}

// Upsert adds or replaces entries for documentID under tenantID,
// holding the tenant's write lock for the whole read-modify-write cycle
// so a concurrent ingest cannot interleave.
func (s *Store) Upsert(ctx context.Context, tenantID, documentID string, entries []Entry) error {
	tl, err := s.acquire(tenantID)
	if err != nil {
		return err
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()

	filtered := tl.idx.Entries[:0:0]
	for _, e := range tl.idx.Entries {
		if e.DocumentID != documentID {
			filtered = append(filtered, e)
		}
	}
	tl.idx.Entries = append(filtered, entries...)

	return s.saveToDisk(tenantID, tl.idx)
}

// Delete removes every entry belonging to documentID.
func (s *Store) Delete(ctx context.Context, tenantID, documentID string) error {
	tl, err := s.acquire(tenantID)
	if err != nil {
		return err
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()

	filtered := tl.idx.Entries[:0:0]
	for _, e := range tl.idx.Entries {
		if e.DocumentID != documentID {
			filtered = append(filtered, e)
		}
	}
	tl.idx.Entries = filtered
	return s.saveToDisk(tenantID, tl.idx)
}

// Match is one scored search hit.
type Match struct {
	DocumentID string
	ChunkID    string
	Score      float32
	Metadata   map[string]string
}

// Search returns the top-k entries by cosine similarity to query,
// holding only the tenant's read lock so concurrent searches proceed
// in parallel.
func (s *Store) Search(ctx context.Context, tenantID string, query []float32, topK int) ([]Match, error) {
	tl, err := s.acquire(tenantID)
	if err != nil {
		return nil, err
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	matches := make([]Match, 0, len(tl.idx.Entries))
	for _, e := range tl.idx.Entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		matches = append(matches, Match{
			DocumentID: e.DocumentID,
			ChunkID:    e.ChunkID,
			Score:      cosineSimilarity(query, e.Vector),
			Metadata:   e.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID // deterministic tie-break
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Rebuild replaces a tenant's entire index, used by rag_rebuild_index.
func (s *Store) Rebuild(ctx context.Context, tenantID string, entries []Entry) error {
	tl, err := s.acquire(tenantID)
	if err != nil {
		return err
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()

	tl.idx.Entries = entries
	return s.saveToDisk(tenantID, tl.idx)
}

// Count returns the number of entries in a tenant's index, used by
// rag_get_usage_stats.
func (s *Store) Count(ctx context.Context, tenantID string) (int, error) {
	tl, err := s.acquire(tenantID)
	if err != nil {
		return 0, err
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return len(tl.idx.Entries), nil
}

// Export returns a copy of every entry in a tenant's index, used by
// rag_backup_tenant_data to dump the vector component.
func (s *Store) Export(ctx context.Context, tenantID string) ([]Entry, error) {
	tl, err := s.acquire(tenantID)
	if err != nil {
		return nil, err
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	out := make([]Entry, len(tl.idx.Entries))
	copy(out, tl.idx.Entries)
	return out, nil
}

// HealthCheck verifies the index root directory is still writable.
func (s *Store) HealthCheck(ctx context.Context) error {
	probe := filepath.Join(s.rootDir, ".health")
	f, err := os.Create(probe)
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransient, "FR-VECTOR-005", fmt.Errorf("vector: health probe: %w", err))
	}
	f.Close()
	return os.Remove(probe)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
