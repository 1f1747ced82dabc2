package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/velding/newsrag/internal/models"
	"go.etcd.io/bbolt"
)

var (
	bucketMeta    = []byte("meta")
	bucketEntries = []byte("entries")
	keyMeta       = []byte("index")
)

type fileMeta struct {
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	SavedAt   time.Time `json:"savedAt"`
}

// FileIndex holds the entries in memory for brute-force cosine search and
// persists them wholesale to a single bbolt file.
type FileIndex struct {
	mu      sync.RWMutex
	dim     int
	entries []models.Entry
	built   bool
}

func NewFileIndex() *FileIndex {
	return &FileIndex{}
}

// Build replaces any previously held index with the given entries. All
// entry vectors must share one dimension.
func (idx *FileIndex) Build(entries []models.Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("cannot build an index from zero entries")
	}

	dim := len(entries[0].Vector)
	for i, entry := range entries {
		if len(entry.Vector) != dim {
			return fmt.Errorf("entry %d has dimension %d, index dimension is %d",
				i, len(entry.Vector), dim)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.dim = dim
	idx.entries = make([]models.Entry, len(entries))
	copy(idx.entries, entries)
	idx.built = true

	return nil
}

// Persist writes the index to a bbolt file at path, replacing any
// previous snapshot.
func (idx *FileIndex) Persist(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.built {
		return ErrNotBuilt
	}

	// Remove the previous snapshot so each persist is a clean overwrite.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &PersistError{Path: path, Err: err}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return &PersistError{Path: path, Err: err}
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		entries, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}

		metaData, err := json.Marshal(fileMeta{
			Dimension: idx.dim,
			Count:     len(idx.entries),
			SavedAt:   time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := meta.Put(keyMeta, metaData); err != nil {
			return err
		}

		for i, entry := range idx.entries {
			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, uint64(i))
			if err := entries.Put(key, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &PersistError{Path: path, Err: err}
	}

	return nil
}

// Load reads a previously persisted index from path, replacing any
// in-memory state.
func (idx *FileIndex) Load(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrNotFound
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		return &CorruptError{Path: path, Err: err}
	}
	defer db.Close()

	var meta fileMeta
	var entries []models.Entry

	err = db.View(func(tx *bbolt.Tx) error {
		metaBucket := tx.Bucket(bucketMeta)
		entriesBucket := tx.Bucket(bucketEntries)
		if metaBucket == nil || entriesBucket == nil {
			return fmt.Errorf("missing index buckets")
		}

		metaData := metaBucket.Get(keyMeta)
		if metaData == nil {
			return fmt.Errorf("missing index metadata")
		}
		if err := json.Unmarshal(metaData, &meta); err != nil {
			return err
		}

		entries = make([]models.Entry, 0, meta.Count)
		return entriesBucket.ForEach(func(_, data []byte) error {
			var entry models.Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
			if len(entry.Vector) != meta.Dimension {
				return fmt.Errorf("entry dimension %d does not match index dimension %d",
					len(entry.Vector), meta.Dimension)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return &CorruptError{Path: path, Err: err}
	}

	if len(entries) != meta.Count {
		return &CorruptError{
			Path: path,
			Err:  fmt.Errorf("expected %d entries, found %d", meta.Count, len(entries)),
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.dim = meta.Dimension
	idx.entries = entries
	idx.built = true

	return nil
}

// Search returns the k entries most similar to the query vector by cosine
// similarity, best first. Fewer than k are returned when the index is
// smaller.
func (idx *FileIndex) Search(query []float32, k int) ([]models.Scored, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.built {
		return nil, ErrNotBuilt
	}
	if len(query) != idx.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
			len(query), idx.dim)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive")
	}

	results := make([]models.Scored, 0, len(idx.entries))
	for _, entry := range idx.entries {
		results = append(results, models.Scored{
			Entry: entry,
			Score: cosineSimilarity(query, entry.Vector),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}

	return results, nil
}

// Count returns the number of indexed entries, zero when unbuilt.
func (idx *FileIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
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

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return float32(dot / denom)
}
