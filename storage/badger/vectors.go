package badger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

// VectorStore implements storage.VectorStore with an exhaustive cosine scan
// over one collection's records.
type VectorStore struct {
	backend *Backend
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a vector store on backend.
// Returns storage.VectorStore interface to enforce abstraction.
func NewVectorStore(backend *Backend) (storage.VectorStore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &VectorStore{backend: backend}, nil
}

// Upsert writes records and their document index entries in one transaction.
func (s *VectorStore) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		r := &records[i]
		if r.Id == "" {
			return fmt.Errorf("%w: record %d has no id", storage.ErrInvalidQuery, i)
		}
		if r.Metadata.CollectionId == "" {
			return fmt.Errorf("%w: record %s has no collection", storage.ErrInvalidQuery, r.Id)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %s has no vector", storage.ErrInvalidQuery, r.Id)
		}
	}

	return s.backend.update(ctx, func(tx *badger.Txn) error {
		for i := range records {
			r := &records[i]
			c := r.Metadata.CollectionId
			if err := tx.Set(makeVectorKey(c, r.Id), storage.MarshalVectorRecord(r)); err != nil {
				return err
			}
			if err := tx.Set(makeVectorDocKey(c, r.Metadata.DocumentId, r.Id), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query scores every record of the collection against vector and returns
// the best topK. Records whose dimension differs from vector are skipped.
func (s *VectorStore) Query(ctx context.Context, vector []float32, collectionID string, topK int) ([]core.VectorMatch, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, fmt.Errorf("%w: empty vector or non-positive topK", storage.ErrInvalidQuery)
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	var (
		matches []core.VectorMatch
		skipped int
	)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeVectorPrefix(collectionID), false, func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			record, err := storage.UnmarshalVectorRecord(val)
			if err != nil {
				return err
			}
			if len(record.Vector) != len(vector) {
				skipped++
				return nil
			}
			matches = append(matches, core.VectorMatch{
				Id:       record.Id,
				Score:    cosine(vector, record.Vector, queryNorm),
				Metadata: record.Metadata,
			})
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.backend.logger.Warn("skipped vectors with mismatched dimensions",
			"collection", collectionID, "skipped", skipped, "dimensions", len(vector))
	}

	slices.SortFunc(matches, func(a, b core.VectorMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteDocument removes a document's records through its index entries.
func (s *VectorStore) DeleteDocument(ctx context.Context, collectionID string, documentID core.ID) (int, error) {
	prefix := makeVectorDocPrefix(collectionID, documentID)
	removed := 0
	err := s.backend.update(ctx, func(tx *badger.Txn) error {
		var indexKeys [][]byte
		err := scanPrefix(tx, prefix, true, func(key, _ []byte) error {
			indexKeys = append(indexKeys, key)
			return nil
		})
		if err != nil {
			return err
		}

		removed = 0
		for _, key := range indexKeys {
			id := core.ID(key[len(prefix):])
			if err := tx.Delete(makeVectorKey(collectionID, id)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Count returns the number of records in collectionID.
func (s *VectorStore) Count(ctx context.Context, collectionID string) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeVectorPrefix(collectionID), true, func(_, _ []byte) error {
			count++
			return nil
		})
	}, false)
	return count, err
}

// Close is a no-op; the Backend owns the database.
func (s *VectorStore) Close() error {
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of a and b given a's norm.
func cosine(a, b []float32, aNorm float64) float32 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	bNorm := norm(b)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (aNorm * bNorm))
}
