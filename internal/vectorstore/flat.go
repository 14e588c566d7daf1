package vectorstore

import (
	"fmt"
	"sort"
)

// FlatIndex is an append-only exact nearest-neighbor index over float32
// vectors, paired with a position ledger mapping index positions to record
// ids.
//
// The ledger is what makes positional search results resolvable: position i
// always resolves to ids[i]. A flat index trades lookup scalability for
// simplicity and exact recall, which fits the expected per-tenant corpus
// sizes. There is no in-place delete; removal happens through Rebuild with
// the surviving records.
//
// FlatIndex is not safe for concurrent use; Store serializes access.
type FlatIndex struct {
	dim     int
	vectors []float32 // contiguous arena, len == count*dim, unit-normalized
	ids     []string  // position ledger, ids[i] owns vectors[i*dim:(i+1)*dim]
	gen     uint32    // persisted save generation, stamped into both files
}

// NewFlatIndex creates an empty index of the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Dimension returns the vector dimension.
func (x *FlatIndex) Dimension() int {
	return x.dim
}

// Len returns the number of indexed vectors.
func (x *FlatIndex) Len() int {
	return len(x.ids)
}

// IDs returns a copy of the position ledger in insertion order.
func (x *FlatIndex) IDs() []string {
	out := make([]string, len(x.ids))
	copy(out, x.ids)
	return out
}

// Add appends vectors and their ids to the index. Vectors are normalized
// on entry; zero vectors are kept as-is so they rank last.
func (x *FlatIndex) Add(vectors [][]float32, ids []string) error {
	if len(vectors) == 0 {
		return ErrEmptyRecords
	}
	if len(vectors) != len(ids) {
		return fmt.Errorf("%w: %d vectors but %d ids", ErrInvalidRecord, len(vectors), len(ids))
	}
	for i, vec := range vectors {
		if ids[i] == "" {
			return fmt.Errorf("%w: empty id at position %d", ErrInvalidRecord, i)
		}
		if len(vec) != x.dim {
			return fmt.Errorf("%w: expected %d, got %d at position %d", ErrDimensionMismatch, x.dim, len(vec), i)
		}
	}

	for i, vec := range vectors {
		x.vectors = append(x.vectors, normalized(vec)...)
		x.ids = append(x.ids, ids[i])
	}
	return nil
}

// Search returns up to k nearest vectors by squared L2 distance, ascending.
// Ties are broken by ledger order, earliest inserted first.
func (x *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, x.dim, len(query))
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	q := normalized(query)
	hits := make([]Hit, len(x.ids))
	for i := range x.ids {
		vec := x.vectors[i*x.dim : (i+1)*x.dim]
		hits[i] = Hit{
			ID:       x.ids[i],
			Position: i,
			Distance: squaredL2(q, vec),
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].Position < hits[b].Position
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// truncate discards every position at or beyond n. Used to undo an
// append whose persist failed.
func (x *FlatIndex) truncate(n int) {
	if n < 0 || n >= len(x.ids) {
		return
	}
	x.ids = x.ids[:n]
	x.vectors = x.vectors[:n*x.dim]
}

// Rebuild wipes the index and reconstructs it from an authoritative record
// set. This is the only way entries leave the index.
func (x *FlatIndex) Rebuild(vectors [][]float32, ids []string) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("%w: %d vectors but %d ids", ErrInvalidRecord, len(vectors), len(ids))
	}
	fresh := &FlatIndex{dim: x.dim}
	if len(vectors) > 0 {
		if err := fresh.Add(vectors, ids); err != nil {
			return err
		}
	}
	x.vectors = fresh.vectors
	x.ids = fresh.ids
	return nil
}
