// Package vectorstore implements the embedding-indexed storage layer: a
// flat similarity index with an explicit position-to-id ledger, plus a
// durable metadata sidecar per vector, partitioned per tenant.
package vectorstore

import (
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates empty or nil records.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrInvalidRecord indicates a record with a missing id or embedding.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexCorrupt indicates the persisted index and its position ledger
	// disagree and the pair must be rebuilt from the metadata ledger.
	ErrIndexCorrupt = errors.New("index and position ledger are inconsistent")

	// ErrInvalidCollection indicates a collection name validation failure.
	ErrInvalidCollection = errors.New("invalid collection name")
)

// VectorRecord is one indexed vector with its metadata sidecar.
//
// Records are never mutated in place: an update is modeled as delete plus
// re-add. The record's id appears in exactly one index position; the set of
// ids in the position ledger equals the set of sidecars after any
// successful operation.
type VectorRecord struct {
	// ID is the unique record identifier (UUID) within a tenant's store.
	ID string `json:"id"`

	// UserID is the owning tenant.
	UserID string `json:"user_id"`

	// Embedding is the raw (unnormalized) vector as produced by the
	// embedding provider.
	Embedding []float32 `json:"embedding"`

	// Attributes carries everything needed to interpret a search hit:
	// record type, source ids, chunk spans, timestamps.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Hit is a raw nearest-neighbor result from the flat index.
type Hit struct {
	// ID is the record identifier resolved through the position ledger.
	ID string

	// Position is the index position the hit came from.
	Position int

	// Distance is the squared L2 distance between normalized vectors,
	// ascending. Callers derive similarity as 1 - min(distance, 1).
	Distance float32
}

// SemanticHit is a search hit materialized through the metadata ledger.
type SemanticHit struct {
	// Record is the full sidecar record for the hit.
	Record *VectorRecord

	// Distance is the raw index distance.
	Distance float32

	// Similarity is 1 - min(distance, 1), in [0, 1].
	Similarity float64
}

// Similarity converts an index distance to the consumers' similarity
// convention.
func Similarity(distance float32) float64 {
	d := float64(distance)
	if d > 1 {
		d = 1
	}
	return 1 - d
}
