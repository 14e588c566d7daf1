package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
)

var tracer = otel.Tracer("recalld.vectorstore")

// StoreConfig holds configuration for a tenant-collection store.
type StoreConfig struct {
	// Dir is the collection directory, e.g. <data>/<tenant>/facts.
	Dir string

	// UserID is the owning tenant. All records must carry it.
	UserID string

	// Dimension is the embedding dimension.
	Dimension int
}

// Validate validates the configuration.
func (c StoreConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir required", ErrInvalidConfig)
	}
	if c.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Store couples a FlatIndex with its metadata Ledger for one tenant
// collection and enforces their joint invariant: after any successful
// operation the set of ids in the position ledger equals the set of ids
// with a sidecar.
//
// A single RWMutex serializes writers per collection. Add, Delete, and
// Rebuild hold the write lock, so a rebuild is always exclusive with
// concurrent adds and searches on the same partition. Stores are cached
// per (tenant, collection) by Provider, which makes the lock effective
// process-wide.
type Store struct {
	mu       sync.RWMutex
	index    *FlatIndex
	ledger   *Ledger
	embedder embeddings.Provider
	config   StoreConfig
	logger   *logging.Logger
}

// NewStore opens or creates the store at cfg.Dir, loading any persisted
// index pair. A corrupt pair is rebuilt from the sidecar ledger, which is
// the authoritative record set.
func NewStore(cfg StoreConfig, embedder embeddings.Provider, logger *logging.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	ledger, err := NewLedger(cfg.Dir, logger)
	if err != nil {
		return nil, err
	}

	s := &Store{
		ledger:   ledger,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}

	ctx := context.Background()
	index, err := LoadFlatIndex(cfg.Dir, cfg.Dimension)
	if err != nil {
		logger.Warn(ctx, "persisted index unusable, rebuilding from sidecars",
			zap.String("dir", cfg.Dir),
			zap.Error(err),
		)
		index, err = NewFlatIndex(cfg.Dimension)
		if err != nil {
			return nil, err
		}
		s.index = index
		if err := s.rebuildFromLedgerLocked(ctx); err != nil {
			return nil, fmt.Errorf("recovering index from sidecars: %w", err)
		}
		return s, nil
	}

	s.index = index
	return s, nil
}

// Count returns the number of indexed records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}

// IDs returns the position ledger in order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.IDs()
}

// Add appends records to the index and writes their sidecars. The index
// pair is persisted before returning. Sidecars are written first so an
// index persist failure can be compensated by removing them, keeping the
// no-orphans invariant on both sides.
func (s *Store) Add(ctx context.Context, records []*VectorRecord) error {
	ctx, span := tracer.Start(ctx, "Store.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", s.config.UserID),
		attribute.Int("record_count", len(records)),
	)

	if len(records) == 0 {
		return ErrEmptyRecords
	}
	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			return fmt.Errorf("%w: missing id", ErrInvalidRecord)
		}
		if rec.UserID != s.config.UserID {
			return fmt.Errorf("%w: record %s belongs to tenant %q, store owned by %q",
				ErrInvalidRecord, rec.ID, rec.UserID, s.config.UserID)
		}
		if len(rec.Embedding) != s.config.Dimension {
			return fmt.Errorf("%w: record %s has dimension %d, expected %d",
				ErrDimensionMismatch, rec.ID, len(rec.Embedding), s.config.Dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written := make([]string, 0, len(records))
	fail := func(err error) error {
		for _, id := range written {
			_, _ = s.ledger.Delete(ctx, id)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for _, rec := range records {
		if err := s.ledger.Put(ctx, rec); err != nil {
			return fail(err)
		}
		written = append(written, rec.ID)
	}

	vectors := make([][]float32, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		vectors[i] = rec.Embedding
		ids[i] = rec.ID
	}
	before := s.index.Len()
	if err := s.index.Add(vectors, ids); err != nil {
		return fail(err)
	}
	if err := s.index.Save(s.config.Dir); err != nil {
		// Roll the in-memory index back alongside the sidecars.
		s.index.truncate(before)
		return fail(fmt.Errorf("persisting index: %w", err))
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug(ctx, "added records",
		zap.Int("count", len(records)),
		zap.Int("index_size", s.index.Len()),
	)
	return nil
}

// Search returns up to k raw nearest-neighbor hits for the query vector.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", s.config.UserID),
		attribute.Int("k", k),
	)

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.index.Search(query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("hit_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Get returns the sidecar record for id.
func (s *Store) Get(ctx context.Context, id string) (*VectorRecord, bool, error) {
	return s.ledger.Get(ctx, id)
}

// List returns every sidecar record in id order. Time-window queries
// scan sidecars directly instead of going through the index.
func (s *Store) List(ctx context.Context) ([]*VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.List(ctx)
}

// SemanticSearch embeds the query text and returns up to topK hits
// materialized through the metadata ledger, filtered to similarity >=
// minScore. Hits whose sidecar is missing or corrupt are skipped.
func (s *Store) SemanticSearch(ctx context.Context, query string, topK int, minScore float64) ([]SemanticHit, error) {
	ctx, span := tracer.Start(ctx, "Store.SemanticSearch")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", s.config.UserID),
		attribute.Int("top_k", topK),
		attribute.Float64("min_score", minScore),
	)

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	// A zero query embedding means the embedding service degraded; a zero
	// query against a zero stored vector would score a perfect match, so
	// the only honest answer is no results.
	if embeddings.IsZero(queryVec) {
		s.logger.Warn(ctx, "query embedding degraded to zero vector, returning no results",
			zap.String("user_id", s.config.UserID),
		)
		span.SetAttributes(attribute.Int("result_count", 0))
		span.SetStatus(codes.Ok, "degraded query")
		return []SemanticHit{}, nil
	}

	if s.Count() == 0 {
		return []SemanticHit{}, nil
	}

	hits, err := s.Search(ctx, queryVec, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]SemanticHit, 0, len(hits))
	for _, hit := range hits {
		rec, found, err := s.ledger.Get(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			s.logger.Warn(ctx, "search hit has no sidecar, skipping",
				zap.String("id", hit.ID),
			)
			continue
		}
		// Records indexed while the embedding service was degraded carry
		// zero vectors; they never match anything.
		if embeddings.IsZero(rec.Embedding) {
			continue
		}
		sim := Similarity(hit.Distance)
		if sim < minScore {
			continue
		}
		results = append(results, SemanticHit{
			Record:     rec,
			Distance:   hit.Distance,
			Similarity: sim,
		})
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Delete removes the given ids, deleting their sidecars and rebuilding
// the index from the survivors in their original insertion order. Absent
// ids are ignored; deleting nothing is a successful no-op.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "Store.Delete")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", s.config.UserID),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "no-op")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}
	for _, id := range ids {
		if _, err := s.ledger.Delete(ctx, id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	if err := s.rebuildSurvivorsLocked(ctx, doomed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug(ctx, "deleted records",
		zap.Int("count", len(ids)),
		zap.Int("index_size", s.index.Len()),
	)
	return nil
}

// Rebuild wipes and reconstructs the index pair from an authoritative
// record list, replacing all sidecars not in the list.
func (s *Store) Rebuild(ctx context.Context, records []*VectorRecord) error {
	ctx, span := tracer.Start(ctx, "Store.Rebuild")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", s.config.UserID),
		attribute.Int("record_count", len(records)),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool, len(records))
	vectors := make([][]float32, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		if rec == nil || rec.ID == "" {
			return fmt.Errorf("%w: missing id at position %d", ErrInvalidRecord, i)
		}
		if len(rec.Embedding) != s.config.Dimension {
			return fmt.Errorf("%w: record %s has dimension %d, expected %d",
				ErrDimensionMismatch, rec.ID, len(rec.Embedding), s.config.Dimension)
		}
		keep[rec.ID] = true
		vectors[i] = rec.Embedding
		ids[i] = rec.ID
	}

	// Drop sidecars for anything the authoritative list no longer names.
	existing, err := s.ledger.List(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	for _, rec := range existing {
		if !keep[rec.ID] {
			if _, err := s.ledger.Delete(ctx, rec.ID); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}
	for _, rec := range records {
		if err := s.ledger.Put(ctx, rec); err != nil {
			span.RecordError(err)
			return err
		}
	}

	if err := s.index.Rebuild(vectors, ids); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.index.Save(s.config.Dir); err != nil {
		span.RecordError(err)
		return fmt.Errorf("persisting rebuilt index: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info(ctx, "rebuilt index",
		zap.Int("record_count", len(records)),
	)
	return nil
}

// rebuildSurvivorsLocked reconstructs the index from the current ledger,
// preserving the original insertion order of surviving positions. Caller
// holds the write lock.
func (s *Store) rebuildSurvivorsLocked(ctx context.Context, doomed map[string]bool) error {
	var vectors [][]float32
	var ids []string
	for _, id := range s.index.IDs() {
		if doomed[id] {
			continue
		}
		rec, found, err := s.ledger.Get(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			// Sidecar lost or corrupt: the record is gone, drop it from
			// the index too rather than keep an unresolvable position.
			continue
		}
		vectors = append(vectors, rec.Embedding)
		ids = append(ids, id)
	}
	if err := s.index.Rebuild(vectors, ids); err != nil {
		return err
	}
	return s.index.Save(s.config.Dir)
}

// rebuildFromLedgerLocked reconstructs the index from all sidecars.
// Used for crash recovery when the persisted pair is unusable.
func (s *Store) rebuildFromLedgerLocked(ctx context.Context) error {
	records, err := s.ledger.List(ctx)
	if err != nil {
		return err
	}
	vectors := make([][]float32, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != s.config.Dimension {
			s.logger.Warn(ctx, "skipping sidecar with wrong dimension",
				zap.String("id", rec.ID),
				zap.Int("dimension", len(rec.Embedding)),
			)
			continue
		}
		vectors = append(vectors, rec.Embedding)
		ids = append(ids, rec.ID)
	}
	if err := s.index.Rebuild(vectors, ids); err != nil {
		return err
	}
	return s.index.Save(s.config.Dir)
}
