package facts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

const (
	recordTypeFact = "fact"

	// dedupCandidates is how many same-category neighbors are checked
	// for a near-duplicate before a new fact is created.
	dedupCandidates = 5
)

// Config holds fact store settings.
type Config struct {
	// DedupThreshold merges two same-category facts whose exact cosine
	// similarity exceeds it.
	DedupThreshold float64

	// RebuildEvery triggers an index compaction after this many write
	// operations per tenant.
	RebuildEvery int
}

// ApplyDefaults fills in zero-valued settings.
func (c *Config) ApplyDefaults() {
	if c.DedupThreshold == 0 {
		c.DedupThreshold = 0.95
	}
	if c.RebuildEvery == 0 {
		c.RebuildEvery = 10
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("dedup threshold must be in (0, 1], got %f", c.DedupThreshold)
	}
	if c.RebuildEvery <= 0 {
		return fmt.Errorf("rebuild cadence must be positive, got %d", c.RebuildEvery)
	}
	return nil
}

// tenantState is the per-tenant fact ledger plus its compaction counter.
// The counter is in-memory; a restart just defers the next compaction.
type tenantState struct {
	ledger *Ledger
	writes int
}

// Store is the append-only user fact store. Near-duplicate facts within a
// category are merged instead of inserted, and every RebuildEvery writes
// the tenant's facts index is compacted from the ledger, pruning vectors
// for facts that were merged or deleted away.
type Store struct {
	config   Config
	dataDir  string
	stores   *vectorstore.Provider
	embedder embeddings.Provider
	logger   *logging.Logger

	mu      sync.Mutex
	tenants map[string]*tenantState
}

// NewStore creates the fact store.
func NewStore(cfg Config, dataDir string, stores *vectorstore.Provider, embedder embeddings.Provider, logger *logging.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if dataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if stores == nil || embedder == nil {
		return nil, fmt.Errorf("stores and embedder are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		config:   cfg,
		dataDir:  dataDir,
		stores:   stores,
		embedder: embedder,
		logger:   logger,
		tenants:  make(map[string]*tenantState),
	}, nil
}

func (s *Store) stateFor(ctx context.Context) (*tenantState, error) {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.tenants[info.UserID]; ok {
		return st, nil
	}
	ledger, err := NewLedger(info.Dir(s.dataDir), s.logger)
	if err != nil {
		return nil, err
	}
	st := &tenantState{ledger: ledger}
	s.tenants[info.UserID] = st
	return st, nil
}

// AddFact stores a fact, merging it into an existing near-duplicate of
// the same category when one exists. It returns the id of the surviving
// record: the merged-into candidate's id, or a fresh id for a new fact.
func (s *Store) AddFact(ctx context.Context, fact string, category Category, sourceText string, confidence float64) (string, error) {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	rec := &FactRecord{
		ID:         uuid.NewString(),
		UserID:     info.UserID,
		Fact:       fact,
		Category:   category,
		SourceText: sourceText,
		Confidence: confidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}

	st, err := s.stateFor(ctx)
	if err != nil {
		return "", err
	}
	store, err := s.stores.Open(ctx, vectorstore.CollectionFacts)
	if err != nil {
		return "", err
	}

	embedding, err := s.embedder.Embed(ctx, fact)
	if err != nil {
		return "", fmt.Errorf("embedding fact: %w", err)
	}

	if dup, err := s.findDuplicate(ctx, st, store, embedding, category); err != nil {
		return "", err
	} else if dup != nil {
		if confidence > dup.Confidence {
			dup.Confidence = confidence
			dup.SourceText = sourceText
			dup.UpdatedAt = now
			if err := st.ledger.Upsert(ctx, dup); err != nil {
				return "", err
			}
		}
		s.logger.Debug(ctx, "merged duplicate fact",
			zap.String("fact_id", dup.ID),
			zap.String("category", string(category)),
		)
		return dup.ID, nil
	}

	if err := st.ledger.Upsert(ctx, rec); err != nil {
		return "", err
	}
	vrec := &vectorstore.VectorRecord{
		ID:        rec.ID,
		UserID:    info.UserID,
		Embedding: embedding,
		Attributes: map[string]any{
			"record_type": recordTypeFact,
			"fact":        rec.Fact,
			"category":    string(rec.Category),
			"user_id":     info.UserID,
			"created_at":  rec.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := store.Add(ctx, []*vectorstore.VectorRecord{vrec}); err != nil {
		// Keep the two sides consistent: no vector, no fact.
		_, _ = st.ledger.Delete(ctx, rec.ID)
		return "", err
	}

	if err := s.noteWrite(ctx, st, store); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// findDuplicate searches the same-category neighborhood of the embedding
// and returns the first live fact whose exact cosine similarity exceeds
// the dedup threshold.
func (s *Store) findDuplicate(ctx context.Context, st *tenantState, store *vectorstore.Store, embedding []float32, category Category) (*FactRecord, error) {
	if store.Count() == 0 {
		return nil, nil
	}
	// Over-fetch: the nearest neighbors may belong to other categories
	// or to facts already deleted from the ledger.
	hits, err := store.Search(ctx, embedding, dedupCandidates*4)
	if err != nil {
		return nil, err
	}

	checked := 0
	for _, hit := range hits {
		if checked == dedupCandidates {
			break
		}
		vrec, found, err := store.Get(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		attrs := vrec.Attributes
		if strAttr(attrs, "record_type") != recordTypeFact || strAttr(attrs, "category") != string(category) {
			continue
		}
		rec, err := st.ledger.Get(ctx, vrec.ID)
		if err != nil {
			// Vector for a fact deleted from the ledger; pruned at the
			// next compaction.
			continue
		}
		checked++
		if vectorstore.CosineSimilarity(embedding, vrec.Embedding) > s.config.DedupThreshold {
			return rec, nil
		}
	}
	return nil, nil
}

// SearchFacts returns up to topK facts ranked by similarity to the query.
// Hits whose fact was deleted from the ledger are skipped.
func (s *Store) SearchFacts(ctx context.Context, query string, topK int) ([]FactHit, error) {
	if topK <= 0 {
		topK = 10
	}
	st, err := s.stateFor(ctx)
	if err != nil {
		return nil, err
	}
	store, err := s.stores.Open(ctx, vectorstore.CollectionFacts)
	if err != nil {
		return nil, err
	}

	hits, err := store.SemanticSearch(ctx, query, topK*2, 0)
	if err != nil {
		return nil, err
	}
	results := make([]FactHit, 0, topK)
	for _, hit := range hits {
		if strAttr(hit.Record.Attributes, "record_type") != recordTypeFact {
			continue
		}
		rec, err := st.ledger.Get(ctx, hit.Record.ID)
		if err != nil {
			continue
		}
		results = append(results, FactHit{Fact: rec, Similarity: hit.Similarity})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// FactsByCategory returns the tenant's facts in the category.
func (s *Store) FactsByCategory(ctx context.Context, category Category) ([]*FactRecord, error) {
	st, err := s.stateFor(ctx)
	if err != nil {
		return nil, err
	}
	return st.ledger.ByCategory(ctx, category)
}

// ListFacts returns all of the tenant's facts, oldest first.
func (s *Store) ListFacts(ctx context.Context) ([]*FactRecord, error) {
	st, err := s.stateFor(ctx)
	if err != nil {
		return nil, err
	}
	return st.ledger.List(ctx)
}

// FactUpdate names the mutable fields of a fact. Nil fields are left
// unchanged.
type FactUpdate struct {
	Fact       *string
	Category   *Category
	SourceText *string
	Confidence *float64
}

// UpdateFact applies updates to the fact record. A changed fact text
// keeps its stale index vector until the next compaction re-embeds it.
func (s *Store) UpdateFact(ctx context.Context, id string, updates FactUpdate) (*FactRecord, error) {
	st, err := s.stateFor(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := st.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if updates.Fact != nil {
		rec.Fact = *updates.Fact
	}
	if updates.Category != nil {
		rec.Category = *updates.Category
	}
	if updates.SourceText != nil {
		rec.SourceText = *updates.SourceText
	}
	if updates.Confidence != nil {
		rec.Confidence = *updates.Confidence
	}
	rec.UpdatedAt = time.Now().UTC()

	if err := st.ledger.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	store, err := s.stores.Open(ctx, vectorstore.CollectionFacts)
	if err != nil {
		return nil, err
	}
	if err := s.noteWrite(ctx, st, store); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteFact removes the fact from the ledger, reporting whether a record
// was removed; deleting an absent id is a successful no-op. The index
// vector survives until the next compaction prunes it; searches filter it
// out meanwhile.
func (s *Store) DeleteFact(ctx context.Context, id string) (bool, error) {
	st, err := s.stateFor(ctx)
	if err != nil {
		return false, err
	}
	removed, err := st.ledger.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	store, err := s.stores.Open(ctx, vectorstore.CollectionFacts)
	if err != nil {
		return true, err
	}
	return true, s.noteWrite(ctx, st, store)
}

// noteWrite bumps the tenant's write counter and compacts the index once
// the cadence is reached.
func (s *Store) noteWrite(ctx context.Context, st *tenantState, store *vectorstore.Store) error {
	s.mu.Lock()
	st.writes++
	due := st.writes >= s.config.RebuildEvery
	if due {
		st.writes = 0
	}
	s.mu.Unlock()

	if !due {
		return nil
	}
	return s.compact(ctx, st, store)
}

// compact rebuilds the tenant's facts index from the ledger, pruning
// vectors for merged-away or deleted facts and re-embedding any fact
// whose text changed since its vector was built.
func (s *Store) compact(ctx context.Context, st *tenantState, store *vectorstore.Store) error {
	records, err := st.ledger.List(ctx)
	if err != nil {
		return err
	}

	vrecs := make([]*vectorstore.VectorRecord, 0, len(records))
	for _, rec := range records {
		embedding, err := s.embeddingFor(ctx, store, rec)
		if err != nil {
			return err
		}
		vrecs = append(vrecs, &vectorstore.VectorRecord{
			ID:        rec.ID,
			UserID:    rec.UserID,
			Embedding: embedding,
			Attributes: map[string]any{
				"record_type": recordTypeFact,
				"fact":        rec.Fact,
				"category":    string(rec.Category),
				"user_id":     rec.UserID,
				"created_at":  rec.CreatedAt.Format(time.RFC3339),
			},
		})
	}

	if err := store.Rebuild(ctx, vrecs); err != nil {
		return fmt.Errorf("compacting facts index: %w", err)
	}
	s.logger.Info(ctx, "compacted facts index",
		zap.Int("fact_count", len(vrecs)),
	)
	return nil
}

// embeddingFor reuses the stored vector when its text still matches the
// ledger, and re-embeds otherwise.
func (s *Store) embeddingFor(ctx context.Context, store *vectorstore.Store, rec *FactRecord) ([]float32, error) {
	vrec, found, err := store.Get(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if found && strAttr(vrec.Attributes, "fact") == rec.Fact {
		return vrec.Embedding, nil
	}
	embedding, err := s.embedder.Embed(ctx, rec.Fact)
	if err != nil {
		return nil, fmt.Errorf("re-embedding fact %s: %w", rec.ID, err)
	}
	return embedding, nil
}

func strAttr(attrs map[string]any, key string) string {
	if s, ok := attrs[key].(string); ok {
		return s
	}
	return ""
}
