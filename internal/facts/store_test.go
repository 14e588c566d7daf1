package facts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/facts"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

const (
	beachFact    = "User enjoys going to beaches"
	beachRephr   = "User likes beaches"
	mountainFact = "User enjoys hiking in mountains"
)

type stubEmbedder struct {
	dim  int
	vecs map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.vecs[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	return embeddings.ZeroVector(s.dim), nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func newTestStore(t *testing.T, cfg facts.Config) (*facts.Store, *vectorstore.Provider) {
	t.Helper()
	embedder := &stubEmbedder{dim: 3, vecs: map[string][]float32{
		beachFact:    {1, 0, 0},
		beachRephr:   {0.99, 0.1, 0},
		mountainFact: {0, 1, 0},
		"beaches":    {0.98, 0.15, 0},
	}}
	logger := logging.NewNop()
	dataDir := t.TempDir()

	stores, err := vectorstore.NewProvider(vectorstore.ProviderConfig{
		DataDir:   dataDir,
		Dimension: 3,
	}, embedder, logger)
	require.NoError(t, err)

	store, err := facts.NewStore(cfg, dataDir, stores, embedder, logger)
	require.NoError(t, err)
	return store, stores
}

func aliceCtx() context.Context {
	return tenant.WithInfo(context.Background(), &tenant.Info{UserID: "alice"})
}

func TestAddFactCreatesRecord(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	id, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "I love the beach!", 0.9)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	all, err := store.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, beachFact, all[0].Fact)
	assert.Equal(t, facts.CategoryPreference, all[0].Category)
	assert.InDelta(t, 0.9, all[0].Confidence, 1e-9)
}

func TestAddFactMergesNearDuplicate(t *testing.T) {
	store, stores := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	first, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "original source", 0.7)
	require.NoError(t, err)

	// Same category, cosine above the threshold: merged, not inserted.
	second, err := store.AddFact(ctx, beachRephr, facts.CategoryPreference, "newer source", 0.9)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	all, err := store.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	// Higher confidence wins: text keeps the original, source updates.
	assert.Equal(t, beachFact, all[0].Fact)
	assert.Equal(t, "newer source", all[0].SourceText)
	assert.InDelta(t, 0.9, all[0].Confidence, 1e-9)

	vstore, err := stores.Open(ctx, vectorstore.CollectionFacts)
	require.NoError(t, err)
	assert.Equal(t, 1, vstore.Count())
}

func TestAddFactMergeKeepsHigherConfidence(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	_, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "strong source", 0.9)
	require.NoError(t, err)
	_, err = store.AddFact(ctx, beachRephr, facts.CategoryPreference, "weak source", 0.3)
	require.NoError(t, err)

	all, err := store.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "strong source", all[0].SourceText)
	assert.InDelta(t, 0.9, all[0].Confidence, 1e-9)
}

func TestAddFactDistinctFactsCoexist(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	beach, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)
	mountain, err := store.AddFact(ctx, mountainFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)
	assert.NotEqual(t, beach, mountain)

	all, err := store.ListFacts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAddFactSameEmbeddingDifferentCategoryNotMerged(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	_, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)
	_, err = store.AddFact(ctx, beachRephr, facts.CategoryHabit, "", 0.8)
	require.NoError(t, err)

	all, err := store.ListFacts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAddFactValidation(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	_, err := store.AddFact(ctx, "", facts.CategoryPreference, "", 0.5)
	assert.ErrorIs(t, err, facts.ErrInvalidFact)

	_, err = store.AddFact(ctx, "something", "mood", "", 0.5)
	assert.ErrorIs(t, err, facts.ErrInvalidCategory)

	_, err = store.AddFact(ctx, "something", facts.CategoryOther, "", 1.5)
	assert.ErrorIs(t, err, facts.ErrInvalidFact)

	_, err = store.AddFact(context.Background(), beachFact, facts.CategoryPreference, "", 0.5)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
}

func TestSearchFacts(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	_, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)
	_, err = store.AddFact(ctx, mountainFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)

	hits, err := store.SearchFacts(ctx, "beaches", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, beachFact, hits[0].Fact.Fact)
	assert.Greater(t, hits[0].Similarity, 0.9)
}

func TestSearchFactsSkipsDeleted(t *testing.T) {
	// High cadence so the delete does not trigger a compaction; the
	// stale vector must be filtered out by the ledger check.
	store, _ := newTestStore(t, facts.Config{RebuildEvery: 100})
	ctx := aliceCtx()

	id, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)
	removed, err := store.DeleteFact(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	hits, err := store.SearchFacts(ctx, "beaches", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCompactionPrunesDeletedVectors(t *testing.T) {
	store, stores := newTestStore(t, facts.Config{RebuildEvery: 3})
	ctx := aliceCtx()

	beach, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)
	_, err = store.AddFact(ctx, mountainFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)

	// Third write hits the cadence and compacts from the ledger.
	removed, err := store.DeleteFact(ctx, beach)
	require.NoError(t, err)
	require.True(t, removed)

	vstore, err := stores.Open(ctx, vectorstore.CollectionFacts)
	require.NoError(t, err)
	assert.Equal(t, 1, vstore.Count())

	hits, err := store.SearchFacts(ctx, "beaches", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, mountainFact, hits[0].Fact.Fact)
}

func TestFactsByCategory(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	_, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "", 0.8)
	require.NoError(t, err)
	_, err = store.AddFact(ctx, mountainFact, facts.CategoryHabit, "", 0.8)
	require.NoError(t, err)

	prefs, err := store.FactsByCategory(ctx, facts.CategoryPreference)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, beachFact, prefs[0].Fact)

	_, err = store.FactsByCategory(ctx, "mood")
	assert.ErrorIs(t, err, facts.ErrInvalidCategory)
}

func TestUpdateFact(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})
	ctx := aliceCtx()

	id, err := store.AddFact(ctx, beachFact, facts.CategoryPreference, "", 0.5)
	require.NoError(t, err)

	newConf := 0.95
	updated, err := store.UpdateFact(ctx, id, facts.FactUpdate{Confidence: &newConf})
	require.NoError(t, err)
	assert.InDelta(t, 0.95, updated.Confidence, 1e-9)
	assert.Equal(t, beachFact, updated.Fact)

	_, err = store.UpdateFact(ctx, "missing", facts.FactUpdate{Confidence: &newConf})
	assert.ErrorIs(t, err, facts.ErrFactNotFound)
}

func TestDeleteFactMissing(t *testing.T) {
	store, _ := newTestStore(t, facts.Config{})

	removed, err := store.DeleteFact(aliceCtx(), "missing")
	require.NoError(t, err)
	assert.False(t, removed)
}
