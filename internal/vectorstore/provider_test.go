package vectorstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

func newTestProvider(t *testing.T) (*vectorstore.Provider, string) {
	t.Helper()
	dir := t.TempDir()
	embedder := &stubEmbedder{dim: 3, vecs: map[string][]float32{"beach": {1, 0, 0}}}
	p, err := vectorstore.NewProvider(vectorstore.ProviderConfig{
		DataDir:   dir,
		Dimension: 3,
	}, embedder, logging.NewNop())
	require.NoError(t, err)
	return p, dir
}

func tenantCtx(userID string) context.Context {
	return tenant.WithInfo(context.Background(), &tenant.Info{UserID: userID})
}

func TestProviderFailClosedWithoutTenant(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.Open(context.Background(), vectorstore.CollectionFacts)
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
}

func TestProviderRejectsInvalidCollection(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := tenantCtx("alice")

	for _, name := range []string{"", "Facts", "../../etc", "facts stuff"} {
		_, err := p.Open(ctx, name)
		assert.ErrorIs(t, err, vectorstore.ErrInvalidCollection, "collection %q", name)
	}
}

func TestProviderCachesPerPartition(t *testing.T) {
	p, dir := newTestProvider(t)

	aliceFacts, err := p.Open(tenantCtx("alice"), vectorstore.CollectionFacts)
	require.NoError(t, err)
	again, err := p.Open(tenantCtx("alice"), vectorstore.CollectionFacts)
	require.NoError(t, err)
	assert.Same(t, aliceFacts, again)

	aliceFiles, err := p.Open(tenantCtx("alice"), vectorstore.CollectionFiles)
	require.NoError(t, err)
	assert.NotSame(t, aliceFacts, aliceFiles)

	bobFacts, err := p.Open(tenantCtx("bob"), vectorstore.CollectionFacts)
	require.NoError(t, err)
	assert.NotSame(t, aliceFacts, bobFacts)

	// Directory-per-tenant, collection subdirectory each.
	assert.DirExists(t, filepath.Join(dir, "alice", "facts"))
	assert.DirExists(t, filepath.Join(dir, "alice", "files"))
	assert.DirExists(t, filepath.Join(dir, "bob", "facts"))
}

func TestProviderTenantIsolation(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	aliceStore, err := p.Open(tenantCtx("alice"), vectorstore.CollectionFacts)
	require.NoError(t, err)
	require.NoError(t, aliceStore.Add(ctx, []*vectorstore.VectorRecord{
		rec("beach-1", []float32{1, 0, 0}, nil),
	}))

	bobStore, err := p.Open(tenantCtx("bob"), vectorstore.CollectionFacts)
	require.NoError(t, err)
	assert.Equal(t, 0, bobStore.Count())

	hits, err := bobStore.SemanticSearch(ctx, "beach", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestProviderConfigValidate(t *testing.T) {
	embedder := &stubEmbedder{dim: 3}

	_, err := vectorstore.NewProvider(vectorstore.ProviderConfig{Dimension: 3}, embedder, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)

	_, err = vectorstore.NewProvider(vectorstore.ProviderConfig{DataDir: t.TempDir()}, embedder, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)

	_, err = vectorstore.NewProvider(vectorstore.ProviderConfig{DataDir: t.TempDir(), Dimension: 3}, nil, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
