package conversation_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/conversation"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

type constEmbedder struct{ dim int }

func (c *constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := embeddings.ZeroVector(c.dim)
	vec[0] = 1
	return vec, nil
}

func (c *constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, _ := c.Embed(ctx, texts[i])
		out[i] = vec
	}
	return out, nil
}

func (c *constEmbedder) Dimension() int { return c.dim }

func newTestStore(t *testing.T, cfg conversation.Config) *conversation.Store {
	t.Helper()
	embedder := &constEmbedder{dim: 2}
	stores, err := vectorstore.NewProvider(vectorstore.ProviderConfig{
		DataDir:   t.TempDir(),
		Dimension: 2,
	}, embedder, logging.NewNop())
	require.NoError(t, err)

	store, err := conversation.NewStore(cfg, stores, embedder, logging.NewNop())
	require.NoError(t, err)
	return store
}

func aliceCtx() context.Context {
	return tenant.WithInfo(context.Background(), &tenant.Info{UserID: "alice"})
}

func TestAddAndRecent(t *testing.T) {
	store := newTestStore(t, conversation.Config{})
	ctx := aliceCtx()
	now := time.Now().UTC()

	id, err := store.Add(ctx, "What is the capital of France?", "Paris.", "atlas", now)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "What is the capital of France?", records[0].UserQuery)
	assert.Equal(t, "Paris.", records[0].Response)
	assert.Equal(t, "atlas", records[0].AgentName)
	assert.Equal(t, "alice", records[0].UserID)
}

func TestRecentFiltersByWindow(t *testing.T) {
	store := newTestStore(t, conversation.Config{})
	ctx := aliceCtx()
	now := time.Now().UTC()

	_, err := store.Add(ctx, "old question", "old answer", "", now.AddDate(0, 0, -2))
	require.NoError(t, err)
	_, err = store.Add(ctx, "new question", "new answer", "", now)
	require.NoError(t, err)

	records, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new question", records[0].UserQuery)
}

func TestRecentHistoryFormat(t *testing.T) {
	store := newTestStore(t, conversation.Config{})
	ctx := aliceCtx()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := store.Add(ctx, "first q", "first a", "", now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = store.Add(ctx, "second q", "second a", "helper", now)
	require.NoError(t, err)

	history, err := store.RecentHistory(ctx, 1)
	require.NoError(t, err)

	// Ascending order, each entry timestamped.
	first := strings.Index(history, "User: first q")
	second := strings.Index(history, "User: second q")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	assert.Contains(t, history, "["+now.Format(time.RFC3339)+"]")
	assert.Contains(t, history, "Agent: first a")
	assert.Contains(t, history, "Agent helper: second a")
}

func TestRecentCapsAtLimitKeepingNewest(t *testing.T) {
	store := newTestStore(t, conversation.Config{HistoryLimit: 3})
	ctx := aliceCtx()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, err := store.Add(ctx, "q", "a", "", now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	records, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	// The newest three survive, still ascending.
	assert.Equal(t, now.Add(2*time.Minute).Unix(), records[0].Timestamp.Unix())
	assert.Equal(t, now.Add(4*time.Minute).Unix(), records[2].Timestamp.Unix())
}

func TestRecentEmpty(t *testing.T) {
	store := newTestStore(t, conversation.Config{})

	history, err := store.RecentHistory(aliceCtx(), 7)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAddRequiresTenant(t *testing.T) {
	store := newTestStore(t, conversation.Config{})

	_, err := store.Add(context.Background(), "q", "a", "", time.Time{})
	assert.ErrorIs(t, err, tenant.ErrMissingTenant)
}

func TestAddRequiresContent(t *testing.T) {
	store := newTestStore(t, conversation.Config{})

	_, err := store.Add(aliceCtx(), "", "", "", time.Time{})
	assert.Error(t, err)
}
