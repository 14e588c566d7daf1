package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
)

// Well-known collection names. Each collection owns its own index pair
// and sidecar directory, so a rebuild in one never touches another.
const (
	CollectionFiles         = "files"
	CollectionFacts         = "facts"
	CollectionConversations = "conversations"
)

var collectionNameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// ProviderConfig configures a store provider.
type ProviderConfig struct {
	// DataDir is the root under which per-tenant directories live.
	DataDir string

	// Dimension is the embedding dimension shared by all collections.
	Dimension int
}

// Validate validates the configuration.
func (c ProviderConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data dir required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Provider hands out Stores partitioned by (tenant, collection). Tenant
// identity comes from the request context and is fail-closed: a context
// without a valid tenant cannot reach any store. One Store instance is
// cached per partition so its mutex serializes all writers process-wide.
type Provider struct {
	config   ProviderConfig
	embedder embeddings.Provider
	logger   *logging.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewProvider creates a store provider.
func NewProvider(cfg ProviderConfig, embedder embeddings.Provider, logger *logging.Logger) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provider{
		config:   cfg,
		embedder: embedder,
		logger:   logger,
		stores:   make(map[string]*Store),
	}, nil
}

// Open returns the store for the context tenant and the named collection,
// creating its directory on first use.
func (p *Provider) Open(ctx context.Context, collection string) (*Store, error) {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !collectionNameRe.MatchString(collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}

	key := info.UserID + "/" + collection

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.stores[key]; ok {
		return s, nil
	}

	s, err := NewStore(StoreConfig{
		Dir:       filepath.Join(info.Dir(p.config.DataDir), collection),
		UserID:    info.UserID,
		Dimension: p.config.Dimension,
	}, p.embedder, p.logger)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", key, err)
	}
	p.stores[key] = s
	return s, nil
}
