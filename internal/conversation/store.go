// Package conversation records user/agent exchanges and serves recent
// history for prompt injection. Retrieval is a time-window scan over the
// tenant's sidecars, not a similarity search: conversational context
// wants recency, not relevance.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

const recordTypeConversation = "conversation"

// Config holds conversation store settings.
type Config struct {
	// HistoryDays is the default retrieval window.
	HistoryDays int

	// HistoryLimit caps how many exchanges a history render includes.
	HistoryLimit int
}

// ApplyDefaults fills in zero-valued settings.
func (c *Config) ApplyDefaults() {
	if c.HistoryDays == 0 {
		c.HistoryDays = 7
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 10
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.HistoryDays <= 0 {
		return fmt.Errorf("history days must be positive, got %d", c.HistoryDays)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// Record is one stored user/agent exchange.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserQuery string    `json:"user_query"`
	Response  string    `json:"agent_response"`
	AgentName string    `json:"agent_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the append-only conversation log.
type Store struct {
	config   Config
	stores   *vectorstore.Provider
	embedder embeddings.Provider
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates the conversation store.
func NewStore(cfg Config, stores *vectorstore.Provider, embedder embeddings.Provider, logger *logging.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if stores == nil || embedder == nil {
		return nil, fmt.Errorf("stores and embedder are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		config:   cfg,
		stores:   stores,
		embedder: embedder,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Add logs one exchange. A zero timestamp means now. The exchange text is
// embedded so past conversations are also reachable by similarity search.
func (s *Store) Add(ctx context.Context, userQuery, agentResponse, agentName string, ts time.Time) (string, error) {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return "", err
	}
	if userQuery == "" && agentResponse == "" {
		return "", fmt.Errorf("conversation requires a query or a response")
	}
	if ts.IsZero() {
		ts = s.now().UTC()
	}

	embedding, err := s.embedder.Embed(ctx, userQuery+"\n"+agentResponse)
	if err != nil {
		return "", fmt.Errorf("embedding conversation: %w", err)
	}

	store, err := s.stores.Open(ctx, vectorstore.CollectionConversations)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	rec := &vectorstore.VectorRecord{
		ID:        id,
		UserID:    info.UserID,
		Embedding: embedding,
		Attributes: map[string]any{
			"record_type":    recordTypeConversation,
			"user_query":     userQuery,
			"agent_response": agentResponse,
			"agent_name":     agentName,
			"user_id":        info.UserID,
			"timestamp":      ts.UTC().Format(time.RFC3339),
		},
	}
	if err := store.Add(ctx, []*vectorstore.VectorRecord{rec}); err != nil {
		return "", err
	}

	s.logger.Debug(ctx, "logged conversation",
		zap.String("conversation_id", id),
		zap.String("agent_name", agentName),
	)
	return id, nil
}

// Recent returns the tenant's exchanges from the last days, ascending by
// timestamp, capped to the configured limit keeping the newest. Sidecars
// with an unparseable timestamp are skipped.
func (s *Store) Recent(ctx context.Context, days int) ([]Record, error) {
	if days <= 0 {
		days = s.config.HistoryDays
	}
	store, err := s.stores.Open(ctx, vectorstore.CollectionConversations)
	if err != nil {
		return nil, err
	}

	sidecars, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)

	records := make([]Record, 0, len(sidecars))
	for _, sc := range sidecars {
		attrs := sc.Attributes
		if strAttr(attrs, "record_type") != recordTypeConversation {
			continue
		}
		ts, err := time.Parse(time.RFC3339, strAttr(attrs, "timestamp"))
		if err != nil {
			s.logger.Warn(ctx, "skipping conversation with unparseable timestamp",
				zap.String("conversation_id", sc.ID),
				zap.Error(err),
			)
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		records = append(records, Record{
			ID:        sc.ID,
			UserID:    sc.UserID,
			UserQuery: strAttr(attrs, "user_query"),
			Response:  strAttr(attrs, "agent_response"),
			AgentName: strAttr(attrs, "agent_name"),
			Timestamp: ts,
		})
	}

	sort.Slice(records, func(a, b int) bool {
		return records[a].Timestamp.Before(records[b].Timestamp)
	})
	if len(records) > s.config.HistoryLimit {
		records = records[len(records)-s.config.HistoryLimit:]
	}
	return records, nil
}

// RecentHistory renders the recent window as a prompt-injection block:
// one entry per exchange, oldest first.
func (s *Store) RecentHistory(ctx context.Context, days int) (string, error) {
	records, err := s.Recent(ctx, days)
	if err != nil {
		return "", err
	}

	entries := make([]string, len(records))
	for i, rec := range records {
		agent := "Agent"
		if rec.AgentName != "" {
			agent = "Agent " + rec.AgentName
		}
		entries[i] = fmt.Sprintf("[%s]\nUser: %s\n%s: %s",
			rec.Timestamp.Format(time.RFC3339), rec.UserQuery, agent, rec.Response)
	}
	return strings.Join(entries, "\n\n"), nil
}

func strAttr(attrs map[string]any, key string) string {
	if s, ok := attrs[key].(string); ok {
		return s
	}
	return ""
}
