package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/logging"
)

const ledgerFileName = "user_facts.json"

// Ledger is one tenant's consolidated fact store: a flat JSON list
// rewritten atomically on every mutation. An unparseable ledger file is
// treated as empty rather than blocking the tenant.
type Ledger struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
}

// NewLedger opens the fact ledger in dir.
func NewLedger(dir string, logger *logging.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ledger{path: filepath.Join(dir, ledgerFileName), logger: logger}, nil
}

func (l *Ledger) load(ctx context.Context) ([]*FactRecord, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fact ledger: %w", err)
	}
	var records []*FactRecord
	if err := json.Unmarshal(data, &records); err != nil {
		l.logger.Warn(ctx, "fact ledger unparseable, starting empty",
			zap.String("path", l.path),
			zap.Error(err),
		)
		return nil, nil
	}
	return records, nil
}

func (l *Ledger) save(records []*FactRecord) error {
	if records == nil {
		records = []*FactRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling fact ledger: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing fact ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing fact ledger: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the record with the same id.
func (l *Ledger) Upsert(ctx context.Context, rec *FactRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range records {
		if existing.ID == rec.ID {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return l.save(records)
}

// Get returns the record for id.
func (l *Ledger) Get(ctx context.Context, id string) (*FactRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFactNotFound, id)
}

// Delete removes the record for id. Deleting an absent id returns false,
// not an error.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	kept := records[:0]
	removed := false
	for _, rec := range records {
		if rec.ID == id {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	if !removed {
		return false, nil
	}
	return true, l.save(kept)
}

// List returns all records ordered by creation time, oldest first.
func (l *Ledger) List(ctx context.Context) ([]*FactRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(a, b int) bool {
		return records[a].CreatedAt.Before(records[b].CreatedAt)
	})
	return records, nil
}

// ByCategory returns all records in the category, oldest first.
func (l *Ledger) ByCategory(ctx context.Context, category Category) ([]*FactRecord, error) {
	if !IsValidCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*FactRecord, 0, len(all))
	for _, rec := range all {
		if rec.Category == category {
			out = append(out, rec)
		}
	}
	return out, nil
}
