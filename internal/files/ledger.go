package files

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

const ledgerFileName = "file_metadata.json"

// Ledger is one tenant's consolidated file-record store: a flat JSON
// list rewritten atomically on every mutation. A ledger file that cannot
// be parsed is treated as empty so a single corrupt write never bricks
// the tenant; the lost records resurface when their files are re-ingested.
type Ledger struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
}

// NewLedger opens the file ledger in dir, creating the directory if
// needed.
func NewLedger(dir string, logger *logging.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ledger{path: filepath.Join(dir, ledgerFileName), logger: logger}, nil
}

func (l *Ledger) load(ctx context.Context) ([]*FileRecord, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading file ledger: %w", err)
	}
	var records []*FileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		l.logger.Warn(ctx, "file ledger unparseable, starting empty",
			zap.String("path", l.path),
			zap.Error(err),
		)
		return nil, nil
	}
	return records, nil
}

func (l *Ledger) save(records []*FileRecord) error {
	if records == nil {
		records = []*FileRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling file ledger: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing file ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing file ledger: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the record with the same id.
func (l *Ledger) Upsert(ctx context.Context, rec *FileRecord) error {
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
func (l *Ledger) Get(ctx context.Context, id string) (*FileRecord, error) {
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
	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, id)
}

// GetByName returns the most recently uploaded record with the name.
func (l *Ledger) GetByName(ctx context.Context, name string) (*FileRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	var found *FileRecord
	for _, rec := range records {
		if rec.FileName != name {
			continue
		}
		if found == nil || rec.UploadDate.After(found.UploadDate) {
			found = rec
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return found, nil
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

// List returns all records ordered by upload date, newest first.
func (l *Ledger) List(ctx context.Context) ([]*FileRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(a, b int) bool {
		return records[a].UploadDate.After(records[b].UploadDate)
	})
	return records, nil
}
