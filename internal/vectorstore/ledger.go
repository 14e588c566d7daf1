package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/logging"
)

const sidecarDirName = "vectors"

// Ledger stores one durable JSON sidecar per vector id.
//
// Sidecars carry the attributes needed to interpret a search hit. A
// sidecar that cannot be read or parsed is treated as absent: it is
// skipped with a warning and never aborts the surrounding batch.
type Ledger struct {
	dir    string
	logger *logging.Logger
}

// NewLedger creates a sidecar ledger rooted at dir.
func NewLedger(dir string, logger *logging.Logger) (*Ledger, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	sidecarDir := filepath.Join(dir, sidecarDirName)
	if err := os.MkdirAll(sidecarDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sidecar directory: %w", err)
	}
	return &Ledger{dir: sidecarDir, logger: logger}, nil
}

func (l *Ledger) sidecarPath(id string) string {
	return filepath.Join(l.dir, id+".json")
}

// Put writes the record's sidecar, replacing any existing one atomically.
func (l *Ledger) Put(ctx context.Context, rec *VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: sidecar requires an id", ErrInvalidRecord)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling sidecar %s: %w", rec.ID, err)
	}
	path := l.sidecarPath(rec.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing sidecar %s: %w", rec.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing sidecar %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for id. A missing or unreadable sidecar reports
// found=false without error.
func (l *Ledger) Get(ctx context.Context, id string) (*VectorRecord, bool, error) {
	data, err := os.ReadFile(l.sidecarPath(id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading sidecar %s: %w", id, err)
	}
	var rec VectorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		l.logger.Warn(ctx, "skipping corrupt sidecar",
			zap.String("id", id),
			zap.Error(err),
		)
		return nil, false, nil
	}
	return &rec, true, nil
}

// Delete removes the sidecar for id. Deleting an absent id returns false,
// not an error.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	err := os.Remove(l.sidecarPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting sidecar %s: %w", id, err)
	}
	return true, nil
}

// List enumerates all sidecar records in id order. Corrupt sidecars are
// skipped with a warning.
func (l *Ledger) List(ctx context.Context) ([]*VectorRecord, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("listing sidecars: %w", err)
	}

	records := make([]*VectorRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		rec, found, err := l.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(a, b int) bool { return records[a].ID < records[b].ID })
	return records, nil
}

// Count returns the number of sidecar files present.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("counting sidecars: %w", err)
	}
	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			n++
		}
	}
	return n, nil
}
