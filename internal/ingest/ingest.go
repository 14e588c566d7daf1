// Package ingest watches an inbox directory and feeds dropped text files
// into the vectorization pipeline.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/files"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
)

// debounceWindow suppresses the duplicate Write events editors emit
// while saving a file.
const debounceWindow = 2 * time.Second

// Config holds ingest settings.
type Config struct {
	// InboxDir is the watched directory.
	InboxDir string

	// Extensions lists accepted file extensions, dot included.
	Extensions []string
}

// ApplyDefaults fills in zero-valued settings.
func (c *Config) ApplyDefaults() {
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".txt", ".md"}
	}
}

// Validate validates the configuration. InboxDir may stay empty when the
// watcher is only used for explicit ProcessFile calls.
func (c *Config) Validate() error {
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	return nil
}

// Watcher ingests files dropped into the inbox directory.
type Watcher struct {
	config Config
	files  *files.Service
	logger *logging.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewWatcher creates an inbox watcher.
func NewWatcher(cfg Config, svc *files.Service, logger *logging.Logger) (*Watcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if svc == nil {
		return nil, fmt.Errorf("file service is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		config: cfg,
		files:  svc,
		logger: logger,
		seen:   make(map[string]time.Time),
	}, nil
}

// Run watches the inbox until the context is canceled. Files already in
// the inbox at startup are processed first.
func (w *Watcher) Run(ctx context.Context) error {
	if w.config.InboxDir == "" {
		return fmt.Errorf("inbox dir is not configured")
	}
	if err := os.MkdirAll(w.config.InboxDir, 0o755); err != nil {
		return fmt.Errorf("creating inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.InboxDir); err != nil {
		return fmt.Errorf("watching inbox: %w", err)
	}

	if err := w.ScanOnce(ctx); err != nil {
		w.logger.Warn(ctx, "initial inbox scan failed", zap.Error(err))
	}

	w.logger.Info(ctx, "watching inbox",
		zap.String("dir", w.config.InboxDir),
		zap.Strings("extensions", w.config.Extensions),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(event.Name) || w.debounced(event.Name) {
				continue
			}
			if err := w.ProcessFile(ctx, event.Name); err != nil {
				w.logger.Error(ctx, "failed to ingest file",
					zap.String("path", event.Name),
					zap.Error(err),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

// ScanOnce processes every acceptable file currently in the inbox.
func (w *Watcher) ScanOnce(ctx context.Context) error {
	if w.config.InboxDir == "" {
		return fmt.Errorf("inbox dir is not configured")
	}
	entries, err := os.ReadDir(w.config.InboxDir)
	if err != nil {
		return fmt.Errorf("reading inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.config.InboxDir, entry.Name())
		if !w.accepts(path) {
			continue
		}
		if err := w.ProcessFile(ctx, path); err != nil {
			w.logger.Error(ctx, "failed to ingest file",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
	return nil
}

// ProcessFile reads one file, upserts its record in the context tenant's
// ledger, and vectorizes it. Re-ingesting a file name reuses its record
// so the old chunk vectors are replaced, not duplicated.
func (w *Watcher) ProcessFile(ctx context.Context, path string) error {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ledger, err := w.files.Ledger(ctx)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	now := time.Now().UTC()
	rec, err := ledger.GetByName(ctx, name)
	if err != nil {
		rec = &files.FileRecord{
			ID:         uuid.NewString(),
			FileName:   name,
			UploadDate: now,
		}
	}
	rec.FilePath = path
	rec.FileType = strings.TrimPrefix(filepath.Ext(path), ".")
	rec.FileSize = int64(len(data))
	rec.UserID = info.UserID
	rec.ProcessingStatus = files.StatusPending
	rec.TextContent = string(data)
	rec.UpdatedAt = now
	if err := ledger.Upsert(ctx, rec); err != nil {
		return err
	}

	w.logger.Info(ctx, "ingesting file",
		zap.String("file_id", rec.ID),
		zap.String("file_name", name),
		zap.Int64("size", rec.FileSize),
	)
	return w.files.Vectorize(ctx, rec.ID, rec.TextContent)
}

// accepts reports whether the path is an ingestable file: not hidden,
// with an allowed extension.
func (w *Watcher) accepts(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range w.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// debounced reports whether the path was processed inside the debounce
// window and records this sighting. Entries past the window are pruned
// so the map stays bounded by recent event volume, not daemon uptime.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	for p, last := range w.seen {
		if now.Sub(last) >= debounceWindow {
			delete(w.seen, p)
		}
	}
	if last, ok := w.seen[path]; ok && now.Sub(last) < debounceWindow {
		return true
	}
	w.seen[path] = now
	return false
}
