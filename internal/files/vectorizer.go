package files

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/chunker"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/tenant"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

const recordTypeFileChunk = "file_chunk"

// Service orchestrates file vectorization: it keeps each FileRecord's
// RelatedVectors list exactly in sync with the chunk vectors indexed in
// the tenant's files collection.
type Service struct {
	dataDir  string
	stores   *vectorstore.Provider
	chunker  *chunker.Chunker
	embedder embeddings.Provider
	logger   *logging.Logger

	mu      sync.Mutex
	ledgers map[string]*Ledger
}

// NewService creates the file vectorization service.
func NewService(dataDir string, stores *vectorstore.Provider, chunk *chunker.Chunker, embedder embeddings.Provider, logger *logging.Logger) (*Service, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	if stores == nil || chunk == nil || embedder == nil {
		return nil, fmt.Errorf("stores, chunker, and embedder are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		dataDir:  dataDir,
		stores:   stores,
		chunker:  chunk,
		embedder: embedder,
		logger:   logger,
		ledgers:  make(map[string]*Ledger),
	}, nil
}

// Ledger returns the context tenant's file ledger.
func (s *Service) Ledger(ctx context.Context) (*Ledger, error) {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.ledgers[info.UserID]; ok {
		return l, nil
	}
	l, err := NewLedger(info.Dir(s.dataDir), s.logger)
	if err != nil {
		return nil, err
	}
	s.ledgers[info.UserID] = l
	return l, nil
}

// Vectorize re-indexes a file's text. Existing vectors for the file are
// removed first, then the text is chunked, embedded, and added to the
// files collection. On success the record's RelatedVectors holds exactly
// the new vector ids and the status is complete; on any failure the
// status is vectorization_error and RelatedVectors is empty.
func (s *Service) Vectorize(ctx context.Context, fileID, text string) error {
	info, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	ledger, err := s.Ledger(ctx)
	if err != nil {
		return err
	}
	rec, err := ledger.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if text == "" {
		text = rec.TextContent
	}

	rec.ProcessingStatus = StatusProcessing
	rec.UpdatedAt = time.Now().UTC()
	if err := ledger.Upsert(ctx, rec); err != nil {
		return err
	}

	fail := func(cause error) error {
		rec.ProcessingStatus = StatusVectorizationError
		rec.RelatedVectors = []string{}
		rec.UpdatedAt = time.Now().UTC()
		if uerr := ledger.Upsert(ctx, rec); uerr != nil {
			s.logger.Error(ctx, "failed to record vectorization error",
				zap.String("file_id", fileID),
				zap.Error(uerr),
			)
		}
		return fmt.Errorf("vectorizing file %s: %w", fileID, cause)
	}

	if _, err := s.DeleteExistingVectors(ctx, fileID); err != nil {
		return fail(err)
	}
	// DeleteExistingVectors rewrote the record; reload before mutating.
	rec, err = ledger.Get(ctx, fileID)
	if err != nil {
		return fail(err)
	}

	chunks := s.chunker.Chunk(ctx, text)
	if len(chunks) == 0 {
		rec.ProcessingStatus = StatusComplete
		rec.RelatedVectors = []string{}
		rec.UpdatedAt = time.Now().UTC()
		return ledger.Upsert(ctx, rec)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(err)
	}

	records := make([]*vectorstore.VectorRecord, len(chunks))
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		id := uuid.NewString()
		ids[i] = id
		records[i] = &vectorstore.VectorRecord{
			ID:        id,
			UserID:    info.UserID,
			Embedding: vectors[i],
			Attributes: map[string]any{
				"record_type": recordTypeFileChunk,
				"file_id":     rec.ID,
				"file_name":   rec.FileName,
				"file_type":   rec.FileType,
				"user_id":     info.UserID,
				"chunk_index": ch.Index,
				"chunk_text":  ch.Text,
				"start":       ch.Start,
				"end":         ch.End,
				"upload_date": rec.UploadDate.UTC().Format(time.RFC3339),
			},
		}
	}

	store, err := s.stores.Open(ctx, vectorstore.CollectionFiles)
	if err != nil {
		return fail(err)
	}
	if err := store.Add(ctx, records); err != nil {
		return fail(err)
	}

	rec.ProcessingStatus = StatusComplete
	rec.RelatedVectors = ids
	rec.UpdatedAt = time.Now().UTC()
	if err := ledger.Upsert(ctx, rec); err != nil {
		return fail(err)
	}

	s.logger.Info(ctx, "vectorized file",
		zap.String("file_id", fileID),
		zap.String("file_name", rec.FileName),
		zap.Int("chunk_count", len(chunks)),
	)
	return nil
}

// DeleteExistingVectors removes every vector currently referenced by the
// file record and clears its RelatedVectors list. Removing a file with no
// vectors is a successful no-op.
func (s *Service) DeleteExistingVectors(ctx context.Context, fileID string) (bool, error) {
	ledger, err := s.Ledger(ctx)
	if err != nil {
		return false, err
	}
	rec, err := ledger.Get(ctx, fileID)
	if err != nil {
		return false, err
	}
	if len(rec.RelatedVectors) == 0 {
		return true, nil
	}

	store, err := s.stores.Open(ctx, vectorstore.CollectionFiles)
	if err != nil {
		return false, err
	}
	if err := store.Delete(ctx, rec.RelatedVectors); err != nil {
		return false, err
	}

	rec.RelatedVectors = []string{}
	rec.UpdatedAt = time.Now().UTC()
	if err := ledger.Upsert(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteFile removes the file record and all of its vectors.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := s.DeleteExistingVectors(ctx, fileID); err != nil {
		return err
	}
	ledger, err := s.Ledger(ctx)
	if err != nil {
		return err
	}
	_, err = ledger.Delete(ctx, fileID)
	return err
}

// Search returns ranked chunk hits for the query, optionally restricted
// to a single file name.
func (s *Service) Search(ctx context.Context, query string, limit int, fileName string) ([]ChunkHit, error) {
	if limit <= 0 {
		limit = 10
	}
	store, err := s.stores.Open(ctx, vectorstore.CollectionFiles)
	if err != nil {
		return nil, err
	}

	// When filtering by file name the top hits may belong to other
	// files, so over-fetch before filtering.
	topK := limit
	if fileName != "" {
		topK = limit * 5
	}
	hits, err := store.SemanticSearch(ctx, query, topK, 0)
	if err != nil {
		return nil, err
	}

	results := make([]ChunkHit, 0, limit)
	for _, hit := range hits {
		attrs := hit.Record.Attributes
		if attrString(attrs, "record_type") != recordTypeFileChunk {
			continue
		}
		if fileName != "" && attrString(attrs, "file_name") != fileName {
			continue
		}
		results = append(results, ChunkHit{
			FileID:     attrString(attrs, "file_id"),
			FileName:   attrString(attrs, "file_name"),
			ChunkText:  attrString(attrs, "chunk_text"),
			ChunkIndex: attrInt(attrs, "chunk_index"),
			Start:      attrInt(attrs, "start"),
			End:        attrInt(attrs, "end"),
			Similarity: hit.Similarity,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func attrString(attrs map[string]any, key string) string {
	if s, ok := attrs[key].(string); ok {
		return s
	}
	return ""
}

// attrInt tolerates both freshly built int attributes and float64 values
// decoded from JSON sidecars.
func attrInt(attrs map[string]any, key string) int {
	switch v := attrs[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
