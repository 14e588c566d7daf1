package embeddings

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/logging"
)

// FailSoft wraps a Provider and converts every failure into a zero vector
// of the provider's dimension.
//
// This is the deliberate fail-soft boundary of the store: callers on the
// ingest path must never crash because the embedding service is down. The
// degraded vectors rank below every real match, so retrieval quality
// degrades to "no results" rather than wrong results. Failures are visible
// only through logs and the degraded counter.
type FailSoft struct {
	inner   Provider
	model   string
	logger  *logging.Logger
	metrics *Metrics
}

// NewFailSoft creates a fail-soft wrapper around a provider. The model name
// is used only for log and metric labels.
func NewFailSoft(inner Provider, model string, logger *logging.Logger, metrics *Metrics) *FailSoft {
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = NewNopMetrics()
	}
	return &FailSoft{
		inner:   inner,
		model:   model,
		logger:  logger,
		metrics: metrics,
	}
}

// Embed returns the inner provider's embedding, or a zero vector on failure.
func (f *FailSoft) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := f.inner.Embed(ctx, text)
	if err != nil {
		f.logger.Warn(ctx, "embedding failed, degrading to zero vector",
			zap.String("model", f.model),
			zap.Int("text_len", len(text)),
			zap.Error(err),
		)
		f.metrics.RecordDegraded(ctx, f.model, 1)
		return ZeroVector(f.inner.Dimension()), nil
	}
	return vec, nil
}

// EmbedBatch returns the inner provider's embeddings, or all-zero vectors
// on failure. The degradation is all-or-nothing: a partial batch would make
// chunk ordering ambiguous for callers.
func (f *FailSoft) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := f.inner.EmbedBatch(ctx, texts)
	if err != nil {
		f.logger.Warn(ctx, "batch embedding failed, degrading to zero vectors",
			zap.String("model", f.model),
			zap.Int("batch_size", len(texts)),
			zap.Error(err),
		)
		f.metrics.RecordDegraded(ctx, f.model, len(texts))
		vectors = make([][]float32, len(texts))
		for i := range vectors {
			vectors[i] = ZeroVector(f.inner.Dimension())
		}
		return vectors, nil
	}
	return vectors, nil
}

// Dimension returns the inner provider's dimension.
func (f *FailSoft) Dimension() int {
	return f.inner.Dimension()
}

var _ Provider = (*FailSoft)(nil)
