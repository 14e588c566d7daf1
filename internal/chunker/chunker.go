// Package chunker splits document text into retrievable spans. The
// semantic splitter segments on paragraph boundaries and closes a chunk
// wherever adjacent paragraph embeddings diverge; a fixed-window splitter
// backs it up so vectorization never halts on a chunker failure.
package chunker

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

// Chunk is one contiguous span of a source document. Start and End are
// byte offsets into the original text: the chunk text reconstructs from
// text[Start:End] modulo the blank-line join between its paragraphs.
type Chunk struct {
	Text  string
	Start int
	End   int
	Index int
}

// Config holds semantic chunker settings.
type Config struct {
	// SimilarityThreshold closes a chunk when adjacent paragraph cosine
	// similarity falls below it.
	SimilarityThreshold float64

	// WindowSize is the fixed-window fallback chunk size in bytes.
	WindowSize int

	// WindowOverlap is the overlap between consecutive fallback windows.
	WindowOverlap int
}

// ApplyDefaults fills in zero-valued settings.
func (c *Config) ApplyDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.85
	}
	if c.WindowSize == 0 {
		c.WindowSize = 1000
	}
	if c.WindowOverlap == 0 {
		c.WindowOverlap = 100
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0, 1], got %f", c.SimilarityThreshold)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.WindowOverlap < 0 || c.WindowOverlap >= c.WindowSize {
		return fmt.Errorf("window overlap must be in [0, window size), got %d", c.WindowOverlap)
	}
	return nil
}

// Chunker is the semantic text splitter.
type Chunker struct {
	config   Config
	embedder embeddings.Provider
	logger   *logging.Logger
}

// New creates a semantic chunker.
func New(cfg Config, embedder embeddings.Provider, logger *logging.Logger) (*Chunker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Chunker{config: cfg, embedder: embedder, logger: logger}, nil
}

// Chunk splits text into semantically coherent spans. Paragraphs are
// segmented on blank lines; a chunk closes wherever the cosine similarity
// between adjacent paragraph embeddings drops below the threshold. If
// paragraph embedding fails, the fixed-window splitter takes over.
func (c *Chunker) Chunk(ctx context.Context, text string) []Chunk {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil
	}
	if len(paras) == 1 {
		return []Chunk{{Text: text, Start: 0, End: len(text), Index: 0}}
	}

	texts := make([]string, len(paras))
	for i, p := range paras {
		texts[i] = p.text
	}
	vectors, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) != len(paras) {
		c.logger.Warn(ctx, "paragraph embedding failed, using fixed windows",
			zap.Int("paragraph_count", len(paras)),
			zap.Error(err),
		)
		return FixedChunks(text, c.config.WindowSize, c.config.WindowOverlap)
	}

	var chunks []Chunk
	open := []paragraph{paras[0]}
	for i := 1; i < len(paras); i++ {
		sim := vectorstore.CosineSimilarity(vectors[i-1], vectors[i])
		if sim < c.config.SimilarityThreshold {
			chunks = append(chunks, joinParagraphs(open, len(chunks)))
			open = open[:0]
		}
		open = append(open, paras[i])
	}
	chunks = append(chunks, joinParagraphs(open, len(chunks)))

	c.logger.Debug(ctx, "chunked text",
		zap.Int("paragraph_count", len(paras)),
		zap.Int("chunk_count", len(chunks)),
	)
	return chunks
}

// paragraph is a blank-line-delimited segment with its source span.
type paragraph struct {
	text  string
	start int
	end   int
}

// splitParagraphs segments text on blank-line boundaries, keeping the
// exact byte span of every paragraph. Whitespace-only lines count as
// blank; leading and trailing blank lines are not part of any paragraph.
func splitParagraphs(text string) []paragraph {
	var paras []paragraph
	offset := 0
	inPara := false
	var start, end int

	flush := func() {
		if inPara {
			paras = append(paras, paragraph{text: text[start:end], start: start, end: end})
			inPara = false
		}
	}

	for offset <= len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		var line string
		next := len(text) + 1
		if lineEnd >= 0 {
			line = text[offset : offset+lineEnd]
			next = offset + lineEnd + 1
		} else {
			line = text[offset:]
		}

		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			if !inPara {
				inPara = true
				start = offset
			}
			end = offset + len(line)
		}
		offset = next
	}
	flush()
	return paras
}

// joinParagraphs closes a chunk: paragraphs joined with a blank line,
// span from the first paragraph's start to the last one's end.
func joinParagraphs(paras []paragraph, index int) Chunk {
	texts := make([]string, len(paras))
	for i, p := range paras {
		texts[i] = p.text
	}
	return Chunk{
		Text:  strings.Join(texts, "\n\n"),
		Start: paras[0].start,
		End:   paras[len(paras)-1].end,
		Index: index,
	}
}
