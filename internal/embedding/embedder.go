package embedding

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/complyra/complyra-backend/internal/platform/logger"
)

const (
	DefaultDimension   = 1536
	DefaultBatchSize   = 128
	DefaultConcurrency = 6
)

type EmbeddingError struct {
	Batch  int
	Reason string
	Cause  error
}

func (e *EmbeddingError) Error() string {
	if e == nil {
		return "embedding failed"
	}
	return fmt.Sprintf("embedding failed (batch=%d): %s", e.Batch, e.Reason)
}

func (e *EmbeddingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// EmbedClient is the provider slice this package needs.
type EmbedClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Embedder embeds texts in batches through a bounded worker pool. Results
// keep input order; a failed batch fails the whole call.
type Embedder struct {
	log         *logger.Logger
	client      EmbedClient
	dimension   int
	batchSize   int
	concurrency int
}

func NewEmbedder(log *logger.Logger, client EmbedClient) (*Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("embed client required")
	}
	return &Embedder{
		log:         log.With("service", "Embedder"),
		client:      client,
		dimension:   envInt("EMBEDDING_DIMENSION", DefaultDimension),
		batchSize:   envInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize),
		concurrency: envInt("EMBEDDING_CONCURRENCY", DefaultConcurrency),
	}, nil
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, &EmbeddingError{Batch: i / e.batchSize, Reason: fmt.Sprintf("text %d is empty", i)}
		}
	}

	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	batch := 0
	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		batchIdx := batch
		batch++
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			vecs, err := e.client.Embed(gctx, texts[start:end])
			if err != nil {
				return &EmbeddingError{Batch: batchIdx, Reason: "provider call failed", Cause: err}
			}
			if len(vecs) != end-start {
				return &EmbeddingError{
					Batch:  batchIdx,
					Reason: fmt.Sprintf("provider returned %d vectors for %d texts", len(vecs), end-start),
				}
			}
			for i, v := range vecs {
				if e.dimension > 0 && len(v) != e.dimension {
					return &EmbeddingError{
						Batch:  batchIdx,
						Reason: fmt.Sprintf("vector %d dimension mismatch: expected=%d got=%d", start+i, e.dimension, len(v)),
					}
				}
				out[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
