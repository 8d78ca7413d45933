package app

import (
	"fmt"

	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/platform/qdrant"
	"github.com/complyra/complyra-backend/internal/platform/vector"
)

var newQdrantVectorStore = qdrant.NewVectorStore

// resolveVectorStore selects the vector backend. "qdrant" is the production
// provider; "memory" keeps vectors in-process for local development and
// loses them on restart.
func resolveVectorStore(log *logger.Logger, provider string, embedDim int) (vector.Store, error) {
	switch provider {
	case "qdrant":
		cfg, err := qdrant.ResolveConfigFromEnvWithDim(embedDim)
		if err != nil {
			return nil, fmt.Errorf("resolve qdrant config: %w", err)
		}
		if cfg.VectorDim != embedDim {
			return nil, fmt.Errorf(
				"QDRANT_VECTOR_DIM=%d does not match embedding dimension %d",
				cfg.VectorDim, embedDim,
			)
		}
		log.Info(
			"Selecting vector store provider",
			"provider", provider,
			"qdrant_url", cfg.URL,
			"qdrant_collection", cfg.Collection,
			"qdrant_vector_dim", cfg.VectorDim,
		)
		return newQdrantVectorStore(log, cfg)
	case "memory":
		log.Warn("Selecting in-memory vector store, vectors are not persisted", "dim", embedDim)
		return vector.NewMemoryStore(embedDim), nil
	default:
		return nil, fmt.Errorf("unsupported VECTOR_PROVIDER %q", provider)
	}
}
