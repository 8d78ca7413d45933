package app

import (
	"fmt"

	"github.com/complyra/complyra-backend/internal/embedding"
	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/platform/vector"
	"github.com/complyra/complyra-backend/internal/services"
)

type Services struct {
	Embedder      *embedding.Embedder
	VectorStore   vector.Store
	Tracker       services.JobTracker
	KnowledgeBase services.KnowledgeBaseService
	Analysis      services.AnalysisService
	RAG           services.RAGService
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	embedder, err := embedding.NewEmbedder(log, clients.OpenAI)
	if err != nil {
		return Services{}, fmt.Errorf("init embedder: %w", err)
	}

	vec, err := resolveVectorStore(log, cfg.VectorProvider, embedder.Dimension())
	if err != nil {
		return Services{}, fmt.Errorf("init vector store: %w", err)
	}

	tracker := services.NewJobTracker(log, reposet.AnalysisJob, reposet.KBDocument, clients.Redis)

	kb := services.NewKnowledgeBaseService(
		log,
		reposet.KBDocument,
		tracker,
		clients.Bucket,
		clients.Extractor,
		embedder,
		vec,
	)

	analysis := services.NewAnalysisService(
		log,
		reposet.AnalysisJob,
		tracker,
		clients.Bucket,
		clients.Extractor,
		embedder,
		vec,
		clients.OpenAI,
		services.NewDefaultScorer(),
	)

	rag := services.NewRAGService(
		log,
		reposet.QueryRecord,
		embedder,
		vec,
		clients.OpenAI,
	)

	return Services{
		Embedder:      embedder,
		VectorStore:   vec,
		Tracker:       tracker,
		KnowledgeBase: kb,
		Analysis:      analysis,
		RAG:           rag,
	}, nil
}
