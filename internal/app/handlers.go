package app

import (
	httpH "github.com/complyra/complyra-backend/internal/http/handlers"
	"github.com/complyra/complyra-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	KB       *httpH.KBHandler
	Analysis *httpH.AnalysisHandler
	Query    *httpH.QueryHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		KB:       httpH.NewKBHandler(log, serviceset.KnowledgeBase),
		Analysis: httpH.NewAnalysisHandler(log, serviceset.Analysis),
		Query:    httpH.NewQueryHandler(log, serviceset.RAG),
	}
}
