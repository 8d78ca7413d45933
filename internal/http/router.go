package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/complyra/complyra-backend/internal/http/handlers"
	httpMW "github.com/complyra/complyra-backend/internal/http/middleware"
	"github.com/complyra/complyra-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware

	KBHandler       *httpH.KBHandler
	AnalysisHandler *httpH.AnalysisHandler
	QueryHandler    *httpH.QueryHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("complyra-backend"))
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Knowledge base
		if cfg.KBHandler != nil {
			protected.POST("/kb/upload", cfg.KBHandler.Upload)
			protected.POST("/kb/process", cfg.KBHandler.Process)
			protected.GET("/kb/documents", cfg.KBHandler.ListDocuments)
			protected.DELETE("/kb/documents/:id", cfg.KBHandler.DeleteDocument)
		}

		// Analysis
		if cfg.AnalysisHandler != nil {
			protected.POST("/analyze/upload", cfg.AnalysisHandler.CreateUploadURL)
			protected.POST("/analyze", cfg.AnalysisHandler.Analyze)
			protected.GET("/analyze/:id", cfg.AnalysisHandler.GetAnalysis)
			protected.GET("/analyze", cfg.AnalysisHandler.ListAnalyses)
			protected.DELETE("/analyze/:id", cfg.AnalysisHandler.DeleteAnalysis)
		}

		// Query
		if cfg.QueryHandler != nil {
			protected.POST("/query", cfg.QueryHandler.Query)
			protected.GET("/query/history", cfg.QueryHandler.History)
		}
	}

	return r
}
