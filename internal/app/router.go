package app

import (
	"github.com/gin-gonic/gin"

	internalHTTP "github.com/complyra/complyra-backend/internal/http"
	"github.com/complyra/complyra-backend/internal/platform/logger"
)

func wireRouter(log *logger.Logger, handlerset Handlers, middleware Middleware) *gin.Engine {
	return internalHTTP.NewRouter(internalHTTP.RouterConfig{
		Log:             log,
		AuthMiddleware:  middleware.Auth,
		HealthHandler:   handlerset.Health,
		KBHandler:       handlerset.KB,
		AnalysisHandler: handlerset.Analysis,
		QueryHandler:    handlerset.Query,
	})
}
