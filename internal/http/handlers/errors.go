package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/complyra/complyra-backend/internal/http/response"
	"github.com/complyra/complyra-backend/internal/platform/apierr"
	"github.com/complyra/complyra-backend/internal/services"
)

// respondServiceError maps service errors onto HTTP statuses. Errors the
// service tagged with a status pass through; rejected state transitions are
// conflicts; anything else gets the handler's fallback.
func respondServiceError(c *gin.Context, fallbackStatus int, fallbackCode string, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		response.RespondError(c, apiErr.Status, apiErr.Code, apiErr)
		return
	}
	var transitionErr *services.TransitionError
	if errors.As(err, &transitionErr) {
		response.RespondError(c, http.StatusConflict, "state_conflict",
			apierr.Conflict("state_conflict", transitionErr))
		return
	}
	response.RespondError(c, fallbackStatus, fallbackCode, err)
}
