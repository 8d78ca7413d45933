package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/complyra/complyra-backend/internal/platform/apierr"
	"github.com/complyra/complyra-backend/internal/platform/ctxutil"
)

type APIError struct {
	Message       string `json:"message"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes the error envelope. Only errors the service layer
// tagged with apierr carry their own message to the client; everything else
// gets the generic status text, with the cause attached to the gin context
// for the request logger.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if msg == "" {
		msg = "unknown error"
	}
	if err != nil {
		_ = c.Error(err)
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) {
			msg = apiErr.Error()
		}
	}
	correlationID := ""
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		correlationID = td.RequestID
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message:       msg,
			Code:          code,
			CorrelationID: correlationID,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
