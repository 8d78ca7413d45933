package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/complyra/complyra-backend/internal/http/response"
	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/services"
	"github.com/complyra/complyra-backend/internal/types"
)

const maxQueryRunes = 5000

type QueryHandler struct {
	log *logger.Logger
	svc services.RAGService
}

func NewQueryHandler(log *logger.Logger, svc services.RAGService) *QueryHandler {
	return &QueryHandler{log: log.With("handler", "QueryHandler"), svc: svc}
}

type queryRequest struct {
	QueryText           string   `json:"queryText" binding:"required"`
	QueryType           string   `json:"queryType"`
	MaxResults          *int     `json:"maxResults"`
	SimilarityThreshold *float64 `json:"similarityThreshold"`
}

func (h *QueryHandler) Query(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	queryText := strings.TrimSpace(req.QueryText)
	if queryText == "" || utf8.RuneCountInString(queryText) > maxQueryRunes {
		response.RespondError(c, http.StatusBadRequest, "invalid_query_text", nil)
		return
	}
	queryType := req.QueryType
	if queryType == "" {
		queryType = string(types.QueryTypeGeneral)
	}
	if !types.IsValidQueryType(queryType) {
		response.RespondError(c, http.StatusBadRequest, "invalid_query_type", nil)
		return
	}
	maxResults := 5
	if req.MaxResults != nil {
		maxResults = *req.MaxResults
		if maxResults < 1 || maxResults > 20 {
			response.RespondError(c, http.StatusBadRequest, "invalid_max_results", nil)
			return
		}
	}
	threshold := 0.7
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
		if threshold < 0 || threshold > 1 {
			response.RespondError(c, http.StatusBadRequest, "invalid_similarity_threshold", nil)
			return
		}
	}

	resp, err := h.svc.Query(c.Request.Context(), types.RAGQuery{
		UserID:              userID,
		QueryText:           queryText,
		QueryType:           types.QueryType(queryType),
		MaxResults:          maxResults,
		SimilarityThreshold: threshold,
	})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "query_failed", err)
		return
	}
	response.RespondOK(c, resp)
}

func (h *QueryHandler) History(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "history_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"queries": records})
}
