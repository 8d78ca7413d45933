package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/complyra/complyra-backend/internal/http/response"
	"github.com/complyra/complyra-backend/internal/platform/ctxutil"
	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/services"
	"github.com/complyra/complyra-backend/internal/types"
)

type AnalysisHandler struct {
	log *logger.Logger
	svc services.AnalysisService
}

func NewAnalysisHandler(log *logger.Logger, svc services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{log: log.With("handler", "AnalysisHandler"), svc: svc}
}

func requestUser(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, false
	}
	return rd.UserID, true
}

type analysisUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes" binding:"required"`
}

func (h *AnalysisHandler) CreateUploadURL(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	var req analysisUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	target, err := h.svc.CreateUploadTarget(c.Request.Context(), userID, req.Filename, req.ContentType, req.SizeBytes)
	if err != nil {
		respondServiceError(c, http.StatusBadRequest, "upload_target_failed", err)
		return
	}
	response.RespondCreated(c, target)
}

type analyzeRequest struct {
	DocumentID   string `json:"documentId" binding:"required"`
	Filename     string `json:"filename" binding:"required"`
	StorageKey   string `json:"storageKey"`
	AnalysisType string `json:"analysisType"`
}

func (h *AnalysisHandler) Analyze(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	analysisType := req.AnalysisType
	if analysisType == "" {
		analysisType = string(types.AnalysisTypeCompliance)
	}
	if !types.IsValidAnalysisType(analysisType) {
		response.RespondError(c, http.StatusBadRequest, "invalid_analysis_type", nil)
		return
	}

	job, created, err := h.svc.Start(c.Request.Context(), services.StartAnalysisRequest{
		UserID:       userID,
		DocumentID:   req.DocumentID,
		Filename:     req.Filename,
		StorageKey:   req.StorageKey,
		AnalysisType: types.AnalysisType(analysisType),
	})
	if err != nil {
		respondServiceError(c, http.StatusBadRequest, "analysis_start_failed", err)
		return
	}
	if created {
		response.RespondAccepted(c, job)
		return
	}
	response.RespondOK(c, job)
}

func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_analysis_id", err)
		return
	}
	job, err := h.svc.Get(c.Request.Context(), userID, jobID)
	if err != nil {
		respondServiceError(c, http.StatusNotFound, "analysis_not_found", err)
		return
	}
	response.RespondOK(c, job)
}

func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := h.svc.List(c.Request.Context(), userID, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "analysis_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"analyses": jobs})
}

func (h *AnalysisHandler) DeleteAnalysis(c *gin.Context) {
	userID, ok := requestUser(c)
	if !ok {
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_analysis_id", err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), userID, jobID); err != nil {
		respondServiceError(c, http.StatusNotFound, "analysis_delete_failed", err)
		return
	}
	response.RespondNoContent(c)
}
