package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/complyra/complyra-backend/internal/http/response"
	"github.com/complyra/complyra-backend/internal/platform/logger"
	"github.com/complyra/complyra-backend/internal/services"
	"github.com/complyra/complyra-backend/internal/types"
)

type KBHandler struct {
	log *logger.Logger
	kb  services.KnowledgeBaseService
}

func NewKBHandler(log *logger.Logger, kb services.KnowledgeBaseService) *KBHandler {
	return &KBHandler{log: log.With("handler", "KBHandler"), kb: kb}
}

type kbUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes" binding:"required"`
	Category    string `json:"category" binding:"required"`
}

func (h *KBHandler) Upload(c *gin.Context) {
	var req kbUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	target, err := h.kb.RegisterUpload(c.Request.Context(), services.RegisterKBUploadRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Category:    types.KBDocumentCategory(req.Category),
	})
	if err != nil {
		respondServiceError(c, http.StatusBadRequest, "kb_register_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{
		"document":  target.Document,
		"uploadUrl": target.UploadURL,
	})
}

type kbProcessRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
}

func (h *KBHandler) Process(c *gin.Context) {
	var req kbProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id, err := uuid.Parse(req.DocumentID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	doc, err := h.kb.Process(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, http.StatusConflict, "kb_process_rejected", err)
		return
	}
	response.RespondAccepted(c, doc)
}

func (h *KBHandler) ListDocuments(c *gin.Context) {
	category := c.Query("category")
	if category != "" && !types.IsValidKBCategory(category) {
		response.RespondError(c, http.StatusBadRequest, "invalid_category", nil)
		return
	}
	docs, err := h.kb.List(c.Request.Context(), types.KBDocumentCategory(category))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "kb_list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

func (h *KBHandler) DeleteDocument(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_document_id", err)
		return
	}
	if err := h.kb.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, http.StatusInternalServerError, "kb_delete_failed", err)
		return
	}
	response.RespondNoContent(c)
}
