package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"syncServer/backend/internal/errs"
	"syncServer/backend/internal/store"
)

// DocumentHandler exposes the minimal REST surface around the durable store:
// creating a file so it can be edited, and reading its persisted content.
// Everything realtime goes over the websocket instead.
type DocumentHandler struct {
	docs *store.DocumentStore
}

func NewDocumentHandler(docs *store.DocumentStore) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

type createFileReq struct {
	ProjectID string `json:"projectId" binding:"required"`
	FileID    string `json:"fileId" binding:"required"`
	Content   string `json:"content"`
}

func (h *DocumentHandler) CreateFile(c *gin.Context) {
	if _, exists := c.Get("userId"); !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user context missing"})
		return
	}
	var req createFileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.docs.Create(c.Request.Context(), req.ProjectID, req.FileID, req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errs.MessageOf(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projectId": req.ProjectID, "fileId": req.FileID})
}

func (h *DocumentHandler) GetFile(c *gin.Context) {
	projectID := c.Query("projectId")
	fileID := c.Query("fileId")
	if projectID == "" || fileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectId and fileId are required"})
		return
	}
	content, err := h.docs.GetContent(c.Request.Context(), projectID, fileID)
	if err != nil {
		if errs.IsCode(err, errs.CodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errs.MessageOf(err)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errs.MessageOf(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projectId": projectID, "fileId": fileID, "content": content})
}
