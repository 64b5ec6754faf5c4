package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/requestdata"
	"github.com/casaviva/decora-backend/internal/services"
)

const maxPhotoBytes = 20 << 20

type DesignHandler struct {
	designService services.DesignService
	chatService   services.ChatService
}

func NewDesignHandler(designService services.DesignService, chatService services.ChatService) *DesignHandler {
	return &DesignHandler{designService: designService, chatService: chatService}
}

// SubmitPhoto accepts a multipart room photo and starts the analysis
// pipeline. An optional project_id field resubmits into an existing
// project, restarting its lifecycle.
func (dh *DesignHandler) SubmitPhoto(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_photo", fmt.Errorf("photo file required"))
		return
	}
	if fileHeader.Size > maxPhotoBytes {
		RespondError(c, http.StatusBadRequest, "photo_too_large", fmt.Errorf("photo exceeds %d bytes", maxPhotoBytes))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_photo", err)
		return
	}
	defer file.Close()
	photo, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_photo", err)
		return
	}

	var projectID *uuid.UUID
	if raw := c.PostForm("project_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
			return
		}
		projectID = &id
	}

	project, err := dh.designService.SubmitPhoto(c.Request.Context(), rd.UserID, projectID, photo, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "submit_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project": project})
}

func (dh *DesignHandler) ListProjects(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return
	}
	projects, err := dh.designService.ListProjects(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"projects": projects})
}

func (dh *DesignHandler) GetProject(c *gin.Context) {
	rd, projectID, ok := dh.projectScope(c)
	if !ok {
		return
	}
	project, items, err := dh.designService.GetProject(c.Request.Context(), rd.UserID, projectID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "project_not_found", err)
		return
	}
	RespondOK(c, gin.H{"project": project, "items": items})
}

func (dh *DesignHandler) SelectProduct(c *gin.Context) {
	rd, projectID, ok := dh.projectScope(c)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_item_id", err)
		return
	}
	var req struct {
		ProductID uuid.UUID `json:"product_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	item, err := dh.designService.SelectProduct(c.Request.Context(), rd.UserID, projectID, itemID, req.ProductID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "selection_failed", err)
		return
	}
	RespondOK(c, gin.H{"item": item})
}

func (dh *DesignHandler) SubmitFeedback(c *gin.Context) {
	rd, projectID, ok := dh.projectScope(c)
	if !ok {
		return
	}
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_item_id", err)
		return
	}
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := dh.designService.SubmitFeedback(c.Request.Context(), rd.UserID, projectID, itemID, req.Feedback); err != nil {
		RespondError(c, http.StatusBadRequest, "feedback_failed", err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (dh *DesignHandler) RenderFinal(c *gin.Context) {
	rd, projectID, ok := dh.projectScope(c)
	if !ok {
		return
	}
	project, err := dh.designService.RenderFinal(c.Request.Context(), rd.UserID, projectID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "render_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"project": project})
}

func (dh *DesignHandler) GetTranscript(c *gin.Context) {
	rd, projectID, ok := dh.projectScope(c)
	if !ok {
		return
	}
	if _, _, err := dh.designService.GetProject(c.Request.Context(), rd.UserID, projectID); err != nil {
		RespondError(c, http.StatusNotFound, "project_not_found", err)
		return
	}
	messages, err := dh.chatService.Transcript(c.Request.Context(), projectID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "transcript_failed", err)
		return
	}
	RespondOK(c, gin.H{"messages": messages})
}

func (dh *DesignHandler) PostChatMessage(c *gin.Context) {
	rd, projectID, ok := dh.projectScope(c)
	if !ok {
		return
	}
	if _, _, err := dh.designService.GetProject(c.Request.Context(), rd.UserID, projectID); err != nil {
		RespondError(c, http.StatusNotFound, "project_not_found", err)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	msg, err := dh.chatService.RecordUserMessage(c.Request.Context(), rd.UserID, projectID, req.Content)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "chat_failed", err)
		return
	}
	RespondOK(c, gin.H{"message": msg})
}

func (dh *DesignHandler) projectScope(c *gin.Context) (*requestdata.RequestData, uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return nil, uuid.Nil, false
	}
	projectID, err := uuid.Parse(c.Param("projectID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_project_id", err)
		return nil, uuid.Nil, false
	}
	return rd, projectID, true
}
