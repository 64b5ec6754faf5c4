package services

import (
	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/sse"
	"github.com/casaviva/decora-backend/internal/types"
)

// DesignNotifier pushes pipeline progress to the project owner's SSE
// channel. All methods are safe on a nil receiver so background jobs never
// depend on the hub being wired.
type DesignNotifier interface {
	AnalysisStarted(userID uuid.UUID, project *types.DesignProject)
	AnalysisProgress(userID uuid.UUID, projectID uuid.UUID, stage string, current, total int, message string)
	AnalysisComplete(userID uuid.UUID, project *types.DesignProject, items []*types.DetectedItem)
	AnalysisError(userID uuid.UUID, projectID uuid.UUID, errorMessage string)
	RenderStarted(userID uuid.UUID, projectID uuid.UUID)
	RenderProgress(userID uuid.UUID, projectID uuid.UUID, current, total int, itemName string)
	RenderComplete(userID uuid.UUID, project *types.DesignProject)
	RenderError(userID uuid.UUID, projectID uuid.UUID, errorMessage string)
	ChatMessage(userID uuid.UUID, msg *types.ChatMessage)
}

type designNotifier struct {
	hub *sse.SSEHub
}

// NewDesignNotifier accepts a nil hub; notifications then become no-ops.
func NewDesignNotifier(hub *sse.SSEHub) DesignNotifier {
	return &designNotifier{hub: hub}
}

func (n *designNotifier) broadcast(userID uuid.UUID, event sse.SSEEvent, data map[string]any) {
	if n == nil || n.hub == nil {
		return
	}
	n.hub.Broadcast(sse.SSEMessage{
		Channel: userID.String(),
		Event:   event,
		Data:    data,
	})
}

func (n *designNotifier) AnalysisStarted(userID uuid.UUID, project *types.DesignProject) {
	n.broadcast(userID, sse.SSEEventAnalysisStarted, map[string]any{
		"project": project,
	})
}

func (n *designNotifier) AnalysisProgress(userID uuid.UUID, projectID uuid.UUID, stage string, current, total int, message string) {
	n.broadcast(userID, sse.SSEEventAnalysisProgress, map[string]any{
		"project_id": projectID,
		"stage":      stage,
		"current":    current,
		"total":      total,
		"message":    message,
	})
}

func (n *designNotifier) AnalysisComplete(userID uuid.UUID, project *types.DesignProject, items []*types.DetectedItem) {
	n.broadcast(userID, sse.SSEEventAnalysisComplete, map[string]any{
		"project": project,
		"items":   items,
	})
}

func (n *designNotifier) AnalysisError(userID uuid.UUID, projectID uuid.UUID, errorMessage string) {
	n.broadcast(userID, sse.SSEEventAnalysisError, map[string]any{
		"project_id": projectID,
		"error":      errorMessage,
	})
}

func (n *designNotifier) RenderStarted(userID uuid.UUID, projectID uuid.UUID) {
	n.broadcast(userID, sse.SSEEventRenderStarted, map[string]any{
		"project_id": projectID,
	})
}

func (n *designNotifier) RenderProgress(userID uuid.UUID, projectID uuid.UUID, current, total int, itemName string) {
	n.broadcast(userID, sse.SSEEventRenderProgress, map[string]any{
		"project_id": projectID,
		"current":    current,
		"total":      total,
		"item":       itemName,
	})
}

func (n *designNotifier) RenderComplete(userID uuid.UUID, project *types.DesignProject) {
	n.broadcast(userID, sse.SSEEventRenderComplete, map[string]any{
		"project": project,
	})
}

func (n *designNotifier) RenderError(userID uuid.UUID, projectID uuid.UUID, errorMessage string) {
	n.broadcast(userID, sse.SSEEventRenderError, map[string]any{
		"project_id": projectID,
		"error":      errorMessage,
	})
}

func (n *designNotifier) ChatMessage(userID uuid.UUID, msg *types.ChatMessage) {
	n.broadcast(userID, sse.SSEEventChatMessage, map[string]any{
		"message": msg,
	})
}
