package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/casaviva/decora-backend/internal/requestdata"
	"github.com/casaviva/decora-backend/internal/sse"
)

type SSEHandler struct {
	hub *sse.SSEHub
}

func NewSSEHandler(hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Stream opens the event stream. Every client is subscribed to its own
// user channel; pipeline notifications are keyed by user id.
func (sh *SSEHandler) Stream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("no authenticated user"))
		return
	}
	client := sh.hub.NewSSEClient(rd.UserID)
	sh.hub.AddChannel(client, rd.UserID.String())
	defer sh.hub.CloseClient(client)
	sh.hub.ServeHTTP(c.Writer, c.Request, client)
}
