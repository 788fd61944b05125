package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"luxe-escrow-server/services"
)

// NotificationHandler serves the per-user notification feed
type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

type userRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.Query("userId")
	if !allowCaller(c, "userId", userID) {
		return
	}

	list, err := h.notifications.UserFeed(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkRead handles POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req userRequest
	if !bindJSON(c, &req) || !allowCaller(c, "userId", req.UserID) {
		return
	}

	if err := h.notifications.MarkUserRead(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
