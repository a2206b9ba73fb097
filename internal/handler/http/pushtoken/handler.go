package pushtoken

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"akistel-relay/pkg/push"
	"akistel-relay/pkg/response"
)

// Handler handles push token HTTP requests
type Handler struct {
	pushService *push.Service
}

// NewHandler creates a new push token handler
func NewHandler(pushService *push.Service) *Handler {
	return &Handler{
		pushService: pushService,
	}
}

// RegisterRequest represents push token registration request
type RegisterRequest struct {
	Token    string `json:"token" binding:"required,min=1"`
	Type     string `json:"type" binding:"required,oneof=fcm apns web"`
	Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// Register registers the authenticated device's push token,
// replacing any previous one
// POST /v1/push/token
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	deviceID := c.MustGet("device_id").(uuid.UUID)

	err := h.pushService.RegisterToken(c.Request.Context(), &push.Token{
		DeviceID: deviceID,
		Token:    req.Token,
		Type:     push.TokenType(req.Type),
		Platform: req.Platform,
	})
	if err != nil {
		response.InternalError(c, "Failed to register push token")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"deviceId": deviceID,
		"type":     req.Type,
	})
}

// Unregister removes the authenticated device's push token
// DELETE /v1/push/token
func (h *Handler) Unregister(c *gin.Context) {
	deviceID := c.MustGet("device_id").(uuid.UUID)

	if err := h.pushService.UnregisterToken(c.Request.Context(), deviceID); err != nil {
		response.InternalError(c, "Failed to unregister push token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"deviceId": deviceID,
	})
}
