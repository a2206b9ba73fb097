package device

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"akistel-relay/internal/service/device"
	"akistel-relay/pkg/jwt"
	"akistel-relay/pkg/response"
)

// Handler handles device registry HTTP requests
type Handler struct {
	deviceService *device.Service
	tokenManager  *jwt.DeviceTokenManager
}

// NewHandler creates a new device handler
func NewHandler(deviceService *device.Service, tokenManager *jwt.DeviceTokenManager) *Handler {
	return &Handler{
		deviceService: deviceService,
		tokenManager:  tokenManager,
	}
}

// RegisterRequest represents device registration request
type RegisterRequest struct {
	UserID    string `json:"userId" binding:"required,min=1,max=64"`
	PublicKey string `json:"publicKey" binding:"required,min=32,max=128"`
}

// Register handles device registration
// POST /v1/devices/register
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	d, err := h.deviceService.Register(c.Request.Context(), req.UserID, req.PublicKey)
	if err != nil {
		response.AppError(c, err)
		return
	}

	token, err := h.tokenManager.Generate(d.DeviceID, d.UserID)
	if err != nil {
		response.InternalError(c, "Failed to issue device token")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"deviceId":   d.DeviceID,
		"userId":     d.UserID,
		"publicKey":  d.PublicKey,
		"createdAt":  d.CreatedAt.Format(time.RFC3339),
		"lastSeenAt": d.LastSeenAt.Format(time.RFC3339),
		"token":      token,
	})
}

// List handles per-user device listing
// GET /v1/devices?user_id=
func (h *Handler) List(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ValidationError(c, "user_id query parameter is required")
		return
	}

	devices, err := h.deviceService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"userId":  userID,
		"devices": devices,
	})
}

// Get handles single device lookup
// GET /v1/devices/:device_id
func (h *Handler) Get(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		response.ValidationError(c, "Invalid device ID")
		return
	}

	d, err := h.deviceService.GetByID(c.Request.Context(), deviceID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, d)
}
