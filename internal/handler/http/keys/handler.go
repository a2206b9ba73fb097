package keys

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"akistel-relay/internal/domain"
	"akistel-relay/internal/service/keys"
	"akistel-relay/pkg/response"
)

// Handler handles key bundle HTTP requests
type Handler struct {
	keysService *keys.Service
}

// NewHandler creates a new keys handler
func NewHandler(keysService *keys.Service) *Handler {
	return &Handler{
		keysService: keysService,
	}
}

// PublishRequest represents key bundle publish request
type PublishRequest struct {
	IdentityKey    string   `json:"identityKey" binding:"required,min=32,max=128"`
	SignedPreKey   string   `json:"signedPreKey" binding:"required,min=32,max=128"`
	Signature      string   `json:"signature" binding:"required,min=64,max=256"`
	OneTimePreKeys []string `json:"oneTimePreKeys" binding:"omitempty,max=100,dive,min=32,max=128"`
}

// Publish handles key bundle publication for the authenticated device
// POST /v1/keys/publish
func (h *Handler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	deviceID := c.MustGet("device_id").(uuid.UUID)

	handle, err := h.keysService.Publish(c.Request.Context(), &keys.PublishInput{
		DeviceID:       deviceID,
		IdentityKey:    req.IdentityKey,
		SignedPreKey:   req.SignedPreKey,
		Signature:      req.Signature,
		OneTimePreKeys: req.OneTimePreKeys,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"keyBundleId":    handle.BundleID,
		"deviceId":       handle.DeviceID,
		"updatedAt":      handle.UpdatedAt,
		"oneTimePreKeys": len(req.OneTimePreKeys),
	})
}

// Count reports the authenticated device's remaining one-time pre-key pool,
// so clients know when to publish a fresh batch
// GET /v1/keys/count
func (h *Handler) Count(c *gin.Context) {
	deviceID := c.MustGet("device_id").(uuid.UUID)

	count, err := h.keysService.CountOneTimePreKeys(c.Request.Context(), deviceID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"deviceId":       deviceID,
		"oneTimePreKeys": count,
	})
}

// Fetch handles per-device bundle fetch, consuming one one-time pre-key
// GET /v1/keys/:device_id
func (h *Handler) Fetch(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		response.ValidationError(c, "Invalid device ID")
		return
	}

	bundle, err := h.keysService.Fetch(c.Request.Context(), deviceID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, bundle)
}

// FetchAllForUser handles non-destructive per-user bundle listing
// GET /v1/keys/user/:user_id
func (h *Handler) FetchAllForUser(c *gin.Context) {
	userID := c.Param("user_id")

	bundles, err := h.keysService.FetchAllForUser(c.Request.Context(), userID)
	if err != nil {
		response.AppError(c, err)
		return
	}
	if bundles == nil {
		bundles = []*domain.BundleSummary{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"userId":  userID,
		"bundles": bundles,
	})
}
