package message

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"akistel-relay/internal/service/envelope"
	"akistel-relay/pkg/response"
)

// Handler handles envelope relay HTTP requests
type Handler struct {
	envelopeService *envelope.Service
	retentionMaxAge time.Duration
}

// NewHandler creates a new message handler
func NewHandler(envelopeService *envelope.Service, retentionMaxAge time.Duration) *Handler {
	return &Handler{
		envelopeService: envelopeService,
		retentionMaxAge: retentionMaxAge,
	}
}

// SendRequest represents envelope send request
type SendRequest struct {
	RecipientID  string  `json:"recipientId" binding:"required,uuid"`
	Ciphertext   string  `json:"ciphertext" binding:"required,min=1"`
	Nonce        string  `json:"nonce" binding:"required,min=1"`
	EphemeralKey *string `json:"ephemeralKey" binding:"omitempty,min=1"`
}

// Send handles envelope relay from the authenticated device
// POST /v1/messages/send
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	senderID := c.MustGet("device_id").(uuid.UUID)
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		response.ValidationError(c, "Invalid recipient ID")
		return
	}

	env, err := h.envelopeService.Send(c.Request.Context(), &envelope.SendInput{
		SenderID:     senderID,
		RecipientID:  recipientID,
		Ciphertext:   req.Ciphertext,
		Nonce:        req.Nonce,
		EphemeralKey: req.EphemeralKey,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"envelopeId": env.EnvelopeID,
		"createdAt":  env.CreatedAt.Format(time.RFC3339),
	})
}

// Inbox handles undelivered envelope reads for the authenticated device
// GET /v1/messages/inbox/:device_id
func (h *Handler) Inbox(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		response.ValidationError(c, "Invalid device ID")
		return
	}

	// A device reads only its own queue
	authedID := c.MustGet("device_id").(uuid.UUID)
	if deviceID != authedID {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Cannot read another device's inbox")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.ValidationError(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries, err := h.envelopeService.Inbox(c.Request.Context(), deviceID, limit)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"deviceId":  deviceID,
		"envelopes": entries,
		"count":     len(entries),
	})
}

// AckRequest represents envelope acknowledgement request
type AckRequest struct {
	EnvelopeIDs []string `json:"envelopeIds" binding:"required,min=1,max=100,dive,uuid"`
}

// Ack handles delivery acknowledgement
// POST /v1/messages/ack
func (h *Handler) Ack(c *gin.Context) {
	var req AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	envelopeIDs := make([]uuid.UUID, 0, len(req.EnvelopeIDs))
	for _, raw := range req.EnvelopeIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.ValidationError(c, "Invalid envelope ID: "+raw)
			return
		}
		envelopeIDs = append(envelopeIDs, id)
	}

	acked, err := h.envelopeService.Ack(c.Request.Context(), envelopeIDs)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"acknowledged": acked,
	})
}

// Cleanup handles an on-demand retention sweep
// DELETE /v1/messages/cleanup
func (h *Handler) Cleanup(c *gin.Context) {
	maxAge := h.retentionMaxAge
	if raw := c.Query("max_age_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 {
			response.ValidationError(c, "max_age_hours must be a positive integer")
			return
		}
		requested := time.Duration(hours) * time.Hour
		// Any authenticated device can reach this route, so an override may
		// only widen the window, never shrink other users' retention
		if requested < h.retentionMaxAge {
			response.ValidationError(c, "max_age_hours cannot be shorter than the configured retention window")
			return
		}
		maxAge = requested
	}

	deleted, err := h.envelopeService.Cleanup(c.Request.Context(), maxAge)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"deleted": deleted,
	})
}
