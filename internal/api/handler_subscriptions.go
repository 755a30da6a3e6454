package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-reservation-backend/internal/model"
)

type putSubscriptionRequest struct {
	HolderID string `json:"holder_id" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription handles the creation or replacement of a push subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := model.PushSubscription{
		HolderID: req.HolderID,
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.UpsertSubscription(c.Request.Context(), &sub); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

// GetSubscriptions returns the endpoints a holder is subscribed from.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	holderID := c.Query("holder_id")
	if holderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "holder_id is required"})
		return
	}

	subs, err := h.store.SubscriptionsForHolder(c.Request.Context(), holderID)
	if err != nil {
		writeError(c, err)
		return
	}

	endpoints := make([]string, len(subs))
	for i, sub := range subs {
		endpoints[i] = sub.Endpoint
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a push subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), req.Endpoint); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
