package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campus-reservation-backend/internal/model"
	"campus-reservation-backend/internal/parse"
	"campus-reservation-backend/internal/reservation"
)

type createReservationRequest struct {
	ResourceID int64  `json:"resource_id" binding:"required"`
	HolderID   string `json:"holder_id" binding:"required"`
	StartTime  string `json:"start_time" binding:"required"`
	EndTime    string `json:"end_time" binding:"required"`
	Purpose    string `json:"purpose"`
	Notes      string `json:"notes"`
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	iv, err := parse.ParseInterval(req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.svc.Submit(c.Request.Context(), reservation.SubmitRequest{
		ResourceID: req.ResourceID,
		HolderID:   req.HolderID,
		StartTime:  iv.Start,
		EndTime:    iv.End,
		Purpose:    req.Purpose,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, r)
}

// CancelReservation handles DELETE /api/reservations/:id.
func (h *Handler) CancelReservation(c *gin.Context) {
	holderID := c.Query("holder_id")
	if holderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "holder_id is required"})
		return
	}

	r, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), holderID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// GetActiveReservation handles GET /api/reservations/active.
func (h *Handler) GetActiveReservation(c *gin.Context) {
	holderID := c.Query("holder_id")
	if holderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "holder_id is required"})
		return
	}

	kind := model.ResourceKind(c.Query("kind"))
	r, err := h.svc.ActiveFor(c.Request.Context(), holderID, kind)
	if err != nil {
		writeError(c, err)
		return
	}
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"kind": "not_found", "error": "no active reservation"})
		return
	}

	c.JSON(http.StatusOK, r)
}

// GetExpiringReservation handles GET /api/reservations/expiring. It reports
// whether an expiry alert should be shown to the holder right now, and for
// which reservation.
func (h *Handler) GetExpiringReservation(c *gin.Context) {
	holderID := c.Query("holder_id")
	if holderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "holder_id is required"})
		return
	}

	alert, r, err := h.store.PendingAlert(c.Request.Context(), holderID, time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	if alert == nil {
		c.JSON(http.StatusOK, gin.H{"alert": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alert":       true,
		"reservation": r,
		"warned_at":   alert.CreatedAt,
	})
}
