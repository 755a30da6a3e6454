package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campus-reservation-backend/internal/model"
)

// writeError maps a domain error to an HTTP status and a structured JSON
// body. Every expected rejection carries a stable "kind" so the UI can pick
// a specific message; conflict responses additionally identify the
// conflicting reservation and its window.
func writeError(c *gin.Context, err error) {
	var durationErr *model.DurationExceededError
	var concurrentErr *model.ConcurrentReservationError
	var conflictErr *model.ConflictError
	var transitionErr *model.InvalidTransitionError

	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"kind": "not_found", "error": err.Error()})

	case errors.Is(err, model.ErrResourceUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"kind": "resource_unavailable", "error": err.Error()})

	case errors.Is(err, model.ErrInvalidInterval):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"kind": "invalid_interval", "error": err.Error()})

	case errors.Is(err, model.ErrNotHolder):
		c.JSON(http.StatusForbidden, gin.H{"kind": "forbidden", "error": err.Error()})

	case errors.As(err, &durationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"kind":              "duration_exceeded",
			"error":             durationErr.Error(),
			"max_minutes":       int(durationErr.Max.Minutes()),
			"requested_minutes": int(durationErr.Requested.Minutes()),
		})

	case errors.As(err, &concurrentErr):
		c.JSON(http.StatusConflict, gin.H{
			"kind":                    "concurrent_reservation",
			"error":                   concurrentErr.Error(),
			"existing_reservation_id": concurrentErr.ExistingID,
		})

	case errors.As(err, &conflictErr):
		body := gin.H{
			"kind":  "conflict",
			"error": conflictErr.Error(),
		}
		if conflictErr.ConflictingID != "" {
			body["conflicting_reservation_id"] = conflictErr.ConflictingID
			body["conflict_start"] = conflictErr.ConflictStart.Format(time.RFC3339)
			body["conflict_end"] = conflictErr.ConflictEnd.Format(time.RFC3339)
		}
		c.JSON(http.StatusConflict, body)

	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{
			"kind":  "invalid_transition",
			"error": transitionErr.Error(),
			"from":  transitionErr.From,
			"to":    transitionErr.To,
		})

	default:
		// Infrastructure fault; the caller may retry, but only after
		// re-running full validation.
		c.JSON(http.StatusInternalServerError, gin.H{"kind": "unavailable", "error": "internal error"})
	}
}
