package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campus-reservation-backend/internal/model"
	"campus-reservation-backend/internal/parse"
)

// resourceResponse is the catalog entry plus the derived operational status.
// The status is computed from the active reservation set at read time and is
// never stored, so it cannot drift from the reservation ledger.
type resourceResponse struct {
	model.Resource
	Status             model.OperationalStatus `json:"status"`
	CurrentReservation *model.Reservation      `json:"currentReservation,omitempty"`
}

// ListResources handles GET /api/resources.
func (h *Handler) ListResources(c *gin.Context) {
	kind := model.ResourceKind(c.Query("kind"))
	resources, err := h.store.ListResources(c.Request.Context(), kind)
	if err != nil {
		writeError(c, err)
		return
	}

	now := time.Now().UTC()
	currentByResource, err := h.currentReservations(c, resources, now)
	if err != nil {
		writeError(c, err)
		return
	}

	response := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		current := currentByResource[res.ID]
		response = append(response, resourceResponse{
			Resource:           res,
			Status:             res.CurrentStatus(current, now),
			CurrentReservation: current,
		})
	}
	c.JSON(http.StatusOK, response)
}

// GetResource handles GET /api/resources/:id.
func (h *Handler) GetResource(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource ID"})
		return
	}

	res, err := h.store.GetResource(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	now := time.Now().UTC()
	currentByResource, err := h.currentReservations(c, []model.Resource{*res}, now)
	if err != nil {
		writeError(c, err)
		return
	}

	current := currentByResource[res.ID]
	c.JSON(http.StatusOK, resourceResponse{
		Resource:           *res,
		Status:             res.CurrentStatus(current, now),
		CurrentReservation: current,
	})
}

// ListResourceReservations handles GET /api/resources/:id/reservations. It
// returns the reservations overlapping a display window, for calendar
// rendering by the UI.
func (h *Handler) ListResourceReservations(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid resource ID"})
		return
	}

	iv, err := parse.ParseInterval(c.Query("range_start"), c.Query("range_end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetResource(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	reservations, err := h.store.ListOverlapping(c.Request.Context(), id, iv.Start, iv.End)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reservations)
}

// currentReservations maps each resource to the reservation that determines
// its present status: the one covering now, or failing that the next active
// one. One query for the whole catalog page.
func (h *Handler) currentReservations(c *gin.Context, resources []model.Resource, now time.Time) (map[int64]*model.Reservation, error) {
	if len(resources) == 0 {
		return map[int64]*model.Reservation{}, nil
	}

	ids := make([]int64, len(resources))
	for i, r := range resources {
		ids[i] = r.ID
	}

	var active []model.Reservation
	err := h.store.DB().WithContext(c.Request.Context()).
		Where("resource_id IN ? AND status = ? AND end_time > ?", ids, model.ReservationActive, now).
		Order("start_time").
		Find(&active).Error
	if err != nil {
		return nil, err
	}

	currentByResource := make(map[int64]*model.Reservation)
	for i := range active {
		r := &active[i]
		existing, ok := currentByResource[r.ResourceID]
		if !ok || (r.Covers(now) && !existing.Covers(now)) {
			currentByResource[r.ResourceID] = r
		}
	}
	return currentByResource, nil
}
