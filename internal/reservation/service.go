// Package reservation implements the reservation lifecycle: validation and
// creation of new reservations, holder-initiated cancellation, and the
// policy rules that vary between resource kinds.
package reservation

import (
	"context"
	"time"

	"campus-reservation-backend/internal/model"
	"campus-reservation-backend/internal/store"
)

// SubmitRequest is a validated-on-entry creation request. Times must be UTC;
// the HTTP layer normalizes them before building the request.
type SubmitRequest struct {
	ResourceID int64
	HolderID   string
	StartTime  time.Time
	EndTime    time.Time
	Purpose    string
	Notes      string
}

// Service orchestrates reservation lifecycle operations against the store.
type Service struct {
	store    store.Store
	policies PolicyTable
	clock    func() time.Time
}

// NewService creates a lifecycle service with the given policy table.
func NewService(s store.Store, policies PolicyTable) *Service {
	return &Service{
		store:    s,
		policies: policies,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit validates and persists a new reservation. Checks run in a fixed
// order so rejections are deterministic: resource bookable, interval valid,
// duration within the kind's cap, no concurrent active reservation (lab
// stations only), no interval conflict. The first failing check wins; the
// last two re-run atomically with the insert inside the store.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*model.Reservation, error) {
	res, err := s.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if !res.Bookable() {
		return nil, model.ErrResourceUnavailable
	}

	start := req.StartTime.UTC()
	end := req.EndTime.UTC()
	if !start.Before(end) {
		return nil, model.ErrInvalidInterval
	}

	pol := s.policies.For(res.Kind)
	if pol.MaxDuration > 0 && end.Sub(start) > pol.MaxDuration {
		return nil, &model.DurationExceededError{
			Kind:      res.Kind,
			Max:       pol.MaxDuration,
			Requested: end.Sub(start),
		}
	}

	r := &model.Reservation{
		ResourceID: req.ResourceID,
		HolderID:   req.HolderID,
		StartTime:  start,
		EndTime:    end,
		Purpose:    req.Purpose,
		Notes:      req.Notes,
	}
	if err := s.store.CreateReservation(ctx, r, pol.SingleActive); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel transitions an active reservation to cancelled. Only the holder may
// cancel; administrative overrides go through a separate surface. Cancelling
// frees the resource immediately.
func (s *Service) Cancel(ctx context.Context, id, holderID string) (*model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.HolderID != holderID {
		return nil, model.ErrNotHolder
	}
	// GetReservation resolves elapsed reservations to their terminal status,
	// so a stale active row cannot be cancelled after its end time.
	if r.Status.Terminal() {
		return nil, &model.InvalidTransitionError{
			ReservationID: r.ID,
			From:          r.Status,
			To:            model.ReservationCancelled,
		}
	}
	return s.store.Transition(ctx, id, model.ReservationCancelled)
}

// ActiveFor returns the holder's current active reservation of the given
// kind (or of any kind when kind is empty), or nil.
func (s *Service) ActiveFor(ctx context.Context, holderID string, kind model.ResourceKind) (*model.Reservation, error) {
	return s.store.ActiveForHolder(ctx, holderID, kind)
}
