package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-reservation-backend/internal/conflict"
	"campus-reservation-backend/internal/model"
)

// Store defines the interface for all database operations. The reservation
// ledger is the single source of temporal truth; resource status is derived
// from it at read time and never written back.
type Store interface {
	DB() *gorm.DB

	// Resource registry
	GetResource(ctx context.Context, id int64) (*model.Resource, error)
	ListResources(ctx context.Context, kind model.ResourceKind) ([]model.Resource, error)

	// Reservation ledger
	CreateReservation(ctx context.Context, r *model.Reservation, enforceSingleActive bool) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ActiveForHolder(ctx context.Context, holderID string, kind model.ResourceKind) (*model.Reservation, error)
	ListByResource(ctx context.Context, resourceID int64, statuses ...model.ReservationStatus) ([]model.Reservation, error)
	ListOverlapping(ctx context.Context, resourceID int64, rangeStart, rangeEnd time.Time) ([]model.Reservation, error)
	Transition(ctx context.Context, id string, to model.ReservationStatus) (*model.Reservation, error)
	SweepElapsed(ctx context.Context, now time.Time) (int64, error)
	ListEndingWithin(ctx context.Context, now time.Time, window time.Duration) ([]model.Reservation, error)

	// Expiry alerts
	RecordAlert(ctx context.Context, alert *model.ExpiryAlert) (bool, error)
	PendingAlert(ctx context.Context, holderID string, now time.Time) (*model.ExpiryAlert, *model.Reservation, error)

	// Push subscriptions
	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForHolder(ctx context.Context, holderID string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	clock func() time.Time
	locks *keyedMutex
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
		locks: newKeyedMutex(),
	}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// --- Resource registry ---

func (s *gormStore) GetResource(ctx context.Context, id int64) (*model.Resource, error) {
	var res model.Resource
	if err := s.db.WithContext(ctx).First(&res, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch resource %d: %w", id, err)
	}
	return &res, nil
}

func (s *gormStore) ListResources(ctx context.Context, kind model.ResourceKind) ([]model.Resource, error) {
	q := s.db.WithContext(ctx).Order("id")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var resources []model.Resource
	if err := q.Find(&resources).Error; err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return resources, nil
}

// --- Reservation ledger ---

// CreateReservation inserts a new active reservation. The conflict check and
// the single-active policy check run atomically with the insert: the holder
// and resource keys are serialized in-process, candidate rows are locked
// inside the transaction, and on Postgres a range-exclusion constraint backs
// the same invariant. A check-then-insert without this guard would let two
// concurrent overlapping requests both succeed.
func (s *gormStore) CreateReservation(ctx context.Context, r *model.Reservation, enforceSingleActive bool) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = model.ReservationActive
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()

	// Lock order is fixed (holder, then resource) so that two creates can
	// never wait on each other's keys in opposite order.
	if enforceSingleActive {
		defer s.locks.Lock(holderKey(r.HolderID))()
	}
	defer s.locks.Lock(resourceKey(r.ResourceID))()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock()

		if enforceSingleActive {
			existing, err := activeForHolderTx(tx, r.HolderID, model.KindLabStation, now, true)
			if err != nil {
				return fmt.Errorf("failed to check active reservations for holder %s: %w", r.HolderID, err)
			}
			if existing != nil {
				return &model.ConcurrentReservationError{ExistingID: existing.ID}
			}
		}

		// Lock any candidate rows that would overlap to avoid races between
		// two transactions on the same resource.
		var candidates []model.Reservation
		if err := lockForUpdate(tx).
			Where("resource_id = ? AND status = ?", r.ResourceID, model.ReservationActive).
			Where("start_time < ? AND end_time > ?", r.EndTime, r.StartTime).
			Find(&candidates).Error; err != nil {
			return fmt.Errorf("failed to query overlapping reservations for resource %d: %w", r.ResourceID, err)
		}

		if c := conflict.FindConflict(r.StartTime, r.EndTime, candidates); c != nil {
			return &model.ConflictError{
				ConflictingID: c.ID,
				ConflictStart: c.StartTime,
				ConflictEnd:   c.EndTime,
			}
		}

		if err := tx.Create(r).Error; err != nil {
			return err
		}
		return nil
	})

	if err != nil {
		if conflictErr := asConstraintConflict(err); conflictErr != nil {
			return conflictErr
		}
		return err
	}
	return nil
}

// asConstraintConflict maps a Postgres exclusion-constraint violation on the
// reservation interval to the domain conflict error. The conflicting row is
// not identified by the constraint, only its existence.
func asConstraintConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return &model.ConflictError{}
	}
	return nil
}

func (s *gormStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var r model.Reservation
	if err := s.db.WithContext(ctx).Preload("Resource").First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch reservation %s: %w", id, err)
	}
	s.resolveElapsed(&r)
	return &r, nil
}

// ActiveForHolder returns the holder's current active reservation, or nil.
// A reservation whose end time has already passed is never reported, even
// before the background sweep has persisted its terminal status.
func (s *gormStore) ActiveForHolder(ctx context.Context, holderID string, kind model.ResourceKind) (*model.Reservation, error) {
	r, err := activeForHolderTx(s.db.WithContext(ctx), holderID, kind, s.clock(), false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active reservation for holder %s: %w", holderID, err)
	}
	return r, nil
}

func activeForHolderTx(tx *gorm.DB, holderID string, kind model.ResourceKind, now time.Time, lock bool) (*model.Reservation, error) {
	q := tx.Preload("Resource").
		Where("holder_id = ? AND status = ? AND end_time > ?", holderID, model.ReservationActive, now)
	if kind != "" {
		q = q.Where("resource_id IN (SELECT id FROM resources WHERE kind = ?)", kind)
	}
	if lock {
		q = lockForUpdate(q)
	}

	var r model.Reservation
	err := q.Order("end_time").First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *gormStore) ListByResource(ctx context.Context, resourceID int64, statuses ...model.ReservationStatus) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).Where("resource_id = ?", resourceID).Order("start_time")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var reservations []model.Reservation
	if err := q.Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations for resource %d: %w", resourceID, err)
	}
	s.resolveElapsedAll(reservations)
	return reservations, nil
}

// ListOverlapping returns the non-cancelled reservations intersecting a
// display window, for calendar rendering.
func (s *gormStore) ListOverlapping(ctx context.Context, resourceID int64, rangeStart, rangeEnd time.Time) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := s.db.WithContext(ctx).
		Where("resource_id = ? AND status <> ?", resourceID, model.ReservationCancelled).
		Where("start_time < ? AND end_time > ?", rangeEnd.UTC(), rangeStart.UTC()).
		Order("start_time").
		Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations for resource %d: %w", resourceID, err)
	}
	s.resolveElapsedAll(reservations)
	return reservations, nil
}

// Transition moves a reservation to a new status, enforcing monotonicity:
// only active reservations may transition, and only into a terminal status.
func (s *gormStore) Transition(ctx context.Context, id string, to model.ReservationStatus) (*model.Reservation, error) {
	var r model.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).
			First(&r, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return fmt.Errorf("failed to fetch reservation %s: %w", id, err)
		}

		if r.Status.Terminal() || !to.Terminal() {
			return &model.InvalidTransitionError{ReservationID: r.ID, From: r.Status, To: to}
		}

		r.Status = to
		if err := tx.Save(&r).Error; err != nil {
			return fmt.Errorf("failed to update reservation %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SweepElapsed persists the terminal status of every active reservation whose
// end time has passed: completed for rooms, expired for lab stations. Read
// paths resolve the same mapping lazily, so the two always agree.
func (s *gormStore) SweepElapsed(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, kind := range []model.ResourceKind{model.KindRoom, model.KindLabStation} {
		res := s.db.WithContext(ctx).
			Model(&model.Reservation{}).
			Where("status = ? AND end_time <= ?", model.ReservationActive, now.UTC()).
			Where("resource_id IN (SELECT id FROM resources WHERE kind = ?)", kind).
			Update("status", model.ElapsedStatus(kind))
		if res.Error != nil {
			return total, fmt.Errorf("failed to sweep elapsed %s reservations: %w", kind, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// ListEndingWithin returns active reservations whose end time falls inside
// (now, now+window]. Already-elapsed reservations are the sweep's business,
// not the warning path's.
func (s *gormStore) ListEndingWithin(ctx context.Context, now time.Time, window time.Duration) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := s.db.WithContext(ctx).Preload("Resource").
		Where("status = ? AND end_time > ? AND end_time <= ?",
			model.ReservationActive, now.UTC(), now.UTC().Add(window)).
		Order("end_time").
		Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations nearing expiry: %w", err)
	}
	return reservations, nil
}

// resolveElapsed reports an active reservation whose interval has passed with
// its kind's terminal status instead. It does not write; persistence is the
// sweep's job.
func (s *gormStore) resolveElapsed(r *model.Reservation) {
	if r.Status != model.ReservationActive || !r.Elapsed(s.clock()) {
		return
	}
	kind := r.Resource.Kind
	if kind == "" {
		// Association not loaded; fall back to a lookup.
		var res model.Resource
		if err := s.db.First(&res, r.ResourceID).Error; err == nil {
			kind = res.Kind
		}
	}
	r.Status = model.ElapsedStatus(kind)
}

func (s *gormStore) resolveElapsedAll(reservations []model.Reservation) {
	for i := range reservations {
		s.resolveElapsed(&reservations[i])
	}
}

// --- Expiry alerts ---

// RecordAlert inserts the one-shot alert row for a reservation. It returns
// false when an alert was already recorded, which keeps the warning from
// being surfaced twice.
func (s *gormStore) RecordAlert(ctx context.Context, alert *model.ExpiryAlert) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(alert)
	if res.Error != nil {
		return false, fmt.Errorf("failed to record expiry alert for reservation %s: %w", alert.ReservationID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// PendingAlert returns the holder's current expiry alert together with its
// reservation, if the reservation is still running. Once the reservation
// ends or is cancelled there is nothing left to warn about.
func (s *gormStore) PendingAlert(ctx context.Context, holderID string, now time.Time) (*model.ExpiryAlert, *model.Reservation, error) {
	var alert model.ExpiryAlert
	err := s.db.WithContext(ctx).
		Where("holder_id = ? AND end_time > ?", holderID, now.UTC()).
		Order("end_time").
		First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch expiry alert for holder %s: %w", holderID, err)
	}

	r, err := s.GetReservation(ctx, alert.ReservationID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if r.Status != model.ReservationActive {
		return nil, nil, nil
	}
	return &alert, r, nil
}

// --- Push subscriptions ---

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert subscription %s: %w", sub.Endpoint, err)
	}
	return nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", endpoint, err)
	}
	return nil
}

func (s *gormStore) SubscriptionsForHolder(ctx context.Context, holderID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("holder_id = ?", holderID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for holder %s: %w", holderID, err)
	}
	return subs, nil
}

// lockForUpdate adds a SELECT ... FOR UPDATE clause on dialects that support
// it. SQLite serializes writers on its own, and the in-process keyed mutex
// guards the create path there.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func holderKey(holderID string) string {
	return "holder:" + holderID
}

func resourceKey(resourceID int64) string {
	return fmt.Sprintf("resource:%d", resourceID)
}
