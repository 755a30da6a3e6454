package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-reservation-backend/internal/model"
)

// newTestStore opens a private in-memory SQLite database and migrates the
// schema. MaxOpenConns is pinned to 1 so concurrent tests exercise the
// store's own locking rather than SQLite's.
func newTestStore(t *testing.T) (*gormStore, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.Resource{},
		&model.Reservation{},
		&model.ExpiryAlert{},
		&model.PushSubscription{},
	))

	return NewGormStore(db).(*gormStore), db
}

func seedResources(t *testing.T, db *gorm.DB) {
	t.Helper()
	lab := int64(10)
	require.NoError(t, db.Create(&[]model.Resource{
		{ID: 1, Kind: model.KindRoom, Name: "Room 7", Capacity: 40, IsActive: true, IsAvailable: true},
		{ID: 2, Kind: model.KindRoom, Name: "Room 8", Capacity: 20, IsActive: true, IsAvailable: true},
		{ID: 10, Kind: model.KindRoom, Name: "Physics Lab", Capacity: 24, IsActive: true, IsAvailable: true},
		{ID: 11, Kind: model.KindLabStation, Name: "Station 11-A", ParentLabID: &lab, IsActive: true, IsAvailable: true},
		{ID: 12, Kind: model.KindLabStation, Name: "Station 11-B", ParentLabID: &lab, IsActive: true, IsAvailable: true},
	}).Error)
}

func hour(h int) time.Time {
	return time.Date(2024, 1, 10, h, 0, 0, 0, time.UTC)
}

func TestCreateReservation_Conflicts(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	s.clock = func() time.Time { return hour(8) }
	ctx := context.Background()

	first := &model.Reservation{ResourceID: 1, HolderID: "alice", StartTime: hour(10), EndTime: hour(11)}
	require.NoError(t, s.CreateReservation(ctx, first, false))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, model.ReservationActive, first.Status)

	t.Run("overlapping interval is rejected with conflict detail", func(t *testing.T) {
		second := &model.Reservation{ResourceID: 1, HolderID: "bob", StartTime: hour(10).Add(30 * time.Minute), EndTime: hour(11).Add(30 * time.Minute)}
		err := s.CreateReservation(ctx, second, false)

		var conflictErr *model.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, first.ID, conflictErr.ConflictingID)
		assert.True(t, conflictErr.ConflictStart.Equal(hour(10)))
		assert.True(t, conflictErr.ConflictEnd.Equal(hour(11)))
	})

	t.Run("touching interval is not a conflict", func(t *testing.T) {
		adjacent := &model.Reservation{ResourceID: 1, HolderID: "bob", StartTime: hour(11), EndTime: hour(12)}
		assert.NoError(t, s.CreateReservation(ctx, adjacent, false))
	})

	t.Run("same interval on another resource is fine", func(t *testing.T) {
		elsewhere := &model.Reservation{ResourceID: 2, HolderID: "bob", StartTime: hour(10), EndTime: hour(11)}
		assert.NoError(t, s.CreateReservation(ctx, elsewhere, false))
	})

	t.Run("cancelled reservation frees the slot", func(t *testing.T) {
		_, err := s.Transition(ctx, first.ID, model.ReservationCancelled)
		require.NoError(t, err)

		retry := &model.Reservation{ResourceID: 1, HolderID: "bob", StartTime: hour(10).Add(30 * time.Minute), EndTime: hour(11)}
		assert.NoError(t, s.CreateReservation(ctx, retry, false))
	})
}

func TestCreateReservation_SingleActivePolicy(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	s.clock = func() time.Time { return hour(8) }
	ctx := context.Background()

	first := &model.Reservation{ResourceID: 11, HolderID: "carol", StartTime: hour(9), EndTime: hour(10)}
	require.NoError(t, s.CreateReservation(ctx, first, true))

	t.Run("second station reservation is rejected", func(t *testing.T) {
		// A different station and a non-overlapping window; the policy is
		// per holder, not per resource.
		second := &model.Reservation{ResourceID: 12, HolderID: "carol", StartTime: hour(14), EndTime: hour(15)}
		err := s.CreateReservation(ctx, second, true)

		var concurrentErr *model.ConcurrentReservationError
		require.ErrorAs(t, err, &concurrentErr)
		assert.Equal(t, first.ID, concurrentErr.ExistingID)
	})

	t.Run("other holders are unaffected", func(t *testing.T) {
		other := &model.Reservation{ResourceID: 12, HolderID: "dave", StartTime: hour(9), EndTime: hour(10)}
		assert.NoError(t, s.CreateReservation(ctx, other, true))
	})

	t.Run("cancelling releases the policy", func(t *testing.T) {
		_, err := s.Transition(ctx, first.ID, model.ReservationCancelled)
		require.NoError(t, err)

		second := &model.Reservation{ResourceID: 12, HolderID: "carol", StartTime: hour(14), EndTime: hour(15)}
		assert.NoError(t, s.CreateReservation(ctx, second, true))
	})
}

func TestTransition_Monotonic(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	ctx := context.Background()

	r := &model.Reservation{ResourceID: 1, HolderID: "alice", StartTime: hour(10), EndTime: hour(11)}
	require.NoError(t, s.CreateReservation(ctx, r, false))

	cancelled, err := s.Transition(ctx, r.ID, model.ReservationCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, cancelled.Status)

	for _, to := range []model.ReservationStatus{
		model.ReservationActive,
		model.ReservationCompleted,
		model.ReservationExpired,
		model.ReservationCancelled,
	} {
		_, err := s.Transition(ctx, r.ID, to)
		var transitionErr *model.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr, "transition to %s must fail", to)
		assert.Equal(t, model.ReservationCancelled, transitionErr.From)
	}

	t.Run("unknown reservation", func(t *testing.T) {
		_, err := s.Transition(ctx, "no-such-id", model.ReservationCancelled)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("active cannot transition to active", func(t *testing.T) {
		other := &model.Reservation{ResourceID: 2, HolderID: "bob", StartTime: hour(10), EndTime: hour(11)}
		require.NoError(t, s.CreateReservation(ctx, other, false))
		_, err := s.Transition(ctx, other.ID, model.ReservationActive)
		var transitionErr *model.InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)
	})
}

func TestReadTimeExpiryResolution(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	ctx := context.Background()

	s.clock = func() time.Time { return hour(8) }
	room := &model.Reservation{ResourceID: 1, HolderID: "alice", StartTime: hour(9), EndTime: hour(10)}
	require.NoError(t, s.CreateReservation(ctx, room, false))
	station := &model.Reservation{ResourceID: 11, HolderID: "alice", StartTime: hour(9), EndTime: hour(10)}
	require.NoError(t, s.CreateReservation(ctx, station, false))

	// Move the clock past the end time; the sweep has not run.
	s.clock = func() time.Time { return hour(12) }

	t.Run("reads never report an elapsed reservation as active", func(t *testing.T) {
		got, err := s.GetReservation(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReservationCompleted, got.Status)

		got, err = s.GetReservation(ctx, station.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReservationExpired, got.Status)
	})

	t.Run("active-for-holder excludes elapsed reservations", func(t *testing.T) {
		got, err := s.ActiveForHolder(ctx, "alice", "")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("sweep persists the same statuses the reads reported", func(t *testing.T) {
		swept, err := s.SweepElapsed(ctx, hour(12))
		require.NoError(t, err)
		assert.Equal(t, int64(2), swept)

		// Fresh destination structs: gorm treats a populated primary key on
		// the destination as an extra query condition.
		var persistedRoom model.Reservation
		require.NoError(t, db.First(&persistedRoom, "id = ?", room.ID).Error)
		assert.Equal(t, model.ReservationCompleted, persistedRoom.Status)
		var persistedStation model.Reservation
		require.NoError(t, db.First(&persistedStation, "id = ?", station.ID).Error)
		assert.Equal(t, model.ReservationExpired, persistedStation.Status)

		// A second sweep finds nothing.
		swept, err = s.SweepElapsed(ctx, hour(12))
		require.NoError(t, err)
		assert.Zero(t, swept)
	})
}

func TestListOverlapping(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	s.clock = func() time.Time { return hour(8) }
	ctx := context.Background()

	reservations := []*model.Reservation{
		{ResourceID: 1, HolderID: "alice", StartTime: hour(9), EndTime: hour(10)},
		{ResourceID: 1, HolderID: "bob", StartTime: hour(10), EndTime: hour(11)},
		{ResourceID: 1, HolderID: "carol", StartTime: hour(14), EndTime: hour(15)},
	}
	for _, r := range reservations {
		require.NoError(t, s.CreateReservation(ctx, r, false))
	}
	_, err := s.Transition(ctx, reservations[1].ID, model.ReservationCancelled)
	require.NoError(t, err)

	t.Run("window selects overlapping, skips cancelled", func(t *testing.T) {
		got, err := s.ListOverlapping(ctx, 1, hour(9).Add(30*time.Minute), hour(14).Add(30*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, reservations[0].ID, got[0].ID)
		assert.Equal(t, reservations[2].ID, got[1].ID)
	})

	t.Run("window touching an interval excludes it", func(t *testing.T) {
		got, err := s.ListOverlapping(ctx, 1, hour(10), hour(14))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestExpiryAlerts(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	s.clock = func() time.Time { return hour(8) }
	ctx := context.Background()

	r := &model.Reservation{ResourceID: 1, HolderID: "alice", StartTime: hour(8), EndTime: hour(9)}
	require.NoError(t, s.CreateReservation(ctx, r, false))

	alert := &model.ExpiryAlert{ReservationID: r.ID, HolderID: "alice", EndTime: r.EndTime, CreatedAt: hour(8).Add(46 * time.Minute)}

	created, err := s.RecordAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)

	t.Run("alert is one-shot", func(t *testing.T) {
		created, err := s.RecordAlert(ctx, alert)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("pending alert surfaces while reservation runs", func(t *testing.T) {
		got, res, err := s.PendingAlert(ctx, "alice", hour(8).Add(50*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, r.ID, got.ReservationID)
		assert.Equal(t, r.ID, res.ID)
	})

	t.Run("no alert after the reservation ends", func(t *testing.T) {
		got, _, err := s.PendingAlert(ctx, "alice", hour(10))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("no alert after cancellation", func(t *testing.T) {
		_, err := s.Transition(ctx, r.ID, model.ReservationCancelled)
		require.NoError(t, err)
		got, _, err := s.PendingAlert(ctx, "alice", hour(8).Add(50*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

// TestCreateReservation_ConcurrentOverlap races many goroutines at the same
// slot: exactly one create per round may win.
func TestCreateReservation_ConcurrentOverlap(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	s.clock = func() time.Time { return hour(8) }
	ctx := context.Background()

	const rounds = 20
	const contenders = 8

	for round := 0; round < rounds; round++ {
		start := hour(9).Add(time.Duration(round) * 2 * time.Hour)

		var wg sync.WaitGroup
		errs := make([]error, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := &model.Reservation{
					ResourceID: 1,
					HolderID:   fmt.Sprintf("holder-%d", i),
					// Shifted but overlapping windows.
					StartTime: start.Add(time.Duration(i) * 5 * time.Minute),
					EndTime:   start.Add(time.Hour).Add(time.Duration(i) * 5 * time.Minute),
				}
				errs[i] = s.CreateReservation(ctx, r, false)
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
				continue
			}
			var conflictErr *model.ConflictError
			require.True(t, errors.As(err, &conflictErr), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, winners, "round %d", round)
	}

	// The ledger invariant holds after the dust settles.
	var active []model.Reservation
	require.NoError(t, db.Where("resource_id = ? AND status = ?", 1, model.ReservationActive).Order("start_time").Find(&active).Error)
	for i := 1; i < len(active); i++ {
		assert.False(t, active[i].StartTime.Before(active[i-1].EndTime),
			"active reservations %s and %s overlap", active[i-1].ID, active[i].ID)
	}
}

func TestResourceRegistry(t *testing.T) {
	s, db := newTestStore(t)
	seedResources(t, db)
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		res, err := s.GetResource(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, model.KindLabStation, res.Kind)
		require.NotNil(t, res.ParentLabID)
		assert.Equal(t, int64(10), *res.ParentLabID)
		assert.True(t, res.Bookable())
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.GetResource(ctx, 999)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("list by kind", func(t *testing.T) {
		stations, err := s.ListResources(ctx, model.KindLabStation)
		require.NoError(t, err)
		assert.Len(t, stations, 2)

		all, err := s.ListResources(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("deactivation blocks booking but keeps rows", func(t *testing.T) {
		require.NoError(t, db.Model(&model.Resource{}).Where("id = ?", 2).Update("is_available", false).Error)
		res, err := s.GetResource(ctx, 2)
		require.NoError(t, err)
		assert.False(t, res.Bookable())
	})
}
