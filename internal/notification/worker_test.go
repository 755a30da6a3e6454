package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"campus-reservation-backend/internal/model"
	"campus-reservation-backend/internal/store"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

func newTestStore(t *testing.T) store.Store {
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

	require.NoError(t, db.AutoMigrate(&model.PushSubscription{}))
	return store.NewGormStore(db)
}

func okResponse(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := NewWorkerPool(1, newTestStore(t), &webpush.Options{})

	wp.Dispatch(Alert{ReservationID: "r-1"})

	select {
	case job := <-wp.jobs:
		assert.Equal(t, "r-1", job.ReservationID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DeliversToAllHolderSubscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://example.com/push/laptop", HolderID: "alice", P256DH: "k1", Auth: "a1",
	}))
	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://example.com/push/phone", HolderID: "alice", P256DH: "k2", Auth: "a2",
	}))
	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://example.com/push/other", HolderID: "bob", P256DH: "k3", Auth: "a3",
	}))

	wp := NewWorkerPool(1, s, &webpush.Options{})

	var mu sync.Mutex
	var delivered []string
	var wg sync.WaitGroup
	wg.Add(2)
	wp.SetSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			mu.Lock()
			delivered = append(delivered, sub.Endpoint)
			mu.Unlock()
			assert.Equal(t, "Your reservation for Room 7 ends at 10:00 UTC.", string(payload))
			wg.Done()
			return okResponse(http.StatusCreated), nil
		},
	})
	wp.Start(ctx)

	wp.Dispatch(Alert{
		ReservationID: "r-1",
		HolderID:      "alice",
		ResourceName:  "Room 7",
		EndTime:       "10:00 UTC",
	})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		"https://example.com/push/laptop",
		"https://example.com/push/phone",
	}, delivered)
}

func TestWorkerPool_DeletesExpiredSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.UpsertSubscription(ctx, &model.PushSubscription{
		Endpoint: "https://example.com/push/stale", HolderID: "carol", P256DH: "k", Auth: "a",
	}))

	wp := NewWorkerPool(1, s, &webpush.Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	wp.SetSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			defer wg.Done()
			return okResponse(http.StatusGone), nil
		},
	})
	wp.Start(ctx)

	wp.Dispatch(Alert{ReservationID: "r-1", HolderID: "carol", ResourceName: "Station A", EndTime: "10:00 UTC"})
	wg.Wait()

	// Give the worker a moment to finish the delete after Send returns.
	assert.Eventually(t, func() bool {
		subs, err := s.SubscriptionsForHolder(ctx, "carol")
		return err == nil && len(subs) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerPool_NoSubscriptionsIsQuiet(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wp := NewWorkerPool(1, s, &webpush.Options{})
	wp.SetSender(&mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			t.Fatal("send must not be called without subscriptions")
			return nil, nil
		},
	})
	wp.Start(ctx)

	wp.Dispatch(Alert{ReservationID: "r-1", HolderID: "nobody"})

	// Drain: if the worker were sending, the mock would have failed the test.
	assert.Eventually(t, func() bool { return len(wp.jobs) == 0 }, time.Second, 10*time.Millisecond)
}
