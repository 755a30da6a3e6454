// Package watcher runs the periodic expiry pass: it persists terminal
// statuses for elapsed reservations and surfaces a one-shot warning to
// holders whose reservations are about to end.
package watcher

import (
	"context"
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"campus-reservation-backend/config"
	"campus-reservation-backend/internal/model"
	"campus-reservation-backend/internal/notification"
	"campus-reservation-backend/internal/store"
)

// Service is the expiry watcher. It observes the reservation ledger on a
// fixed cadence; the only writes it performs are the elapsed-status sweep
// and the one-shot alert records.
type Service struct {
	cfg        *config.Config
	store      store.Store
	workerPool *notification.WorkerPool
	clock      func() time.Time
}

// NewService creates the watcher and its notification worker pool.
func NewService(cfg *config.Config, s store.Store) *Service {
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	return &Service{
		cfg:        cfg,
		store:      s,
		workerPool: notification.NewWorkerPool(cfg.WorkerPool.Size, s, &webpushOptions),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// WorkerPool exposes the notification pool for testing.
func (s *Service) WorkerPool() *notification.WorkerPool {
	return s.workerPool
}

// Run starts the watcher loop. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Watcher.Enabled {
		log.Println("Expiry watcher is disabled. Not starting.")
		return
	}
	log.Println("Starting expiry watcher...")

	s.workerPool.Start(ctx)
	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Watcher.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry watcher shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Watcher.Interval)
		}
	}
}

// SweepOnce performs a single watcher cycle: persist terminal statuses for
// elapsed reservations, then record and dispatch warnings for reservations
// entering the warning window.
func (s *Service) SweepOnce(ctx context.Context) {
	now := s.clock()

	swept, err := s.store.SweepElapsed(ctx, now)
	if err != nil {
		log.Printf("Error sweeping elapsed reservations: %v", err)
	} else if swept > 0 {
		log.Printf("Swept %d elapsed reservations", swept)
	}

	expiring, err := s.store.ListEndingWithin(ctx, now, s.cfg.Watcher.WarningWindow)
	if err != nil {
		log.Printf("Error listing reservations nearing expiry: %v", err)
		return
	}

	for _, r := range expiring {
		created, err := s.store.RecordAlert(ctx, &model.ExpiryAlert{
			ReservationID: r.ID,
			HolderID:      r.HolderID,
			EndTime:       r.EndTime,
			CreatedAt:     now,
		})
		if err != nil {
			log.Printf("Error recording expiry alert for reservation %s: %v", r.ID, err)
			continue
		}
		if !created {
			// Already warned in an earlier cycle.
			continue
		}

		s.workerPool.Dispatch(notification.Alert{
			ReservationID: r.ID,
			HolderID:      r.HolderID,
			ResourceName:  r.Resource.Name,
			EndTime:       r.EndTime.UTC().Format("15:04 MST"),
		})
	}
}
