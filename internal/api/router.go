package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"campus-reservation-backend/config"
	"campus-reservation-backend/internal/mw"
	"campus-reservation-backend/internal/reservation"
	"campus-reservation-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, svc *reservation.Service, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, svc, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Resource catalog; safe to cache briefly.
		api.GET("/resources", caching, handler.ListResources)
		api.GET("/resources/:id", caching, handler.GetResource)
		api.GET("/resources/:id/reservations", caching, handler.ListResourceReservations)

		// Reservation lifecycle; never cached.
		api.POST("/reservations", handler.CreateReservation)
		api.DELETE("/reservations/:id", handler.CancelReservation)
		api.GET("/reservations/active", handler.GetActiveReservation)
		api.GET("/reservations/expiring", handler.GetExpiringReservation)

		// Push subscriptions for expiry warnings.
		api.GET("/subscriptions", handler.GetSubscriptions)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
