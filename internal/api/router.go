package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"laundry-pay-backend/internal/ledger"
	"laundry-pay-backend/internal/mw"
)

// RouterOptions carries the HTTP-level tuning knobs.
type RouterOptions struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
}

func (o *RouterOptions) applyDefaults() {
	if o.RateLimitPerSec <= 0 {
		o.RateLimitPerSec = 10
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 5
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 2 * time.Second
	}
}

// NewRouter creates and configures the gin router.
func NewRouter(charger Charger, store ledger.Store, webpushOptions *webpush.Options, opts RouterOptions) *gin.Engine {
	opts.applyDefaults()
	r := gin.Default()

	// Fleet reads are cached briefly; charges invalidate the cache so a
	// fresh read sees the machine busy immediately.
	cacheStore := cache.New(opts.CacheTTL, time.Minute)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	handler := NewHandler(charger, store, webpushOptions, cacheStore)

	rateLimiter := mw.RateLimit(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	// Charges are additionally throttled per tenant code to blunt
	// keypad code guessing through the API.
	chargeLimiter := mw.RateLimitBy(rate.Limit(1), 3, func(c *gin.Context) string {
		return c.GetHeader("X-Tenant-Code")
	})

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/ping", func(c *gin.Context) { c.JSON(200, gin.H{"message": "pong"}) })

		api.GET("/machines", caching, handler.GetMachines)
		api.GET("/machines/:id", handler.GetMachine)

		api.POST("/charge", chargeLimiter, handler.PostCharge)
		api.POST("/charge/simulate", chargeLimiter, handler.PostSimulateCharge)

		api.GET("/accounts", handler.GetAccounts)
		api.GET("/accounts/:code", handler.GetAccount)
		api.PUT("/accounts", handler.PutAccount)
		api.GET("/history", handler.GetHistory)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
