// Package api exposes the HTTP surface: the charge endpoints, fleet
// status, account and history reads, and push subscription management.
package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"

	"laundry-pay-backend/internal/arbiter"
	"laundry-pay-backend/internal/charge"
	"laundry-pay-backend/internal/ledger"
	"laundry-pay-backend/internal/model"
	"laundry-pay-backend/internal/mw"
)

// Charger is the slice of the charge orchestrator the handlers use.
type Charger interface {
	Fleet() []model.Machine
	Machine(id int) (model.Machine, bool)
	Status(ctx context.Context, machineID int) (arbiter.Status, error)
	Charge(ctx context.Context, req charge.Request) (*charge.Receipt, error)
	Simulate(ctx context.Context, req charge.Request) (*charge.Receipt, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	charger Charger
	store   ledger.Store
	webpush *webpush.Options
	cache   *cache.Cache
}

// NewHandler creates a new API handler. The cache is shared with the
// caching middleware so mutations can invalidate stale fleet reads.
func NewHandler(charger Charger, store ledger.Store, webpushOptions *webpush.Options, cacheStore *cache.Cache) *Handler {
	return &Handler{
		charger: charger,
		store:   store,
		webpush: webpushOptions,
		cache:   cacheStore,
	}
}

func (h *Handler) invalidateCache() {
	if h.cache != nil {
		mw.Invalidate(h.cache)
	}
}
