package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TradingSurface lists and resolves the bot's open trade offers
type TradingSurface interface {
	ListOpenTradeOffers(ctx context.Context, botName string) ([]TradeOffer, error)
	AcceptOffer(ctx context.Context, botName, offerID string) error
	RejectOffer(ctx context.Context, botName, offerID string) error
}

// Marketplace reports the sales awaiting shipment for a bot
type Marketplace interface {
	ListPendingSales(ctx context.Context, botName string) ([]SaleRecord, error)
}

var (
	errAlreadyInitialized = errors.New("trade cache already initialized")
	errNotTracked         = errors.New("trade cache not initialized")
)

// TradeCache reconciles every bot's open trade offers against its
// pending marketplace sales and accepts, rejects or holds each one.
// Each bot owns its cache and lock, so distinct bots refresh in
// parallel while one bot's cycle is always serialized.
type TradeCache struct {
	trades         TradingSurface
	market         Marketplace
	staleThreshold time.Duration

	mu     sync.RWMutex
	caches map[string]*botCache
}

type botCache struct {
	mu      sync.Mutex
	entries map[string]*TradeCacheEntry
	status  BotTradeStatus
}

// NewTradeCache creates the reconciliation engine
func NewTradeCache(trades TradingSurface, market Marketplace, staleThreshold time.Duration) *TradeCache {
	return &TradeCache{
		trades:         trades,
		market:         market,
		staleThreshold: staleThreshold,
		caches:         make(map[string]*botCache),
	}
}

// InitTradeCache starts tracking for a bot with zeroed counters.
// Fails if the bot is already tracked.
func (tc *TradeCache) InitTradeCache(botName string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, ok := tc.caches[botName]; ok {
		return errAlreadyInitialized
	}
	tc.caches[botName] = &botCache{
		entries: make(map[string]*TradeCacheEntry),
	}
	return nil
}

// ClearTradeCache stops tracking for a bot, releasing its entries and
// counters. Clearing an untracked bot is a no-op; disable may be
// invoked defensively.
func (tc *TradeCache) ClearTradeCache(botName string) {
	tc.mu.Lock()
	cache, ok := tc.caches[botName]
	if ok {
		delete(tc.caches, botName)
	}
	tc.mu.Unlock()

	if ok {
		// Wait out a refresh that may still hold the cache
		cache.mu.Lock()
		cache.entries = nil
		cache.mu.Unlock()
	}
}

// GetTradeCacheCount returns the number of offers currently held
// pending for the bot, or -1 if the bot is not tracked. Callers must
// treat -1 as an internal-error condition, not as zero.
func (tc *TradeCache) GetTradeCacheCount(botName string) int {
	tc.mu.RLock()
	cache, ok := tc.caches[botName]
	tc.mu.RUnlock()
	if !ok {
		return -1
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()

	count := 0
	for _, entry := range cache.entries {
		if entry.State == TradePending {
			count++
		}
	}
	return count
}

// GetBotStatus returns a snapshot of the bot's delivery counters
func (tc *TradeCache) GetBotStatus(botName string) (BotTradeStatus, bool) {
	tc.mu.RLock()
	cache, ok := tc.caches[botName]
	tc.mu.RUnlock()
	if !ok {
		return BotTradeStatus{}, false
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.status, true
}

// FreshTradeCache runs one reconciliation cycle for the bot: fetch the
// open offers and pending sales, then accept offers whose items match a
// sale, reject unmatched offers older than the staleness threshold and
// hold the rest. Transport failures abort the cycle and land in the
// status message; counters are never corrupted.
func (tc *TradeCache) FreshTradeCache(ctx context.Context, botName string) error {
	tc.mu.RLock()
	cache, ok := tc.caches[botName]
	tc.mu.RUnlock()
	if !ok {
		return errNotTracked
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cache.entries == nil {
		// Cleared while this cycle was waiting for the lock
		return errNotTracked
	}

	// The message always reflects the latest cycle
	cache.status.Message = ""

	offers, err := tc.trades.ListOpenTradeOffers(ctx, botName)
	if err != nil {
		cache.status.Message = fmt.Sprintf("trade offer fetch failed: %v", err)
		return err
	}

	sales, err := tc.market.ListPendingSales(ctx, botName)
	if err != nil {
		cache.status.Message = fmt.Sprintf("pending sale fetch failed: %v", err)
		return err
	}

	saleBySig := make(map[string]SaleRecord, len(sales))
	for _, sale := range sales {
		ids := make([]string, 0, len(sale.Items))
		for _, item := range sale.Items {
			ids = append(ids, item.AssetID)
		}
		saleBySig[itemSignature(ids)] = sale
	}

	// Forget offers the surface no longer reports; this is where
	// terminal entries leave the cache
	open := make(map[string]struct{}, len(offers))
	for _, offer := range offers {
		open[offer.ID] = struct{}{}
	}
	for id := range cache.entries {
		if _, still := open[id]; !still {
			delete(cache.entries, id)
		}
	}

	// Offers are evaluated in the order the surface returned them
	for _, offer := range offers {
		entry, ok := cache.entries[offer.ID]
		if !ok {
			entry = &TradeCacheEntry{
				OfferID:   offer.ID,
				State:     TradePending,
				FirstSeen: offer.Created,
			}
			cache.entries[offer.ID] = entry
		}
		if entry.State.Terminal() {
			// Accepted/Rejected never revert
			continue
		}

		if sale, matched := saleBySig[itemSignature(offer.GiveItems)]; matched {
			if err := tc.trades.AcceptOffer(ctx, botName, offer.ID); err != nil {
				cache.status.Message = fmt.Sprintf("accept of offer %s failed: %v", offer.ID, err)
				return err
			}
			entry.State = TradeAccepted
			cache.status.DeliverAcceptCount++
			LogInfo("Bot %s: accepted offer %s for sale %s (%s)", botName, offer.ID, sale.ID, describeSale(sale))
		} else if time.Since(offer.Created) > tc.staleThreshold {
			if err := tc.trades.RejectOffer(ctx, botName, offer.ID); err != nil {
				cache.status.Message = fmt.Sprintf("reject of offer %s failed: %v", offer.ID, err)
				return err
			}
			entry.State = TradeRejected
			cache.status.DeliverRejectCount++
			LogInfo("Bot %s: rejected stale offer %s (age %v)", botName, offer.ID, time.Since(offer.Created).Round(time.Minute))
		}
		// Otherwise hold; the matching sale may not have propagated yet
	}

	return nil
}

// StartRefreshDriver periodically refreshes every enabled bot, one
// goroutine per bot per tick. A bot's cycle is bounded by cycleTimeout
// so a hung request fails that cycle instead of stalling the driver.
func (tc *TradeCache) StartRefreshDriver(ctx context.Context, registry *Registry, interval, cycleTimeout time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, name := range registry.EnabledBots() {
					go func(botName string) {
						cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
						defer cancel()

						if err := tc.FreshTradeCache(cycleCtx, botName); err != nil {
							LogWarning("Bot %s: refresh cycle failed: %v", botName, err)
						}
					}(name)
				}
			case <-ctx.Done():
				LogInfo("Trade refresh driver shutting down")
				return
			}
		}
	}()
}
