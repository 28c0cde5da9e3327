package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTrades struct {
	mu        sync.Mutex
	offers    []TradeOffer
	listErr   error
	acceptErr error
	rejectErr error
	accepted  []string
	rejected  []string
}

func (s *stubTrades) ListOpenTradeOffers(ctx context.Context, botName string) ([]TradeOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]TradeOffer(nil), s.offers...), nil
}

func (s *stubTrades) AcceptOffer(ctx context.Context, botName, offerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptErr != nil {
		return s.acceptErr
	}
	s.accepted = append(s.accepted, offerID)
	return nil
}

func (s *stubTrades) RejectOffer(ctx context.Context, botName, offerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectErr != nil {
		return s.rejectErr
	}
	s.rejected = append(s.rejected, offerID)
	return nil
}

type stubMarket struct {
	mu    sync.Mutex
	sales []SaleRecord
	err   error
}

func (s *stubMarket) ListPendingSales(ctx context.Context, botName string) ([]SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]SaleRecord(nil), s.sales...), nil
}

func saleOf(id string, assetIDs ...string) SaleRecord {
	items := make([]SaleItem, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		items = append(items, SaleItem{AssetID: assetID})
	}
	return SaleRecord{ID: id, Items: items}
}

func TestTradeCacheInitAndClear(t *testing.T) {
	tc := NewTradeCache(&stubTrades{}, &stubMarket{}, 24*time.Hour)

	assert.Equal(t, -1, tc.GetTradeCacheCount("alpha"), "untracked bot must report -1, not zero")
	_, tracked := tc.GetBotStatus("alpha")
	assert.False(t, tracked)

	require.NoError(t, tc.InitTradeCache("alpha"))
	assert.Equal(t, 0, tc.GetTradeCacheCount("alpha"))

	err := tc.InitTradeCache("alpha")
	assert.ErrorIs(t, err, errAlreadyInitialized)

	tc.ClearTradeCache("alpha")
	assert.Equal(t, -1, tc.GetTradeCacheCount("alpha"))

	// Clearing an untracked bot is a no-op
	tc.ClearTradeCache("alpha")
	assert.Equal(t, -1, tc.GetTradeCacheCount("alpha"))
}

func TestTradeCacheAcceptsMatchedOffer(t *testing.T) {
	trades := &stubTrades{offers: []TradeOffer{
		{ID: "1001", Created: time.Now(), GiveItems: []string{"a2", "a1"}},
	}}
	market := &stubMarket{sales: []SaleRecord{
		// Item order differs from the offer; matching is order-independent
		saleOf("s-1", "a1", "a2"),
	}}
	tc := NewTradeCache(trades, market, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))

	assert.Equal(t, []string{"1001"}, trades.accepted)
	assert.Empty(t, trades.rejected)

	status, tracked := tc.GetBotStatus("alpha")
	require.True(t, tracked)
	assert.Equal(t, 1, status.DeliverAcceptCount)
	assert.Equal(t, 0, status.DeliverRejectCount)
	assert.Empty(t, status.Message)

	// The accepted entry is terminal, not pending
	assert.Equal(t, 0, tc.GetTradeCacheCount("alpha"))
}

func TestTradeCacheRejectsStaleUnmatchedOffer(t *testing.T) {
	trades := &stubTrades{offers: []TradeOffer{
		{ID: "1002", Created: time.Now().Add(-48 * time.Hour), GiveItems: []string{"a9"}},
	}}
	tc := NewTradeCache(trades, &stubMarket{}, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))

	assert.Equal(t, []string{"1002"}, trades.rejected)
	status, _ := tc.GetBotStatus("alpha")
	assert.Equal(t, 1, status.DeliverRejectCount)
	assert.Equal(t, 0, tc.GetTradeCacheCount("alpha"))
}

func TestTradeCacheHoldsFreshUnmatchedOffer(t *testing.T) {
	trades := &stubTrades{offers: []TradeOffer{
		{ID: "1003", Created: time.Now(), GiveItems: []string{"a9"}},
	}}
	tc := NewTradeCache(trades, &stubMarket{}, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))

	assert.Empty(t, trades.accepted)
	assert.Empty(t, trades.rejected)
	assert.Equal(t, 1, tc.GetTradeCacheCount("alpha"))

	status, _ := tc.GetBotStatus("alpha")
	assert.Equal(t, 0, status.DeliverAcceptCount)
	assert.Equal(t, 0, status.DeliverRejectCount)
}

func TestTradeCacheTerminalEntriesNotRecounted(t *testing.T) {
	trades := &stubTrades{offers: []TradeOffer{
		{ID: "2001", Created: time.Now(), GiveItems: []string{"a1"}},
		{ID: "2002", Created: time.Now().Add(-48 * time.Hour), GiveItems: []string{"a9"}},
	}}
	market := &stubMarket{sales: []SaleRecord{saleOf("s-1", "a1")}}
	tc := NewTradeCache(trades, market, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))
	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))
	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))

	// Both offers still appear on the surface but were resolved once
	assert.Equal(t, []string{"2001"}, trades.accepted)
	assert.Equal(t, []string{"2002"}, trades.rejected)

	status, _ := tc.GetBotStatus("alpha")
	assert.Equal(t, 1, status.DeliverAcceptCount)
	assert.Equal(t, 1, status.DeliverRejectCount)
	assert.Equal(t, 0, tc.GetTradeCacheCount("alpha"))
}

func TestTradeCacheForgetsVanishedOffers(t *testing.T) {
	trades := &stubTrades{offers: []TradeOffer{
		{ID: "3001", Created: time.Now(), GiveItems: []string{"a9"}},
	}}
	tc := NewTradeCache(trades, &stubMarket{}, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))
	assert.Equal(t, 1, tc.GetTradeCacheCount("alpha"))

	trades.mu.Lock()
	trades.offers = nil
	trades.mu.Unlock()

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))
	assert.Equal(t, 0, tc.GetTradeCacheCount("alpha"))
}

func TestTradeCacheOfferFetchFailure(t *testing.T) {
	boom := errors.New("connection reset")
	trades := &stubTrades{listErr: boom}
	tc := NewTradeCache(trades, &stubMarket{}, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	err := tc.FreshTradeCache(context.Background(), "alpha")
	assert.ErrorIs(t, err, boom)

	status, tracked := tc.GetBotStatus("alpha")
	require.True(t, tracked)
	assert.Contains(t, status.Message, "trade offer fetch failed")
	assert.Equal(t, 0, status.DeliverAcceptCount)
	assert.Equal(t, 0, status.DeliverRejectCount)
}

func TestTradeCacheSaleFetchFailure(t *testing.T) {
	market := &stubMarket{err: errors.New("502 bad gateway")}
	tc := NewTradeCache(&stubTrades{}, market, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	err := tc.FreshTradeCache(context.Background(), "alpha")
	require.Error(t, err)

	status, _ := tc.GetBotStatus("alpha")
	assert.Contains(t, status.Message, "pending sale fetch failed")
}

func TestTradeCacheMessageClearedOnNextCycle(t *testing.T) {
	trades := &stubTrades{listErr: errors.New("timeout")}
	tc := NewTradeCache(trades, &stubMarket{}, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	require.Error(t, tc.FreshTradeCache(context.Background(), "alpha"))
	status, _ := tc.GetBotStatus("alpha")
	require.NotEmpty(t, status.Message)

	trades.mu.Lock()
	trades.listErr = nil
	trades.mu.Unlock()

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))
	status, _ = tc.GetBotStatus("alpha")
	assert.Empty(t, status.Message)
}

func TestTradeCacheAcceptFailureRecordsMessage(t *testing.T) {
	trades := &stubTrades{
		offers:    []TradeOffer{{ID: "4001", Created: time.Now(), GiveItems: []string{"a1"}}},
		acceptErr: errors.New("offer no longer valid"),
	}
	market := &stubMarket{sales: []SaleRecord{saleOf("s-1", "a1")}}
	tc := NewTradeCache(trades, market, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))

	require.Error(t, tc.FreshTradeCache(context.Background(), "alpha"))

	status, _ := tc.GetBotStatus("alpha")
	assert.Contains(t, status.Message, "accept of offer 4001 failed")
	assert.Equal(t, 0, status.DeliverAcceptCount, "counter must not move on a failed accept")

	// The entry stays pending and is retried next cycle
	assert.Equal(t, 1, tc.GetTradeCacheCount("alpha"))

	trades.mu.Lock()
	trades.acceptErr = nil
	trades.mu.Unlock()

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))
	status, _ = tc.GetBotStatus("alpha")
	assert.Equal(t, 1, status.DeliverAcceptCount)
}

func TestTradeCacheRefreshUntracked(t *testing.T) {
	tc := NewTradeCache(&stubTrades{}, &stubMarket{}, 24*time.Hour)
	err := tc.FreshTradeCache(context.Background(), "alpha")
	assert.ErrorIs(t, err, errNotTracked)
}

func TestTradeCacheIndependentBots(t *testing.T) {
	trades := &stubTrades{offers: []TradeOffer{
		{ID: "5001", Created: time.Now(), GiveItems: []string{"a9"}},
	}}
	tc := NewTradeCache(trades, &stubMarket{}, 24*time.Hour)
	require.NoError(t, tc.InitTradeCache("alpha"))
	require.NoError(t, tc.InitTradeCache("bravo"))

	require.NoError(t, tc.FreshTradeCache(context.Background(), "alpha"))

	assert.Equal(t, 1, tc.GetTradeCacheCount("alpha"))
	assert.Equal(t, 0, tc.GetTradeCacheCount("bravo"))

	tc.ClearTradeCache("bravo")
	assert.Equal(t, 1, tc.GetTradeCacheCount("alpha"))
	assert.Equal(t, -1, tc.GetTradeCacheCount("bravo"))
}
