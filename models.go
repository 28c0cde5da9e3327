package main

import (
	"time"
)

// Account represents a managed Steam account
type Account struct {
	Username         string
	Password         string
	SharedSecret     string
	SteamLoginSecure string
	ProxyIndex       int
}

// BotRecord is the per-bot automation record kept in the registry.
// A record with Enabled set must carry the Buff session cookies that were
// valid as of the last check; a cookie-less record exists only while a
// verification code is outstanding.
type BotRecord struct {
	Enabled bool   `json:"enabled"`
	Cookies string `json:"cookies"`
}

// TradeEntryState is the lifecycle state of a cached trade offer
type TradeEntryState int

const (
	TradePending TradeEntryState = iota
	TradeAccepted
	TradeRejected
	TradeUnresolved
)

func (s TradeEntryState) String() string {
	switch s {
	case TradePending:
		return "pending"
	case TradeAccepted:
		return "accepted"
	case TradeRejected:
		return "rejected"
	default:
		return "unresolved"
	}
}

// Terminal reports whether the state can no longer change
func (s TradeEntryState) Terminal() bool {
	return s == TradeAccepted || s == TradeRejected
}

// TradeCacheEntry tracks one outstanding trade offer for a bot
type TradeCacheEntry struct {
	OfferID   string
	State     TradeEntryState
	FirstSeen time.Time
}

// BotTradeStatus aggregates delivery counters and the last cycle message
type BotTradeStatus struct {
	DeliverAcceptCount int    `json:"deliverAcceptCount"`
	DeliverRejectCount int    `json:"deliverRejectCount"`
	Message            string `json:"message,omitempty"`
}

// TradeOffer is an open exchange proposal on the bot's trading surface
type TradeOffer struct {
	ID        string
	Created   time.Time
	GiveItems []string // asset ids the bot would hand over
}

// SaleItem is one item of a marketplace sale awaiting shipment
type SaleItem struct {
	AssetID string `json:"assetid"`
	GoodsID int64  `json:"goods_id"`
}

// SaleRecord is a marketplace-side sale awaiting delivery via a trade offer
type SaleRecord struct {
	ID    string     `json:"id"`
	Items []SaleItem `json:"items"`
}

// CommandResponse is the JSON envelope returned by the command endpoints
type CommandResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BotHealth reports one bot's connectivity and automation state
type BotHealth struct {
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
	Enabled   bool   `json:"enabled"`
	Pending   int    `json:"pending"`
}

// HealthResponse represents the response from the health check
type HealthResponse struct {
	Status string      `json:"status"`
	Bots   []BotHealth `json:"bots"`
}
