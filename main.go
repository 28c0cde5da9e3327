package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
)

// Global service singletons, wired once at startup
var (
	botManager *BotManager
	registry   *Registry
	tradeCache *TradeCache
	deliverer  *Deliverer
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		LogWarning("Error loading .env file: %v", err)
	}

	InitLogger()
	defer CloseLogger()

	LogInfo("Starting Buff Auto-Delivery Service")

	cfg, err := loadConfig()
	if err != nil {
		LogError("Invalid configuration: %v", err)
		os.Exit(1)
	}

	// The durable store backs the automation registry; without it every
	// enabled bot would be forgotten on restart
	LogInfo("Initializing database connection...")
	if err := InitDB(); err != nil {
		LogError("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer CloseDB()

	LogInfo("Initializing goods catalog...")
	StartGoodsUpdater(cfg)

	botManager = NewBotManager()
	if err := botManager.Initialize(cfg); err != nil {
		LogError("Failed to initialize bots: %v", err)
		// Keep serving; bots show up as offline until accounts are fixed
	}
	defer botManager.Shutdown()

	accounts := botManager.Accounts()
	buffClient := NewBuffClient(cfg, accounts)
	tradeClient := NewSteamTradeClient(cfg, accounts)

	registry = NewRegistry()
	tradeCache = NewTradeCache(tradeClient, buffClient, cfg.StaleThreshold)
	store := NewBotStore()

	// Restore persisted automation records once at startup
	records, err := store.LoadBotRecords(context.Background())
	if err != nil {
		LogWarning("Failed to load persisted bot records: %v", err)
	} else {
		registry.Load(records)
		for name, rec := range records {
			if rec.Cookies != "" {
				if err := buffClient.SetCookies(name, rec.Cookies); err != nil {
					LogWarning("Bot %s: failed to restore cookies: %v", name, err)
				}
			}
			if rec.Enabled {
				if err := tradeCache.InitTradeCache(name); err != nil {
					LogWarning("Bot %s: failed to initialize trade cache: %v", name, err)
				}
			}
		}
		LogInfo("Restored %d bot records", len(records))
	}

	deliverer = NewDeliverer(cfg, botManager, botManager, buffClient, tradeCache, registry, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tradeCache.StartRefreshDriver(ctx, registry, cfg.RefreshInterval, cfg.CycleTimeout)

	http.HandleFunc("/enable", handleEnable)
	http.HandleFunc("/disable", handleDisable)
	http.HandleFunc("/status", handleStatus)
	http.HandleFunc("/verifycode", handleVerifyCode)
	http.HandleFunc("/cookies", handleUpdateCookies)
	http.HandleFunc("/health", handleHealth)

	address := ":" + cfg.Port
	LogInfo("Starting HTTP server on %s", address)

	if err := http.ListenAndServe(address, nil); err != nil {
		LogError("Failed to start HTTP server: %v", err)
		os.Exit(1)
	}
}
