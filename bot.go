package main

import (
	"bufio"
	"context"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	goSteam "github.com/Philipp15b/go-steam/v3"
)

// Constants for bot management
const (
	InitialReconnectDelay  = 10 * time.Second
	MaxReconnectDelay      = 5 * time.Minute
	ReconnectBackoffFactor = 1.5

	BotHealthCheckInterval = 1 * time.Minute

	// Bot states
	BotStateDisconnected = "disconnected"
	BotStateConnecting   = "connecting"
	BotStateConnected    = "connected"
	BotStateLoggingIn    = "logging_in"
	BotStateLoggedIn     = "logged_in"
)

// BotManager owns the Steam client lifecycle for every managed account.
// It is the bot directory and connectivity collaborator for the
// delivery layer: name resolution, connection state and authenticator
// presence all come from here.
type BotManager struct {
	mu         sync.RWMutex
	bots       map[string]*SteamBot
	order      []string
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// NewBotManager creates a new bot manager
func NewBotManager() *BotManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &BotManager{
		bots:       make(map[string]*SteamBot),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Initialize loads accounts and starts bots
func (bm *BotManager) Initialize(cfg *Config) error {
	accounts, err := loadAccounts(cfg.AccountsFile)
	if err != nil {
		return err
	}

	LogInfo("Loaded %d accounts", len(accounts))

	for _, account := range accounts {
		bot := NewSteamBot(account, bm.ctx)
		bm.mu.Lock()
		bm.bots[account.Username] = bot
		bm.order = append(bm.order, account.Username)
		bm.mu.Unlock()

		go bot.Start()
	}

	go bm.monitorBotHealth()

	return nil
}

// Accounts returns the managed accounts keyed by username
func (bm *BotManager) Accounts() map[string]Account {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	out := make(map[string]Account, len(bm.bots))
	for name, bot := range bm.bots {
		out[name] = bot.account
	}
	return out
}

// HasBot reports whether the given bot is managed
func (bm *BotManager) HasBot(botName string) bool {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	_, ok := bm.bots[botName]
	return ok
}

// GetBots resolves a bot-name specification to known bot names. The
// specification is a comma or space separated list; "all" (or the
// legacy "ASF" alias) selects every managed bot in load order. Unknown
// names are dropped.
func (bm *BotManager) GetBots(spec string) []string {
	bm.mu.RLock()
	defer bm.mu.RUnlock()

	spec = strings.TrimSpace(spec)
	if strings.EqualFold(spec, "all") || spec == "ASF" {
		return append([]string(nil), bm.order...)
	}

	var names []string
	seen := make(map[string]bool)
	for _, name := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ' ' }) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := bm.bots[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// IsConnected reports whether the bot is logged on to Steam
func (bm *BotManager) IsConnected(botName string) bool {
	bm.mu.RLock()
	bot, ok := bm.bots[botName]
	bm.mu.RUnlock()
	if !ok {
		return false
	}

	bot.mu.Lock()
	defer bot.mu.Unlock()
	return bot.state == BotStateLoggedIn
}

// Has2FA reports whether the bot has a mobile authenticator secret
func (bm *BotManager) Has2FA(botName string) bool {
	bm.mu.RLock()
	bot, ok := bm.bots[botName]
	bm.mu.RUnlock()
	if !ok {
		return false
	}
	return bot.account.SharedSecret != ""
}

// Shutdown gracefully shuts down all bots
func (bm *BotManager) Shutdown() {
	LogInfo("Shutting down bot manager...")
	bm.cancelFunc()

	bm.mu.RLock()
	for _, bot := range bm.bots {
		bot.mu.Lock()
		if bot.client != nil {
			bot.client.Disconnect()
		}
		bot.mu.Unlock()
	}
	bm.mu.RUnlock()

	LogInfo("Bot manager shutdown complete")
}

// monitorBotHealth periodically checks all bots and reconnects any that are down
func (bm *BotManager) monitorBotHealth() {
	ticker := time.NewTicker(BotHealthCheckInterval)
	defer ticker.Stop()

	lastReconnectTime := make(map[string]time.Time)

	for {
		select {
		case <-ticker.C:
			bm.mu.RLock()
			bots := make([]*SteamBot, 0, len(bm.bots))
			for _, bot := range bm.bots {
				bots = append(bots, bot)
			}
			bm.mu.RUnlock()

			for _, bot := range bots {
				bot.mu.Lock()
				username := bot.account.Username
				disconnected := bot.state == BotStateDisconnected
				attempts := bot.reconnectAttempts
				bot.mu.Unlock()

				now := time.Now()
				last, tried := lastReconnectTime[username]
				if disconnected && (!tried || now.Sub(last) > 2*time.Minute) {
					LogWarning("Health monitor: Bot %s is disconnected (attempt %d), triggering reconnect",
						username, attempts)
					lastReconnectTime[username] = now

					go func(b *SteamBot) {
						// Stagger reconnects so bots don't stampede
						time.Sleep(time.Duration(rand.Intn(5)) * time.Second)
						b.Reconnect()
					}(bot)
				}
			}

		case <-bm.ctx.Done():
			LogInfo("Bot health monitor shutting down")
			return
		}
	}
}

// SteamBot drives one account's Steam connection state machine
type SteamBot struct {
	account           Account
	client            *goSteam.Client
	state             string
	reconnectDelay    time.Duration
	reconnectAttempts int
	mu                sync.Mutex
	ctx               context.Context
	cancelFunc        context.CancelFunc
}

// NewSteamBot creates a new bot instance
func NewSteamBot(account Account, parentCtx context.Context) *SteamBot {
	ctx, cancel := context.WithCancel(parentCtx)
	return &SteamBot{
		account:        account,
		state:          BotStateDisconnected,
		reconnectDelay: InitialReconnectDelay,
		ctx:            ctx,
		cancelFunc:     cancel,
	}
}

// Start initializes and starts the bot
func (b *SteamBot) Start() {
	LogInfo("Starting bot %s", b.account.Username)
	b.connect()
}

// connect establishes a connection to Steam and runs the event loop
// until shutdown, reconnecting with backoff after disconnects
func (b *SteamBot) connect() {
	for {
		select {
		case <-b.ctx.Done():
			LogInfo("Bot %s shutting down", b.account.Username)
			return
		default:
		}

		b.mu.Lock()
		b.state = BotStateConnecting
		if b.client == nil {
			b.client = goSteam.NewClient()
		}
		client := b.client
		b.mu.Unlock()

		LogInfo("Bot %s: Connecting to Steam...", b.account.Username)
		go client.Connect()

	eventLoop:
		for {
			select {
			case event := <-client.Events():
				switch event.(type) {
				case *goSteam.ConnectedEvent:
					LogInfo("Bot %s: Connected to Steam", b.account.Username)
					b.mu.Lock()
					b.state = BotStateLoggingIn
					b.reconnectAttempts = 0
					b.reconnectDelay = InitialReconnectDelay
					b.mu.Unlock()

					details := &goSteam.LogOnDetails{
						Username: b.account.Username,
						Password: b.account.Password,
					}
					if b.account.SharedSecret != "" {
						code, err := generateTwoFactorCode(b.account.SharedSecret, time.Now())
						if err != nil {
							LogWarning("Bot %s: failed to generate two-factor code: %v", b.account.Username, err)
						} else {
							details.TwoFactorCode = code
						}
					}
					client.Auth.LogOn(details)

				case *goSteam.LoggedOnEvent:
					LogInfo("Bot %s: Logged on to Steam", b.account.Username)
					b.mu.Lock()
					b.state = BotStateLoggedIn
					b.mu.Unlock()

				case *goSteam.DisconnectedEvent:
					LogWarning("Bot %s: Disconnected from Steam", b.account.Username)
					b.mu.Lock()
					b.state = BotStateDisconnected
					b.mu.Unlock()
					break eventLoop
				}

			case <-b.ctx.Done():
				LogInfo("Bot %s: Shutting down during event processing", b.account.Username)
				return
			}
		}

		delay := b.calculateBackoff()
		LogInfo("Bot %s: Waiting %v before reconnecting...", b.account.Username, delay)
		select {
		case <-time.After(delay):
		case <-b.ctx.Done():
			return
		}

		b.mu.Lock()
		b.client = nil
		b.mu.Unlock()
	}
}

// calculateBackoff calculates the backoff delay for reconnection attempts
func (b *SteamBot) calculateBackoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reconnectAttempts++
	if b.reconnectAttempts > 1 {
		b.reconnectDelay = time.Duration(float64(b.reconnectDelay) * ReconnectBackoffFactor)
		if b.reconnectDelay > MaxReconnectDelay {
			b.reconnectDelay = MaxReconnectDelay
		}
	}
	return b.reconnectDelay
}

// Reconnect forces a reconnection of the bot
func (b *SteamBot) Reconnect() {
	b.mu.Lock()
	LogInfo("Bot %s: Forcing reconnect from state: %s", b.account.Username, b.state)

	if b.client != nil {
		b.client.Disconnect()
		b.client = nil
	}
	b.state = BotStateDisconnected
	b.reconnectDelay = InitialReconnectDelay
	b.reconnectAttempts = 0
	b.mu.Unlock()
}

// loadAccounts loads Steam accounts from the accounts file. Each line is
// username:password[:shared_secret[:steamLoginSecure]].
func loadAccounts(accountsFile string) ([]Account, error) {
	file, err := os.Open(accountsFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var accounts []Account
	scanner := bufio.NewScanner(file)
	proxyIndex := 1

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			continue
		}
		account := Account{
			Username:   parts[0],
			Password:   parts[1],
			ProxyIndex: proxyIndex,
		}
		if len(parts) >= 3 {
			account.SharedSecret = parts[2]
		}
		if len(parts) >= 4 {
			account.SteamLoginSecure = parts[3]
		}
		accounts = append(accounts, account)
		proxyIndex++
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}
