package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Connectivity reports a bot's Steam client state
type Connectivity interface {
	IsConnected(botName string) bool
	Has2FA(botName string) bool
}

// BotDirectory resolves bot-name specifications to known bots
type BotDirectory interface {
	GetBots(spec string) []string
	HasBot(botName string) bool
}

// Authenticator drives the Buff login and verification flow and owns
// each bot's marketplace cookies
type Authenticator interface {
	LoginViaSteam(ctx context.Context, botName string) error
	CheckCookiesValid(ctx context.Context, botName string) (bool, error)
	SendSmsCode(ctx context.Context, botName string) (bool, error)
	VerifyAuthCode(ctx context.Context, botName, code string) (bool, error)
	GetCookies(botName string) string
	SetCookies(botName, blob string) error
}

// RecordStore persists the full registry mapping
type RecordStore interface {
	SaveBotRecords(ctx context.Context, records map[string]BotRecord) error
}

// Deliverer wires the registry, trade cache and collaborators into the
// command surface. Internal operations return structured outcomes; only
// the Response* layer renders text.
type Deliverer struct {
	cfg       *Config
	directory BotDirectory
	conn      Connectivity
	auth      Authenticator
	cache     *TradeCache
	registry  *Registry
	store     RecordStore
}

// NewDeliverer assembles the command surface
func NewDeliverer(cfg *Config, directory BotDirectory, conn Connectivity, auth Authenticator, cache *TradeCache, registry *Registry, store RecordStore) *Deliverer {
	return &Deliverer{
		cfg:       cfg,
		directory: directory,
		conn:      conn,
		auth:      auth,
		cache:     cache,
		registry:  registry,
		store:     store,
	}
}

// persist writes the registry through the durable store. Mutations and
// persistence are deliberately two separate steps so the registry stays
// free of I/O.
func (d *Deliverer) persist(ctx context.Context) {
	if err := d.store.SaveBotRecords(ctx, d.registry.Snapshot()); err != nil {
		LogError("Failed to persist bot records: %v", err)
	}
}

type enableOutcome int

const (
	enableSuccess enableOutcome = iota
	enableAlreadyEnabled
	enableNeed2FA
	enableNotConnected
	enableNeedCode
	enableCodePending
	enableSendCodeFailed
	enableTransportError
	enableInternalError
)

// enableBot runs the enable state machine for one bot. Cookie validity
// after login is the sole authority on whether a session is usable; the
// SMS challenge is forced independently when AlwaysSendSmsCode is set.
func (d *Deliverer) enableBot(ctx context.Context, botName string) (enableOutcome, error) {
	if rec, ok := d.registry.TryGet(botName); ok && rec.Enabled {
		return enableAlreadyEnabled, nil
	}

	if !d.conn.Has2FA(botName) {
		return enableNeed2FA, nil
	}
	if !d.conn.IsConnected(botName) {
		return enableNotConnected, nil
	}

	if err := d.auth.LoginViaSteam(ctx, botName); err != nil {
		return enableTransportError, err
	}

	login, err := d.auth.CheckCookiesValid(ctx, botName)
	if err != nil {
		return enableTransportError, err
	}

	if !login || d.cfg.AlwaysSendSmsCode {
		sent, err := d.auth.SendSmsCode(ctx, botName)
		if err != nil {
			return enableTransportError, err
		}
		if !sent {
			return enableSendCodeFailed, nil
		}
		if !d.registry.TryInsert(botName, BotRecord{}) {
			// A disabled record already waits on a code
			return enableCodePending, nil
		}
		return enableNeedCode, nil
	}

	if err := d.cache.InitTradeCache(botName); err != nil {
		if errors.Is(err, errAlreadyInitialized) {
			LogError("Bot %s: trade cache active without a registry record", botName)
			return enableInternalError, err
		}
		return enableInternalError, err
	}
	if err := d.cache.FreshTradeCache(ctx, botName); err != nil {
		// Recorded in the bot's status message; the driver retries
		LogWarning("Bot %s: initial trade cache refresh failed: %v", botName, err)
	}

	cookies := d.auth.GetCookies(botName)
	if !d.registry.TryInsert(botName, BotRecord{Enabled: true, Cookies: cookies}) {
		// Promote a record left behind by an earlier code challenge
		d.registry.Update(botName, func(rec *BotRecord) {
			rec.Enabled = true
			rec.Cookies = cookies
		})
	}
	d.persist(ctx)

	return enableSuccess, nil
}

// responseEnableBot renders the enable outcome for one bot
func (d *Deliverer) responseEnableBot(ctx context.Context, botName string) string {
	outcome, err := d.enableBot(ctx, botName)

	switch outcome {
	case enableSuccess:
		return formatBotResponse(botName, "Buff auto-delivery enabled")
	case enableAlreadyEnabled:
		return formatBotResponse(botName, "Buff auto-delivery is already enabled")
	case enableNeed2FA:
		return formatBotResponse(botName, "a mobile authenticator is required for Buff auto-delivery")
	case enableNotConnected:
		return formatBotResponse(botName, "bot is not connected to Steam")
	case enableNeedCode:
		return formatBotResponse(botName, "Buff sent a verification code, submit it with the verifycode command")
	case enableCodePending:
		return formatBotResponse(botName, "a verification code is already pending, submit it with the verifycode command")
	case enableSendCodeFailed:
		return formatBotResponse(botName, "Buff refused to send a verification code, try again later")
	case enableInternalError:
		return formatBotResponse(botName, "internal error")
	default:
		return formatBotResponse(botName, fmt.Sprintf("enable failed: %v", err))
	}
}

// EnableDelivery enables auto-delivery for every bot the specification
// resolves to and joins the per-bot result lines
func (d *Deliverer) EnableDelivery(ctx context.Context, botNames string) string {
	return d.dispatch(botNames, func(botName string) string {
		return d.responseEnableBot(ctx, botName)
	})
}

type disableOutcome int

const (
	disableSuccess disableOutcome = iota
	disableNotEnabled
)

func (d *Deliverer) disableBot(ctx context.Context, botName string) disableOutcome {
	if !d.registry.Remove(botName) {
		return disableNotEnabled
	}
	d.cache.ClearTradeCache(botName)
	d.persist(ctx)
	return disableSuccess
}

func (d *Deliverer) responseDisableBot(ctx context.Context, botName string) string {
	switch d.disableBot(ctx, botName) {
	case disableSuccess:
		return formatBotResponse(botName, "Buff auto-delivery disabled")
	default:
		return formatBotResponse(botName, "Buff auto-delivery is not enabled")
	}
}

// DisableDelivery disables auto-delivery for every bot the
// specification resolves to
func (d *Deliverer) DisableDelivery(ctx context.Context, botNames string) string {
	return d.dispatch(botNames, func(botName string) string {
		return d.responseDisableBot(ctx, botName)
	})
}

type statusOutcome int

const (
	statusOK statusOutcome = iota
	statusNotEnabled
	statusOffline
	statusTransportError
	statusInternalError
)

type statusReport struct {
	sessionValid bool
	pending      int
	trade        BotTradeStatus
}

// botStatus gathers one bot's delivery status. A tracked registry
// record without a live cache (or the reverse) is an invariant
// violation and is reported as an internal error, never as zero.
func (d *Deliverer) botStatus(ctx context.Context, botName string) (statusOutcome, statusReport, error) {
	rec, ok := d.registry.TryGet(botName)
	if !ok || !rec.Enabled {
		return statusNotEnabled, statusReport{}, nil
	}

	if !d.conn.IsConnected(botName) {
		return statusOffline, statusReport{}, nil
	}

	valid, err := d.auth.CheckCookiesValid(ctx, botName)
	if err != nil {
		return statusTransportError, statusReport{}, err
	}

	count := d.cache.GetTradeCacheCount(botName)
	trade, tracked := d.cache.GetBotStatus(botName)
	if count < 0 || !tracked {
		LogError("Bot %s: registry and trade cache disagree (count=%d, tracked=%v)", botName, count, tracked)
		return statusInternalError, statusReport{}, nil
	}

	return statusOK, statusReport{sessionValid: valid, pending: count, trade: trade}, nil
}

func (d *Deliverer) responseBotStatus(ctx context.Context, botName string) string {
	outcome, report, err := d.botStatus(ctx, botName)

	switch outcome {
	case statusNotEnabled:
		return formatBotResponse(botName, "Buff auto-delivery is not enabled")
	case statusOffline:
		return formatBotResponse(botName, "Buff auto-delivery is enabled but the bot is offline")
	case statusTransportError:
		return formatBotResponse(botName, fmt.Sprintf("status check failed: %v", err))
	case statusInternalError:
		return formatBotResponse(botName, "internal error")
	}

	validity := "valid"
	if !report.sessionValid {
		validity = "invalid"
	}
	message := report.trade.Message
	if message == "" {
		message = "none"
	}
	return formatBotResponse(botName, fmt.Sprintf("Buff session %s | %d pending | %d delivered | %d rejected | last message: %s",
		validity, report.pending, report.trade.DeliverAcceptCount, report.trade.DeliverRejectCount, message))
}

// DeliveryStatus reports the delivery status for every bot the
// specification resolves to
func (d *Deliverer) DeliveryStatus(ctx context.Context, botNames string) string {
	return d.dispatch(botNames, func(botName string) string {
		return d.responseBotStatus(ctx, botName)
	})
}

// VerifyCode completes a pending login with an out-of-band SMS code.
// Code acceptance and session establishment are reported as two
// independent signals: Buff can accept a code yet still withhold a
// usable session.
func (d *Deliverer) VerifyCode(ctx context.Context, botName, code string) string {
	if !d.directory.HasBot(botName) {
		return formatStaticResponse(fmt.Sprintf("Bot not found: %s", botName))
	}

	if _, ok := d.registry.TryGet(botName); !ok {
		return formatBotResponse(botName, "no login attempt is pending, run the enable command first")
	}

	codeOK, err := d.auth.VerifyAuthCode(ctx, botName, code)
	if err != nil {
		return formatBotResponse(botName, fmt.Sprintf("code submission failed: %v", err))
	}

	// Cookie validity is the authority, independent of the code result
	login, err := d.auth.CheckCookiesValid(ctx, botName)
	if err != nil {
		return formatBotResponse(botName, fmt.Sprintf("cookie check failed: %v", err))
	}

	if login {
		cookies := d.auth.GetCookies(botName)
		d.registry.Update(botName, func(rec *BotRecord) {
			rec.Enabled = true
			rec.Cookies = cookies
		})
		if err := d.cache.InitTradeCache(botName); err != nil && !errors.Is(err, errAlreadyInitialized) {
			LogError("Bot %s: failed to initialize trade cache: %v", botName, err)
		}
		d.persist(ctx)
	}

	return formatBotResponse(botName, fmt.Sprintf("verification code %s, Buff login %s",
		acceptedWord(codeOK), succeededWord(login)))
}

// UpdateCookies replaces a bot's Buff cookies and re-probes their validity
func (d *Deliverer) UpdateCookies(ctx context.Context, botName, cookies string) string {
	if !d.directory.HasBot(botName) {
		return formatStaticResponse(fmt.Sprintf("Bot not found: %s", botName))
	}

	if err := d.auth.SetCookies(botName, cookies); err != nil {
		return formatBotResponse(botName, fmt.Sprintf("failed to set cookies: %v", err))
	}

	valid, err := d.auth.CheckCookiesValid(ctx, botName)
	if err != nil {
		return formatBotResponse(botName, fmt.Sprintf("cookie check failed: %v", err))
	}
	if valid {
		return formatBotResponse(botName, "Buff cookies are valid")
	}
	return formatBotResponse(botName, "Buff cookies are invalid")
}

func acceptedWord(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

func succeededWord(ok bool) string {
	if ok {
		return "succeeded"
	}
	return "failed"
}

// dispatch fans a single-bot operation out over every bot the name
// specification resolves to, one goroutine per bot, and joins the
// result lines in input order. One bot's failure line never blocks or
// cancels the others.
func (d *Deliverer) dispatch(botNames string, op func(botName string) string) string {
	bots := d.directory.GetBots(botNames)
	if len(bots) == 0 {
		return formatStaticResponse(fmt.Sprintf("Bot not found: %s", botNames))
	}

	results := make([]string, len(bots))
	var wg sync.WaitGroup
	for i, botName := range bots {
		wg.Add(1)
		go func(i int, botName string) {
			defer wg.Done()
			results[i] = op(botName)
		}(i, botName)
	}
	wg.Wait()

	return strings.Join(results, "\n")
}
