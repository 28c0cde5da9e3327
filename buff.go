package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Buff API paths. The login path bounces through the Steam openid
// endpoint and lands back on Buff with session cookies set.
const (
	buffLoginPath      = "/account/login/steam?back_url=/"
	buffUserInfoPath   = "/account/api/user/info"
	buffSendCodePath   = "/account/api/sms_code/send"
	buffVerifyCodePath = "/account/api/sms_code/verify"
	buffSteamTradePath = "/api/market/steam_trade"

	buffCodeOK = "OK"
)

// buffEnvelope is the common Buff JSON response wrapper
type buffEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// BuffClient drives the Buff marketplace for every bot: the Steam-side
// login handshake, cookie validation, SMS challenges and the pending
// sale feed. One cookie jar and HTTP client per bot.
type BuffClient struct {
	baseURL  string
	accounts map[string]Account

	mu       sync.Mutex
	sessions map[string]*buffSession
}

type buffSession struct {
	jar    *cookiejar.Jar
	client *http.Client
}

// NewBuffClient creates a marketplace client for the given accounts
func NewBuffClient(cfg *Config, accounts map[string]Account) *BuffClient {
	return &BuffClient{
		baseURL:  strings.TrimRight(cfg.BuffBaseURL, "/"),
		accounts: accounts,
		sessions: make(map[string]*buffSession),
	}
}

// session returns the bot's HTTP session, creating it on first use
func (c *BuffClient) session(botName string) (*buffSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[botName]; ok {
		return s, nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{}
	if acct, ok := c.accounts[botName]; ok {
		dialer, err := GetProxyForAccount(acct.Username, acct.ProxyIndex)
		if err != nil {
			LogWarning("Bot %s: failed to set up proxy: %v", botName, err)
		} else if dialer != nil {
			transport.Dial = dialer.Dial
		}
	}

	s := &buffSession{
		jar: jar,
		client: &http.Client{
			Jar:       jar,
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
	c.sessions[botName] = s
	return s, nil
}

// get performs a GET against the Buff origin and decodes the envelope
func (c *BuffClient) get(ctx context.Context, botName, path string) (*buffEnvelope, error) {
	return c.do(ctx, botName, http.MethodGet, path, nil)
}

// post performs a form POST against the Buff origin and decodes the envelope
func (c *BuffClient) post(ctx context.Context, botName, path string, form url.Values) (*buffEnvelope, error) {
	return c.do(ctx, botName, http.MethodPost, path, form)
}

func (c *BuffClient) do(ctx context.Context, botName, method, path string, form url.Values) (*buffEnvelope, error) {
	s, err := c.session(botName)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("buff returned status %d for %s", resp.StatusCode, path)
	}

	var env buffEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode buff response for %s: %v", path, err)
	}
	return &env, nil
}

// LoginViaSteam performs the cross-service login handshake. Buff
// redirects through the Steam openid endpoint; with a live Steam web
// session in the jar the bounce lands back on Buff with fresh session
// cookies. Safe to call repeatedly; a newer session supersedes.
func (c *BuffClient) LoginViaSteam(ctx context.Context, botName string) error {
	s, err := c.session(botName)
	if err != nil {
		return err
	}

	// Seed the Steam community cookie so the openid hop recognizes the bot
	if acct, ok := c.accounts[botName]; ok && acct.SteamLoginSecure != "" {
		steamURL := &url.URL{Scheme: "https", Host: "steamcommunity.com"}
		s.jar.SetCookies(steamURL, []*http.Cookie{{
			Name:  "steamLoginSecure",
			Value: acct.SteamLoginSecure,
		}})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+buffLoginPath, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("steam login handshake failed: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("steam login handshake rejected with status %d", resp.StatusCode)
	}
	return nil
}

// CheckCookiesValid probes the marketplace with the bot's current
// cookies. Invalid cookies are a normal false result; only transport
// failure is an error.
func (c *BuffClient) CheckCookiesValid(ctx context.Context, botName string) (bool, error) {
	env, err := c.get(ctx, botName, buffUserInfoPath)
	if err != nil {
		return false, err
	}
	return env.Code == buffCodeOK, nil
}

// SendSmsCode asks Buff to dispatch an SMS challenge to the account's
// phone. A refusal (rate limit and the like) is a false result.
func (c *BuffClient) SendSmsCode(ctx context.Context, botName string) (bool, error) {
	env, err := c.post(ctx, botName, buffSendCodePath, url.Values{})
	if err != nil {
		return false, err
	}
	if env.Code != buffCodeOK {
		LogWarning("Bot %s: buff refused to send sms code: %s", botName, env.Code)
		return false, nil
	}
	return true, nil
}

// VerifyAuthCode submits the SMS challenge response. Acceptance of the
// code does not imply a usable session; callers must re-check cookie
// validity afterwards.
func (c *BuffClient) VerifyAuthCode(ctx context.Context, botName, code string) (bool, error) {
	form := url.Values{}
	form.Set("code", code)

	env, err := c.post(ctx, botName, buffVerifyCodePath, form)
	if err != nil {
		return false, err
	}
	return env.Code == buffCodeOK, nil
}

// ListPendingSales fetches the bot's sale records awaiting shipment
func (c *BuffClient) ListPendingSales(ctx context.Context, botName string) ([]SaleRecord, error) {
	env, err := c.get(ctx, botName, buffSteamTradePath)
	if err != nil {
		return nil, err
	}
	if env.Code != buffCodeOK {
		return nil, fmt.Errorf("buff steam_trade returned code %s", env.Code)
	}

	var sales []SaleRecord
	if err := json.Unmarshal(env.Data, &sales); err != nil {
		return nil, fmt.Errorf("failed to parse pending sales: %v", err)
	}
	return sales, nil
}

// GetCookies serializes the bot's Buff cookies into a single blob
func (c *BuffClient) GetCookies(botName string) string {
	s, err := c.session(botName)
	if err != nil {
		return ""
	}

	target, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}

	var pairs []string
	for _, cookie := range s.jar.Cookies(target) {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(pairs, "; ")
}

// SetCookies replaces the bot's Buff cookies from a serialized blob
// of the form "name=value; name2=value2"
func (c *BuffClient) SetCookies(botName, blob string) error {
	s, err := c.session(botName)
	if err != nil {
		return err
	}

	target, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}

	var cookies []*http.Cookie
	for _, pair := range strings.Split(blob, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("malformed cookie pair %q", pair)
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}

	s.jar.SetCookies(target, cookies)
	return nil
}
