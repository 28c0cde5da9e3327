package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Steam trade offer states, per IEconService
const (
	tradeOfferStateActive = 2
)

// steamOfferList mirrors the IEconService/GetTradeOffers response
type steamOfferList struct {
	Response struct {
		TradeOffersReceived []steamTradeOffer `json:"trade_offers_received"`
	} `json:"response"`
}

type steamTradeOffer struct {
	TradeOfferID string `json:"tradeofferid"`
	State        int    `json:"trade_offer_state"`
	TimeCreated  int64  `json:"time_created"`
	ItemsToGive  []struct {
		AssetID string `json:"assetid"`
	} `json:"items_to_give"`
}

// SteamTradeClient is the bot's trading surface: it lists the open
// incoming trade offers through the Steam Web API and resolves them
// through the community endpoints, authenticated by each bot's web
// session token.
type SteamTradeClient struct {
	apiBaseURL       string
	communityBaseURL string
	accounts         map[string]Account

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewSteamTradeClient creates a trading-surface client for the given accounts
func NewSteamTradeClient(cfg *Config, accounts map[string]Account) *SteamTradeClient {
	return &SteamTradeClient{
		apiBaseURL:       strings.TrimRight(cfg.SteamAPIBaseURL, "/"),
		communityBaseURL: strings.TrimRight(cfg.SteamCommunityBaseURL, "/"),
		accounts:         accounts,
		clients:          make(map[string]*http.Client),
	}
}

// accessToken extracts the web API token embedded in the bot's
// steamLoginSecure cookie ("<steamid>||<token>", possibly URL-encoded)
func (c *SteamTradeClient) accessToken(botName string) (string, error) {
	acct, ok := c.accounts[botName]
	if !ok || acct.SteamLoginSecure == "" {
		return "", fmt.Errorf("no steam web session for bot %s", botName)
	}

	raw := strings.ReplaceAll(acct.SteamLoginSecure, "%7C%7C", "||")
	_, token, ok := strings.Cut(raw, "||")
	if !ok {
		return "", fmt.Errorf("malformed steamLoginSecure for bot %s", botName)
	}
	return token, nil
}

// client returns the bot's community HTTP client, creating it on first use
func (c *SteamTradeClient) client(botName string) (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[botName]; ok {
		return cl, nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	communityURL, err := url.Parse(c.communityBaseURL)
	if err != nil {
		return nil, err
	}

	// Steam requires a sessionid cookie matching the form field; any
	// value works as long as the two agree
	buf := make([]byte, 12)
	rand.Read(buf)
	sessionID := hex.EncodeToString(buf)

	cookies := []*http.Cookie{{Name: "sessionid", Value: sessionID}}
	if acct, ok := c.accounts[botName]; ok && acct.SteamLoginSecure != "" {
		cookies = append(cookies, &http.Cookie{Name: "steamLoginSecure", Value: acct.SteamLoginSecure})
	}
	jar.SetCookies(communityURL, cookies)

	cl := &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	}
	c.clients[botName] = cl
	return cl, nil
}

// sessionID reads the sessionid cookie back out of the bot's jar
func (c *SteamTradeClient) sessionID(botName string) string {
	cl, err := c.client(botName)
	if err != nil {
		return ""
	}
	communityURL, err := url.Parse(c.communityBaseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range cl.Jar.Cookies(communityURL) {
		if cookie.Name == "sessionid" {
			return cookie.Value
		}
	}
	return ""
}

// ListOpenTradeOffers fetches the bot's active incoming trade offers
func (c *SteamTradeClient) ListOpenTradeOffers(ctx context.Context, botName string) ([]TradeOffer, error) {
	token, err := c.accessToken(botName)
	if err != nil {
		return nil, err
	}

	cl, err := c.client(botName)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("access_token", token)
	query.Set("get_received_offers", "true")
	query.Set("active_only", "true")

	reqURL := c.apiBaseURL + "/IEconService/GetTradeOffers/v1/?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("steam api returned status %d", resp.StatusCode)
	}

	var list steamOfferList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse trade offers: %v", err)
	}

	var offers []TradeOffer
	for _, raw := range list.Response.TradeOffersReceived {
		if raw.State != tradeOfferStateActive {
			continue
		}
		offer := TradeOffer{
			ID:      raw.TradeOfferID,
			Created: time.Unix(raw.TimeCreated, 0),
		}
		for _, item := range raw.ItemsToGive {
			offer.GiveItems = append(offer.GiveItems, item.AssetID)
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// AcceptOffer accepts the trade offer with the given id
func (c *SteamTradeClient) AcceptOffer(ctx context.Context, botName, offerID string) error {
	return c.resolveOffer(ctx, botName, offerID, "accept")
}

// RejectOffer declines the trade offer with the given id
func (c *SteamTradeClient) RejectOffer(ctx context.Context, botName, offerID string) error {
	return c.resolveOffer(ctx, botName, offerID, "decline")
}

func (c *SteamTradeClient) resolveOffer(ctx context.Context, botName, offerID, action string) error {
	cl, err := c.client(botName)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("sessionid", c.sessionID(botName))
	form.Set("tradeofferid", offerID)

	offerURL := fmt.Sprintf("%s/tradeoffer/%s/%s", c.communityBaseURL, offerID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, offerURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", fmt.Sprintf("%s/tradeoffer/%s/", c.communityBaseURL, offerID))

	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("steam %s for offer %s returned status %d", action, offerID, resp.StatusCode)
	}
	return nil
}
