package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration, populated from environment
// variables with the BUFF prefix (BUFF_REFRESH_INTERVAL and so on).
type Config struct {
	Port string `envconfig:"PORT" default:"3000"`

	// BuffBaseURL is the marketplace origin; overridable for testing
	BuffBaseURL string `envconfig:"BUFF_BASE_URL" default:"https://buff.163.com"`

	// SteamAPIBaseURL is the Steam Web API origin used by the trade surface
	SteamAPIBaseURL       string `envconfig:"STEAM_API_BASE_URL" default:"https://api.steampowered.com"`
	SteamCommunityBaseURL string `envconfig:"STEAM_COMMUNITY_BASE_URL" default:"https://steamcommunity.com"`

	// RefreshInterval is how often the driver refreshes every active bot
	RefreshInterval time.Duration `envconfig:"BUFF_REFRESH_INTERVAL" default:"3m"`

	// CycleTimeout bounds one bot's refresh cycle so a stuck request
	// fails that cycle instead of blocking the driver
	CycleTimeout time.Duration `envconfig:"BUFF_CYCLE_TIMEOUT" default:"60s"`

	// StaleThreshold is the age past which an unmatched offer is rejected
	StaleThreshold time.Duration `envconfig:"BUFF_STALE_THRESHOLD" default:"24h"`

	// AlwaysSendSmsCode forces the SMS challenge on enable even when the
	// existing session still passes the cookie check
	AlwaysSendSmsCode bool `envconfig:"BUFF_ALWAYS_SEND_SMS_CODE" default:"false"`

	AccountsFile string `envconfig:"ACCOUNTS_FILE" default:"accounts.txt"`

	GoodsURL            string        `envconfig:"BUFF_GOODS_URL" default:"https://buff.163.com/api/market/goods/all?game=csgo"`
	GoodsUpdateInterval time.Duration `envconfig:"BUFF_GOODS_UPDATE_INTERVAL" default:"6h"`
}

// loadConfig reads the service configuration from the environment
func loadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
