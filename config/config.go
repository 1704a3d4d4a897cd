// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads Agent and Node runtime configuration from the
// environment. The enumerated variables are part of the wire contract
// (they gate which HTTP endpoints exist and how timeouts are set), and
// are loaded here in plain env-default style: values read with simple
// getenv helpers, validated eagerly at construction — no Viper, no
// config file format.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Platform selects which chat platform(s) an Agent serves.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
	PlatformBoth     Platform = "both"
)

// Agent is the Agent binary's configuration.
type Agent struct {
	Platform             Platform
	BotToken             string
	WebhookURL           string
	WebhookPort          int
	WebhookSecret        string
	ChainRPC             string
	DataDir              string
	NodeListRaw          string
	MulticastTimeoutMS   int
	ExecuteToken         string
	DiscordBotToken      string
	DiscordApplicationID string
	DiscordIntents       string
	// WebhookRateLimitPerSec bounds sustained /webhook POSTs; burst is
	// fixed at twice this rate. A platform's own retry storms or an
	// exposed webhook URL both face open-ended request rates, unlike
	// the K-bounded multicast fan-out downstream of this handler.
	WebhookRateLimitPerSec float64
	// DevMode permits an empty leader_signature on /v1/execute. Never
	// set true outside local bootstrapping.
	DevMode bool
}

// LoadAgent reads Agent config from the environment, applying the
// documented defaults and failing fast on a missing required field.
func LoadAgent() (*Agent, error) {
	a := &Agent{
		Platform:               Platform(getenvDefault("PLATFORM", string(PlatformTelegram))),
		BotToken:               os.Getenv("BOT_TOKEN"),
		WebhookURL:             os.Getenv("WEBHOOK_URL"),
		WebhookPort:            getenvIntDefault("WEBHOOK_PORT", 8443),
		WebhookSecret:          os.Getenv("WEBHOOK_SECRET"),
		ChainRPC:               os.Getenv("CHAIN_RPC"),
		DataDir:                getenvDefault("DATA_DIR", "./data"),
		NodeListRaw:            os.Getenv("NODE_LIST"),
		MulticastTimeoutMS:     getenvIntDefault("MULTICAST_TIMEOUT_MS", 3000),
		ExecuteToken:           os.Getenv("EXECUTE_TOKEN"),
		DiscordBotToken:        os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordApplicationID:   os.Getenv("DISCORD_APPLICATION_ID"),
		DiscordIntents:         os.Getenv("DISCORD_INTENTS"),
		WebhookRateLimitPerSec: getenvFloatDefault("WEBHOOK_RATE_LIMIT_PER_SEC", 20),
		DevMode:                getenvBoolDefault("DEV_MODE", false),
	}
	if a.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	switch a.Platform {
	case PlatformTelegram, PlatformDiscord, PlatformBoth:
	default:
		return nil, fmt.Errorf("PLATFORM must be telegram, discord, or both, got %q", a.Platform)
	}
	if a.Platform == PlatformDiscord || a.Platform == PlatformBoth {
		if a.DiscordBotToken == "" {
			return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required when PLATFORM includes discord")
		}
	}
	return a, nil
}

func (a *Agent) MulticastTimeout() time.Duration {
	return time.Duration(a.MulticastTimeoutMS) * time.Millisecond
}

// Node is the Node binary's configuration.
type Node struct {
	NodeID               string
	DataDir              string
	BotRegistrationsRaw  string
	NodeListRaw          string
	LeaderExecuteTimeout time.Duration
	FailoverRankStagger  time.Duration
}

// LoadNode reads Node config from the environment.
func LoadNode() (*Node, error) {
	n := &Node{
		NodeID:               os.Getenv("NODE_ID"),
		DataDir:              getenvDefault("DATA_DIR", "./data"),
		BotRegistrationsRaw:  os.Getenv("BOT_REGISTRATIONS"),
		NodeListRaw:          os.Getenv("NODE_LIST"),
		LeaderExecuteTimeout: time.Duration(getenvIntDefault("LEADER_EXECUTE_TIMEOUT_SECS", 5)) * time.Second,
		FailoverRankStagger:  time.Duration(getenvIntDefault("FAILOVER_RANK_STAGGER_SECS", 2)) * time.Second,
	}
	if n.NodeID == "" {
		return nil, fmt.Errorf("NODE_ID is required")
	}
	return n, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
