// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command agent runs the Agent binary: it owns one bot's webhook
// endpoint, signs every platform event it receives, multicasts the
// signed message to K consensus nodes, and serves /v1/execute for the
// elected leader to call back into.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/luxfi/botconsensus/agentapi"
	"github.com/luxfi/botconsensus/config"
	"github.com/luxfi/botconsensus/executor"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/metrics"
	"github.com/luxfi/botconsensus/multicast"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/sequence"
	"github.com/luxfi/botconsensus/signer"
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the bot consensus Agent process",
	Long: `The agent command runs one Agent process: it receives a single bot's
platform webhook, signs and multicasts every event to the node network,
and serves the /v1/execute callback the elected leader dispatches to.`,
	RunE: runAgent,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, _ []string) error {
	logger := log.NewProduction()

	cfg, err := config.LoadAgent()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	kp, err := keys.LoadOrCreate(filepath.Join(cfg.DataDir, "owner_key.bin"))
	if err != nil {
		return fmt.Errorf("load owner key: %w", err)
	}
	botIDHash := keys.BotIDHashHex(cfg.BotToken)

	seq, err := sequence.Open(filepath.Join(cfg.DataDir, "sequence.bin"))
	if err != nil {
		return fmt.Errorf("open sequence counter: %w", err)
	}
	defer func() { _ = seq.Close() }()

	sg := signer.New(kp, botIDHash, seq, logger)

	nodes, err := loadNodeSet(cfg.NodeListRaw)
	if err != nil {
		return fmt.Errorf("parse node list: %w", err)
	}
	caster := multicast.New(nodes, cfg.MulticastTimeout(), logger)

	clients := map[string]executor.Client{}
	if cfg.BotToken != "" {
		clients["telegram"] = executor.NewTelegramClient(cfg.BotToken)
	}
	if cfg.DiscordBotToken != "" {
		clients["discord"] = executor.NewDiscordClient(cfg.DiscordBotToken)
	}
	ex := executor.New(botIDHash, kp, clients)
	ex.RequireLeaderSignature = !cfg.DevMode

	reg := prometheus.NewRegistry()
	m := metrics.NewAgent(reg)

	srv := agentapi.New(cfg, kp, botIDHash, sg, seq, caster, nodes, ex, m, logger)

	if cfg.WebhookURL != "" {
		if tg, ok := clients["telegram"]; ok {
			go registerWebhook(tg, cfg, logger)
		}
	}

	logger.Info("agent starting", "bot_id_hash", botIDHash, "platform", cfg.Platform, "port", cfg.WebhookPort)
	addr := fmt.Sprintf(":%d", cfg.WebhookPort)
	return http.ListenAndServe(addr, srv.Router())
}

// registerWebhook announces the agent's public webhook URL to the
// platform: three attempts, two seconds apart. Failure is logged, not
// fatal — an operator may have registered the webhook out of band.
func registerWebhook(client executor.Client, cfg *config.Agent, logger log.Logger) {
	params := map[string]any{"url": cfg.WebhookURL}
	if cfg.WebhookSecret != "" {
		params["secret_token"] = cfg.WebhookSecret
	}
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, ok, err := client.Call(ctx, "setWebhook", params)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("setWebhook rejected")
		}
		return nil
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 2)
	if err := backoff.Retry(op, bo); err != nil {
		logger.Error("webhook registration failed", "url", cfg.WebhookURL, "error", err)
		return
	}
	logger.Info("webhook registered", "url", cfg.WebhookURL)
}

// loadNodeSet parses a comma-separated NODE_LIST of
// "node_id|endpoint|pubkey_hex" entries into a registry.NodeSet.
func loadNodeSet(raw string) (*registry.NodeSet, error) {
	set := registry.NewNodeSet()
	for _, entry := range splitNonEmpty(raw, ',') {
		fields := splitNonEmpty(entry, '|')
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed NODE_LIST entry %q: want node_id|endpoint[|pubkey_hex]", entry)
		}
		n := registry.Node{NodeID: fields[0], Endpoint: fields[1], Status: registry.StatusActive}
		if len(fields) >= 3 {
			n.NodePublicKey = fields[2]
		}
		set.Upsert(n)
	}
	return set, nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if s[start:i] != "" {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if s[start:] != "" {
		out = append(out, s[start:])
	}
	return out
}
