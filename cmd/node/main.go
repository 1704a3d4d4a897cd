// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command node runs the Node binary: it verifies inbound SignedMessages
// from agents, gossips Seen/Pull/Vote traffic with its peers, elects a
// leader per message, and dispatches the leader's execution back to the
// owning Agent once M-of-K consensus is reached.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/luxfi/botconsensus/audit"
	"github.com/luxfi/botconsensus/config"
	"github.com/luxfi/botconsensus/consensus"
	"github.com/luxfi/botconsensus/gossip"
	"github.com/luxfi/botconsensus/groupconfig"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/metrics"
	"github.com/luxfi/botconsensus/nodeapi"
	"github.com/luxfi/botconsensus/platform"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/seqwindow"
	"github.com/luxfi/botconsensus/verify"
	"github.com/luxfi/botconsensus/wire"
)

var nodePort int

var rootCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a bot consensus Node process",
	Long: `The node command runs one Node process: it verifies SignedMessages
from agents, reaches gossip-based M-of-K consensus with its peers, and
dispatches the elected leader's action back to the owning Agent.`,
	RunE: runNode,
}

func init() {
	rootCmd.Flags().IntVar(&nodePort, "port", 9443, "HTTP port for the Node's inbound/gossip API")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "node: %v\n", err)
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, _ []string) error {
	logger := log.NewProduction()

	cfg, err := config.LoadNode()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	nodeKP, err := keys.LoadOrCreate(filepath.Join(cfg.DataDir, "node.bin"))
	if err != nil {
		return fmt.Errorf("load node key: %w", err)
	}

	nodes, err := loadNodeSet(cfg.NodeListRaw)
	if err != nil {
		return fmt.Errorf("parse NODE_LIST: %w", err)
	}
	bots, err := loadBotRegistry(cfg.BotRegistrationsRaw)
	if err != nil {
		return fmt.Errorf("parse BOT_REGISTRATIONS: %w", err)
	}

	window := seqwindow.New()
	v := verify.New(bots, nodes, window)
	store := consensus.NewStore()
	broadcaster := gossip.NewBroadcaster(cfg.NodeID, nodes, nodeKP, 0, logger)
	dispatcher := gossip.NewDispatcher(cfg.NodeID, store, nodes, v, broadcaster, nodeKP, logger)

	reg := prometheus.NewRegistry()
	m := metrics.NewNode(reg)

	auditMgr, err := audit.NewManager(filepath.Join(cfg.DataDir, "audit.db"), &audit.NoopSubmitter{Log: logger}, logger)
	if err != nil {
		return fmt.Errorf("open audit manager: %w", err)
	}
	defer func() { _ = auditMgr.Close() }()

	cfgStore := groupconfig.New(cfg.DataDir, bots)
	if err := cfgStore.LoadFromDisk(); err != nil {
		return fmt.Errorf("load persisted group configs: %w", err)
	}

	platforms := platform.NewRegistry(platform.NewTelegram(), platform.NewDiscord())
	executor := consensus.NewLeaderExecutor(cfg.NodeID, store, platforms, nodeKP, logger)
	executor.Timeout = cfg.LeaderExecuteTimeout

	failover := consensus.NewFailoverManager(cfg.LeaderExecuteTimeout)
	failover.Stagger = cfg.FailoverRankStagger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.OnEquivocation = func(msgID, hashA, hashB string) {
		m.Equivocations.Inc()
		auditMgr.PushEquivocation(audit.Equivocation{MessageID: msgID, HashA: hashA, HashB: hashB, At: time.Now()})
	}
	dispatcher.OnExecutionResult = func(result wire.ExecutionResult) {
		auditMgr.PushActionLog(audit.ActionLog{
			MessageID:    result.MessageID,
			Success:      result.Success,
			ExecutorNode: result.ExecutorNode,
			AgentReceipt: result.AgentReceipt,
			At:           time.Now(),
		})
	}
	dispatcher.OnConfigSync = cfgStore.HandleConfigSync
	dispatcher.OnConfigPullResponse = cfgStore.HandleConfigPullResponse
	dispatcher.OnConfigPull = func(senderNodeID string, payload wire.ConfigPull) {
		resp, ok := cfgStore.HandleConfigPull(payload.BotIDHash)
		if !ok {
			return
		}
		if err := broadcaster.SendTo(ctx, senderNodeID, wire.MsgConfigPullResponse, resp); err != nil {
			logger.Warn("config pull response failed", "peer", senderNodeID, "error", err)
		}
	}
	dispatcher.OnConsensusReached = func(msgID, leader string, backups []string) {
		m.Confirmations.Inc()
		auditMgr.PushConfirmation(audit.Confirmation{MessageID: msgID, Leader: leader, Backups: backups, At: time.Now()})
		if leader != cfg.NodeID {
			return
		}
		go runLeaderExecution(ctx, executor, broadcaster, m, logger, msgID)
	}

	go auditMgr.RunFlusher(ctx)
	go runTicker(ctx, store, auditMgr, m)
	go runFailoverSweep(ctx, store, failover, cfg.NodeID, broadcaster, executor, m, logger)

	srv := nodeapi.New(cfg.NodeID, v, dispatcher, nodes)
	srv.Metrics = m
	logger.Info("node starting", "node_id", cfg.NodeID, "port", nodePort)

	errCh := make(chan error, 1)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", nodePort), Handler: srv.Router()}
	go func() { errCh <- httpSrv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("node shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// runLeaderExecution carries out the leader side of a just-confirmed
// message and broadcasts the outcome so every consensus node's audit
// trail and Store agree.
func runLeaderExecution(ctx context.Context, x *consensus.LeaderExecutor, b *gossip.Broadcaster, m *metrics.Node, logger log.Logger, msgID string) {
	m.LeaderExecutions.Inc()
	result, err := x.Execute(ctx, msgID)
	if err != nil && logger != nil {
		logger.Warn("leader execution failed", "msg_id", msgID, "error", err)
	}
	if err := b.Broadcast(ctx, wire.MsgExecutionResult, result); err != nil && logger != nil {
		logger.Warn("broadcast execution result failed", "msg_id", msgID, "error", err)
	}
}

// runFailoverSweep periodically checks every Confirmed or Executing
// message this node still has not seen a completed ExecutionResult for,
// and takes over as leader once its backup rank's wait window elapses.
// Only one backup ever observes ShouldTakeover true first in practice,
// since lower ranks fire first. Once this node has executed a message,
// the Store marks it Completed or Failed, so PendingExecution no longer
// returns it and the sweep does not take it over again.
func runFailoverSweep(ctx context.Context, store *consensus.Store, failover *consensus.FailoverManager, nodeID string, b *gossip.Broadcaster, x *consensus.LeaderExecutor, m *metrics.Node, logger log.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, st := range store.PendingExecution() {
				rank := failover.Rank(st.Backups, nodeID)
				if rank < 0 || !failover.ShouldTakeover(&st, rank, now) {
					continue
				}
				m.Failovers.Inc()
				takeover := wire.LeaderTakeover{MessageID: st.MsgID, OriginalLeader: st.Leader, BackupRank: rank}
				if err := b.Broadcast(ctx, wire.MsgLeaderTakeover, takeover); err != nil && logger != nil {
					logger.Warn("broadcast leader takeover failed", "msg_id", st.MsgID, "error", err)
				}
				go runLeaderExecution(ctx, x, b, m, logger, st.MsgID)
			}
		}
	}
}

// runTicker periodically garbage-collects expired message state and
// refreshes the depth gauges.
func runTicker(ctx context.Context, store *consensus.Store, auditMgr *audit.Manager, m *metrics.Node) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.GCExpired(time.Now())
			m.ActiveMessages.Set(float64(store.ActiveCount()))
			m.AuditQueueDepth.WithLabelValues(audit.KindConfirmation).Set(float64(auditMgr.Confirmations.Len()))
			m.AuditQueueDepth.WithLabelValues(audit.KindActionLog).Set(float64(auditMgr.ActionLogs.Len()))
			m.AuditQueueDepth.WithLabelValues(audit.KindEquivocation).Set(float64(auditMgr.Equivocations.Len()))
		}
	}
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

// loadBotRegistry parses a comma-separated BOT_REGISTRATIONS of
// "bot_id_hash|owner_pubkey_hex" entries into a registry.BotRegistry.
func loadBotRegistry(raw string) (*registry.BotRegistry, error) {
	reg := registry.NewBotRegistry()
	for _, entry := range splitNonEmpty(raw, ',') {
		fields := splitNonEmpty(entry, '|')
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed BOT_REGISTRATIONS entry %q: want bot_id_hash|owner_pubkey_hex", entry)
		}
		reg.Upsert(registry.BotRecord{BotIDHash: fields[0], OwnerPublicKey: fields[1], Active: true})
	}
	return reg, nil
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
