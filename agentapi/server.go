// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package agentapi implements the Agent's three HTTP endpoints, routed
// with gorilla/mux the way the rest of this codebase's HTTP daemons do:
// one small router, handlers kept free of business logic beyond
// request/response translation.
package agentapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/luxfi/botconsensus/api"
	"github.com/luxfi/botconsensus/api/health"
	"github.com/luxfi/botconsensus/config"
	"github.com/luxfi/botconsensus/errkind"
	"github.com/luxfi/botconsensus/executor"
	"github.com/luxfi/botconsensus/keys"
	"github.com/luxfi/botconsensus/localstate"
	"github.com/luxfi/botconsensus/log"
	"github.com/luxfi/botconsensus/metrics"
	"github.com/luxfi/botconsensus/multicast"
	"github.com/luxfi/botconsensus/platform"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/sequence"
	"github.com/luxfi/botconsensus/signer"
	"github.com/luxfi/botconsensus/version"
	"github.com/luxfi/botconsensus/wire"
)

// Quick-path thresholds for the Agent's local moderation checks.
// These are process-wide defaults rather than per-bot GroupConfig
// values, since the Agent has no channel yet to pull a bot's
// GroupConfig from its nodes.
// TODO: source these from groupconfig once an Agent-side config pull
// exists; until then every bot gets the same flood/duplicate policy.
const (
	quickPathFloodLimit      = 5
	quickPathFloodWindowSecs = 10
	quickPathDuplicateLimit  = 3
	quickPathDuplicateWindow = 30
	quickPathMuteSecs        = 3600
)

// Server wires together every Agent-side collaborator into the HTTP
// surface.
type Server struct {
	Config    *config.Agent
	Keys      *keys.KeyPair
	BotIDHash string
	Signer    *signer.Signer
	Sequence  *sequence.Counter
	Caster    *multicast.Caster
	Nodes     *registry.NodeSet
	Executor  *executor.Executor
	Metrics   *metrics.Agent
	Log       log.Logger

	// Local and Platforms back the quick-path flood/duplicate checks;
	// they run alongside, not instead of, the signed multicast path.
	Local     *localstate.Store
	Platforms *platform.Registry

	// WebhookLimiter bounds sustained /webhook traffic; unlike multicast
	// fan-out (capped at K targets) this handler's request rate is
	// open-ended, coming straight from the platform.
	WebhookLimiter *rate.Limiter

	started time.Time
}

// New constructs a Server. Callers are responsible for starting the
// multicast fan-out only after /webhook has already responded, which
// handleWebhook does by spawning Cast in its own goroutine.
func New(cfg *config.Agent, kp *keys.KeyPair, botIDHash string, sg *signer.Signer, seq *sequence.Counter, caster *multicast.Caster, nodes *registry.NodeSet, ex *executor.Executor, m *metrics.Agent, logger log.Logger) *Server {
	var limiter *rate.Limiter
	if cfg.WebhookRateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WebhookRateLimitPerSec), int(cfg.WebhookRateLimitPerSec*2))
	}
	return &Server{
		Config:         cfg,
		Keys:           kp,
		BotIDHash:      botIDHash,
		Signer:         sg,
		Sequence:       seq,
		Caster:         caster,
		Nodes:          nodes,
		Executor:       ex,
		Metrics:        m,
		Log:            logger,
		Local:          localstate.New(),
		Platforms:      platform.NewRegistry(platform.NewTelegram(), platform.NewDiscord()),
		WebhookLimiter: limiter,
		started:        time.Now(),
	}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/v1/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// webhookPlatform resolves which platform a /webhook POST came from.
// Telegram's secret header is always checked when PLATFORM is telegram
// or both; Discord's signature headers identify the rest.
func (s *Server) webhookPlatform(r *http.Request) string {
	if s.Config.Platform != config.PlatformBoth {
		return string(s.Config.Platform)
	}
	if r.Header.Get("X-Signature-Ed25519") != "" {
		return "discord"
	}
	return "telegram"
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.WebhookLimiter != nil && !s.WebhookLimiter.Allow() {
		if s.Metrics != nil {
			s.Metrics.WebhookRateLimited.Inc()
		}
		_ = api.WriteError(w, http.StatusTooManyRequests, api.ErrRateLimited)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		_ = api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if !json.Valid(body) {
		_ = api.WriteError(w, http.StatusBadRequest, api.ErrBadRequest)
		return
	}

	if s.Config.WebhookSecret != "" {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.Config.WebhookSecret {
			_ = api.WriteError(w, http.StatusUnauthorized, api.ErrUnauthorized)
			return
		}
	}

	platform := s.webhookPlatform(r)
	msg, err := s.Signer.Sign(body, platform)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.SignFailures.Inc()
		}
		if s.Log != nil {
			s.Log.Error("webhook sign failed", "error", err, "kind", errkind.KindOf(err).String())
		}
		_ = api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.WebhooksReceived.Inc()
	}

	// Respond before fanning out, so a slow or unreachable node never
	// delays the platform's webhook delivery.
	_ = api.WriteSuccess(w, map[string]string{"message_id": msg.MessageID()})

	go s.multicast(msg)
	go s.quickPath(platform, body)
}

// quickPath runs the Agent-local moderation checks (flood control and
// duplicate-message spam) against the same payload
// just signed and multicast, and executes a LocalAction directly
// against the platform when triggered — this never gates the webhook
// response and is independent of the slower consensus path.
func (s *Server) quickPath(platformName string, body []byte) {
	adapter, err := s.Platforms.Get(platformName)
	if err != nil {
		return
	}
	evt, ok := adapter.ParseEvent(body)
	if !ok || evt.Text == "" {
		return
	}
	chatID, userID := evt.GroupIDInt64(), evt.SenderIDInt64()
	if chatID == 0 || userID == 0 {
		return
	}

	dup := s.Local.RecordMessage(chatID, userID, evt.Text, quickPathDuplicateWindow)
	flooded := s.Local.CheckFlood(chatID, userID, quickPathFloodLimit, quickPathFloodWindowSecs)
	if !flooded && dup < quickPathDuplicateLimit {
		return
	}

	client, ok := s.Executor.Clients[platformName]
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), executor.Timeout)
	defer cancel()
	_, _, err = client.Call(ctx, "restrictChatMember", map[string]any{
		"chat_id":    chatID,
		"user_id":    userID,
		"until_date": time.Now().Add(quickPathMuteSecs * time.Second).Unix(),
	})
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("quick-path mute failed", "chat_id", chatID, "user_id", userID, "error", err)
		}
		return
	}
	if s.Metrics != nil {
		s.Metrics.QuickPathActions.Inc()
	}
}

func (s *Server) multicast(msg *wire.SignedMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.Caster.Timeout)
	defer cancel()
	res, err := s.Caster.Cast(ctx, msg)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("multicast failed", "message_id", msg.MessageID(), "error", err)
		}
		return
	}
	if s.Metrics != nil {
		s.Metrics.MulticastSuccess.Add(float64(res.SuccessCount()))
		s.Metrics.MulticastFailure.Add(float64(len(res.Targets) - res.SuccessCount()))
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.Config.ExecuteToken != "" {
		if r.Header.Get("Authorization") != "Bearer "+s.Config.ExecuteToken {
			_ = api.WriteError(w, http.StatusForbidden, api.ErrForbidden)
			return
		}
	}

	var req wire.ExecuteAction
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		_ = api.WriteError(w, http.StatusBadRequest, err)
		return
	}

	if s.Metrics != nil {
		s.Metrics.ExecuteRequests.Inc()
	}

	result := s.Executor.Execute(r.Context(), &req)
	if !result.Success {
		// Method stays empty when the call never reached the platform:
		// validateLeader rejected it, no client is configured for its
		// platform, or the action could not be built. All of these are
		// answered 403; a failed platform call or receipt signing carries
		// a Method and is answered 500.
		if result.Method == "" {
			if s.Metrics != nil {
				s.Metrics.ExecuteRejected.Inc()
			}
			_ = api.WriteJSON(w, http.StatusForbidden, result)
			return
		}
		_ = api.WriteJSON(w, http.StatusInternalServerError, result)
		return
	}

	_ = api.WriteJSON(w, http.StatusOK, result)
}

// healthCheck implements health.Checker against this Server's node
// registry: an Agent with no nodes to multicast to can still sign and
// accept webhooks, but every message it emits will fail to reach
// consensus, so that state is reported unhealthy rather than silently
// dropped.
type healthCheck struct{ nodes *registry.NodeSet }

func (c healthCheck) HealthCheck(context.Context) (health.Check, error) {
	n := c.nodes.Len()
	if n == 0 {
		return health.Check{Name: "node_registry", Healthy: false, Error: "no nodes registered"}, nil
	}
	return health.Check{Name: "node_registry", Healthy: true}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := health.NewReport(r.Context(), healthCheck{nodes: s.Nodes}, s.Nodes.Len(), time.Since(s.started), map[string]interface{}{
		"bot_id_hash": s.BotIDHash,
		"public_key":  s.Keys.PublicHex(),
		"sequence":    s.Sequence.Peek(),
		"version":     version.Current().String(),
	})
	_ = api.WriteJSON(w, http.StatusOK, report)
}
