// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package nodeapi implements the Node's HTTP surface: the inbound
// SignedMessage endpoint and the ten gossip endpoints, routed with
// gorilla/mux and delegated straight into package gossip's Dispatcher.
package nodeapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/botconsensus/api"
	"github.com/luxfi/botconsensus/api/health"
	"github.com/luxfi/botconsensus/gossip"
	"github.com/luxfi/botconsensus/metrics"
	"github.com/luxfi/botconsensus/registry"
	"github.com/luxfi/botconsensus/verify"
	"github.com/luxfi/botconsensus/version"
	"github.com/luxfi/botconsensus/wire"
)

// gossipPaths enumerates the ten gossip message kinds routed under
// POST /gossip/<msg_type>.
var gossipPaths = []wire.MsgType{
	wire.MsgSeen,
	wire.MsgPull,
	wire.MsgPullResponse,
	wire.MsgDecisionVote,
	wire.MsgExecutionResult,
	wire.MsgLeaderTakeover,
	wire.MsgHeartbeat,
	wire.MsgConfigSync,
	wire.MsgConfigPull,
	wire.MsgConfigPullResponse,
}

// Server wires the Node-side HTTP endpoints to their collaborators.
type Server struct {
	Self       string
	Verifier   *verify.Verifier
	Dispatcher *gossip.Dispatcher
	Nodes      *registry.NodeSet

	// Metrics is optional; nil skips instrumentation (tests).
	Metrics *metrics.Node

	started time.Time
}

// New constructs a Server.
func New(self string, v *verify.Verifier, d *gossip.Dispatcher, nodes *registry.NodeSet) *Server {
	return &Server{Self: self, Verifier: v, Dispatcher: d, Nodes: nodes, started: time.Now()}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/message", s.handleMessage).Methods(http.MethodPost)
	for _, mt := range gossipPaths {
		r.HandleFunc("/gossip/"+string(mt), s.handleGossip).Methods(http.MethodPost)
	}
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg wire.SignedMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&msg); err != nil {
		_ = api.WriteError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.Verifier.Message(s.Self, &msg)
	if err != nil {
		var verr *verify.Error
		if errors.As(err, &verr) {
			if s.Metrics != nil {
				s.Metrics.MessagesRejected.WithLabelValues(string(verr.Reason)).Inc()
			}
			_ = api.WriteError(w, statusForReason(verr.Reason), err)
			return
		}
		if s.Metrics != nil {
			s.Metrics.MessagesRejected.WithLabelValues(string(verify.ReasonMalformed)).Inc()
		}
		_ = api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.MessagesVerified.Inc()
	}

	if err := s.Dispatcher.HandleAgentMessage(r.Context(), &msg, res); err != nil {
		_ = api.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	_ = api.WriteSuccess(w, map[string]string{"message_id": msg.MessageID()})
}

// statusForReason maps a verify.Reason to its HTTP status category:
// malformed input is 400, anything that fails to authenticate the
// sender (stale, bad signature, unknown bot, key mismatch) is 401,
// sequence replay is 429, and not being a target of this message is
// 403.
func statusForReason(reason verify.Reason) int {
	switch reason {
	case verify.ReasonMalformed:
		return http.StatusBadRequest
	case verify.ReasonReplay:
		return http.StatusTooManyRequests
	case verify.ReasonNotTarget:
		return http.StatusForbidden
	default: // ReasonStale, ReasonBadSignature, ReasonBotUnknown, ReasonKeyMismatch
		return http.StatusUnauthorized
	}
}

func (s *Server) handleGossip(w http.ResponseWriter, r *http.Request) {
	var env wire.Envelope
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&env); err != nil {
		_ = api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Dispatcher.HandleEnvelope(r.Context(), &env); err != nil {
		_ = api.WriteError(w, http.StatusBadRequest, err)
		return
	}
	_ = api.WriteSuccess(w, nil)
}

// healthCheck implements health.Checker against this Server's peer
// registry: a Node with no other active peers can still serve traffic,
// but it can never reach K-of-N consensus, so that state is reported
// unhealthy rather than silently dropped.
type healthCheck struct{ nodes *registry.NodeSet }

func (c healthCheck) HealthCheck(context.Context) (health.Check, error) {
	activeIDs, _ := c.nodes.Snapshot()
	if len(activeIDs) == 0 {
		return health.Check{Name: "peer_registry", Healthy: false, Error: "no active peers"}, nil
	}
	return health.Check{Name: "peer_registry", Healthy: true}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	activeIDs, _ := s.Nodes.Snapshot()
	report := health.NewReport(r.Context(), healthCheck{nodes: s.Nodes}, len(activeIDs), time.Since(s.started), map[string]interface{}{
		"node_id": s.Self,
		"version": version.Current().String(),
	})
	_ = api.WriteJSON(w, http.StatusOK, report)
}
