// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics wires the Prometheus counters/gauges agents and nodes
// expose on /metrics directly onto the prometheus client library
// instead of a hand-rolled counter/gauge abstraction.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Agent holds the counters an Agent process updates.
type Agent struct {
	WebhooksReceived   prometheus.Counter
	SignFailures       prometheus.Counter
	MulticastSuccess   prometheus.Counter
	MulticastFailure   prometheus.Counter
	ExecuteRequests    prometheus.Counter
	ExecuteRejected    prometheus.Counter
	QuickPathActions   prometheus.Counter
	WebhookRateLimited prometheus.Counter
}

// NewAgent registers and returns the Agent metric set.
func NewAgent(reg prometheus.Registerer) *Agent {
	a := &Agent{
		WebhooksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "webhooks_received_total", Help: "Webhook payloads accepted from the platform.",
		}),
		SignFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "sign_failures_total", Help: "Signing attempts that failed (fatal path).",
		}),
		MulticastSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "multicast_success_total", Help: "Per-target multicast POSTs that returned 2xx.",
		}),
		MulticastFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "multicast_failure_total", Help: "Per-target multicast POSTs that failed or timed out.",
		}),
		ExecuteRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "execute_requests_total", Help: "Inbound /v1/execute requests.",
		}),
		ExecuteRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "execute_rejected_total", Help: "/v1/execute requests rejected by leader validation.",
		}),
		QuickPathActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "quick_path_actions_total", Help: "Local quick-path actions executed without consensus.",
		}),
		WebhookRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botagent", Name: "webhook_rate_limited_total", Help: "Webhook POSTs rejected by the inbound rate limiter.",
		}),
	}
	reg.MustRegister(a.WebhooksReceived, a.SignFailures, a.MulticastSuccess,
		a.MulticastFailure, a.ExecuteRequests, a.ExecuteRejected, a.QuickPathActions,
		a.WebhookRateLimited)
	return a
}

// Node holds the counters a Node process updates.
type Node struct {
	MessagesVerified  prometheus.Counter
	MessagesRejected  *prometheus.CounterVec
	Confirmations     prometheus.Counter
	Equivocations     prometheus.Counter
	LeaderExecutions  prometheus.Counter
	Failovers         prometheus.Counter
	AuditQueueDepth   *prometheus.GaugeVec
	ActiveMessages    prometheus.Gauge
}

// NewNode registers and returns the Node metric set.
func NewNode(reg prometheus.Registerer) *Node {
	n := &Node{
		MessagesVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botnode", Name: "messages_verified_total", Help: "SignedMessages that passed all four verification layers.",
		}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "botnode", Name: "messages_rejected_total", Help: "SignedMessages rejected, labeled by rejection layer.",
		}, []string{"reason"}),
		Confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botnode", Name: "confirmations_total", Help: "message_ids that reached M-of-K quorum.",
		}),
		Equivocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botnode", Name: "equivocations_total", Help: "Equivocation evidence records queued.",
		}),
		LeaderExecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botnode", Name: "leader_executions_total", Help: "Times this node acted as leader and dispatched to an agent.",
		}),
		Failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "botnode", Name: "failovers_total", Help: "Backup takeovers fired by the failover timer.",
		}),
		AuditQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "botnode", Name: "audit_queue_depth", Help: "Current depth of each audit queue.",
		}, []string{"queue"}),
		ActiveMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "botnode", Name: "active_messages", Help: "MessageState entries not yet garbage collected.",
		}),
	}
	reg.MustRegister(n.MessagesVerified, n.MessagesRejected, n.Confirmations,
		n.Equivocations, n.LeaderExecutions, n.Failovers, n.AuditQueueDepth, n.ActiveMessages)
	return n
}
