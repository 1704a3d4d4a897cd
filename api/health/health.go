// Copyright (C) 2020-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package health implements the /health response body shared by the
// Agent and Node HTTP servers: a single registry-backed Checker feeding
// a Report whose status/uptime_seconds/nodes_count are part of the
// monitoring contract, not incidental nesting.
package health

import (
	"context"
	"time"
)

// Checker runs a server's one health check: the Agent's node registry,
// or the Node's peer registry. Both report unhealthy on zero entries,
// since neither process can do useful work alone.
type Checker interface {
	HealthCheck(context.Context) (Check, error)
}

// Check is the single registry check behind a Report.
type Check struct {
	Name     string                 `json:"name"`
	Healthy  bool                   `json:"healthy"`
	Error    string                 `json:"error,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// Report is the full /health response body. Status, UptimeSeconds, and
// NodesCount are named top-level fields so a monitoring probe never has
// to reach into Checks/Details to answer "is this process alive and
// does it have peers."
type Report struct {
	Status        string                 `json:"status"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	NodesCount    int                    `json:"nodes_count"`
	Checks        []Check                `json:"checks,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// StatusString returns "healthy" or "unhealthy" for Report.Status.
func StatusString(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// NewReport runs check, times it, and assembles a Report with nodesCount
// and details folded in at the top level the way the Agent and Node
// servers both need.
func NewReport(ctx context.Context, check Checker, nodesCount int, uptime time.Duration, details map[string]interface{}) Report {
	start := time.Now()
	c, err := check.HealthCheck(ctx)
	c.Duration = time.Since(start)
	if err != nil && c.Error == "" {
		c.Error = err.Error()
	}

	return Report{
		Status:        StatusString(c.Healthy),
		UptimeSeconds: uptime.Seconds(),
		NodesCount:    nodesCount,
		Checks:        []Check{c},
		Details:       details,
	}
}
