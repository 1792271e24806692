/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for the governance kernel's
// demo harness. Metrics are registered against a plain prometheus.Registry
// rather than a Kubernetes controller-runtime registry, since the kernel
// is an in-process library with no operator surface.
//
// Metric naming follows Prometheus conventions:
//   - legator_governance_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DecisionsTotal counts plan-level validation outcomes by outcome.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legator_governance_decisions_total",
			Help: "Total plan validation outcomes by outcome (APPROVED, ESCALATE, BLOCKED).",
		},
		[]string{"outcome"},
	)

	// ViolationsTotal counts recorded violations by stable code.
	ViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legator_governance_violations_total",
			Help: "Total violations recorded by code (V001-V006).",
		},
		[]string{"code"},
	)

	// ProxyDurationSeconds is a histogram of ExecutionProxy.Execute
	// latency by decision.
	ProxyDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "legator_governance_proxy_duration_seconds",
			Help:    "Duration of ExecutionProxy.Execute calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"decision"},
	)

	// ActionsByCategoryTotal counts admitted actions by category and
	// decision.
	ActionsByCategoryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legator_governance_actions_total",
			Help: "Total actions admitted by the proxy, by category and decision.",
		},
		[]string{"category", "decision"},
	)

	// IntegritySweepFailuresTotal counts sweep-detected persona or
	// profile integrity failures.
	IntegritySweepFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legator_governance_integrity_sweep_failures_total",
			Help: "Total integrity failures detected by the scheduled sweep.",
		},
		[]string{"kind"},
	)
)

// Registry is the registry the demo harness's /metrics endpoint serves.
// Kept separate from prometheus.DefaultRegisterer so tests can construct
// an isolated registry per test.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		DecisionsTotal,
		ViolationsTotal,
		ProxyDurationSeconds,
		ActionsByCategoryTotal,
		IntegritySweepFailuresTotal,
	)
}

// RecordDecision records one plan-level validation outcome.
func RecordDecision(outcome string) {
	DecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordViolation records one violation by its stable code.
func RecordViolation(code string) {
	ViolationsTotal.WithLabelValues(code).Inc()
}

// RecordProxyExecute records one ExecutionProxy.Execute call.
func RecordProxyExecute(decision string, duration time.Duration) {
	ProxyDurationSeconds.WithLabelValues(decision).Observe(duration.Seconds())
}

// RecordAction records one admitted action by category and decision.
func RecordAction(category, decision string) {
	ActionsByCategoryTotal.WithLabelValues(category, decision).Inc()
}

// RecordIntegritySweepFailure records one sweep-detected integrity failure.
func RecordIntegritySweepFailure(kind string) {
	IntegritySweepFailuresTotal.WithLabelValues(kind).Inc()
}
