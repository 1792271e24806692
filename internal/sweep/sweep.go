/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package sweep runs a scheduled integrity check over a governed agent's
// persona and constraint profile, independent of whatever traffic the
// agent happens to be handling. A compromised process could otherwise go
// unnoticed until its next task if nothing polls VerifyPersonaIntegrity
// and re-verifies the loaded profile hash on its own cadence.
package sweep

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/legator/governance-kernel/internal/governance/constraintloader"
	"github.com/legator/governance-kernel/internal/metrics"
)

// Target is the subset of GovernedAgent the sweep depends on.
type Target interface {
	PersonaID() string
	ConstraintHash() string
	VerifyPersonaIntegrity() bool
}

// FailureHandler is invoked whenever the sweep detects an integrity
// failure, in addition to the metrics counter it always increments.
type FailureHandler func(kind, detail string)

// Sweep periodically re-verifies a governed agent's persona lock and, if a
// profile directory/name were supplied, re-loads the profile from disk and
// compares its hash against the one the agent was constructed with.
type Sweep struct {
	mu          sync.Mutex
	target      Target
	profileDir  string
	profileName string
	onFailure   FailureHandler
	log         logr.Logger

	cron *cron.Cron
}

// Option customizes a Sweep.
type Option func(*Sweep)

// WithProfileRecheck enables re-loading and re-hashing the named profile
// from dir on every tick, in addition to the persona integrity check.
func WithProfileRecheck(dir, name string) Option {
	return func(s *Sweep) {
		s.profileDir = dir
		s.profileName = name
	}
}

// WithFailureHandler registers a callback invoked on every detected
// integrity failure.
func WithFailureHandler(h FailureHandler) Option {
	return func(s *Sweep) {
		s.onFailure = h
	}
}

// WithLogger sets the logger the sweep reports to.
func WithLogger(log logr.Logger) Option {
	return func(s *Sweep) {
		s.log = log
	}
}

// New creates a sweep over target, scheduled by a standard 5-field cron
// expression (e.g. "*/5 * * * *" for every five minutes).
func New(target Target, schedule string, opts ...Option) (*Sweep, error) {
	s := &Sweep{
		target: target,
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, s.runOnce); err != nil {
		return nil, err
	}
	s.cron = c
	return s, nil
}

// Start begins the cron scheduler in the background. It does not block.
func (s *Sweep) Start(_ context.Context) {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (s *Sweep) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs a single sweep pass immediately, outside the cron
// schedule. Exposed for tests and for an operator-triggered manual check.
func (s *Sweep) RunOnce() {
	s.runOnce()
}

func (s *Sweep) runOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.target.VerifyPersonaIntegrity() {
		s.fail("persona_hash_mismatch", "persona identity hash no longer matches sealed value")
	}

	if s.profileDir != "" && s.profileName != "" {
		loaded, err := constraintloader.Load(s.profileName, s.profileDir)
		if err != nil {
			s.fail("profile_load_error", err.Error())
			return
		}
		if loaded.ConstraintHash != s.target.ConstraintHash() {
			s.fail("profile_hash_mismatch", "on-disk profile hash no longer matches the hash bound at construction")
		}
	}
}

func (s *Sweep) fail(kind, detail string) {
	metrics.RecordIntegritySweepFailure(kind)
	s.log.Error(nil, "integrity sweep failure",
		"persona_id", s.target.PersonaID(),
		"kind", kind,
		"detail", detail,
	)
	if s.onFailure != nil {
		s.onFailure(kind, detail)
	}
}
