/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package executionproxy is the single gate through which all of an
// agent's actions pass. It resolves a plan's per-step verdict to either a
// mocked or real execution, binds the produced audit entry to the
// constraint hash active at admission time, and refuses to execute
// anything the validator did not approve.
package executionproxy

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/legator/governance-kernel/internal/governance/constraintloader"
	"github.com/legator/governance-kernel/internal/governance/personalock"
	"github.com/legator/governance-kernel/internal/governance/types"
	"github.com/legator/governance-kernel/internal/governance/violationtracker"
)

// Executor dispatches a single approved action to the outside world. The
// contract is "run to completion or error out" — the proxy never retries
// and never cancels an in-flight call on its own.
type Executor func(ctx context.Context, req types.ActionRequest) (output string, err error)

// ApprovalCallback is invoked synchronously for every ESCALATE verdict.
// A nil callback means escalation always degrades to block (V006).
type ApprovalCallback func(ctx context.Context, req types.ActionRequest, rationale string) (approved bool)

// Proxy is the kernel's ExecutionProxy.
type Proxy struct {
	persona    *personalock.PersonaContext
	profile    *constraintloader.LoadedProfile
	mode       types.ExecutionMode
	executor   Executor
	approvalCB ApprovalCallback
	tracker    *violationtracker.Tracker
	log        logr.Logger

	mu        sync.Mutex
	auditLog  []types.AuditEntry
	auditPath string
	flushed   int
}

// Option configures optional Proxy behavior.
type Option func(*Proxy)

// WithLogger attaches a structured logger; decisions are logged but never
// influenced by logging.
func WithLogger(l logr.Logger) Option {
	return func(p *Proxy) { p.log = l }
}

// WithAuditLogPath enables the on-disk audit log: FlushAudit appends all
// entries admitted since the last flush to path, one line per entry.
// Under a paranoid (C) profile the proxy flushes per entry instead of
// waiting for FlushAudit.
func WithAuditLogPath(path string) Option {
	return func(p *Proxy) { p.auditPath = path }
}

// New constructs an ExecutionProxy bound to persona and profile. mode
// selects REAL/MOCK/DRY_RUN dispatch; executor is required for REAL mode
// and ignored otherwise; approvalCB may be nil.
func New(persona *personalock.PersonaContext, profile *constraintloader.LoadedProfile, mode types.ExecutionMode, executor Executor, approvalCB ApprovalCallback, tracker *violationtracker.Tracker, opts ...Option) *Proxy {
	p := &Proxy{
		persona:    persona,
		profile:    profile,
		mode:       mode,
		executor:   executor,
		approvalCB: approvalCB,
		tracker:    tracker,
		log:        logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs the per-action protocol in §4.4:
//  1. verify persona integrity (V001 on failure)
//  2. locate the step's verdict in result (V006 if missing)
//  3. BLOCK → no execution
//  4. ESCALATE → synchronous approval callback, degrade to block+V006 if
//     rejected or absent
//  5. ALLOW → dispatch to the executor/mock, wrap an AuditEntry bound to
//     the constraint hash active at admission time, append, return.
func (p *Proxy) Execute(ctx context.Context, req types.ActionRequest, result types.ValidationResult) types.ActionResult {
	constraintHash := p.profile.ConstraintHash

	if !personalock.VerifyIntegrity(p.persona) {
		p.recordViolation(types.V001PersonaLockViolation, "persona integrity check failed at admission", req.PlanID, constraintHash)
		return p.finalize(req, constraintHash, types.DecisionBlocked, "", "", "persona integrity check failed", []types.ViolationCode{types.V001PersonaLockViolation})
	}

	sv, found := result.StepVerdictFor(req.StepIndex)
	if !found {
		p.recordViolation(types.V006UnapprovedAction, "proxy received action with no matching step verdict", req.PlanID, constraintHash)
		return p.finalize(req, constraintHash, types.DecisionBlocked, "", "", "no validator verdict found for this action", []types.ViolationCode{types.V006UnapprovedAction})
	}

	switch sv.Verdict {
	case types.Block:
		code := sv.Code
		if code == "" {
			code = types.V005PolicyBlock
		}
		return p.finalize(req, constraintHash, types.DecisionBlocked, "", "", sv.Description, []types.ViolationCode{code})

	case types.Escalate:
		if p.approvalCB == nil {
			p.recordViolation(types.V006UnapprovedAction, "escalated action had no approval callback configured", req.PlanID, constraintHash)
			return p.finalize(req, constraintHash, types.DecisionBlocked, "", "", "escalation requires an approval callback; none configured", []types.ViolationCode{types.V006UnapprovedAction})
		}
		if !p.approvalCB(ctx, req, sv.Description) {
			p.recordViolation(types.V006UnapprovedAction, "escalated action rejected by approval callback", req.PlanID, constraintHash)
			return p.finalize(req, constraintHash, types.DecisionBlocked, "", "", "escalated action was rejected", []types.ViolationCode{types.V006UnapprovedAction})
		}
		return p.dispatch(ctx, req, constraintHash, sv.Description)

	default: // types.Allow
		return p.dispatch(ctx, req, constraintHash, sv.Description)
	}
}

func (p *Proxy) dispatch(ctx context.Context, req types.ActionRequest, constraintHash, rationale string) types.ActionResult {
	switch p.mode {
	case types.ModeReal:
		if p.executor == nil {
			return p.finalize(req, constraintHash, types.DecisionBlocked, "", "no executor configured for REAL mode", rationale, nil)
		}
		output, err := p.executor(ctx, req)
		errStr := ""
		if err != nil {
			errStr = err.Error()
		}
		return p.finalize(req, constraintHash, types.DecisionExecuted, output, errStr, rationale, nil)

	default: // MOCK, DRY_RUN
		output := fmt.Sprintf("would execute %s on %q", req.Category, req.Target)
		return p.finalize(req, constraintHash, types.DecisionMocked, output, "", rationale, nil)
	}
}

// finalize wraps the outcome into an AuditEntry bound to constraintHash,
// appends it in admission order, and returns the caller-facing result.
func (p *Proxy) finalize(req types.ActionRequest, constraintHash string, decision types.Decision, output, execErr, rationale string, violations []types.ViolationCode) types.ActionResult {
	entry := types.AuditEntry{
		Timestamp:      time.Now().UTC(),
		PlanID:         req.PlanID,
		PersonaID:      p.personaID(),
		ConstraintHash: constraintHash,
		ActionType:     req.Category,
		Target:         req.Target,
		Decision:       decision,
		Executed:       decision == types.DecisionExecuted,
		Error:          execErr,
	}

	p.mu.Lock()
	p.auditLog = append(p.auditLog, entry)
	if p.auditPath != "" && p.profile.Profile.Strictness == types.StrictnessParanoid {
		if err := p.flushLocked(); err != nil {
			p.log.Error(err, "per-entry audit flush failed", "path", p.auditPath)
		}
	}
	p.mu.Unlock()

	p.log.V(1).Info("action admitted", "plan_id", req.PlanID, "decision", decision, "category", req.Category, "target", req.Target)

	return types.ActionResult{
		Decision:   decision,
		Output:     output,
		Error:      execErr,
		Rationale:  rationale,
		Violations: violations,
	}
}

func (p *Proxy) recordViolation(code types.ViolationCode, description, planID, constraintHash string) {
	if p.tracker == nil {
		return
	}
	_ = p.tracker.Record(types.ViolationRecord{
		Code:           code,
		Description:    description,
		PlanID:         planID,
		PersonaID:      p.personaID(),
		ConstraintHash: constraintHash,
		Timestamp:      time.Now().UTC(),
	})
}

// personaID returns the bound persona's agent id, or "" if the proxy has
// no persona at all — a persona failing VerifyIntegrity is still usually
// non-nil, but a nil persona is itself a V001 condition and must not
// crash the audit/violation path that reports it.
func (p *Proxy) personaID() string {
	if p.persona == nil {
		return ""
	}
	return p.persona.AgentID()
}

// AuditLog returns a defensive copy of the entries admitted so far, in
// admission order. The log is never pruned within a task.
func (p *Proxy) AuditLog() []types.AuditEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.AuditEntry, len(p.auditLog))
	copy(out, p.auditLog)
	return out
}

// FlushAudit appends every entry admitted since the last flush to the
// configured audit log file, newline-delimited and append-only, and
// syncs before returning. A no-op when no audit path is configured.
// Callers flush on task completion; under a paranoid profile the proxy
// already flushed each entry at admission.
func (p *Proxy) FlushAudit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Proxy) flushLocked() error {
	if p.auditPath == "" || p.flushed == len(p.auditLog) {
		return nil
	}
	f, err := os.OpenFile(p.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log %q: %w", p.auditPath, err)
	}
	defer f.Close()
	for _, e := range p.auditLog[p.flushed:] {
		if _, err := f.WriteString(encodeAuditLine(e) + "\n"); err != nil {
			return fmt.Errorf("write audit entry: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flush audit log: %w", err)
	}
	p.flushed = len(p.auditLog)
	return nil
}

// encodeAuditLine formats one entry in the fixed on-disk field order:
// timestamp, plan_id, persona_id, constraint_hash, action_type, target,
// decision, executed, error. Target and error are escaped so an embedded
// "|" or newline cannot corrupt the field order on read-back.
func encodeAuditLine(e types.AuditEntry) string {
	fields := []string{
		e.Timestamp.Format(time.RFC3339Nano),
		e.PlanID,
		e.PersonaID,
		e.ConstraintHash,
		string(e.ActionType),
		escapeAuditField(e.Target),
		string(e.Decision),
		strconv.FormatBool(e.Executed),
		escapeAuditField(e.Error),
	}
	return strings.Join(fields, "|")
}

func escapeAuditField(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeAuditField(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '|':
				b.WriteByte('|')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ReadAuditLog parses an on-disk audit log, discarding any line that does
// not carry exactly 9 fields (a torn write). Exported for audit tooling
// and tests.
func ReadAuditLog(path string) ([]types.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.AuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := splitUnescapedAudit(line, '|')
		if len(fields) != 9 {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, fields[0])
		if err != nil {
			continue
		}
		executed, err := strconv.ParseBool(fields[7])
		if err != nil {
			continue
		}
		out = append(out, types.AuditEntry{
			Timestamp:      ts,
			PlanID:         fields[1],
			PersonaID:      fields[2],
			ConstraintHash: fields[3],
			ActionType:     types.ActionCategory(fields[4]),
			Target:         unescapeAuditField(fields[5]),
			Decision:       types.Decision(fields[6]),
			Executed:       executed,
			Error:          unescapeAuditField(fields[8]),
		})
	}
	return out, scanner.Err()
}

func splitUnescapedAudit(s string, sep byte) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			cur.WriteByte(s[i])
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if s[i] == sep {
			fields = append(fields, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	fields = append(fields, cur.String())
	return fields
}
