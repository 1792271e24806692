/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package agent provides the GovernedAgent façade: a convenience wrapper
// around a sealed persona, a loaded constraint profile, and a constructed
// ExecutionProxy, exposing a single ExecuteTask entry point plus the
// history/introspection accessors the original prototype's
// GovernedCodingAgent offered (GetExecutionHistory, GetViolations,
// GetAuditLog, VerifyPersonaIntegrity). It adds no new kernel semantics —
// every decision still flows through PlanValidator and ExecutionProxy
// exactly as specified.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/legator/governance-kernel/internal/governance/constraintloader"
	"github.com/legator/governance-kernel/internal/governance/executionproxy"
	"github.com/legator/governance-kernel/internal/governance/personalock"
	"github.com/legator/governance-kernel/internal/governance/planvalidator"
	"github.com/legator/governance-kernel/internal/governance/types"
	"github.com/legator/governance-kernel/internal/governance/violationtracker"
	"github.com/legator/governance-kernel/internal/metrics"
	"github.com/legator/governance-kernel/internal/riskscore"
	"github.com/legator/governance-kernel/internal/telemetry"
)

// Config configures GovernedAgent.Create.
type Config struct {
	AgentID        string
	AgentType      types.AgentType
	Capabilities   []string
	ProfileName    string
	GovernanceDir  string
	ViolationDir   string
	AuditLogPath   string // optional on-disk audit log, flushed per task
	Mode           types.ExecutionMode
	Executor       executionproxy.Executor
	ApprovalCB     executionproxy.ApprovalCallback
	ViolationIndex violationtracker.Indexer // optional sqlite write-through index
}

// GovernedAgent wires a sealed persona, a loaded profile, and a proxy
// into the single entry point agents are expected to call.
type GovernedAgent struct {
	persona *personalock.PersonaContext
	profile *constraintloader.LoadedProfile
	proxy   *executionproxy.Proxy
	tracker *violationtracker.Tracker

	taskHistory []TaskResult
}

// TaskResult mirrors the original prototype's execute_task() dict shape:
// status, plan_id, persona_id, constraint_hash, rationale, per-action
// results, and violations.
type TaskResult struct {
	Status         types.Outcome
	PlanID         string
	PersonaID      string
	ConstraintHash string
	Rationale      string
	Results        []types.ActionResult
	Violations     []types.ViolationRecord
	Risk           riskscore.Assessment
}

// Create seals a persona, loads the named profile, and constructs an
// ExecutionProxy and ViolationTracker, mirroring the original
// GovernedCodingAgent.create(...) constructor.
func Create(cfg Config) (*GovernedAgent, error) {
	persona, err := personalock.Seal(cfg.AgentID, cfg.AgentType, cfg.Capabilities)
	if err != nil {
		return nil, err
	}

	profile, err := constraintloader.Load(cfg.ProfileName, cfg.GovernanceDir)
	if err != nil {
		return nil, err
	}

	tracker, err := violationtracker.New(cfg.ViolationDir, cfg.ViolationIndex)
	if err != nil {
		return nil, err
	}

	mode := cfg.Mode
	if mode == "" {
		mode = types.ModeMock
	}

	var opts []executionproxy.Option
	if cfg.AuditLogPath != "" {
		opts = append(opts, executionproxy.WithAuditLogPath(cfg.AuditLogPath))
	}
	proxy := executionproxy.New(persona, profile, mode, cfg.Executor, cfg.ApprovalCB, tracker, opts...)

	return &GovernedAgent{persona: persona, profile: profile, proxy: proxy, tracker: tracker}, nil
}

// ExecuteTask builds a Plan from free-text taskText (one step per
// non-empty line), validates it against the active profile, and drives
// every step through the ExecutionProxy, which blocks, escalates, or
// dispatches each per its verdict. The aggregate result mirrors the
// original prototype's execute_task() response shape.
func (a *GovernedAgent) ExecuteTask(ctx context.Context, taskText string) TaskResult {
	plan := buildPlan(taskText)

	ctx, taskSpan := telemetry.StartTaskSpan(ctx, a.persona.AgentID(), plan.PlanID)
	defer taskSpan.End()

	_, validateSpan := telemetry.StartValidateSpan(ctx, plan.PlanID, a.profile.ConstraintHash)
	validation := planvalidator.Validate(plan, a.profile.Profile)
	telemetry.EndValidateSpan(validateSpan, string(validation.Outcome), len(validation.Violations))
	metrics.RecordDecision(string(validation.Outcome))
	// Stamp persona id, constraint hash, and timestamp onto the validator's
	// records in place so the TaskResult below carries the same bound
	// values the tracker persists.
	for i := range validation.Violations {
		v := &validation.Violations[i]
		v.PersonaID = a.persona.AgentID()
		v.ConstraintHash = a.profile.ConstraintHash
		v.Timestamp = time.Now().UTC()
		metrics.RecordViolation(string(v.Code))
		_ = a.tracker.Record(*v)
	}

	var results []types.ActionResult
	for i := range plan.Steps {
		category := plan.Steps[i].Action.Category
		target := plan.Steps[i].Action.Target
		// Free-text plans never populate Action on the step itself — the
		// category/target the validator actually resolved (including
		// through the free-text extractor) lives on the step's verdict.
		if sv, found := validation.StepVerdictFor(i); found {
			category = sv.Category
			target = sv.Target
		}
		req := types.ActionRequest{
			PlanID:    plan.PlanID,
			StepIndex: i,
			Category:  category,
			Target:    target,
			ToolCall:  plan.Steps[i].Action.ToolCall,
		}

		execCtx, execSpan := telemetry.StartExecuteSpan(ctx, string(category), target, i)
		start := time.Now()
		res := a.proxy.Execute(execCtx, req, validation)
		metrics.RecordProxyExecute(string(res.Decision), time.Since(start))
		metrics.RecordAction(string(category), string(res.Decision))
		violationCodes := make([]string, len(res.Violations))
		for j, c := range res.Violations {
			violationCodes[j] = string(c)
		}
		telemetry.EndExecuteSpan(execSpan, string(res.Decision), res.Decision == types.DecisionBlocked, violationCodes)

		results = append(results, res)
	}

	result := TaskResult{
		Status:         validation.Outcome,
		PlanID:         plan.PlanID,
		PersonaID:      a.persona.AgentID(),
		ConstraintHash: a.profile.ConstraintHash,
		Rationale:      validation.Rationale,
		Results:        results,
		Violations:     validation.Violations,
		Risk:           riskscore.Assess(validation),
	}
	a.taskHistory = append(a.taskHistory, result)

	// Task completion is the flush point for the on-disk audit log; a
	// flush failure never changes the governance outcome already decided
	// above, so it is not surfaced on the TaskResult.
	_ = a.proxy.FlushAudit()
	return result
}

// GetExecutionHistory returns every TaskResult produced by ExecuteTask so
// far, in call order.
func (a *GovernedAgent) GetExecutionHistory() []TaskResult {
	out := make([]TaskResult, len(a.taskHistory))
	copy(out, a.taskHistory)
	return out
}

// GetViolations returns every violation recorded by the tracker so far.
func (a *GovernedAgent) GetViolations() []types.ViolationRecord {
	return a.tracker.All()
}

// GetAuditLog returns every audit entry admitted by the proxy so far, in
// admission order.
func (a *GovernedAgent) GetAuditLog() []types.AuditEntry {
	return a.proxy.AuditLog()
}

// VerifyPersonaIntegrity re-checks the sealed persona's identity hash.
func (a *GovernedAgent) VerifyPersonaIntegrity() bool {
	return personalock.VerifyIntegrity(a.persona)
}

// PersonaID returns the agent's sealed id.
func (a *GovernedAgent) PersonaID() string { return a.persona.AgentID() }

// ConstraintHash returns the active profile's binding hash.
func (a *GovernedAgent) ConstraintHash() string { return a.profile.ConstraintHash }

// Close releases the tracker's open log file handle.
func (a *GovernedAgent) Close() error {
	return a.tracker.Close()
}

func buildPlan(taskText string) types.Plan {
	var steps []types.PlanStep
	for _, line := range strings.Split(taskText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		steps = append(steps, types.PlanStep{Description: line})
	}
	if len(steps) == 0 {
		steps = []types.PlanStep{{Description: taskText}}
	}
	return types.Plan{
		PlanID: uuid.NewString(),
		Task:   taskText,
		Steps:  steps,
	}
}
