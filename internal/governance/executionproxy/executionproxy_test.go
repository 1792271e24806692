/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package executionproxy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/legator/governance-kernel/internal/governance/constraintloader"
	"github.com/legator/governance-kernel/internal/governance/personalock"
	"github.com/legator/governance-kernel/internal/governance/types"
	"github.com/legator/governance-kernel/internal/governance/violationtracker"
)

func newTestPersona(t *testing.T) *personalock.PersonaContext {
	t.Helper()
	p, err := personalock.Seal("demo-proxy", types.AgentCoding, []string{"read_file", "write_file"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return p
}

func newTestProfile(policy map[types.ActionCategory]types.Verdict) *constraintloader.LoadedProfile {
	return &constraintloader.LoadedProfile{
		Profile: constraintloader.ConstraintProfile{
			Name:            "test",
			ActionPolicyMap: policy,
		},
		ConstraintHash: "deadbeef",
	}
}

func newTestTracker(t *testing.T) *violationtracker.Tracker {
	t.Helper()
	tr, err := violationtracker.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("violationtracker.New: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func allowResult(planID string, idx int, category types.ActionCategory, target string) types.ValidationResult {
	return types.ValidationResult{
		PlanID:  planID,
		Outcome: types.Approved,
		Steps: []types.StepVerdict{
			{StepIndex: idx, Verdict: types.Allow, Category: category, Target: target, Description: "allowed by policy"},
		},
	}
}

func escalateResult(planID string, idx int, category types.ActionCategory, target string) types.ValidationResult {
	return types.ValidationResult{
		PlanID:  planID,
		Outcome: types.OutcomeEscalate,
		Steps: []types.StepVerdict{
			{StepIndex: idx, Verdict: types.Escalate, Category: category, Target: target, Description: "requires human approval"},
		},
	}
}

func blockResult(planID string, idx int, category types.ActionCategory, target string, code types.ViolationCode) types.ValidationResult {
	return types.ValidationResult{
		PlanID:  planID,
		Outcome: types.Blocked,
		Steps: []types.StepVerdict{
			{StepIndex: idx, Verdict: types.Block, Category: category, Target: target, Code: code, Description: "blocked"},
		},
	}
}

func TestPersonaTamperBlocksWithV001(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-1", 0, types.FileRead, "a.txt")

	// sanity: the untampered proxy executes fine.
	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionMocked {
		t.Fatalf("expected the untampered proxy to mock-execute, got %v", res.Decision)
	}

	// A proxy bound to a nil persona always fails VerifyIntegrity, which
	// stands in for a persona whose sealed identity was tampered with.
	brokenProxy := New(nil, profile, types.ModeMock, nil, nil, tracker)
	tamperedRes := brokenProxy.Execute(context.Background(), req, result)
	if tamperedRes.Decision != types.DecisionBlocked {
		t.Fatalf("Decision = %v, want BLOCKED", tamperedRes.Decision)
	}
	if len(tamperedRes.Violations) != 1 || tamperedRes.Violations[0] != types.V001PersonaLockViolation {
		t.Errorf("expected V001, got %v", tamperedRes.Violations)
	}
}

func TestMissingStepVerdictBlocksWithV006(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 5, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-1", 0, types.FileRead, "a.txt") // only step 0 exists

	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionBlocked {
		t.Fatalf("Decision = %v, want BLOCKED", res.Decision)
	}
	if len(res.Violations) != 1 || res.Violations[0] != types.V006UnapprovedAction {
		t.Errorf("expected V006, got %v", res.Violations)
	}
}

func TestBlockVerdictShortCircuits(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	called := false
	executor := func(ctx context.Context, req types.ActionRequest) (string, error) {
		called = true
		return "should not run", nil
	}
	proxy := New(persona, profile, types.ModeReal, executor, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileDelete, Target: "/etc/shadow"}
	result := blockResult("plan-1", 0, types.FileDelete, "/etc/shadow", types.V002DeniedTarget)

	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionBlocked {
		t.Fatalf("Decision = %v, want BLOCKED", res.Decision)
	}
	if called {
		t.Error("executor must never run for a BLOCK verdict")
	}
	if len(res.Violations) != 1 || res.Violations[0] != types.V002DeniedTarget {
		t.Errorf("expected the block's own code to propagate, got %v", res.Violations)
	}
}

func TestEscalateNoCallbackDegradesToBlockV006(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileWrite, Target: "b.txt"}
	result := escalateResult("plan-1", 0, types.FileWrite, "b.txt")

	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionBlocked {
		t.Fatalf("Decision = %v, want BLOCKED", res.Decision)
	}
	if len(res.Violations) != 1 || res.Violations[0] != types.V006UnapprovedAction {
		t.Errorf("expected V006, got %v", res.Violations)
	}
}

func TestEscalateRejectedByCallbackDegradesToBlockV006(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	cb := func(ctx context.Context, req types.ActionRequest, rationale string) bool { return false }
	proxy := New(persona, profile, types.ModeMock, nil, cb, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileWrite, Target: "b.txt"}
	result := escalateResult("plan-1", 0, types.FileWrite, "b.txt")

	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionBlocked {
		t.Fatalf("Decision = %v, want BLOCKED", res.Decision)
	}
	if len(res.Violations) != 1 || res.Violations[0] != types.V006UnapprovedAction {
		t.Errorf("expected V006, got %v", res.Violations)
	}
}

func TestEscalateApprovedDispatches(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	approved := false
	cb := func(ctx context.Context, req types.ActionRequest, rationale string) bool {
		approved = true
		return true
	}
	proxy := New(persona, profile, types.ModeMock, nil, cb, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileWrite, Target: "b.txt"}
	result := escalateResult("plan-1", 0, types.FileWrite, "b.txt")

	res := proxy.Execute(context.Background(), req, result)
	if !approved {
		t.Fatal("approval callback was never invoked")
	}
	if res.Decision != types.DecisionMocked {
		t.Fatalf("Decision = %v, want MOCKED", res.Decision)
	}
}

func TestAllowRealModeDispatchesToExecutor(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	executor := func(ctx context.Context, req types.ActionRequest) (string, error) {
		return "file contents here", nil
	}
	proxy := New(persona, profile, types.ModeReal, executor, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-1", 0, types.FileRead, "a.txt")

	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionExecuted {
		t.Fatalf("Decision = %v, want EXECUTED", res.Decision)
	}
	if res.Output != "file contents here" {
		t.Errorf("Output = %q, want executor's output passed through", res.Output)
	}
}

func TestAllowRealModeWithoutExecutorBlocks(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	proxy := New(persona, profile, types.ModeReal, nil, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-1", 0, types.FileRead, "a.txt")

	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionBlocked {
		t.Fatalf("Decision = %v, want BLOCKED when REAL mode has no executor", res.Decision)
	}
}

func TestExecutorErrorStillProducesExecutedAuditEntry(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	executor := func(ctx context.Context, req types.ActionRequest) (string, error) {
		return "", errors.New("connection refused")
	}
	proxy := New(persona, profile, types.ModeReal, executor, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-1", 0, types.FileRead, "a.txt")

	res := proxy.Execute(context.Background(), req, result)
	if res.Decision != types.DecisionExecuted {
		t.Fatalf("Decision = %v, want EXECUTED (executor ran, even though it errored)", res.Decision)
	}
	if res.Error != "connection refused" {
		t.Errorf("Error = %q, want the executor's error surfaced", res.Error)
	}
}

func TestMockModeIdempotentAcrossCalls(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileWrite, Target: "b.txt"}
	result := allowResult("plan-1", 0, types.FileWrite, "b.txt")

	first := proxy.Execute(context.Background(), req, result)
	second := proxy.Execute(context.Background(), req, result)

	if first.Decision != types.DecisionMocked || second.Decision != types.DecisionMocked {
		t.Fatalf("expected both calls to mock-execute, got %v and %v", first.Decision, second.Decision)
	}
	if first.Output != second.Output {
		t.Errorf("mock output should be a deterministic function of the request, got %q vs %q", first.Output, second.Output)
	}

	log := proxy.AuditLog()
	if len(log) != 2 {
		t.Fatalf("expected two distinct audit entries for two calls, got %d", len(log))
	}
}

func TestAuditEntryBindsActiveConstraintHash(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-1", 0, types.FileRead, "a.txt")
	proxy.Execute(context.Background(), req, result)

	// Mutate the profile's hash after admission; the already-recorded
	// entry must keep the hash that was active when it was admitted.
	profile.ConstraintHash = "changed-later"
	proxy.Execute(context.Background(), req, result)

	log := proxy.AuditLog()
	if len(log) != 2 {
		t.Fatalf("expected two audit entries, got %d", len(log))
	}
	if log[0].ConstraintHash != "deadbeef" {
		t.Errorf("first entry ConstraintHash = %q, want deadbeef (hash active at its own admission time)", log[0].ConstraintHash)
	}
	if log[1].ConstraintHash != "changed-later" {
		t.Errorf("second entry ConstraintHash = %q, want changed-later", log[1].ConstraintHash)
	}
}

func TestFlushAuditWritesEntriesOnce(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	path := filepath.Join(t.TempDir(), "audit.log")
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker, WithAuditLogPath(path))

	req := types.ActionRequest{PlanID: "plan-flush", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-flush", 0, types.FileRead, "a.txt")
	proxy.Execute(context.Background(), req, result)
	proxy.Execute(context.Background(), req, result)

	if err := proxy.FlushAudit(); err != nil {
		t.Fatalf("FlushAudit: %v", err)
	}
	// A second flush with nothing new must not duplicate entries.
	if err := proxy.FlushAudit(); err != nil {
		t.Fatalf("FlushAudit (second): %v", err)
	}

	entries, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("ReadAuditLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadAuditLog returned %d entries, want 2", len(entries))
	}
	if entries[0].PlanID != "plan-flush" || entries[0].ConstraintHash != "deadbeef" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[0].Decision != types.DecisionMocked || entries[0].Executed {
		t.Errorf("expected a mocked, non-executed entry, got %+v", entries[0])
	}
}

func TestParanoidProfileFlushesPerEntry(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	profile.Profile.Strictness = types.StrictnessParanoid
	tracker := newTestTracker(t)
	path := filepath.Join(t.TempDir(), "audit.log")
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker, WithAuditLogPath(path))

	req := types.ActionRequest{PlanID: "plan-paranoid", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-paranoid", 0, types.FileRead, "a.txt")
	proxy.Execute(context.Background(), req, result)

	// No explicit FlushAudit: the entry must already be on disk.
	entries, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("ReadAuditLog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the paranoid proxy to flush at admission, got %d entries", len(entries))
	}
}

func TestReadAuditLogDiscardsTornLines(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	path := filepath.Join(t.TempDir(), "audit.log")
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker, WithAuditLogPath(path))

	req := types.ActionRequest{PlanID: "plan-torn", StepIndex: 0, Category: types.FileRead, Target: "pipe|in|target.txt"}
	result := allowResult("plan-torn", 0, types.FileRead, "pipe|in|target.txt")
	proxy.Execute(context.Background(), req, result)
	if err := proxy.FlushAudit(); err != nil {
		t.Fatalf("FlushAudit: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("2026-03-01T08:00:00Z|plan-torn|truncated"); err != nil {
		t.Fatalf("write torn line: %v", err)
	}
	f.Close()

	entries, err := ReadAuditLog(path)
	if err != nil {
		t.Fatalf("ReadAuditLog: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected the torn line to be discarded, got %d entries", len(entries))
	}
	if entries[0].Target != "pipe|in|target.txt" {
		t.Errorf("Target = %q, want the escaped pipes round-tripped", entries[0].Target)
	}
}

func TestAuditLogReturnsDefensiveCopy(t *testing.T) {
	persona := newTestPersona(t)
	profile := newTestProfile(nil)
	tracker := newTestTracker(t)
	proxy := New(persona, profile, types.ModeMock, nil, nil, tracker)

	req := types.ActionRequest{PlanID: "plan-1", StepIndex: 0, Category: types.FileRead, Target: "a.txt"}
	result := allowResult("plan-1", 0, types.FileRead, "a.txt")
	proxy.Execute(context.Background(), req, result)

	log := proxy.AuditLog()
	log[0].Target = "tampered"
	if proxy.AuditLog()[0].Target == "tampered" {
		t.Error("mutating the returned audit log should not affect the proxy's internal state")
	}
}
