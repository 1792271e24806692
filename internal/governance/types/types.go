/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package types holds the data model shared across the governance kernel's
// five components: ConstraintLoader, PersonaLock, PlanValidator,
// ExecutionProxy, and ViolationTracker. Keeping these in one package avoids
// import cycles between components that must all reference the same
// action categories, verdicts, and violation codes.
package types

import "time"

// ActionCategory is the closed set of action intents the validator
// recognizes. UNKNOWN exists so the validator can escalate rather than
// guess when a step cannot be classified.
type ActionCategory string

const (
	FileRead       ActionCategory = "FILE_READ"
	FileWrite      ActionCategory = "FILE_WRITE"
	FileDelete     ActionCategory = "FILE_DELETE"
	ShellExec      ActionCategory = "SHELL_EXEC"
	NetworkRequest ActionCategory = "NETWORK_REQUEST"
	CodeEdit       ActionCategory = "CODE_EDIT"
	ToolUse        ActionCategory = "TOOL_USE"
	Unknown        ActionCategory = "UNKNOWN"
)

// ValidCategories returns the closed set, in declaration order. Used by the
// loader to reject a profile referencing a category outside this set.
func ValidCategories() []ActionCategory {
	return []ActionCategory{
		FileRead, FileWrite, FileDelete, ShellExec,
		NetworkRequest, CodeEdit, ToolUse, Unknown,
	}
}

// Verdict is the per-step and per-action resolution the validator and
// proxy exchange.
type Verdict string

const (
	Allow    Verdict = "ALLOW"
	Escalate Verdict = "ESCALATE"
	Block    Verdict = "BLOCK"
)

// Outcome is the plan-level resolution of ValidationResult.
type Outcome string

const (
	Approved        Outcome = "APPROVED"
	OutcomeEscalate Outcome = "ESCALATE"
	Blocked         Outcome = "BLOCKED"
)

// Strictness controls how conservatively the validator and proxy behave.
// B is the enforced default; C additionally flushes the proxy's on-disk
// audit log per entry and rejects any UNKNOWN-category step outright
// instead of escalating it. The violation log is synced on every record
// regardless of strictness.
type Strictness string

const (
	StrictnessAdvisory Strictness = "A"
	StrictnessEnforced Strictness = "B"
	StrictnessParanoid Strictness = "C"
)

// AgentType is the closed enumeration a Persona's agent_type must belong to.
type AgentType string

const (
	AgentCoding    AgentType = "coding"
	AgentReview    AgentType = "review"
	AgentPlanning  AgentType = "planning"
	AgentAnalysis  AgentType = "analysis"
	AgentTesting   AgentType = "testing"
)

// AgentCapabilities is the static table mapping each agent type to the set
// of capability tags it is permitted to seal with. PersonaLock.Seal rejects
// any capability not present in this table for the given type.
var AgentCapabilities = map[AgentType][]string{
	AgentCoding:   {"read_file", "write_file", "edit_code", "run_tests", "shell_exec"},
	AgentReview:   {"read_file", "comment", "approve", "request_changes"},
	AgentPlanning: {"read_file", "draft_plan", "estimate"},
	AgentAnalysis: {"read_file", "query_metrics", "generate_report"},
	AgentTesting:  {"read_file", "write_file", "run_tests", "shell_exec"},
}

// ExecutionMode controls whether ExecutionProxy dispatches to a real
// executor, a mock, or a flagged dry run.
type ExecutionMode string

const (
	ModeReal    ExecutionMode = "REAL"
	ModeMock    ExecutionMode = "MOCK"
	ModeDryRun  ExecutionMode = "DRY_RUN"
)

// Decision is the final disposition recorded on an ActionResult/AuditEntry.
type Decision string

const (
	DecisionExecuted Decision = "executed"
	DecisionBlocked  Decision = "blocked"
	DecisionMocked   Decision = "mocked"
)

// ViolationCode is a stable, append-only external contract. Codes are
// never renumbered or reused; new codes are appended.
type ViolationCode string

const (
	V001PersonaLockViolation ViolationCode = "V001"
	V002DeniedTarget         ViolationCode = "V002"
	V003SandboxEscape        ViolationCode = "V003"
	V004BypassAttempt        ViolationCode = "V004"
	V005PolicyBlock          ViolationCode = "V005"
	V006UnapprovedAction     ViolationCode = "V006"
)

// ViolationDescriptions gives the default human-readable text for each
// stable code. Descriptions may evolve; codes may not.
var ViolationDescriptions = map[ViolationCode]string{
	V001PersonaLockViolation: "Persona lock violation",
	V002DeniedTarget:         "Denied target",
	V003SandboxEscape:        "Sandbox escape",
	V004BypassAttempt:        "Bypass attempt",
	V005PolicyBlock:          "Policy block",
	V006UnapprovedAction:     "Unapproved action",
}

// ExtractedAction is the tuple the validator produces per plan step.
type ExtractedAction struct {
	Category ActionCategory
	Target   string
	ToolCall *ToolCall
}

// ToolCall is an optional structured record of the tool invocation behind
// an extracted action, present when the plan step came from a structured
// plan rather than free text.
type ToolCall struct {
	Name      string
	Arguments map[string]string
}

// PlanStep is one step of a Plan: a textual description plus its
// extracted action.
type PlanStep struct {
	Description string
	Action      ExtractedAction
}

// Plan is immutable once constructed: an ordered sequence of steps under
// a free-text task statement.
type Plan struct {
	PlanID string
	Task   string
	Steps  []PlanStep
}

// StepVerdict is the validator's resolution for a single plan step,
// carrying enough context for the proxy and tracker to act without
// re-deriving it.
type StepVerdict struct {
	StepIndex   int
	Verdict     Verdict
	Category    ActionCategory
	Target      string
	Code        ViolationCode // empty unless Verdict == Block
	Description string
}

// ValidationResult is PlanValidator's output for a whole plan.
type ValidationResult struct {
	PlanID     string
	Outcome    Outcome
	Steps      []StepVerdict
	Rationale  string
	Violations []ViolationRecord
}

// StepVerdictFor returns the verdict recorded for stepIndex, and whether
// one was found at all.
func (r *ValidationResult) StepVerdictFor(stepIndex int) (StepVerdict, bool) {
	for _, s := range r.Steps {
		if s.StepIndex == stepIndex {
			return s, true
		}
	}
	return StepVerdict{}, false
}

// ActionRequest is what the proxy is asked to execute: one plan step
// resolved down to a concrete action.
type ActionRequest struct {
	PlanID    string
	StepIndex int
	Category  ActionCategory
	Target    string
	ToolCall  *ToolCall
	Payload   map[string]string
}

// ActionResult is what Proxy.Execute returns.
type ActionResult struct {
	Decision   Decision
	Output     string
	Error      string
	Rationale  string
	Violations []ViolationCode
}

// AuditEntry is one append-only record of an execution attempt.
type AuditEntry struct {
	Timestamp      time.Time
	PlanID         string
	PersonaID      string
	ConstraintHash string
	ActionType     ActionCategory
	Target         string
	Decision       Decision
	Executed       bool
	Error          string
}

// ViolationRecord is one append-only record of a governance breach.
type ViolationRecord struct {
	Code           ViolationCode
	Description    string
	PlanID         string
	PersonaID      string
	ConstraintHash string
	Timestamp      time.Time
}
