/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package planvalidator decides whether a plan is admissible under a
// loaded profile. It is deliberately a conservative, deterministic filter
// and never a model-based classifier: given the same plan text and the
// same profile it always produces the same verdict byte-for-byte, with no
// randomness, no model calls, and no time-dependent behavior. Anything it
// cannot classify becomes UNKNOWN, which always escalates.
package planvalidator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/legator/governance-kernel/internal/governance/constraintloader"
	"github.com/legator/governance-kernel/internal/governance/types"
)

// Validate decides whether plan is admissible under profile. Given a
// structured plan (steps already carry ExtractedAction), extraction is
// skipped for those steps; any step missing an Action is extracted from
// its Description using the free-text path.
func Validate(plan types.Plan, profile constraintloader.ConstraintProfile) types.ValidationResult {
	// Bypass detection runs first, over the whole plan, before any
	// per-step classification — a bypass match blocks the entire plan
	// regardless of what individual steps would otherwise resolve to.
	if reason, matched := scanForBypass(plan, profile.BypassIndicators); matched {
		v := types.ViolationRecord{
			Code:        types.V004BypassAttempt,
			Description: fmt.Sprintf("bypass indicator matched: %q", reason),
			PlanID:      plan.PlanID,
		}
		steps := make([]types.StepVerdict, len(plan.Steps))
		for i := range plan.Steps {
			steps[i] = types.StepVerdict{
				StepIndex:   i,
				Verdict:     types.Block,
				Code:        types.V004BypassAttempt,
				Description: "plan blocked: bypass indicator matched",
			}
		}
		return types.ValidationResult{
			PlanID:     plan.PlanID,
			Outcome:    types.Blocked,
			Steps:      steps,
			Rationale:  fmt.Sprintf("bypass indicator %q found in plan text or step descriptions", reason),
			Violations: []types.ViolationRecord{v},
		}
	}

	var steps []types.StepVerdict
	var violations []types.ViolationRecord
	anyBlocked, anyEscalated := false, false

	for i, step := range plan.Steps {
		action := step.Action
		if action.Category == "" {
			action = extractAction(step.Description)
		}

		sv, violation := resolveStep(i, action, step.Description, profile, plan.PlanID)
		steps = append(steps, sv)
		if violation != nil {
			violations = append(violations, *violation)
		}
		switch sv.Verdict {
		case types.Block:
			anyBlocked = true
		case types.Escalate:
			anyEscalated = true
		}
	}

	outcome := types.Approved
	if anyBlocked {
		outcome = types.Blocked
	} else if anyEscalated {
		outcome = types.OutcomeEscalate
	}

	return types.ValidationResult{
		PlanID:     plan.PlanID,
		Outcome:    outcome,
		Steps:      steps,
		Rationale:  rationale(outcome, steps),
		Violations: violations,
	}
}

// resolveStep applies §4.3's resolution order: deny list, then sandbox
// escape, then the UNKNOWN rule (unknownVerdict), then the policy map, in
// which an absent category is also resolved by unknownVerdict.
//
// description is the step's raw, unparsed text. The deny-list check scans
// it in addition to the extracted target: the free-text extractor's
// target is a best-effort noun-phrase guess (e.g. picking a trailing
// token or a quoted literal), and a denied pattern like "rm -rf" can
// appear in a step's text without ever landing in that guess — a plan
// reading "delete all files with rm -rf" must still resolve to V002, not
// fall through to a different code because extraction missed it.
func resolveStep(index int, action types.ExtractedAction, description string, profile constraintloader.ConstraintProfile, planID string) (types.StepVerdict, *types.ViolationRecord) {
	target := action.Target

	if deniedTarget, ok := matchedDenyTarget(profile.DenyList, target, description); ok {
		target = deniedTarget
		desc := fmt.Sprintf("target %q matches deny list", target)
		return types.StepVerdict{
				StepIndex: index, Verdict: types.Block, Category: action.Category,
				Target: target, Code: types.V002DeniedTarget, Description: desc,
			}, &types.ViolationRecord{
				Code: types.V002DeniedTarget, Description: desc, PlanID: planID,
			}
	}

	if isWrite(action.Category) && len(profile.AllowList) > 0 && !matchesAny(profile.AllowList, target) {
		desc := fmt.Sprintf("write target %q is outside the sandbox allow list", target)
		return types.StepVerdict{
				StepIndex: index, Verdict: types.Block, Category: action.Category,
				Target: target, Code: types.V003SandboxEscape, Description: desc,
			}, &types.ViolationRecord{
				Code: types.V003SandboxEscape, Description: desc, PlanID: planID,
			}
	}

	if action.Category == types.Unknown {
		return unknownVerdict(index, action.Category, target, profile.Strictness, planID,
			"action could not be classified")
	}

	verdict, ok := profile.ActionPolicyMap[action.Category]
	if !ok {
		// Absent from the policy map behaves identically to UNKNOWN.
		return unknownVerdict(index, action.Category, target, profile.Strictness, planID,
			"category not present in action_policy_map")
	}

	switch verdict {
	case types.Allow:
		return types.StepVerdict{StepIndex: index, Verdict: types.Allow, Category: action.Category, Target: target, Description: "allowed by policy"}, nil
	case types.Escalate:
		return types.StepVerdict{StepIndex: index, Verdict: types.Escalate, Category: action.Category, Target: target, Description: "requires human approval"}, nil
	default: // types.Block
		desc := fmt.Sprintf("category %s mapped to BLOCK by policy", action.Category)
		return types.StepVerdict{
				StepIndex: index, Verdict: types.Block, Category: action.Category,
				Target: target, Code: types.V005PolicyBlock, Description: desc,
			}, &types.ViolationRecord{
				Code: types.V005PolicyBlock, Description: desc, PlanID: planID,
			}
	}
}

// unknownVerdict resolves a step the validator could not confidently
// classify under a policy verdict. Per the default (A/B) posture this
// always escalates — the validator is a conservative filter, never a
// silent allow. Strictness C (paranoid) is stricter still: it rejects the
// step outright rather than waiting on a human, per the glossary's
// "reject on any UNKNOWN" rule.
func unknownVerdict(index int, category types.ActionCategory, target string, strictness types.Strictness, planID, reason string) (types.StepVerdict, *types.ViolationRecord) {
	if strictness == types.StrictnessParanoid {
		desc := fmt.Sprintf("%s; rejected outright under paranoid strictness", reason)
		return types.StepVerdict{
				StepIndex: index, Verdict: types.Block, Category: category,
				Target: target, Code: types.V005PolicyBlock, Description: desc,
			}, &types.ViolationRecord{
				Code: types.V005PolicyBlock, Description: desc, PlanID: planID,
			}
	}
	return types.StepVerdict{
		StepIndex: index, Verdict: types.Escalate, Category: category,
		Target: target, Description: reason + "; escalating conservatively",
	}, nil
}

func isWrite(c types.ActionCategory) bool {
	return c == types.FileWrite || c == types.FileDelete || c == types.CodeEdit
}

// matchedDenyTarget reports whether any deny-list pattern matches the
// extracted target (glob-style, as matchesAny) or appears verbatim
// somewhere in the step's raw description (substring, case-insensitive).
// The raw-description scan applies only to command patterns — entries
// containing whitespace, like "rm -rf", which are commands to catch in
// running text. Path patterns stay target-only: a step that merely
// mentions a denied path while writing somewhere else must resolve on its
// actual target, not the mention. It returns the pattern's own text as
// the reported target when the match came from the raw-description scan,
// since in that case the extracted target never held the denied string at
// all.
func matchedDenyTarget(patterns []string, target, description string) (string, bool) {
	if matchesAny(patterns, target) {
		return target, true
	}
	lowerDesc := strings.ToLower(description)
	for _, p := range patterns {
		if p == "" || strings.Contains(p, "*") || !strings.ContainsAny(p, " \t") {
			continue
		}
		if strings.Contains(lowerDesc, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// matchesAny reports whether target matches any glob-style pattern in
// patterns. "*" matches any run of characters; a pattern without "*"
// matches by equality or by filepath.Match.
func matchesAny(patterns []string, target string) bool {
	for _, p := range patterns {
		if matchGlob(p, target) {
			return true
		}
	}
	return false
}

// matchGlob splits pattern on "*" and checks prefix/middle-segment order/
// suffix containment, so patterns like "/etc/*" or "*shadow*" work
// without pulling in a full glob engine.
func matchGlob(pattern, text string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == text || matchesPathGlob(pattern, text)
	}
	parts := strings.Split(pattern, "*")

	if parts[0] != "" && !strings.HasPrefix(text, parts[0]) {
		return false
	}
	remaining := text
	if parts[0] != "" {
		remaining = remaining[len(parts[0]):]
	}
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		idx := strings.Index(remaining, parts[i])
		if idx < 0 {
			return false
		}
		remaining = remaining[idx+len(parts[i]):]
	}
	return true
}

func matchesPathGlob(pattern, text string) bool {
	ok, err := filepath.Match(pattern, text)
	return err == nil && ok
}

// scanForBypass looks for any of indicators (case-insensitive substring
// match) in the plan task text or any step description. The indicator
// set is data carried on the profile, not hardcoded, so it is part of the
// hashed constraint surface.
func scanForBypass(plan types.Plan, indicators []string) (string, bool) {
	haystacks := []string{strings.ToLower(plan.Task)}
	for _, s := range plan.Steps {
		haystacks = append(haystacks, strings.ToLower(s.Description))
	}
	for _, indicator := range indicators {
		needle := strings.ToLower(indicator)
		if needle == "" {
			continue
		}
		for _, h := range haystacks {
			if strings.Contains(h, needle) {
				return indicator, true
			}
		}
	}
	return "", false
}

func rationale(outcome types.Outcome, steps []types.StepVerdict) string {
	switch outcome {
	case types.Approved:
		return fmt.Sprintf("all %d step(s) approved", len(steps))
	case types.OutcomeEscalate:
		return "one or more steps require human approval"
	default:
		return "one or more steps blocked"
	}
}
