/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package riskscore computes a deterministic, explainable severity score
// for a plan's ESCALATE/BLOCK steps, independent of the verdict itself.
// PlanValidator's verdict answers "is this allowed"; riskscore answers
// "how much should a human reviewing the escalation worry", so an
// approval queue can be sorted without re-deriving that judgment per
// reviewer.
package riskscore

import (
	"math"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// Level is the human-facing risk band.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Assessment is the computed score for one plan.
type Assessment struct {
	Level         Level
	Score         float64
	StepCount     int
	WriteStepCount int
	CrossCategory bool
	Reasons       []string
}

// Assess scores a validation result's steps by verdict severity, write
// concentration, and category diversity. It never changes the verdict —
// it only ranks how much attention an ESCALATE or BLOCK deserves.
func Assess(result types.ValidationResult) Assessment {
	var score float64
	var reasons []string
	writeSteps := 0
	categories := map[types.ActionCategory]struct{}{}

	for _, step := range result.Steps {
		score += verdictWeight(step.Verdict)
		categories[step.Category] = struct{}{}
		if isWriteCategory(step.Category) {
			writeSteps++
		}
	}

	if writeSteps > 0 {
		reasons = append(reasons, "write_steps_present")
		score += math.Min(0.25, float64(writeSteps)*0.08)
	}

	crossCategory := len(categories) > 1
	if crossCategory {
		reasons = append(reasons, "multi_category_plan")
		score += 0.10
	}

	for _, v := range result.Violations {
		reasons = append(reasons, string(v.Code))
		score += violationWeight(v.Code)
	}

	score = clamp(score, 0, 1)

	return Assessment{
		Level:          levelFromScore(score),
		Score:          score,
		StepCount:      len(result.Steps),
		WriteStepCount: writeSteps,
		CrossCategory:  crossCategory,
		Reasons:        reasons,
	}
}

func verdictWeight(v types.Verdict) float64 {
	switch v {
	case types.Allow:
		return 0.02
	case types.Escalate:
		return 0.20
	case types.Block:
		return 0.35
	default:
		return 0.35
	}
}

func violationWeight(code types.ViolationCode) float64 {
	switch code {
	case types.V001PersonaLockViolation:
		return 0.40
	case types.V004BypassAttempt:
		return 0.35
	case types.V002DeniedTarget, types.V003SandboxEscape:
		return 0.25
	case types.V005PolicyBlock, types.V006UnapprovedAction:
		return 0.15
	default:
		return 0.15
	}
}

func isWriteCategory(c types.ActionCategory) bool {
	switch c {
	case types.FileWrite, types.FileDelete, types.CodeEdit:
		return true
	default:
		return false
	}
}

func levelFromScore(score float64) Level {
	switch {
	case score >= 0.80:
		return LevelCritical
	case score >= 0.55:
		return LevelHigh
	case score >= 0.25:
		return LevelMedium
	default:
		return LevelLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
