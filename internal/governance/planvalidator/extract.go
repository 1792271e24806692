/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package planvalidator

import (
	"strings"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// verbRule pairs a set of imperative verbs/phrases with the category they
// resolve to. Order matters: earlier rules are checked first, so more
// specific verbs (e.g. "delete") are listed ahead of more general ones.
type verbRule struct {
	category types.ActionCategory
	verbs    []string
}

var verbRules = []verbRule{
	{types.ShellExec, []string{"run ", "execute ", "sh -c", "bash -c", "shell"}},
	{types.FileDelete, []string{"delete ", "remove ", "rm ", "unlink "}},
	{types.FileWrite, []string{"write ", "create ", "save ", "append "}},
	{types.CodeEdit, []string{"edit ", "modify ", "refactor ", "patch ", "change "}},
	{types.FileRead, []string{"read ", "view ", "open ", "cat ", "inspect ", "list "}},
	{types.NetworkRequest, []string{"fetch ", "curl ", "http", "download ", "request "}},
	{types.ToolUse, []string{"call ", "invoke ", "use tool"}},
}

// pathLikePrefixes marks the tokens extractTarget treats as path-like
// when the description has no quoted token.
var pathLikePrefixes = []string{"/", "./", "../", "~/"}

// extractAction is the deterministic, rule-based free-text extractor.
// It is intentionally not exhaustive: anything it cannot confidently
// classify becomes UNKNOWN, which always escalates per §4.3.
func extractAction(description string) types.ExtractedAction {
	lower := strings.ToLower(description)

	category := types.Unknown
	for _, rule := range verbRules {
		for _, verb := range rule.verbs {
			if strings.Contains(lower, verb) {
				category = rule.category
				break
			}
		}
		if category != types.Unknown {
			break
		}
	}

	return types.ExtractedAction{
		Category: category,
		Target:   extractTarget(description),
	}
}

// extractTarget picks the most path-like or quoted token in the
// description as the action's target; falls back to the last word.
func extractTarget(description string) string {
	fields := strings.Fields(description)

	// Prefer a quoted token, e.g. step text that quotes a literal path.
	if start := strings.IndexAny(description, "\"'"); start >= 0 {
		quote := description[start]
		if end := strings.IndexByte(description[start+1:], quote); end >= 0 {
			return description[start+1 : start+1+end]
		}
	}

	for _, f := range fields {
		for _, prefix := range pathLikePrefixes {
			if strings.HasPrefix(f, prefix) {
				return strings.Trim(f, ".,;:")
			}
		}
	}

	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], ".,;:")
}
