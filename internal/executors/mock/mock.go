/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package mock provides a deterministic REAL-mode stand-in executor,
// distinct from the proxy's built-in MOCK/DRY_RUN dispatch path (which
// never calls an injected executor at all). It is useful for exercising
// the REAL-mode code path in tests without performing real I/O: given the
// same ActionRequest it always returns the same canned response, so the
// idempotence property in spec.md §8 can be tested against REAL mode too.
package mock

import (
	"context"
	"fmt"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// Executor returns a canned response per category, recording every call
// it received for test assertions.
type Executor struct {
	Responses map[types.ActionCategory]string
	Calls     []types.ActionRequest
}

// New creates a recording executor with the given per-category canned
// responses. A category with no entry gets a generic deterministic
// response derived from the request.
func New(responses map[types.ActionCategory]string) *Executor {
	return &Executor{Responses: responses}
}

// Execute implements executionproxy.Executor.
func (e *Executor) Execute(_ context.Context, req types.ActionRequest) (string, error) {
	e.Calls = append(e.Calls, req)
	if resp, ok := e.Responses[req.Category]; ok {
		return resp, nil
	}
	return fmt.Sprintf("ok: %s %s", req.Category, req.Target), nil
}
