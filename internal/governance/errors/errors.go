/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package errors defines the governance kernel's typed error taxonomy.
// Structural failures (this package) are distinct from governance
// decisions (block/escalate), which are never errors — they are data
// carried on ValidationResult and ActionResult.
package errors

import "fmt"

// ProfileNotFoundError is returned when ConstraintLoader cannot locate the
// named profile file in the governance directory.
type ProfileNotFoundError struct {
	Name string
	Dir  string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found in %q", e.Name, e.Dir)
}

// ProfileValidationError is returned for a malformed profile: unknown
// top-level field, unknown action category, or a verdict outside
// {ALLOW, ESCALATE, BLOCK}.
type ProfileValidationError struct {
	Profile string
	Reason  string
}

func (e *ProfileValidationError) Error() string {
	return fmt.Sprintf("profile %q invalid: %s", e.Profile, e.Reason)
}

// InheritanceError is returned for a cyclic parent chain or a missing
// parent profile.
type InheritanceError struct {
	Chain  []string
	Reason string
}

func (e *InheritanceError) Error() string {
	return fmt.Sprintf("inheritance error (%s): %v", e.Reason, e.Chain)
}

// ProfileConflictError is returned when the post-merge profile violates an
// invariant, e.g. a category resolving to two verdicts.
type ProfileConflictError struct {
	Profile string
	Reason  string
}

func (e *ProfileConflictError) Error() string {
	return fmt.Sprintf("profile %q conflict: %s", e.Profile, e.Reason)
}

// PersonaLockViolation is raised by any code path that attempts to mutate
// a sealed Persona (see personalock.MutationAttemptError). A failed
// VerifyIntegrity check returns false rather than this error. It always
// corresponds to violation code V001.
type PersonaLockViolation struct {
	AgentID string
	Reason  string
}

func (e *PersonaLockViolation) Error() string {
	return fmt.Sprintf("persona lock violation for %q: %s", e.AgentID, e.Reason)
}

// CapabilityError is returned by PersonaLock.Seal when a requested
// capability is not permitted for the agent type.
type CapabilityError struct {
	AgentType  string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability %q not permitted for agent type %q", e.Capability, e.AgentType)
}
