/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package personalock enforces that an agent's identity is immutable from
// the moment of sealing. A sealed PersonaContext exposes only read-only
// accessors and no setter surface — the builder is consumed by Seal and
// cannot be reused to mutate the result afterward.
package personalock

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	governanceerrors "github.com/legator/governance-kernel/internal/governance/errors"
	"github.com/legator/governance-kernel/internal/governance/types"
)

// PersonaContext is a sealed, immutable identity record. There is no
// exported setter of any kind: every field is read through an accessor
// method, and the struct's fields are unexported so that no package
// outside personalock — not even reflection-friendly helper code — has a
// normal field-assignment path to it.
type PersonaContext struct {
	agentID      string
	agentType    types.AgentType
	capabilities []string
	createdAt    time.Time
	identityHash string
}

// AgentID returns the sealed agent id.
func (p *PersonaContext) AgentID() string { return p.agentID }

// AgentType returns the sealed agent type.
func (p *PersonaContext) AgentType() types.AgentType { return p.agentType }

// Capabilities returns a defensive copy of the sealed capability set.
func (p *PersonaContext) Capabilities() []string {
	out := make([]string, len(p.capabilities))
	copy(out, p.capabilities)
	return out
}

// CreatedAt returns the sealing timestamp.
func (p *PersonaContext) CreatedAt() time.Time { return p.createdAt }

// IdentityHash returns the digest computed at seal time.
func (p *PersonaContext) IdentityHash() string { return p.identityHash }

// Seal validates that capabilities are a subset of those permitted for
// agentType per the static AGENT_CAPABILITIES table, computes the
// identity hash over the canonical serialization of (agentID, agentType,
// capabilities, createdAt), and returns a sealed persona. There is no
// path back to a mutable form.
func Seal(agentID string, agentType types.AgentType, capabilities []string) (*PersonaContext, error) {
	permitted, ok := types.AgentCapabilities[agentType]
	if !ok {
		return nil, &governanceerrors.CapabilityError{AgentType: string(agentType), Capability: "(unknown agent type)"}
	}
	permittedSet := make(map[string]struct{}, len(permitted))
	for _, c := range permitted {
		permittedSet[c] = struct{}{}
	}
	for _, c := range capabilities {
		if _, ok := permittedSet[c]; !ok {
			return nil, &governanceerrors.CapabilityError{AgentType: string(agentType), Capability: c}
		}
	}

	caps := make([]string, len(capabilities))
	copy(caps, capabilities)
	createdAt := time.Now().UTC()

	p := &PersonaContext{
		agentID:      agentID,
		agentType:    agentType,
		capabilities: caps,
		createdAt:    createdAt,
	}
	p.identityHash = computeIdentityHash(agentID, agentType, caps, createdAt)
	return p, nil
}

// VerifyIntegrity recomputes the identity hash from the persona's live
// fields and compares it in constant time against the hash recorded at
// seal time. A mismatch means some field was mutated out of band (e.g.
// via unsafe pointer manipulation in the host process) — the only way
// this kernel can detect such tampering, since Go offers no runtime
// attribute interception the way the original dynamic-language
// implementation does.
func VerifyIntegrity(p *PersonaContext) bool {
	if p == nil {
		return false
	}
	recomputed := computeIdentityHash(p.agentID, p.agentType, p.capabilities, p.createdAt)
	return subtle.ConstantTimeCompare([]byte(recomputed), []byte(p.identityHash)) == 1
}

// computeIdentityHash is the canonical serialization: fixed field order,
// sorted capability list, RFC3339Nano timestamp formatting. Equal inputs
// always yield equal hashes.
func computeIdentityHash(agentID string, agentType types.AgentType, capabilities []string, createdAt time.Time) string {
	sorted := make([]string, len(capabilities))
	copy(sorted, capabilities)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString("agent_id=")
	b.WriteString(agentID)
	b.WriteString("\nagent_type=")
	b.WriteString(string(agentType))
	b.WriteString("\ncapabilities=")
	b.WriteString(strings.Join(sorted, ","))
	b.WriteString("\ncreated_at=")
	b.WriteString(createdAt.Format(time.RFC3339Nano))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// MutationAttemptError is the error every would-be mutator of a sealed
// persona must return; it always corresponds to violation code V001.
func MutationAttemptError(agentID, field string) error {
	return &governanceerrors.PersonaLockViolation{
		AgentID: agentID,
		Reason:  fmt.Sprintf("attempted mutation of sealed field %q", field),
	}
}
