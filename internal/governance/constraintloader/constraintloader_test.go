/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package constraintloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	governanceerrors "github.com/legator/governance-kernel/internal/governance/errors"
	"github.com/legator/governance-kernel/internal/governance/types"
)

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write profile %s: %v", name, err)
	}
}

func TestLoadSimpleProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", `
name: base
strictness: B
action_policy_map:
  FILE_READ: ALLOW
  FILE_WRITE: ESCALATE
deny_list:
  - /etc/shadow
allow_list:
  - "./**"
`)

	loaded, err := Load("base", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Profile.ActionPolicyMap[types.FileRead] != types.Allow {
		t.Errorf("FILE_READ = %v, want ALLOW", loaded.Profile.ActionPolicyMap[types.FileRead])
	}
	if loaded.ConstraintHash == "" {
		t.Error("expected a non-empty constraint hash")
	}
}

func TestLoadProfileNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Load("missing", dir)
	var notFound *governanceerrors.ProfileNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ProfileNotFoundError, got %v (%T)", err, err)
	}
}

func TestLoadUnknownTopLevelFieldRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", `
name: bad
strictness: B
action_policy_map:
  FILE_READ: ALLOW
totally_unknown_field: true
`)
	_, err := Load("bad", dir)
	var verr *governanceerrors.ProfileValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ProfileValidationError, got %v (%T)", err, err)
	}
}

func TestLoadUnknownCategoryRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", `
name: bad
action_policy_map:
  NOT_A_CATEGORY: ALLOW
`)
	_, err := Load("bad", dir)
	var verr *governanceerrors.ProfileValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ProfileValidationError, got %v (%T)", err, err)
	}
}

func TestLoadBadVerdictRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", `
name: bad
action_policy_map:
  FILE_READ: MAYBE
`)
	_, err := Load("bad", dir)
	var verr *governanceerrors.ProfileValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ProfileValidationError, got %v (%T)", err, err)
	}
}

func TestLoadBadStrictnessRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "bad", `
name: bad
strictness: Z
`)
	_, err := Load("bad", dir)
	var verr *governanceerrors.ProfileValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ProfileValidationError, got %v (%T)", err, err)
	}
}

func TestInheritanceChildOverridesParent(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", `
name: base
strictness: B
action_policy_map:
  FILE_READ: ALLOW
  SHELL_EXEC: ESCALATE
deny_list:
  - /etc/shadow
allow_list:
  - "./**"
`)
	writeProfile(t, dir, "child", `
name: child
parent: base
action_policy_map:
  SHELL_EXEC: BLOCK
deny_list:
  - "**/.env"
`)

	loaded, err := Load("child", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Profile.ActionPolicyMap[types.ShellExec] != types.Block {
		t.Errorf("SHELL_EXEC = %v, want BLOCK (child override)", loaded.Profile.ActionPolicyMap[types.ShellExec])
	}
	if loaded.Profile.ActionPolicyMap[types.FileRead] != types.Allow {
		t.Errorf("FILE_READ = %v, want ALLOW (inherited)", loaded.Profile.ActionPolicyMap[types.FileRead])
	}

	denySet := map[string]bool{}
	for _, d := range loaded.Profile.DenyList {
		denySet[d] = true
	}
	if !denySet["/etc/shadow"] || !denySet["**/.env"] {
		t.Errorf("expected deny list union, got %v", loaded.Profile.DenyList)
	}

	if len(loaded.Profile.AllowList) != 1 || loaded.Profile.AllowList[0] != "./**" {
		t.Errorf("expected inherited allow list, got %v", loaded.Profile.AllowList)
	}
}

func TestInheritanceAllowListChildReplaces(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", `
name: base
allow_list:
  - "./**"
`)
	writeProfile(t, dir, "child", `
name: child
parent: base
allow_list:
  - "./src/**"
`)

	loaded, err := Load("child", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded.Profile.AllowList) != 1 || loaded.Profile.AllowList[0] != "./src/**" {
		t.Errorf("expected child's allow list to fully replace parent's, got %v", loaded.Profile.AllowList)
	}
}

func TestInheritanceStrictnessInheritedWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", `
name: base
strictness: C
`)
	writeProfile(t, dir, "child", `
name: child
parent: base
`)

	loaded, err := Load("child", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Profile.Strictness != types.StrictnessParanoid {
		t.Errorf("strictness = %v, want inherited C", loaded.Profile.Strictness)
	}
}

func TestCyclicInheritanceRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a", `
name: a
parent: b
`)
	writeProfile(t, dir, "b", `
name: b
parent: a
`)

	_, err := Load("a", dir)
	var inhErr *governanceerrors.InheritanceError
	if !errors.As(err, &inhErr) {
		t.Fatalf("expected InheritanceError, got %v (%T)", err, err)
	}
}

func TestMissingParentRejected(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "child", `
name: child
parent: ghost
`)
	_, err := Load("child", dir)
	var inhErr *governanceerrors.InheritanceError
	if !errors.As(err, &inhErr) {
		t.Fatalf("expected InheritanceError, got %v (%T)", err, err)
	}
}

func TestConstraintHashDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", `
name: base
action_policy_map:
  FILE_READ: ALLOW
  FILE_WRITE: BLOCK
deny_list:
  - /etc/shadow
  - /etc/passwd
allow_list:
  - "./**"
`)

	first, err := Load("base", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Load("base", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ConstraintHash != second.ConstraintHash {
		t.Errorf("repeated loads produced different hashes: %s vs %s", first.ConstraintHash, second.ConstraintHash)
	}
}

func TestConstraintHashOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a", `
name: same
action_policy_map:
  FILE_READ: ALLOW
  FILE_WRITE: BLOCK
deny_list:
  - /etc/shadow
  - /etc/passwd
`)
	writeProfile(t, dir, "b", `
name: same
action_policy_map:
  FILE_WRITE: BLOCK
  FILE_READ: ALLOW
deny_list:
  - /etc/passwd
  - /etc/shadow
`)

	la, err := Load("a", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lb, err := Load("b", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if la.ConstraintHash != lb.ConstraintHash {
		t.Errorf("semantically equal profiles with reordered fields hashed differently: %s vs %s", la.ConstraintHash, lb.ConstraintHash)
	}
}

func TestConstraintHashChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "a", `
name: a
action_policy_map:
  FILE_READ: ALLOW
`)
	writeProfile(t, dir, "b", `
name: b
action_policy_map:
  FILE_READ: ESCALATE
`)

	la, _ := Load("a", dir)
	lb, _ := Load("b", dir)
	if la.ConstraintHash == lb.ConstraintHash {
		t.Error("different profiles should not hash identically")
	}
}

func TestCanonicalizeDeterministic(t *testing.T) {
	p := &ConstraintProfile{
		Name:       "x",
		Strictness: types.StrictnessEnforced,
		ActionPolicyMap: map[types.ActionCategory]types.Verdict{
			types.FileRead: types.Allow,
		},
		DenyList:  []string{"/etc/shadow"},
		AllowList: []string{"./**"},
	}
	c1 := Canonicalize(p)
	c2 := Canonicalize(p)
	if c1 != c2 {
		t.Error("canonicalizing the same profile twice produced different output")
	}
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "base", `
name: base
action_policy_map:
  FILE_READ: ALLOW
`)
	loaded, err := Load("base", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Verify(loaded.Profile, loaded.ConstraintHash) {
		t.Error("Verify should succeed against the hash Load computed")
	}
	if Verify(loaded.Profile, "0000000000000000000000000000000000000000000000000000000000000000") {
		t.Error("Verify should fail against a wrong hash")
	}
}

func TestEmptyActionPolicyMapLoadsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "empty", `
name: empty
`)
	loaded, err := Load("empty", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded.Profile.ActionPolicyMap) != 0 {
		t.Fatalf("expected an empty policy map, got %v", loaded.Profile.ActionPolicyMap)
	}
}
