/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package constraintloader parses and validates constraint profiles
// (governance matrices), resolves profile inheritance, and computes an
// integrity hash over the canonicalized, fully-merged profile. Profiles
// are plain YAML files under a governance directory, one file per
// profile, named <profile_name>.yaml.
package constraintloader

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	governanceerrors "github.com/legator/governance-kernel/internal/governance/errors"
	"github.com/legator/governance-kernel/internal/governance/types"
)

// rawProfile mirrors the on-disk YAML shape. yaml.v3 decoding into a
// struct with no matching field for an unrecognized key does not error by
// default, so unknown-field rejection is done via an intermediate
// map-based pass in parseFile.
type rawProfile struct {
	Name             string                       `yaml:"name"`
	Parent           string                       `yaml:"parent"`
	Strictness       string                       `yaml:"strictness"`
	ActionPolicyMap  map[string]string            `yaml:"action_policy_map"`
	DenyList         []string                     `yaml:"deny_list"`
	AllowList        []string                     `yaml:"allow_list"`
	BypassIndicators []string                     `yaml:"bypass_indicators"`
}

var allowedTopLevelFields = map[string]struct{}{
	"name": {}, "parent": {}, "strictness": {}, "action_policy_map": {},
	"deny_list": {}, "allow_list": {}, "bypass_indicators": {},
}

// ConstraintProfile is the structured governance matrix after parsing a
// single file, before inheritance resolution.
type ConstraintProfile struct {
	Name             string
	Parent           string
	Strictness       types.Strictness
	ActionPolicyMap  map[types.ActionCategory]types.Verdict
	DenyList         []string
	AllowList        []string
	BypassIndicators []string
}

// LoadedProfile is the result of Load: the resolved profile plus the
// constraint_hash, the binding token used everywhere downstream.
type LoadedProfile struct {
	Profile        ConstraintProfile
	ConstraintHash string
}

// Load locates profile_name.yaml in dir, parses it, recursively resolves
// inheritance via parent fields, merges with child-overrides-parent
// semantics, validates the result, and computes the constraint hash.
func Load(profileName, dir string) (*LoadedProfile, error) {
	merged, err := loadChain(profileName, dir, map[string]struct{}{})
	if err != nil {
		return nil, err
	}
	if merged.Strictness == "" {
		merged.Strictness = types.StrictnessEnforced
	}
	if err := validateMerged(merged); err != nil {
		return nil, err
	}
	hash, err := canonicalHash(merged)
	if err != nil {
		return nil, fmt.Errorf("compute constraint hash: %w", err)
	}
	return &LoadedProfile{Profile: *merged, ConstraintHash: hash}, nil
}

// Verify recomputes the hash of profile and compares it in constant time
// against expectedHash.
func Verify(profile ConstraintProfile, expectedHash string) bool {
	actual, err := canonicalHash(&profile)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedHash)) == 1
}

// loadChain walks the parent chain depth-first, detecting cycles via the
// visiting set, and merges from root ancestor down to profileName so that
// child entries override parent entries.
func loadChain(profileName, dir string, visiting map[string]struct{}) (*ConstraintProfile, error) {
	if _, seen := visiting[profileName]; seen {
		chain := make([]string, 0, len(visiting)+1)
		for k := range visiting {
			chain = append(chain, k)
		}
		chain = append(chain, profileName)
		sort.Strings(chain)
		return nil, &governanceerrors.InheritanceError{Chain: chain, Reason: "cyclic parent chain"}
	}
	visiting[profileName] = struct{}{}

	raw, err := parseFile(profileName, dir)
	if err != nil {
		return nil, err
	}

	current, err := toConstraintProfile(raw)
	if err != nil {
		return nil, err
	}

	if current.Parent == "" {
		return current, nil
	}

	parent, err := loadChain(current.Parent, dir, visiting)
	if err != nil {
		var notFound *governanceerrors.ProfileNotFoundError
		if isProfileNotFound(err, &notFound) {
			return nil, &governanceerrors.InheritanceError{
				Chain:  []string{profileName, current.Parent},
				Reason: "missing parent " + current.Parent,
			}
		}
		return nil, err
	}

	return mergeProfiles(parent, current), nil
}

func isProfileNotFound(err error, target **governanceerrors.ProfileNotFoundError) bool {
	if e, ok := err.(*governanceerrors.ProfileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}

func parseFile(profileName, dir string) (*rawProfile, error) {
	path := filepath.Join(dir, profileName+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &governanceerrors.ProfileNotFoundError{Name: profileName, Dir: dir}
		}
		return nil, fmt.Errorf("read profile %q: %w", profileName, err)
	}

	// Strict unknown-field check: decode into a generic map first.
	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, &governanceerrors.ProfileValidationError{Profile: profileName, Reason: "malformed YAML: " + err.Error()}
	}
	for k := range generic {
		if _, ok := allowedTopLevelFields[k]; !ok {
			return nil, &governanceerrors.ProfileValidationError{Profile: profileName, Reason: "unknown top-level field " + k}
		}
	}

	var raw rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &governanceerrors.ProfileValidationError{Profile: profileName, Reason: "malformed YAML: " + err.Error()}
	}
	if raw.Name == "" {
		raw.Name = profileName
	}
	return &raw, nil
}

func toConstraintProfile(raw *rawProfile) (*ConstraintProfile, error) {
	// An absent strictness stays empty here so mergeProfiles can tell
	// "child didn't set one" apart from "child chose B"; Load applies the
	// B default only after the whole chain has merged.
	strictness := types.Strictness(raw.Strictness)
	if strictness != "" && strictness != types.StrictnessAdvisory && strictness != types.StrictnessEnforced && strictness != types.StrictnessParanoid {
		return nil, &governanceerrors.ProfileValidationError{Profile: raw.Name, Reason: "strictness must be A, B, or C"}
	}

	validCats := map[types.ActionCategory]struct{}{}
	for _, c := range types.ValidCategories() {
		validCats[c] = struct{}{}
	}

	policyMap := make(map[types.ActionCategory]types.Verdict, len(raw.ActionPolicyMap))
	for cat, verdict := range raw.ActionPolicyMap {
		category := types.ActionCategory(strings.ToUpper(cat))
		if _, ok := validCats[category]; !ok {
			return nil, &governanceerrors.ProfileValidationError{Profile: raw.Name, Reason: "unknown action category " + cat}
		}
		v := types.Verdict(strings.ToUpper(verdict))
		if v != types.Allow && v != types.Escalate && v != types.Block {
			return nil, &governanceerrors.ProfileValidationError{Profile: raw.Name, Reason: "verdict for " + cat + " must be ALLOW, ESCALATE, or BLOCK"}
		}
		policyMap[category] = v
	}

	return &ConstraintProfile{
		Name:             raw.Name,
		Parent:           raw.Parent,
		Strictness:       strictness,
		ActionPolicyMap:  policyMap,
		DenyList:         append([]string{}, raw.DenyList...),
		AllowList:        append([]string{}, raw.AllowList...),
		BypassIndicators: append([]string{}, raw.BypassIndicators...),
	}, nil
}

// mergeProfiles merges parent into child: child action_policy_map entries
// override parent entries for the same category; deny lists are unioned;
// the allow list fully replaces the parent's if the child specified one,
// otherwise inherits; strictness takes the child's value if the child
// file set one, otherwise the parent's.
func mergeProfiles(parent, child *ConstraintProfile) *ConstraintProfile {
	merged := &ConstraintProfile{
		Name:       child.Name,
		Parent:     child.Parent,
		Strictness: child.Strictness,
	}
	if merged.Strictness == "" {
		merged.Strictness = parent.Strictness
	}

	merged.ActionPolicyMap = make(map[types.ActionCategory]types.Verdict, len(parent.ActionPolicyMap)+len(child.ActionPolicyMap))
	for k, v := range parent.ActionPolicyMap {
		merged.ActionPolicyMap[k] = v
	}
	for k, v := range child.ActionPolicyMap {
		merged.ActionPolicyMap[k] = v
	}

	denySet := map[string]struct{}{}
	var deny []string
	for _, d := range parent.DenyList {
		if _, ok := denySet[d]; !ok {
			denySet[d] = struct{}{}
			deny = append(deny, d)
		}
	}
	for _, d := range child.DenyList {
		if _, ok := denySet[d]; !ok {
			denySet[d] = struct{}{}
			deny = append(deny, d)
		}
	}
	merged.DenyList = deny

	if len(child.AllowList) > 0 {
		merged.AllowList = child.AllowList
	} else {
		merged.AllowList = parent.AllowList
	}

	bypassSet := map[string]struct{}{}
	var bypass []string
	for _, b := range parent.BypassIndicators {
		if _, ok := bypassSet[b]; !ok {
			bypassSet[b] = struct{}{}
			bypass = append(bypass, b)
		}
	}
	for _, b := range child.BypassIndicators {
		if _, ok := bypassSet[b]; !ok {
			bypassSet[b] = struct{}{}
			bypass = append(bypass, b)
		}
	}
	merged.BypassIndicators = bypass

	return merged
}

func validateMerged(p *ConstraintProfile) error {
	// With a single map keyed by category, two verdicts for the same
	// category cannot coexist structurally; this check exists for
	// forward-compatibility with a list-based merge representation and
	// documents the invariant explicitly.
	seen := map[types.ActionCategory]types.Verdict{}
	for cat, v := range p.ActionPolicyMap {
		if existing, ok := seen[cat]; ok && existing != v {
			return &governanceerrors.ProfileConflictError{Profile: p.Name, Reason: fmt.Sprintf("category %s mapped to both %s and %s", cat, existing, v)}
		}
		seen[cat] = v
	}
	return nil
}

// canonicalHash computes the 256-bit digest over the canonical
// serialization of the merged profile: sorted keys, normalized
// whitespace, fixed field order. Equal profiles yield equal hashes;
// unequal profiles yield unequal hashes with overwhelming probability.
func canonicalHash(p *ConstraintProfile) (string, error) {
	canonical := Canonicalize(p)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize produces the exact byte form fed to the hash. The output
// is deterministic and independent of map iteration order. It is a
// one-way form: no function in this package parses it back into a
// ConstraintProfile, so reloading a profile from canonical text is not
// supported.
func Canonicalize(p *ConstraintProfile) string {
	var b strings.Builder
	b.WriteString("name=")
	b.WriteString(p.Name)
	b.WriteString("\nstrictness=")
	b.WriteString(string(p.Strictness))

	cats := make([]string, 0, len(p.ActionPolicyMap))
	for c := range p.ActionPolicyMap {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	b.WriteString("\naction_policy_map=")
	for i, c := range cats {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(c)
		b.WriteString(":")
		b.WriteString(string(p.ActionPolicyMap[types.ActionCategory(c)]))
	}

	deny := append([]string{}, p.DenyList...)
	sort.Strings(deny)
	b.WriteString("\ndeny_list=")
	b.WriteString(strings.Join(deny, ","))

	allow := append([]string{}, p.AllowList...)
	sort.Strings(allow)
	b.WriteString("\nallow_list=")
	b.WriteString(strings.Join(allow, ","))

	bypass := append([]string{}, p.BypassIndicators...)
	sort.Strings(bypass)
	b.WriteString("\nbypass_indicators=")
	b.WriteString(strings.Join(bypass, ","))

	return b.String()
}
