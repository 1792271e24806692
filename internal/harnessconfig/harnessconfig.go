/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package harnessconfig provides configuration loading for the demo
// harness and cmd/ binaries that exercise the governance kernel. The
// kernel itself takes no configuration of this kind — per spec.md §6, its
// constructors are parameter-passed only, with no environment variables
// and no singletons. Configuration sources, in priority order:
// env vars > config file > defaults.
package harnessconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// Config holds the demo harness's operator-facing settings.
type Config struct {
	// GovernanceDir is the directory containing profile YAML files.
	GovernanceDir string `json:"governance_dir"`

	// ViolationDir is the directory ViolationTracker appends its
	// violations_<YYYYMMDD>.log files to.
	ViolationDir string `json:"violation_dir"`

	// ViolationIndexPath is the sqlite file backing the queryable
	// violation index (empty disables it).
	ViolationIndexPath string `json:"violation_index_path,omitempty"`

	// AuditLogPath is the on-disk audit log the proxy flushes to on task
	// completion (empty disables it).
	AuditLogPath string `json:"audit_log_path,omitempty"`

	// ProfileName is the default profile the demo agent loads.
	ProfileName string `json:"profile_name"`

	// Mode selects REAL/MOCK/DRY_RUN execution.
	Mode types.ExecutionMode `json:"mode"`

	// MCPListenAddr is the address legator-mcp listens on when its
	// -listen flag is set to the empty string.
	MCPListenAddr string `json:"mcp_listen_addr,omitempty"`

	// OTLPEndpoint configures tracing export; empty disables tracing.
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`

	// LogLevel holds a log verbosity name (debug, info, warn, error). The
	// cmd/ binaries do not read it; they always log at zap's production
	// level.
	LogLevel string `json:"log_level"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		GovernanceDir: "governance",
		ViolationDir:  "./.violations",
		ProfileName:   "base",
		Mode:          types.ModeMock,
		LogLevel:      "info",
	}
}

// Load reads configuration from a file, then overlays environment
// variables. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("LEGATOR_GOVERNANCE_DIR"); v != "" {
		cfg.GovernanceDir = v
	}
	if v := os.Getenv("LEGATOR_VIOLATION_DIR"); v != "" {
		cfg.ViolationDir = v
	}
	if v := os.Getenv("LEGATOR_VIOLATION_INDEX_PATH"); v != "" {
		cfg.ViolationIndexPath = v
	}
	if v := os.Getenv("LEGATOR_AUDIT_LOG_PATH"); v != "" {
		cfg.AuditLogPath = v
	}
	if v := os.Getenv("LEGATOR_PROFILE_NAME"); v != "" {
		cfg.ProfileName = v
	}
	if v := os.Getenv("LEGATOR_MODE"); v != "" {
		cfg.Mode = types.ExecutionMode(v)
	}
	if v := os.Getenv("LEGATOR_MCP_LISTEN_ADDR"); v != "" {
		cfg.MCPListenAddr = v
	}
	if v := os.Getenv("LEGATOR_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("LEGATOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() Config {
	cfg, _ := Load("")
	return cfg
}

// Save writes configuration to a file.
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o640)
}
