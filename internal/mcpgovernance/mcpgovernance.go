/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package mcpgovernance exposes a GovernedAgent's operations as MCP tools,
// so an MCP-speaking client can submit tasks, inspect violations, and check
// persona integrity over the Model Context Protocol. The facade never bypasses
// the kernel: every tool call goes through agent.ExecuteTask or a read-only
// accessor, so a client driving the agent over MCP is bound by exactly the
// same constraint profile as one calling the Go API directly.
package mcpgovernance

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/legator/governance-kernel/internal/agent"
)

// Version is injected from the demo binary's build metadata.
var Version = "dev"

// Server exposes a GovernedAgent's operations as MCP tools.
type Server struct {
	server  *mcp.Server
	handler http.Handler
	agent   *agent.GovernedAgent
	log     logr.Logger
}

// New builds an MCP facade around an already-created governed agent.
func New(governed *agent.GovernedAgent, log logr.Logger) *Server {
	impl := &mcp.Implementation{Name: "legator-governance", Version: Version}
	srv := mcp.NewServer(impl, nil)

	s := &Server{server: srv, agent: governed, log: log}
	s.registerTools()
	s.handler = mcp.NewSSEHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
	return s
}

// Handler returns the HTTP handler the demo binary mounts for MCP clients.
func (s *Server) Handler() http.Handler {
	return s.handler
}

type executeTaskInput struct {
	Task string `json:"task" jsonschema:"the task text to submit to the governed agent"`
}

type executeTaskOutput struct {
	Status         string   `json:"status"`
	PlanID         string   `json:"plan_id"`
	PersonaID      string   `json:"persona_id"`
	ConstraintHash string   `json:"constraint_hash"`
	Rationale      string   `json:"rationale"`
	Results        []string `json:"results"`
	Violations     []string `json:"violations"`
}

type noInput struct{}

type violationsOutput struct {
	Count      int      `json:"count"`
	Codes      []string `json:"codes"`
	Violations []string `json:"descriptions"`
}

type integrityOutput struct {
	PersonaID string `json:"persona_id"`
	Intact    bool   `json:"intact"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "legator_execute_task",
		Description: "Submit a task to the governed agent; every step is validated and proxied through the constraint profile before execution",
	}, s.handleExecuteTask)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "legator_list_violations",
		Description: "List violations recorded so far for this agent's persona",
	}, s.handleListViolations)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "legator_verify_integrity",
		Description: "Verify the agent's persona identity hash has not been tampered with since it was sealed",
	}, s.handleVerifyIntegrity)
}

func (s *Server) handleExecuteTask(ctx context.Context, _ *mcp.CallToolRequest, input executeTaskInput) (*mcp.CallToolResult, executeTaskOutput, error) {
	result := s.agent.ExecuteTask(ctx, input.Task)

	out := executeTaskOutput{
		Status:         string(result.Status),
		PlanID:         result.PlanID,
		PersonaID:      result.PersonaID,
		ConstraintHash: result.ConstraintHash,
		Rationale:      result.Rationale,
	}
	for _, r := range result.Results {
		out.Results = append(out.Results, fmt.Sprintf("%s: %s", r.Decision, r.Output))
	}
	for _, v := range result.Violations {
		out.Violations = append(out.Violations, string(v.Code))
	}
	return nil, out, nil
}

func (s *Server) handleListViolations(_ context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, violationsOutput, error) {
	violations := s.agent.GetViolations()
	out := violationsOutput{Count: len(violations)}
	for _, v := range violations {
		out.Codes = append(out.Codes, string(v.Code))
		out.Violations = append(out.Violations, v.Description)
	}
	return nil, out, nil
}

func (s *Server) handleVerifyIntegrity(_ context.Context, _ *mcp.CallToolRequest, _ noInput) (*mcp.CallToolResult, integrityOutput, error) {
	return nil, integrityOutput{
		PersonaID: s.agent.PersonaID(),
		Intact:    s.agent.VerifyPersonaIntegrity(),
	}, nil
}
