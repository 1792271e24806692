/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package ssh is an example REAL-mode executor for SHELL_EXEC actions,
// plugging into executionproxy.Executor. It demonstrates that the
// proxy's injected-executor boundary is a real pluggable contract, not
// just a mock path. The governance verdict has already been decided by
// PlanValidator before this executor ever runs; the blocked-command and
// protected-path checks here are an independent defense-in-depth layer
// underneath that verdict, not a replacement for it.
package ssh

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/legator/governance-kernel/internal/governance/types"
)

const (
	maxOutputBytes = 8192
	defaultTimeout = 30 * time.Second
)

// Credential holds authentication details for one remote host.
type Credential struct {
	Host       string
	User       string
	PrivateKey []byte
	Password   string
}

// Executor dispatches SHELL_EXEC actions over SSH to hosts it holds
// credentials for. req.Target identifies the host; the command to run is
// taken from req.Payload["command"].
type Executor struct {
	credentials     map[string]*Credential
	protectedPaths  []string
	blockedCommands []string
	timeout         time.Duration
	connections     map[string]*ssh.Client
}

// New creates an SSH executor with the given per-host credentials.
func New(credentials map[string]*Credential) *Executor {
	return &Executor{
		credentials: credentials,
		protectedPaths: []string{
			"/etc/shadow", "/etc/gshadow", "/boot/", "/dev/", "/root/.ssh/",
		},
		blockedCommands: []string{"dd", "mkfs", "fdisk", "parted", "wipefs", "shred", "srm"},
		timeout:         defaultTimeout,
		connections:     make(map[string]*ssh.Client),
	}
}

// Execute implements executionproxy.Executor.
func (e *Executor) Execute(ctx context.Context, req types.ActionRequest) (string, error) {
	host := req.Target
	command := req.Payload["command"]
	if command == "" && req.ToolCall != nil {
		command = req.ToolCall.Arguments["command"]
	}
	if host == "" || command == "" {
		return "", fmt.Errorf("ssh executor: host and command are required")
	}

	if reason := e.blockedCommand(command); reason != "" {
		return "", fmt.Errorf("ssh executor: refusing to run: %s", reason)
	}
	if reason := e.protectedPathHit(command); reason != "" {
		return "", fmt.Errorf("ssh executor: refusing to run: %s", reason)
	}

	client, err := e.connection(host)
	if err != nil {
		return "", fmt.Errorf("ssh executor: connect to %s: %w", host, err)
	}

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh executor: new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		output := stdout.String()
		if stderr.Len() > 0 {
			output += "\n--- stderr ---\n" + stderr.String()
		}
		if len(output) > maxOutputBytes {
			output = output[:maxOutputBytes] + "\n... [truncated]"
		}
		return output, err
	case <-runCtx.Done():
		_ = session.Signal(ssh.SIGTERM)
		return "", fmt.Errorf("ssh executor: command timed out after %s", e.timeout)
	}
}

func (e *Executor) connection(host string) (*ssh.Client, error) {
	if c, ok := e.connections[host]; ok {
		return c, nil
	}
	cred, ok := e.credentials[host]
	if !ok {
		return nil, fmt.Errorf("no credential configured for host %q", host)
	}

	var authMethods []ssh.AuthMethod
	if len(cred.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cred.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if cred.Password != "" {
		authMethods = append(authMethods, ssh.Password(cred.Password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication method configured for host %q", host)
	}

	config := &ssh.ClientConfig{
		User:            cred.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := cred.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr += ":22"
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, err
	}
	e.connections[host] = client
	return client, nil
}

// Close releases all cached connections.
func (e *Executor) Close() {
	for host, c := range e.connections {
		c.Close()
		delete(e.connections, host)
	}
}

func (e *Executor) blockedCommand(cmd string) string {
	fields := strings.Fields(cmd)
	for _, f := range fields {
		if f == "sudo" || f == "env" || f == "nice" || f == "nohup" {
			continue
		}
		base := f
		if idx := strings.LastIndex(f, "/"); idx >= 0 {
			base = f[idx+1:]
		}
		for _, blocked := range e.blockedCommands {
			if strings.EqualFold(base, blocked) {
				return fmt.Sprintf("blocked command %q", blocked)
			}
		}
		break
	}
	return ""
}

func (e *Executor) protectedPathHit(cmd string) string {
	lower := strings.ToLower(cmd)
	for _, p := range e.protectedPaths {
		if strings.Contains(lower, strings.ToLower(p)) {
			return fmt.Sprintf("protected path %q", p)
		}
	}
	return ""
}
