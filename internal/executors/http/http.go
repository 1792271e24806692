/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package http is an example REAL-mode executor for NETWORK_REQUEST
// actions, plugging into executionproxy.Executor.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// maxResponseBytes caps how much of a response body the executor returns.
const maxResponseBytes = 8 * 1024

// Executor performs HTTP requests. req.Target is the URL;
// req.Payload["method"] selects the verb (default GET);
// req.Payload["body"] and req.Payload["contentType"] apply to
// POST/PUT-style requests.
type Executor struct {
	client *http.Client
}

// New creates an HTTP executor with a bounded default timeout.
func New() *Executor {
	return &Executor{client: &http.Client{Timeout: 10 * time.Second}}
}

// Execute implements executionproxy.Executor.
func (e *Executor) Execute(ctx context.Context, req types.ActionRequest) (string, error) {
	url := req.Target
	if url == "" {
		return "", fmt.Errorf("http executor: url is required")
	}
	method := strings.ToUpper(req.Payload["method"])
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if b := req.Payload["body"]; b != "" {
		body = strings.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", fmt.Errorf("http executor: build request: %w", err)
	}
	if ct := req.Payload["contentType"]; ct != "" {
		httpReq.Header.Set("Content-Type", ct)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http executor: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("http executor: read response: %w", err)
	}

	text := string(respBody)
	if len(respBody) >= maxResponseBytes {
		text += "\n... [truncated at 8KB]"
	}
	return fmt.Sprintf("HTTP %d %s\n\n%s", resp.StatusCode, resp.Status, text), nil
}
