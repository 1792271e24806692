/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package sql is an example REAL-mode executor for TOOL_USE actions that
// run SQL queries, plugging into executionproxy.Executor. Governance has
// already decided whether this query was admitted before this executor
// runs; the read-only transaction and driver-level query classification
// below are an independent defense-in-depth layer, not a substitute for
// the governance verdict.
package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Database drivers — register with database/sql.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// Database describes one database the executor may query.
type Database struct {
	Driver  string // "postgres" or "mysql"
	DSN     string
	Timeout time.Duration
}

// Executor dispatches TOOL_USE SQL actions. req.Target names the
// configured database; the query text comes from req.Payload["query"].
type Executor struct {
	databases map[string]*Database
}

// New creates a SQL executor over the given named databases.
func New(databases map[string]*Database) *Executor {
	for _, db := range databases {
		if db.Timeout == 0 {
			db.Timeout = 30 * time.Second
		}
	}
	return &Executor{databases: databases}
}

// Execute implements executionproxy.Executor.
func (e *Executor) Execute(ctx context.Context, req types.ActionRequest) (string, error) {
	query := req.Payload["query"]
	if query == "" && req.ToolCall != nil {
		query = req.ToolCall.Arguments["query"]
	}
	if query == "" {
		return "", fmt.Errorf("sql executor: query is required")
	}

	db, ok := e.databases[req.Target]
	if !ok {
		return "", fmt.Errorf("sql executor: unknown database %q", req.Target)
	}

	// Driver-level read-only enforcement beneath the already-decided
	// governance verdict: the proxy only dispatches here for actions the
	// validator approved, but a model-authored query string could still
	// smuggle a mutation past a permissive FILE_WRITE/TOOL_USE policy, so
	// this check stays regardless of the upstream verdict.
	if !isReadOnlyQuery(query) {
		return "", fmt.Errorf("sql executor: only read-only queries are permitted")
	}
	if containsInjectionPattern(query) {
		return "", fmt.Errorf("sql executor: query contains suspicious patterns")
	}

	driverName := db.Driver
	if driverName == "postgres" || driverName == "postgresql" {
		driverName = "pgx"
	}

	conn, err := sql.Open(driverName, db.DSN)
	if err != nil {
		return "", fmt.Errorf("sql executor: connect to %s: %w", req.Target, err)
	}
	defer conn.Close()

	queryCtx, cancel := context.WithTimeout(ctx, db.Timeout)
	defer cancel()

	tx, err := conn.BeginTx(queryCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return "", fmt.Errorf("sql executor: begin read-only transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(queryCtx, query)
	if err != nil {
		return "", fmt.Errorf("sql executor: query: %w", err)
	}
	defer rows.Close()

	return formatResults(rows)
}

func isReadOnlyQuery(query string) bool {
	normalized := strings.TrimSpace(strings.ToUpper(query))
	for _, prefix := range []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"} {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

func containsInjectionPattern(query string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(query), ";")
	if strings.Contains(trimmed, ";") {
		return true
	}
	normalized := strings.ToUpper(query)
	if strings.Contains(normalized, "--") || strings.Contains(normalized, "/*") {
		return true
	}
	return false
}

func formatResults(rows *sql.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(columns, "\t"))
	sb.WriteString("\n")

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return sb.String(), fmt.Errorf("scan row %d: %w", count, err)
		}
		for i, v := range values {
			if i > 0 {
				sb.WriteString("\t")
			}
			switch val := v.(type) {
			case nil:
				sb.WriteString("NULL")
			case []byte:
				sb.WriteString(string(val))
			default:
				fmt.Fprintf(&sb, "%v", val)
			}
		}
		sb.WriteString("\n")
		count++
	}
	return sb.String(), rows.Err()
}
