/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package violationstore maintains a queryable sqlite index of violation
// records alongside the governance kernel's append-only text log. The
// text log (internal/governance/violationtracker) remains the durable
// source of truth; this index is derived and rebuildable from it, and
// exists purely so ViolationTracker.ListForTask-equivalent queries can be
// served efficiently once the log grows large, rather than a full scan.
package violationstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// Store is a sqlite-backed write-through index of violation records.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) a sqlite-backed index at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open violation index: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS violations (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp       TEXT NOT NULL,
		code            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		plan_id         TEXT NOT NULL,
		persona_id      TEXT NOT NULL DEFAULT '',
		constraint_hash TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_violations_plan_id ON violations(plan_id)`); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Index writes v to the index. It implements violationtracker.Indexer.
func (s *Store) Index(v types.ViolationRecord) error {
	_, err := s.db.Exec(`INSERT INTO violations (timestamp, code, description, plan_id, persona_id, constraint_hash)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		string(v.Code), v.Description, v.PlanID, v.PersonaID, v.ConstraintHash)
	return err
}

// ListForTask queries the index for every violation recorded under
// planID, ordered by insertion (id ascending matches detection order
// since Index is called synchronously from Tracker.Record).
func (s *Store) ListForTask(planID string) ([]types.ViolationRecord, error) {
	rows, err := s.db.Query(`SELECT timestamp, code, description, plan_id, persona_id, constraint_hash
		FROM violations WHERE plan_id = ? ORDER BY id ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ViolationRecord
	for rows.Next() {
		var v types.ViolationRecord
		var tsStr string
		if err := rows.Scan(&tsStr, &v.Code, &v.Description, &v.PlanID, &v.PersonaID, &v.ConstraintHash); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountByCode returns a histogram of violation counts per code, useful
// for dashboards and for the sweep integrity report.
func (s *Store) CountByCode() (map[types.ViolationCode]int, error) {
	rows, err := s.db.Query(`SELECT code, COUNT(*) FROM violations GROUP BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[types.ViolationCode]int{}
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			continue
		}
		out[types.ViolationCode(code)] = count
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
