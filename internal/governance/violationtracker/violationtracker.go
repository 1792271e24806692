/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package violationtracker persists violation records to a durable,
// append-only store and makes them queryable for the task's duration.
// Violation codes V001-V006 are a stable external contract: new codes are
// appended, never renumbered, and never reused.
package violationtracker

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/legator/governance-kernel/internal/governance/types"
)

// Indexer receives every recorded violation for write-through indexing
// (e.g. the sqlite-backed queryable store in internal/violationstore).
// Indexing failures never block recording — the text log is always the
// durable source of truth.
type Indexer interface {
	Index(types.ViolationRecord) error
}

// Tracker is the kernel's ViolationTracker.
type Tracker struct {
	dir     string
	indexer Indexer

	mu         sync.Mutex
	records    []types.ViolationRecord
	openDate   string
	openFile   *os.File
}

// New creates a Tracker that appends to violations_<YYYYMMDD>.log files
// under dir. dir is created if absent. indexer may be nil.
func New(dir string, indexer Indexer) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create violation directory: %w", err)
	}
	return &Tracker{dir: dir, indexer: indexer}, nil
}

// Record appends v to the log file for today, flushing to stable storage
// before returning, and makes it available to ListForTask. Each line is
// self-describing and order-preserving; a torn write is detectable on
// next read because ReadLog skips a line that does not carry all six
// fields.
func (t *Tracker) Record(v types.ViolationRecord) error {
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := t.fileForDate(v.Timestamp)
	if err != nil {
		return err
	}

	line := encodeLine(v)
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write violation record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("flush violation record: %w", err)
	}

	t.records = append(t.records, v)

	if t.indexer != nil {
		_ = t.indexer.Index(v) // indexing is best-effort; the text log is authoritative
	}
	return nil
}

// ListForTask returns, in insertion order, all violations recorded for
// planID so far in this tracker's lifetime.
func (t *Tracker) ListForTask(planID string) []types.ViolationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []types.ViolationRecord
	for _, r := range t.records {
		if r.PlanID == planID {
			out = append(out, r)
		}
	}
	return out
}

// All returns every violation recorded so far, in insertion order.
func (t *Tracker) All() []types.ViolationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.ViolationRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Close flushes and releases the currently open log file, if any.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openFile != nil {
		err := t.openFile.Close()
		t.openFile = nil
		return err
	}
	return nil
}

func (t *Tracker) fileForDate(ts time.Time) (*os.File, error) {
	date := ts.Format("20060102")
	if t.openFile != nil && t.openDate == date {
		return t.openFile, nil
	}
	if t.openFile != nil {
		_ = t.openFile.Close()
	}
	path := filepath.Join(t.dir, fmt.Sprintf("violations_%s.log", date))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open violation log %q: %w", path, err)
	}
	t.openFile = f
	t.openDate = date
	return f, nil
}

// encodeLine formats one violation record per §6's on-disk format:
// timestamp, code, description, plan_id, persona_id, constraint_hash.
// Description is escaped so embedded "|" or newlines cannot corrupt the
// fixed field order on read-back.
func encodeLine(v types.ViolationRecord) string {
	fields := []string{
		v.Timestamp.Format(time.RFC3339Nano),
		string(v.Code),
		escapeField(v.Description),
		v.PlanID,
		v.PersonaID,
		v.ConstraintHash,
	}
	return strings.Join(fields, "|")
}

func escapeField(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeField(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '|':
				b.WriteByte('|')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ReadLog reads and parses a single violations_<YYYYMMDD>.log file,
// discarding any line that does not carry exactly 6 fields (a torn
// write). Exported for audit tooling and tests.
func ReadLog(path string) ([]types.ViolationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.ViolationRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := splitUnescaped(line, '|')
		if len(fields) != 6 {
			continue // torn or malformed line; discard
		}
		ts, err := time.Parse(time.RFC3339Nano, fields[0])
		if err != nil {
			continue
		}
		out = append(out, types.ViolationRecord{
			Timestamp:      ts,
			Code:           types.ViolationCode(fields[1]),
			Description:    unescapeField(fields[2]),
			PlanID:         fields[3],
			PersonaID:      fields[4],
			ConstraintHash: fields[5],
		})
	}
	return out, scanner.Err()
}

// splitUnescaped splits s on sep, respecting backslash-escaped
// occurrences of sep within fields.
func splitUnescaped(s string, sep byte) []string {
	var fields []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			cur.WriteByte(s[i])
			cur.WriteByte(s[i+1])
			i++
			continue
		}
		if s[i] == sep {
			fields = append(fields, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	fields = append(fields, cur.String())
	return fields
}

// NewID returns a fresh correlation id, used by callers that need one for
// a ViolationRecord not otherwise keyed to a plan (e.g. a sweep-detected
// integrity failure outside of any single task).
func NewID() string {
	return uuid.NewString()
}
