// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a durable store.Store backend, following the
// WAL-mode connection string and migration-list pattern of
// internal/tracing/storage.SQLiteStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/graphforge/core/pkg/engine/store"
)

// Config configures the SQLite-backed execution store.
type Config struct {
	// Path is the database file path; ":memory:" for an in-process
	// (non-shared) database, primarily for tests.
	Path string

	// MaxOpenConns mirrors internal/tracing/storage.Config: kept low
	// since WAL mode already lets SQLite serve concurrent readers.
	MaxOpenConns int
}

// Store is the durable, WAL-mode SQLite execution store.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at cfg.Path
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connecting: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enabling foreign keys: %w", err)
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			failure_json TEXT,
			trigger_type TEXT,
			trigger_source_id TEXT,
			trigger_label TEXT,
			parent_run_id TEXT,
			parent_node_ref TEXT,
			idempotency_key TEXT,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_idempotency_key ON runs(idempotency_key) WHERE idempotency_key IS NOT NULL AND idempotency_key != ''`,

		`CREATE TABLE IF NOT EXISTS node_io (
			run_id TEXT NOT NULL,
			node_ref TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			inputs_json TEXT NOT NULL,
			outputs_json TEXT NOT NULL,
			status TEXT,
			failure_json TEXT,
			started_at INTEGER,
			ended_at INTEGER,
			PRIMARY KEY (run_id, node_ref, attempt)
		)`,

		`CREATE TABLE IF NOT EXISTS events (
			cursor INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			node_ref TEXT,
			attempt INTEGER,
			type TEXT NOT NULL,
			level TEXT,
			message TEXT,
			data_json TEXT,
			failure_json TEXT,
			stream_id TEXT,
			group_id TEXT,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_cursor ON events(run_id, cursor)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun returns the existing run for a repeated idempotency key. The
// key is deduplicated for the lifetime of the database (a unique index);
// store.IdempotencyWindow is not applied.
func (s *Store) CreateRun(ctx context.Context, desc store.RunDescriptor) (*store.Run, error) {
	if len(desc.IdempotencyKey) > store.MaxIdempotencyKeyLength {
		return nil, &store.IdempotencyKeyTooLongError{Length: len(desc.IdempotencyKey)}
	}

	if desc.IdempotencyKey != "" {
		if existing, err := s.runByIdempotencyKey(ctx, desc.IdempotencyKey); err == nil {
			return existing, nil
		}
	}

	now := time.Now()
	run := &store.Run{
		RunID:          desc.RunID,
		WorkflowID:     desc.WorkflowID,
		Status:         store.RunPending,
		Trigger:        desc.Trigger,
		ParentRunID:    desc.ParentRunID,
		ParentNodeRef:  desc.ParentNodeRef,
		IdempotencyKey: desc.IdempotencyKey,
		StartedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, workflow_id, status, trigger_type, trigger_source_id, trigger_label,
			parent_run_id, parent_node_ref, idempotency_key, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.WorkflowID, run.Status, run.Trigger.Type, run.Trigger.SourceID, run.Trigger.Label,
		run.ParentRunID, run.ParentNodeRef, nullableString(run.IdempotencyKey), run.StartedAt.UnixNano(), run.UpdatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting run: %w", err)
	}
	return run, nil
}

func (s *Store) runByIdempotencyKey(ctx context.Context, key string) (*store.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT run_id FROM runs WHERE idempotency_key = ?`, key)
	var runID string
	if err := row.Scan(&runID); err != nil {
		return nil, err
	}
	return s.GetRun(ctx, runID)
}

func (s *Store) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, status, failure_json, trigger_type, trigger_source_id, trigger_label,
			parent_run_id, parent_node_ref, idempotency_key, started_at, updated_at, completed_at
		FROM runs WHERE run_id = ?`, runID)

	var (
		run                                        store.Run
		failureJSON                                sql.NullString
		triggerType, triggerSourceID, triggerLabel  sql.NullString
		parentRunID, parentNodeRef, idempotencyKey  sql.NullString
		startedAt, updatedAt                        int64
		completedAt                                 sql.NullInt64
	)
	err := row.Scan(&run.WorkflowID, &run.Status, &failureJSON, &triggerType, &triggerSourceID, &triggerLabel,
		&parentRunID, &parentNodeRef, &idempotencyKey, &startedAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, &store.RunNotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning run: %w", err)
	}

	run.RunID = runID
	run.Trigger = store.Trigger{Type: triggerType.String, SourceID: triggerSourceID.String, Label: triggerLabel.String}
	run.ParentRunID = parentRunID.String
	run.ParentNodeRef = parentNodeRef.String
	run.IdempotencyKey = idempotencyKey.String
	run.StartedAt = time.Unix(0, startedAt)
	run.UpdatedAt = time.Unix(0, updatedAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		run.CompletedAt = &t
	}
	if failureJSON.Valid && failureJSON.String != "" {
		var f store.Failure
		if err := json.Unmarshal([]byte(failureJSON.String), &f); err != nil {
			return nil, fmt.Errorf("sqlite: decoding failure: %w", err)
		}
		run.Failure = &f
	}
	return &run, nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status store.RunStatus, failure *store.Failure) error {
	var failureJSON sql.NullString
	if failure != nil {
		encoded, err := json.Marshal(failure)
		if err != nil {
			return fmt.Errorf("sqlite: encoding failure: %w", err)
		}
		failureJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	now := time.Now()
	var completedAt sql.NullInt64
	if status.IsTerminal() {
		completedAt = sql.NullInt64{Int64: now.UnixNano(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, failure_json = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE run_id = ?`,
		status, failureJSON, now.UnixNano(), completedAt, runID)
	if err != nil {
		return fmt.Errorf("sqlite: updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &store.RunNotFoundError{RunID: runID}
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	if filter.Limit > store.MaxListRunsLimit {
		return nil, &store.InvalidListRunsLimitError{Requested: filter.Limit}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = store.MaxListRunsLimit
	}

	query := `SELECT run_id FROM runs WHERE 1=1`
	var args []any
	if filter.WorkflowID != "" {
		query += ` AND workflow_id = ?`
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.Run
	for rows.Next() {
		var runID string
		if err := rows.Scan(&runID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning run id: %w", err)
		}
		run, err := s.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) UpsertNodeIO(ctx context.Context, record store.NodeIORecord) error {
	inputsJSON, err := json.Marshal(record.Inputs)
	if err != nil {
		return fmt.Errorf("sqlite: encoding inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(record.Outputs)
	if err != nil {
		return fmt.Errorf("sqlite: encoding outputs: %w", err)
	}
	var failureJSON sql.NullString
	if record.Failure != nil {
		encoded, err := json.Marshal(record.Failure)
		if err != nil {
			return fmt.Errorf("sqlite: encoding failure: %w", err)
		}
		failureJSON = sql.NullString{String: string(encoded), Valid: true}
	}
	var endedAt sql.NullInt64
	if record.EndedAt != nil {
		endedAt = sql.NullInt64{Int64: record.EndedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO node_io (run_id, node_ref, attempt, inputs_json, outputs_json, status, failure_json, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, node_ref, attempt) DO UPDATE SET
			inputs_json = excluded.inputs_json,
			outputs_json = excluded.outputs_json,
			status = excluded.status,
			failure_json = excluded.failure_json,
			ended_at = excluded.ended_at`,
		record.RunID, record.NodeRef, record.Attempt, string(inputsJSON), string(outputsJSON),
		record.Status, failureJSON, record.StartedAt.UnixNano(), endedAt)
	if err != nil {
		return fmt.Errorf("sqlite: upserting node io: %w", err)
	}
	return nil
}

func (s *Store) GetNodeIO(ctx context.Context, runID, nodeRef string, attempt int) (*store.NodeIORecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT inputs_json, outputs_json, status, failure_json, started_at, ended_at
		FROM node_io WHERE run_id = ? AND node_ref = ? AND attempt = ?`, runID, nodeRef, attempt)

	var (
		inputsJSON, outputsJSON string
		status                  sql.NullString
		failureJSON             sql.NullString
		startedAt               int64
		endedAt                 sql.NullInt64
	)
	err := row.Scan(&inputsJSON, &outputsJSON, &status, &failureJSON, &startedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, &store.RunNotFoundError{RunID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning node io: %w", err)
	}

	record := &store.NodeIORecord{RunID: runID, NodeRef: nodeRef, Attempt: attempt, Status: status.String, StartedAt: time.Unix(0, startedAt)}
	if err := json.Unmarshal([]byte(inputsJSON), &record.Inputs); err != nil {
		return nil, fmt.Errorf("sqlite: decoding inputs: %w", err)
	}
	if err := json.Unmarshal([]byte(outputsJSON), &record.Outputs); err != nil {
		return nil, fmt.Errorf("sqlite: decoding outputs: %w", err)
	}
	if failureJSON.Valid && failureJSON.String != "" {
		var f store.Failure
		if err := json.Unmarshal([]byte(failureJSON.String), &f); err != nil {
			return nil, fmt.Errorf("sqlite: decoding failure: %w", err)
		}
		record.Failure = &f
	}
	if endedAt.Valid {
		t := time.Unix(0, endedAt.Int64)
		record.EndedAt = &t
	}
	return record, nil
}

func (s *Store) AppendEvents(ctx context.Context, runID string, events []store.Event) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var lastCursor int64
	for _, e := range events {
		dataJSON, err := json.Marshal(e.Data)
		if err != nil {
			return 0, fmt.Errorf("sqlite: encoding event data: %w", err)
		}
		var failureJSON sql.NullString
		if e.Failure != nil {
			encoded, err := json.Marshal(e.Failure)
			if err != nil {
				return 0, fmt.Errorf("sqlite: encoding event failure: %w", err)
			}
			failureJSON = sql.NullString{String: string(encoded), Valid: true}
		}
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO events (run_id, node_ref, attempt, type, level, message, data_json, failure_json, stream_id, group_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, e.NodeRef, e.Attempt, e.Type, e.Level, e.Message, string(dataJSON), failureJSON, e.StreamID, e.GroupID, ts.UnixNano())
		if err != nil {
			return 0, fmt.Errorf("sqlite: inserting event: %w", err)
		}
		lastCursor, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("sqlite: reading event cursor: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing events: %w", err)
	}
	return uint64(lastCursor), nil
}

func (s *Store) ListEvents(ctx context.Context, runID string, fromCursor uint64, limit int) ([]store.Event, uint64, error) {
	query := `SELECT cursor, node_ref, attempt, type, level, message, data_json, failure_json, stream_id, group_id, timestamp
		FROM events WHERE run_id = ? AND cursor > ? ORDER BY cursor ASC`
	args := []any{runID, fromCursor}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fromCursor, fmt.Errorf("sqlite: listing events: %w", err)
	}
	defer rows.Close()

	var events []store.Event
	next := fromCursor
	for rows.Next() {
		var (
			e                             store.Event
			nodeRef, level, message       sql.NullString
			dataJSON                      sql.NullString
			failureJSON                   sql.NullString
			streamID, groupID             sql.NullString
			timestamp                     int64
			attempt                       sql.NullInt64
			cursor                        int64
		)
		if err := rows.Scan(&cursor, &nodeRef, &attempt, &e.Type, &level, &message, &dataJSON, &failureJSON, &streamID, &groupID, &timestamp); err != nil {
			return nil, fromCursor, fmt.Errorf("sqlite: scanning event: %w", err)
		}
		e.Cursor = uint64(cursor)
		e.RunID = runID
		e.NodeRef = nodeRef.String
		e.Attempt = int(attempt.Int64)
		e.Level = store.EventLevel(level.String)
		e.Message = message.String
		e.StreamID = streamID.String
		e.GroupID = groupID.String
		e.Timestamp = time.Unix(0, timestamp)
		if dataJSON.Valid && dataJSON.String != "" && dataJSON.String != "null" {
			if err := json.Unmarshal([]byte(dataJSON.String), &e.Data); err != nil {
				return nil, fromCursor, fmt.Errorf("sqlite: decoding event data: %w", err)
			}
		}
		if failureJSON.Valid && failureJSON.String != "" {
			var f store.Failure
			if err := json.Unmarshal([]byte(failureJSON.String), &f); err != nil {
				return nil, fromCursor, fmt.Errorf("sqlite: decoding event failure: %w", err)
			}
			e.Failure = &f
		}
		events = append(events, e)
		next = e.Cursor
	}
	return events, next, rows.Err()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ store.Store = (*Store)(nil)
