package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS global_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_val INTEGER NOT NULL DEFAULT 1
	)`,
	`INSERT OR IGNORE INTO global_sequence (id, next_val) VALUES (1, 1)`,
	`CREATE TABLE IF NOT EXISTS mastery_records (
		student_id TEXT NOT NULL,
		skill_key TEXT NOT NULL,
		mastery_level REAL NOT NULL,
		next_review_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (student_id, skill_key)
	)`,
	`CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL,
		student_id TEXT NOT NULL,
		skill_key TEXT NOT NULL,
		outcome TEXT NOT NULL,
		score REAL NOT NULL,
		at INTEGER NOT NULL,
		body TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS interactions_student_skill ON interactions (student_id, skill_key, sequence)`,
	`CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		body TEXT NOT NULL,
		UNIQUE (quiz_id, student_id, number)
	)`,
	`CREATE INDEX IF NOT EXISTS attempts_status ON attempts (status)`,
	`CREATE TABLE IF NOT EXISTS mastery_feed_pending (
		attempt_id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		tries INTEGER NOT NULL DEFAULT 1,
		last_error TEXT NOT NULL DEFAULT '',
		queued_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS peer_review_assignments (
		submission_id TEXT NOT NULL,
		reviewer_id TEXT NOT NULL,
		anonymous INTEGER NOT NULL DEFAULT 0,
		assigned_at INTEGER NOT NULL,
		PRIMARY KEY (submission_id, reviewer_id)
	)`,
	`CREATE INDEX IF NOT EXISTS peer_review_assignments_reviewer ON peer_review_assignments (reviewer_id)`,
	`CREATE TABLE IF NOT EXISTS peer_reviews (
		submission_id TEXT NOT NULL,
		reviewer_id TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (submission_id, reviewer_id),
		FOREIGN KEY (submission_id, reviewer_id)
			REFERENCES peer_review_assignments (submission_id, reviewer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		sequence INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		student_id TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sequence INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		purpose TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}

// sequenceCounter hands out the global sequence shared by every appended
// row (interactions, notification events, LLM requests) so that rows from
// different tables can be ordered against each other.
//
// Next must run inside the caller's transaction: the store holds a single
// connection, so a second statement outside the transaction would block.
type sequenceCounter struct {
	mu sync.Mutex
}

func newSequenceCounter(ctx context.Context, db *sql.DB) (*sequenceCounter, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM global_sequence`).Scan(&n); err != nil {
		return nil, fmt.Errorf("check sequence: %w", err)
	}
	if n != 1 {
		return nil, fmt.Errorf("sequence table has %d rows", n)
	}
	return &sequenceCounter{}, nil
}

// Next atomically returns the next sequence number and increments the counter.
func (sc *sequenceCounter) Next(ctx context.Context, tx dialect.ExecQuerier) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var rows entsql.Rows
	err := tx.Query(ctx,
		`UPDATE global_sequence SET next_val = next_val + 1 WHERE id = 1 RETURNING next_val - 1`,
		[]any{}, &rows)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	defer rows.Close()

	var seq int64
	if !rows.Next() {
		return 0, fmt.Errorf("next sequence: no row returned")
	}
	if err := rows.Scan(&seq); err != nil {
		return 0, fmt.Errorf("scan sequence: %w", err)
	}
	return seq, rows.Err()
}

// scanAll runs a query and calls scan for every row.
func scanAll(ctx context.Context, q dialect.ExecQuerier, query string, args []any, scan func(*entsql.Rows) error) error {
	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(&rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// exists reports whether the selector matches at least one row.
func exists(ctx context.Context, q dialect.ExecQuerier, sel *entsql.Selector) (bool, error) {
	query, args := sel.Limit(1).Query()
	found := false
	err := scanAll(ctx, q, query, args, func(*entsql.Rows) error {
		found = true
		return nil
	})
	return found, err
}

func builder() *entsql.DialectBuilder {
	return entsql.Dialect(dialect.SQLite)
}
