// Package conversations stores completed runs and their message history in
// SQLite.
package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/echolabsdev/prism-sub001/agent"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/migrations"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var nowFunc = time.Now

// RunRecord is the stored summary of one run.
type RunRecord struct {
	ID           string
	Provider     string
	Model        string
	Text         string
	FinishReason llm.FinishReason
	Usage        llm.Usage
	Steps        int
	CreatedAt    time.Time
}

// Store handles persistence of runs.
// It implements agent.RunPersister.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a Store on an already migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "conversationStore").Logger()}
}

// Open opens the SQLite database at path, applies migrations and returns a
// Store. ":memory:" gives a private in-memory database.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if inMemory {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db, logger), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores the run summary and every message of its conversation in
// order. Saving a run twice is a no-op.
func (s *Store) SaveRun(ctx context.Context, provider string, resp *agent.Response) error {
	if resp == nil || resp.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	payloads := make([][]byte, len(resp.Messages))
	for i, m := range resp.Messages {
		b, err := llm.MarshalMessage(m)
		if err != nil {
			return fmt.Errorf("marshal message %d: %w", i, err)
		}
		payloads[i] = b
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := sq.Insert("runs").
		Columns("id", "provider", "model", "text", "finish_reason", "prompt_tokens", "completion_tokens",
			"cache_write_tokens", "cache_read_tokens", "steps", "created_at").
		Values(resp.RunID, provider, resp.Meta.Model, resp.Text, string(resp.FinishReason),
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
			resp.Usage.CacheWriteInputTokens, resp.Usage.CacheReadInputTokens,
			len(resp.Steps), nowFunc().Unix())

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	// SQLite requires "OR IGNORE" to come after "INSERT", so we replace "INSERT INTO" with "INSERT OR IGNORE INTO"
	queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)

	result, err := tx.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug().Str("runID", resp.RunID).Msg("Run already stored")
		return nil
	}

	if len(payloads) > 0 {
		insert := sq.Insert("run_messages").Columns("run_id", "seq", "role", "payload")
		for i, m := range resp.Messages {
			insert = insert.Values(resp.RunID, i, string(m.Role()), string(payloads[i]))
		}
		queryStr, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryStr, args...); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug().Str("runID", resp.RunID).Int("messages", len(payloads)).Msg("Run stored")
	return nil
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := sq.Select("id", "provider", "model", "text", "finish_reason", "prompt_tokens", "completion_tokens",
		"cache_write_tokens", "cache_read_tokens", "steps", "created_at").
		From("runs").
		OrderBy("created_at DESC", "rowid DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var runs []RunRecord
	for rows.Next() {
		var (
			r                     RunRecord
			finishReason          string
			cacheWrite, cacheRead sql.NullInt64
			createdAt             int64
		)
		if err := rows.Scan(&r.ID, &r.Provider, &r.Model, &r.Text, &finishReason,
			&r.Usage.PromptTokens, &r.Usage.CompletionTokens, &cacheWrite, &cacheRead,
			&r.Steps, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.FinishReason = llm.FinishReason(finishReason)
		if cacheWrite.Valid {
			r.Usage.CacheWriteInputTokens = &cacheWrite.Int64
		}
		if cacheRead.Valid {
			r.Usage.CacheReadInputTokens = &cacheRead.Int64
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Messages returns the stored conversation of a run in order.
func (s *Store) Messages(ctx context.Context, runID string) ([]llm.Message, error) {
	queryStr, args, err := sq.Select("payload").
		From("run_messages").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var msgs []llm.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m, err := llm.UnmarshalMessage([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

var _ agent.RunPersister = (*Store)(nil)
