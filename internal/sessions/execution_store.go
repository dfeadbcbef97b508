package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ExecutionStore persists ExecutionSession rows and their per-story state.
// Implementations must cascade story rows on session delete and keep the
// in-memory cache (see sessionCache below) consistent with every write.
type ExecutionStore interface {
	SaveSession(ctx context.Context, session *ExecutionSession) error
	LoadSession(ctx context.Context, id string) (*ExecutionSession, error)
	ListSessions(ctx context.Context, status ExecutionStatus, limit int) ([]*ExecutionSession, error)
	DeleteSession(ctx context.Context, id string) error
	CleanupOldSessions(ctx context.Context, olderThan time.Duration) (int, error)
	Close() error
}

// sessionCache is an in-memory, write-through cache keyed by session id,
// following internal/sessions/memory.go's map+sync.RWMutex idiom.
type sessionCache struct {
	mu       sync.RWMutex
	sessions map[string]*ExecutionSession
}

func newSessionCache() *sessionCache {
	return &sessionCache{sessions: make(map[string]*ExecutionSession)}
}

func (c *sessionCache) put(s *ExecutionSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *s
	clone.Stories = append([]StoryExecutionState(nil), s.Stories...)
	c.sessions[s.ID] = &clone
}

func (c *sessionCache) get(id string) (*ExecutionSession, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, false
	}
	clone := *s
	clone.Stories = append([]StoryExecutionState(nil), s.Stories...)
	return &clone, true
}

func (c *sessionCache) delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// sqlExecutionStore is the shared database/sql implementation behind both
// PostgresExecutionStore and SQLiteExecutionStore. The two differ only in
// driver name, DSN, and placeholder style, grounded the same way
// internal/sessions/cockroach.go and internal/jobs/cockroach.go share a
// single database/sql-based shape across backends.
type sqlExecutionStore struct {
	db         *sql.DB
	cache      *sessionCache
	driverName string
}

// PostgresExecutionStore persists execution sessions to Postgres (or
// CockroachDB, which speaks the same wire protocol) via lib/pq.
type PostgresExecutionStore struct {
	*sqlExecutionStore
}

// NewPostgresExecutionStore opens a Postgres-backed ExecutionStore and
// ensures the execution_sessions/execution_stories schema exists.
func NewPostgresExecutionStore(ctx context.Context, dsn string) (*PostgresExecutionStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres execution store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres execution store: %w", err)
	}
	store := &sqlExecutionStore{db: db, cache: newSessionCache(), driverName: "postgres"}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresExecutionStore{sqlExecutionStore: store}, nil
}

// SQLiteExecutionStore persists execution sessions to a local SQLite file
// via the pure-Go modernc.org/sqlite driver, for local and development
// deployments that don't run a Postgres/CockroachDB instance.
type SQLiteExecutionStore struct {
	*sqlExecutionStore
}

// NewSQLiteExecutionStore opens a SQLite-backed ExecutionStore at path and
// ensures the schema exists.
func NewSQLiteExecutionStore(ctx context.Context, path string) (*SQLiteExecutionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite execution store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite execution store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid pool contention
	store := &sqlExecutionStore{db: db, cache: newSessionCache(), driverName: "sqlite"}
	if err := store.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteExecutionStore{sqlExecutionStore: store}, nil
}

func (s *sqlExecutionStore) placeholder(n int) string {
	if s.driverName == "sqlite" {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// ensureSchema applies the embedded execution_sessions/execution_stories
// migrations. Postgres/CockroachDB go through the shared Migrator, the same
// path cmd entry points use for every other store in this package; SQLite
// applies its own compatible DDL directly, since the embedded migrations use
// CockroachDB-specific types (STRING, TIMESTAMPTZ, now()) that SQLite's
// DEFAULT clause can't evaluate.
func (s *sqlExecutionStore) ensureSchema(ctx context.Context) error {
	if s.driverName != "sqlite" {
		migrator, err := NewMigrator(s.db)
		if err != nil {
			return fmt.Errorf("init execution store migrator: %w", err)
		}
		if _, err := migrator.Up(ctx, 0); err != nil {
			return fmt.Errorf("apply execution store migrations: %w", err)
		}
		return nil
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS execution_sessions (
			id TEXT PRIMARY KEY,
			project_path TEXT NOT NULL,
			prd_path TEXT,
			status TEXT NOT NULL,
			provider TEXT,
			model TEXT,
			system_prompt TEXT,
			current_story_index INTEGER NOT NULL DEFAULT 0,
			total_input_tokens INTEGER NOT NULL DEFAULT 0,
			total_output_tokens INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS execution_stories (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES execution_sessions(id) ON DELETE CASCADE,
			story_id TEXT NOT NULL,
			title TEXT,
			status TEXT NOT NULL,
			iterations INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			quality_gates TEXT,
			started_at DATETIME,
			completed_at DATETIME,
			UNIQUE(session_id, story_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_sessions_project_path ON execution_sessions(project_path)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_sessions_status ON execution_sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_stories_session_id ON execution_stories(session_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure sqlite execution store schema: %w", err)
		}
	}
	return nil
}

// SaveSession upserts the session row and each of its story rows inside a
// single transaction, then refreshes the in-memory cache.
func (s *sqlExecutionStore) SaveSession(ctx context.Context, session *ExecutionSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("execution session id is required")
	}
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	now := time.Now()
	session.UpdatedAt = now
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsertSQL := s.upsertSessionSQL()
	if _, err := tx.ExecContext(ctx, upsertSQL,
		session.ID, session.ProjectPath, session.PRDPath, string(session.Status),
		session.Provider, session.Model, session.SystemPrompt, session.CurrentStory,
		session.TotalInput, session.TotalOutput, session.Error, string(metadataJSON),
		session.CreatedAt, session.UpdatedAt, session.StartedAt, session.CompletedAt,
	); err != nil {
		return fmt.Errorf("upsert execution session: %w", err)
	}

	storySQL := s.upsertStorySQL()
	for _, story := range session.Stories {
		gatesJSON, err := json.Marshal(story.QualityGates)
		if err != nil {
			return fmt.Errorf("marshal story quality gates: %w", err)
		}
		storyRowID := session.ID + ":" + story.StoryID
		if _, err := tx.ExecContext(ctx, storySQL,
			storyRowID, session.ID, story.StoryID, story.Title, string(story.Status),
			story.Iterations, story.InputTokens, story.OutputTokens, story.Error,
			string(gatesJSON), story.StartedAt, story.CompletedAt,
		); err != nil {
			return fmt.Errorf("upsert execution story %q: %w", story.StoryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session tx: %w", err)
	}
	s.cache.put(session)
	return nil
}

func (s *sqlExecutionStore) upsertSessionSQL() string {
	if s.driverName == "sqlite" {
		return `
			INSERT INTO execution_sessions (
				id, project_path, prd_path, status, provider, model, system_prompt,
				current_story_index, total_input_tokens, total_output_tokens, error,
				metadata, created_at, updated_at, started_at, completed_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(id) DO UPDATE SET
				status=excluded.status, current_story_index=excluded.current_story_index,
				total_input_tokens=excluded.total_input_tokens, total_output_tokens=excluded.total_output_tokens,
				error=excluded.error, metadata=excluded.metadata, updated_at=excluded.updated_at,
				started_at=excluded.started_at, completed_at=excluded.completed_at
		`
	}
	return `
		INSERT INTO execution_sessions (
			id, project_path, prd_path, status, provider, model, system_prompt,
			current_story_index, total_input_tokens, total_output_tokens, error,
			metadata, created_at, updated_at, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, current_story_index=excluded.current_story_index,
			total_input_tokens=excluded.total_input_tokens, total_output_tokens=excluded.total_output_tokens,
			error=excluded.error, metadata=excluded.metadata, updated_at=excluded.updated_at,
			started_at=excluded.started_at, completed_at=excluded.completed_at
	`
}

func (s *sqlExecutionStore) upsertStorySQL() string {
	if s.driverName == "sqlite" {
		return `
			INSERT INTO execution_stories (
				id, session_id, story_id, title, status, iterations, input_tokens,
				output_tokens, error, quality_gates, started_at, completed_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(session_id, story_id) DO UPDATE SET
				title=excluded.title, status=excluded.status, iterations=excluded.iterations,
				input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
				error=excluded.error, quality_gates=excluded.quality_gates,
				started_at=excluded.started_at, completed_at=excluded.completed_at
		`
	}
	return `
		INSERT INTO execution_stories (
			id, session_id, story_id, title, status, iterations, input_tokens,
			output_tokens, error, quality_gates, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT(session_id, story_id) DO UPDATE SET
			title=excluded.title, status=excluded.status, iterations=excluded.iterations,
			input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
			error=excluded.error, quality_gates=excluded.quality_gates,
			started_at=excluded.started_at, completed_at=excluded.completed_at
	`
}

// LoadSession is cache-first: a hit avoids the round trip entirely, and a
// miss falls back to the database and repopulates the cache.
func (s *sqlExecutionStore) LoadSession(ctx context.Context, id string) (*ExecutionSession, error) {
	if cached, ok := s.cache.get(id); ok {
		return cached, nil
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, project_path, prd_path, status, provider, model, system_prompt,
		       current_story_index, total_input_tokens, total_output_tokens, error,
		       metadata, created_at, updated_at, started_at, completed_at
		FROM execution_sessions WHERE id = %s
	`, s.placeholder(1)), id)

	session := &ExecutionSession{}
	var prdPath, provider, model, systemPrompt, errMsg sql.NullString
	var metadataJSON []byte
	var startedAt, completedAt sql.NullTime
	var status string
	if err := row.Scan(
		&session.ID, &session.ProjectPath, &prdPath, &status, &provider, &model,
		&systemPrompt, &session.CurrentStory, &session.TotalInput, &session.TotalOutput,
		&errMsg, &metadataJSON, &session.CreatedAt, &session.UpdatedAt, &startedAt, &completedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("execution session not found: %s", id)
		}
		return nil, fmt.Errorf("load execution session: %w", err)
	}
	session.Status = ExecutionStatus(status)
	session.PRDPath = prdPath.String
	session.Provider = provider.String
	session.Model = model.String
	session.SystemPrompt = systemPrompt.String
	session.Error = errMsg.String
	session.StartedAt = startedAt.Time
	session.CompletedAt = completedAt.Time
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}

	stories, err := s.loadStories(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	session.Stories = stories

	s.cache.put(session)
	return session, nil
}

func (s *sqlExecutionStore) loadStories(ctx context.Context, sessionID string) ([]StoryExecutionState, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT story_id, title, status, iterations, input_tokens, output_tokens,
		       error, quality_gates, started_at, completed_at
		FROM execution_stories WHERE session_id = %s ORDER BY story_id
	`, s.placeholder(1)), sessionID)
	if err != nil {
		return nil, fmt.Errorf("load execution stories: %w", err)
	}
	defer rows.Close()

	var stories []StoryExecutionState
	for rows.Next() {
		var story StoryExecutionState
		var title, errMsg sql.NullString
		var status string
		var gatesJSON []byte
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(&story.StoryID, &title, &status, &story.Iterations,
			&story.InputTokens, &story.OutputTokens, &errMsg, &gatesJSON, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan execution story: %w", err)
		}
		story.Title = title.String
		story.Status = ExecutionStatus(status)
		story.Error = errMsg.String
		story.StartedAt = startedAt.Time
		story.CompletedAt = completedAt.Time
		if len(gatesJSON) > 0 {
			if err := json.Unmarshal(gatesJSON, &story.QualityGates); err != nil {
				return nil, fmt.Errorf("unmarshal story quality gates: %w", err)
			}
		}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

// ListSessions returns sessions in status (or all statuses, if empty),
// most-recently-updated first, capped at limit (default 50).
func (s *sqlExecutionStore) ListSessions(ctx context.Context, status ExecutionStatus, limit int) ([]*ExecutionSession, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id FROM execution_sessions`
	args := []any{}
	if status != "" {
		query += fmt.Sprintf(" WHERE status = %s", s.placeholder(1))
		args = append(args, string(status))
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %s", s.placeholder(len(args)+1))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan execution session id: %w", err)
		}
		ids = append(ids, id)
	}
	closeErr := rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}

	out := make([]*ExecutionSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.LoadSession(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// DeleteSession removes the session row; execution_stories rows cascade via
// the foreign key's ON DELETE CASCADE.
func (s *sqlExecutionStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM execution_sessions WHERE id = %s`, s.placeholder(1)), id)
	if err != nil {
		return fmt.Errorf("delete execution session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete execution session rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution session not found: %s", id)
	}
	s.cache.delete(id)
	return nil
}

// CleanupOldSessions deletes completed or cancelled sessions whose
// updated_at is older than olderThan, returning the count removed.
func (s *sqlExecutionStore) CleanupOldSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	var query string
	if s.driverName == "sqlite" {
		query = `DELETE FROM execution_sessions WHERE status IN (?, ?) AND updated_at < ?`
	} else {
		query = `DELETE FROM execution_sessions WHERE status IN ($1, $2) AND updated_at < $3`
	}
	result, err := s.db.ExecContext(ctx, query, string(ExecutionCompleted), string(ExecutionCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old execution sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *sqlExecutionStore) Close() error {
	return s.db.Close()
}
