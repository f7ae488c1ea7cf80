package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"traceforge-hq/traceforge/pkg/trace"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: ".traces.db"
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         ".traces.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements trace.Store on an embedded SQLite database.
// It also implements trace.Searcher via an FTS5 companion table and
// trace.RedactionSink via the redaction_audit side table.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger

	// Prepared statements for the hot paths.
	saveTraceStmt   *sql.Stmt
	getTraceStmt    *sql.Stmt
	deleteTraceStmt *sql.Stmt
	countTracesStmt *sql.Stmt
	saveTestStmt    *sql.Stmt
	getTestStmt     *sql.Stmt
	deleteTestStmt  *sql.Stmt
}

var sortColumns = map[string]string{
	trace.SortByTimestamp: "timestamp_ms",
	trace.SortByDuration:  "duration_ms",
	trace.SortByModel:     "model",
}

// NewSQLiteStore creates a new SQLite storage backend. It initializes
// the schema, the full-text index, and the prepared statements, and
// enables WAL journaling with synchronous=NORMAL.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		config.Path = ".traces.db"
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "trace.storage.sqlite")

	if dir := filepath.Dir(config.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, trace.NewStorageError("sqlite", "mkdir", err)
		}
	}

	// recursive_triggers makes the implicit delete of INSERT OR
	// REPLACE fire the FTS delete trigger.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=recursive_triggers(ON)",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store initialized",
		"path", config.Path,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and verifies its version.
func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return trace.NewStorageError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(FTSSchema); err != nil {
		return trace.NewStorageError("sqlite", "create_fts", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return trace.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return trace.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return trace.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// prepareStatements pre-compiles the statements used on every request.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.saveTraceStmt, err = s.db.Prepare(`
		INSERT OR REPLACE INTO traces
			(id, record, timestamp_ms, endpoint, model, status, duration_ms, session_id, step_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return trace.NewStorageError("sqlite", "prepare", err)
	}

	s.getTraceStmt, err = s.db.Prepare(`SELECT record FROM traces WHERE id = ?`)
	if err != nil {
		return trace.NewStorageError("sqlite", "prepare", err)
	}

	s.deleteTraceStmt, err = s.db.Prepare(`DELETE FROM traces WHERE id = ?`)
	if err != nil {
		return trace.NewStorageError("sqlite", "prepare", err)
	}

	s.countTracesStmt, err = s.db.Prepare(`SELECT COUNT(*) FROM traces`)
	if err != nil {
		return trace.NewStorageError("sqlite", "prepare", err)
	}

	s.saveTestStmt, err = s.db.Prepare(`
		INSERT OR REPLACE INTO tests (id, record, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return trace.NewStorageError("sqlite", "prepare", err)
	}

	s.getTestStmt, err = s.db.Prepare(`SELECT record FROM tests WHERE id = ?`)
	if err != nil {
		return trace.NewStorageError("sqlite", "prepare", err)
	}

	s.deleteTestStmt, err = s.db.Prepare(`DELETE FROM tests WHERE id = ?`)
	if err != nil {
		return trace.NewStorageError("sqlite", "prepare", err)
	}

	return nil
}

// SaveTrace persists a trace record. A duplicate id replaces the
// stored record in a single statement, keeping the write crash-safe.
func (s *SQLiteStore) SaveTrace(ctx context.Context, t *trace.Trace) error {
	if t == nil || t.ID == "" {
		return trace.NewStorageError("sqlite", "save_trace", errors.New("trace id is empty"))
	}

	record, err := json.Marshal(t)
	if err != nil {
		return trace.NewStorageError("sqlite", "save_trace", err)
	}

	var sessionID, stepIndex, model interface{}
	if t.SessionID != "" {
		sessionID = t.SessionID
	}
	if t.StepIndex != nil {
		stepIndex = *t.StepIndex
	}
	if t.Metadata.Model != "" {
		model = t.Metadata.Model
	}

	_, err = s.saveTraceStmt.ExecContext(ctx,
		t.ID, string(record),
		t.Timestamp.UTC().UnixMilli(), t.Endpoint, model, t.Metadata.Status, t.Metadata.DurationMS,
		sessionID, stepIndex, time.Now().UnixMilli(),
	)
	if err != nil {
		return trace.NewStorageError("sqlite", "save_trace", err)
	}

	return nil
}

// GetTrace retrieves a trace by id, upgrading older record shapes on
// the way out.
func (s *SQLiteStore) GetTrace(ctx context.Context, id string) (*trace.Trace, error) {
	var record string
	err := s.getTraceStmt.QueryRowContext(ctx, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trace.NewNotFoundError("trace", id)
	}
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "get_trace", err)
	}
	return s.decodeTrace([]byte(record))
}

// ListTraces returns traces matching opts, newest first by default.
func (s *SQLiteStore) ListTraces(ctx context.Context, opts *trace.ListOptions) ([]*trace.Trace, error) {
	opts = opts.WithDefaults()

	var conditions []string
	var args []interface{}

	if opts.Filter.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, opts.Filter.Model)
	}
	if opts.Filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, opts.Filter.Status)
	}
	if opts.Filter.DateFrom != nil {
		conditions = append(conditions, "timestamp_ms >= ?")
		args = append(args, opts.Filter.DateFrom.UnixMilli())
	}
	if opts.Filter.DateTo != nil {
		conditions = append(conditions, "timestamp_ms <= ?")
		args = append(args, opts.Filter.DateTo.UnixMilli())
	}

	query := "SELECT record FROM traces"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", sortColumns[opts.SortBy], strings.ToUpper(opts.SortOrder))
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "list_traces", err)
	}
	defer rows.Close()

	return s.scanTraces(rows, "list_traces")
}

// DeleteTrace removes a trace and its redaction audit rows.
func (s *SQLiteStore) DeleteTrace(ctx context.Context, id string) error {
	result, err := s.deleteTraceStmt.ExecContext(ctx, id)
	if err != nil {
		return trace.NewStorageError("sqlite", "delete_trace", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return trace.NewStorageError("sqlite", "delete_trace", err)
	}
	if affected == 0 {
		return trace.NewNotFoundError("trace", id)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM redaction_audit WHERE trace_id = ?", id); err != nil {
		s.logger.Warn("failed to prune redaction audit rows", "trace_id", id, "error", err)
	}
	return nil
}

// CountTraces returns the total number of stored traces.
func (s *SQLiteStore) CountTraces(ctx context.Context) (int64, error) {
	var count int64
	if err := s.countTracesStmt.QueryRowContext(ctx).Scan(&count); err != nil {
		return 0, trace.NewStorageError("sqlite", "count_traces", err)
	}
	return count, nil
}

// ListSessionTraces returns the traces of one session ordered by step
// index, ties broken by timestamp.
func (s *SQLiteStore) ListSessionTraces(ctx context.Context, sessionID string) ([]*trace.Trace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM traces
		WHERE session_id = ?
		ORDER BY COALESCE(step_index, 0) ASC, timestamp_ms ASC, id ASC`, sessionID)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "list_session_traces", err)
	}
	defer rows.Close()

	return s.scanTraces(rows, "list_session_traces")
}

// GetSessionMetadata summarizes the traces sharing a session id.
func (s *SQLiteStore) GetSessionMetadata(ctx context.Context, sessionID string) (*trace.SessionMetadata, error) {
	var count int
	var minMS, maxMS sql.NullInt64
	var totalDuration int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(timestamp_ms), MAX(timestamp_ms), COALESCE(SUM(duration_ms), 0)
		FROM traces WHERE session_id = ?`, sessionID).
		Scan(&count, &minMS, &maxMS, &totalDuration)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "session_metadata", err)
	}
	if count == 0 {
		return nil, trace.NewNotFoundError("session", sessionID)
	}

	meta := &trace.SessionMetadata{
		SessionID:       sessionID,
		TraceCount:      count,
		FirstSeen:       time.UnixMilli(minMS.Int64).UTC(),
		LastSeen:        time.UnixMilli(maxMS.Int64).UTC(),
		TotalDurationMS: totalDuration,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT model FROM traces
		WHERE session_id = ? AND model IS NOT NULL AND model != ''
		ORDER BY model`, sessionID)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "session_metadata", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		if err := rows.Scan(&model); err != nil {
			return nil, trace.NewStorageError("sqlite", "session_metadata", err)
		}
		meta.Models = append(meta.Models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.NewStorageError("sqlite", "session_metadata", err)
	}

	return meta, nil
}

// SaveTest persists a test case, filling bookkeeping timestamps.
func (s *SQLiteStore) SaveTest(ctx context.Context, tc *trace.TestCase) error {
	if tc == nil || tc.ID == "" {
		return trace.NewStorageError("sqlite", "save_test", errors.New("test id is empty"))
	}

	now := time.Now().UTC()
	rec := *tc
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	record, err := json.Marshal(&rec)
	if err != nil {
		return trace.NewStorageError("sqlite", "save_test", err)
	}

	_, err = s.saveTestStmt.ExecContext(ctx,
		rec.ID, string(record), rec.Name, rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return trace.NewStorageError("sqlite", "save_test", err)
	}
	return nil
}

// GetTest retrieves a test case by id.
func (s *SQLiteStore) GetTest(ctx context.Context, id string) (*trace.TestCase, error) {
	var record string
	err := s.getTestStmt.QueryRowContext(ctx, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trace.NewNotFoundError("test", id)
	}
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "get_test", err)
	}

	var tc trace.TestCase
	if err := json.Unmarshal([]byte(record), &tc); err != nil {
		return nil, trace.NewStorageError("sqlite", "get_test", err)
	}
	return &tc, nil
}

// ListTests returns all stored test cases, newest first.
func (s *SQLiteStore) ListTests(ctx context.Context) ([]*trace.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM tests ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "list_tests", err)
	}
	defer rows.Close()

	tests := []*trace.TestCase{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, trace.NewStorageError("sqlite", "list_tests", err)
		}
		var tc trace.TestCase
		if err := json.Unmarshal([]byte(record), &tc); err != nil {
			return nil, trace.NewStorageError("sqlite", "list_tests", err)
		}
		tests = append(tests, &tc)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.NewStorageError("sqlite", "list_tests", err)
	}
	return tests, nil
}

// DeleteTest removes a test case by id.
func (s *SQLiteStore) DeleteTest(ctx context.Context, id string) error {
	result, err := s.deleteTestStmt.ExecContext(ctx, id)
	if err != nil {
		return trace.NewStorageError("sqlite", "delete_test", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return trace.NewStorageError("sqlite", "delete_test", err)
	}
	if affected == 0 {
		return trace.NewNotFoundError("test", id)
	}
	return nil
}

// Cleanup deletes traces older than maxAge, then trims the store to
// the newest maxCount traces. Either limit may be zero to skip it.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration, maxCount int) (int64, error) {
	var deleted int64

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge).UnixMilli()
		result, err := s.db.ExecContext(ctx, `DELETE FROM traces WHERE timestamp_ms < ?`, cutoff)
		if err != nil {
			return deleted, trace.NewStorageError("sqlite", "cleanup", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return deleted, trace.NewStorageError("sqlite", "cleanup", err)
		}
		deleted += n
	}

	if maxCount > 0 {
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM traces WHERE id IN (
				SELECT id FROM traces ORDER BY timestamp_ms DESC, id ASC LIMIT -1 OFFSET ?
			)`, maxCount)
		if err != nil {
			return deleted, trace.NewStorageError("sqlite", "cleanup", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return deleted, trace.NewStorageError("sqlite", "cleanup", err)
		}
		deleted += n
	}

	if deleted > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM redaction_audit WHERE trace_id NOT IN (SELECT id FROM traces)`); err != nil {
			s.logger.Warn("failed to prune redaction audit rows", "error", err)
		}
	}

	return deleted, nil
}

// SearchTraces runs a full-text query ranked by BM25.
func (s *SQLiteStore) SearchTraces(ctx context.Context, query string, opts *trace.ListOptions) ([]*trace.Trace, error) {
	opts = opts.WithDefaults()

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.record
		FROM traces t
		JOIN (
			SELECT trace_id, bm25(traces_fts) AS rank
			FROM traces_fts
			WHERE traces_fts MATCH ?
			ORDER BY rank
			LIMIT ? OFFSET ?
		) m ON m.trace_id = t.id
		ORDER BY m.rank`, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "search", err)
	}
	defer rows.Close()

	return s.scanTraces(rows, "search")
}

// SearchCount returns the number of traces matching a full-text query.
func (s *SQLiteStore) SearchCount(ctx context.Context, query string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM traces_fts WHERE traces_fts MATCH ?`, query).Scan(&count)
	if err != nil {
		return 0, trace.NewStorageError("sqlite", "search_count", err)
	}
	return count, nil
}

// SearchSuggest returns distinct model and endpoint values with the
// given prefix, for interactive completion.
func (s *SQLiteStore) SearchSuggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v FROM (
			SELECT DISTINCT model AS v FROM traces WHERE model IS NOT NULL AND model != ''
			UNION
			SELECT DISTINCT endpoint AS v FROM traces
		)
		WHERE v LIKE ? ESCAPE '\'
		ORDER BY v
		LIMIT ?`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "search_suggest", err)
	}
	defer rows.Close()

	suggestions := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, trace.NewStorageError("sqlite", "search_suggest", err)
		}
		suggestions = append(suggestions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.NewStorageError("sqlite", "search_suggest", err)
	}
	return suggestions, nil
}

// RecordRedactions appends redaction audit rows for a trace.
func (s *SQLiteStore) RecordRedactions(ctx context.Context, traceID string, entries []trace.RedactionEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.NewStorageError("sqlite", "record_redactions", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO redaction_audit (trace_id, field_path, value_hash, redaction_type, timestamp, user, reversible)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return trace.NewStorageError("sqlite", "record_redactions", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		var user interface{}
		if e.User != "" {
			user = e.User
		}
		if _, err := stmt.ExecContext(ctx, traceID, e.FieldPath, e.ValueHash, e.Type, ts.UnixMilli(), user, e.Reversible); err != nil {
			return trace.NewStorageError("sqlite", "record_redactions", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return trace.NewStorageError("sqlite", "record_redactions", err)
	}
	return nil
}

// Close releases resources held by the store.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.saveTraceStmt, s.getTraceStmt, s.deleteTraceStmt, s.countTracesStmt,
		s.saveTestStmt, s.getTestStmt, s.deleteTestStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if err := s.db.Close(); err != nil {
		return trace.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite store closed")
	return nil
}

// scanTraces drains a record-column result set into upgraded traces.
func (s *SQLiteStore) scanTraces(rows *sql.Rows, op string) ([]*trace.Trace, error) {
	traces := []*trace.Trace{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, trace.NewStorageError("sqlite", op, err)
		}
		t, err := s.decodeTrace([]byte(record))
		if err != nil {
			return nil, err
		}
		traces = append(traces, t)
	}
	if err := rows.Err(); err != nil {
		return nil, trace.NewStorageError("sqlite", op, err)
	}
	return traces, nil
}

func (s *SQLiteStore) decodeTrace(record []byte) (*trace.Trace, error) {
	t, warnings, err := trace.Upgrade(record)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "decode", err)
	}
	for _, w := range warnings {
		s.logger.Warn("trace upgraded on load", "trace_id", t.ID, "warning", w)
	}
	return t, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
