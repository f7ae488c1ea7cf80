package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the trace database
// schema. The full trace record is stored as JSON in the record
// column; columns used for filtering and ordering are extracted at
// write time.
const Schema = `
-- Trace records table
CREATE TABLE IF NOT EXISTS traces (
    id TEXT PRIMARY KEY,
    record TEXT NOT NULL,

    -- Extracted for indexing
    timestamp_ms INTEGER NOT NULL,
    endpoint TEXT NOT NULL,
    model TEXT,
    status TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    session_id TEXT,
    step_index INTEGER,
    created_at INTEGER NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_traces_timestamp ON traces(timestamp_ms DESC);
CREATE INDEX IF NOT EXISTS idx_traces_model ON traces(model);
CREATE INDEX IF NOT EXISTS idx_traces_status ON traces(status);
CREATE INDEX IF NOT EXISTS idx_traces_created_at ON traces(created_at);
CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id);
CREATE INDEX IF NOT EXISTS idx_traces_session_step ON traces(session_id, step_index);

-- Test cases table
CREATE TABLE IF NOT EXISTS tests (
    id TEXT PRIMARY KEY,
    record TEXT NOT NULL,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tests_created_at ON tests(created_at);

-- Redaction audit side table
CREATE TABLE IF NOT EXISTS redaction_audit (
    trace_id TEXT NOT NULL,
    field_path TEXT NOT NULL,
    value_hash TEXT NOT NULL,
    redaction_type TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    user TEXT,
    reversible INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_redaction_trace ON redaction_audit(trace_id);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);
`

// FTSSchema creates the full-text companion table and the triggers
// that keep it synchronized with the traces table. Searchable text is
// pulled out of the record JSON: the message list (or legacy prompt),
// the first response choice, the endpoint, and the model.
const FTSSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS traces_fts USING fts5(
    trace_id UNINDEXED,
    endpoint,
    request_text,
    response_text,
    model
);

CREATE TRIGGER IF NOT EXISTS traces_fts_ai AFTER INSERT ON traces BEGIN
    INSERT INTO traces_fts (trace_id, endpoint, request_text, response_text, model)
    VALUES (
        new.id,
        new.endpoint,
        coalesce(json_extract(new.record, '$.request.messages'), json_extract(new.record, '$.request.prompt'), ''),
        coalesce(json_extract(new.record, '$.response.choices[0].message.content'), ''),
        coalesce(new.model, '')
    );
END;

CREATE TRIGGER IF NOT EXISTS traces_fts_ad AFTER DELETE ON traces BEGIN
    DELETE FROM traces_fts WHERE trace_id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS traces_fts_au AFTER UPDATE ON traces BEGIN
    DELETE FROM traces_fts WHERE trace_id = old.id;
    INSERT INTO traces_fts (trace_id, endpoint, request_text, response_text, model)
    VALUES (
        new.id,
        new.endpoint,
        coalesce(json_extract(new.record, '$.request.messages'), json_extract(new.record, '$.request.prompt'), ''),
        coalesce(json_extract(new.record, '$.response.choices[0].message.content'), ''),
        coalesce(new.model, '')
    );
END;
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
