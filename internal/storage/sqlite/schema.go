package sqlite

// Schema is the complete SQLite schema for the Engram storage backend.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every open. Embeddings are stored as JSON arrays; similarity scoring is
// done in-process by the engine (no native vector index in SQLite).
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	user_id          TEXT,
	content          TEXT NOT NULL,
	memory_type      TEXT NOT NULL,
	embedding        TEXT,
	importance_score REAL NOT NULL DEFAULT 0,
	metadata         TEXT,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_tenant ON memories(tenant_id);
CREATE INDEX IF NOT EXISTS idx_memories_tenant_type ON memories(tenant_id, memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_tenant_created ON memories(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS memory_relationships (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	source_id         TEXT NOT NULL,
	target_id         TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	strength          REAL NOT NULL DEFAULT 0,
	metadata          TEXT,
	created_at        TIMESTAMP NOT NULL,
	UNIQUE(tenant_id, source_id, target_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON memory_relationships(tenant_id, source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON memory_relationships(tenant_id, target_id);

CREATE TABLE IF NOT EXISTS memory_access (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	memory_id     TEXT NOT NULL,
	access_type   TEXT NOT NULL,
	context       TEXT,
	outcome       TEXT,
	outcome_score REAL,
	created_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_memory ON memory_access(tenant_id, memory_id);

CREATE TABLE IF NOT EXISTS memory_contexts (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	query          TEXT NOT NULL,
	total_tokens   INTEGER NOT NULL,
	avg_importance REAL NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	expires_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memory_context_items (
	context_id TEXT NOT NULL,
	memory_id  TEXT NOT NULL,
	position   INTEGER NOT NULL,
	content    TEXT NOT NULL,
	tokens     INTEGER NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (context_id, position),
	FOREIGN KEY (context_id) REFERENCES memory_contexts(id) ON DELETE CASCADE
);
`
