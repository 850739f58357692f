package postgres

// Schema is the base PostgreSQL schema for the Engram storage backend.
// All statements are idempotent. The embedding column is stored as JSONB for
// portability; MigrationPgvector adds a native vector column when the
// extension is available.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	tenant_id        TEXT NOT NULL,
	user_id          TEXT,
	content          TEXT NOT NULL,
	memory_type      TEXT NOT NULL,
	embedding        JSONB,
	importance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata         JSONB,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
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
	strength          DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata          JSONB,
	created_at        TIMESTAMPTZ NOT NULL,
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
	outcome_score DOUBLE PRECISION,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_memory ON memory_access(tenant_id, memory_id);

CREATE TABLE IF NOT EXISTS memory_contexts (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	query          TEXT NOT NULL,
	total_tokens   INTEGER NOT NULL,
	avg_importance DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	expires_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS memory_context_items (
	context_id TEXT NOT NULL REFERENCES memory_contexts(id) ON DELETE CASCADE,
	memory_id  TEXT NOT NULL,
	position   INTEGER NOT NULL,
	content    TEXT NOT NULL,
	tokens     INTEGER NOT NULL,
	compressed BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (context_id, position)
);
`

// MigrationPgvector adds a native vector column for cosine-distance search.
// Applied only when the pgvector extension is installed. The dimension is
// left unconstrained (vector without a length) so deployments with different
// embedding models can share the schema; consistency within a tenant is the
// caller's contract.
const MigrationPgvector = `
ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector;
`
