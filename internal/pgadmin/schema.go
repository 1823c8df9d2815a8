package pgadmin

import (
	"context"
	"fmt"
)

// Schema is the MatrixHub application schema. It is baked into the image's
// init directory at build time and can also be applied here for re-init.
const Schema = `
CREATE TABLE IF NOT EXISTS entity (
    uid          TEXT PRIMARY KEY,
    type         TEXT NOT NULL,
    name         TEXT NOT NULL,
    version      TEXT NOT NULL DEFAULT '',
    description  TEXT,
    data         JSONB NOT NULL DEFAULT '{}'::jsonb,
    source_url   TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS remote (
    url          TEXT PRIMARY KEY,
    name         TEXT,
    enabled      BOOLEAN NOT NULL DEFAULT TRUE,
    last_sync_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS embedding_chunk (
    id          BIGSERIAL PRIMARY KEY,
    entity_uid  TEXT NOT NULL REFERENCES entity(uid) ON DELETE CASCADE,
    chunk_index INT NOT NULL,
    content     TEXT NOT NULL,
    embedding   REAL[],
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (entity_uid, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_entity_type ON entity(type);
CREATE INDEX IF NOT EXISTS idx_entity_name ON entity(name);
CREATE INDEX IF NOT EXISTS idx_entity_data ON entity USING GIN (data);
CREATE INDEX IF NOT EXISTS idx_embedding_chunk_entity ON embedding_chunk(entity_uid);
`

// EnsureSchema creates the application tables and indexes if they don't exist.
func (a *Admin) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
