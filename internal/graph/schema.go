package graph

import "fmt"

const DefaultDimensions = 768

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id TEXT NOT NULL,
    label TEXT NOT NULL,
    name TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    confidence REAL NOT NULL DEFAULT 0.8,
    source_text TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now')),
    valid_from DATETIME DEFAULT (datetime('now')),
    valid_until DATETIME,
    is_current INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_nodes_owner ON nodes(owner_id, is_current);
CREATE INDEX IF NOT EXISTS idx_nodes_canonical ON nodes(owner_id, canonical_name, is_current);
CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(owner_id, label, is_current);

CREATE TABLE IF NOT EXISTS node_props (
    node_id INTEGER NOT NULL REFERENCES nodes(id),
    key TEXT NOT NULL,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_node_props_node ON node_props(node_id);
CREATE INDEX IF NOT EXISTS idx_node_props_lookup ON node_props(key, value);

CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id TEXT NOT NULL,
    source_id INTEGER NOT NULL REFERENCES nodes(id),
    target_id INTEGER NOT NULL REFERENCES nodes(id),
    relation TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    confidence REAL NOT NULL DEFAULT 0.8,
    created_at DATETIME DEFAULT (datetime('now')),
    valid_from DATETIME DEFAULT (datetime('now')),
    valid_until DATETIME,
    is_current INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id, is_current);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id, is_current);
CREATE INDEX IF NOT EXISTS idx_edges_owner ON edges(owner_id, is_current);

CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id TEXT NOT NULL,
    text TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);

CREATE TABLE IF NOT EXISTS ingest_log (
    op_id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    document_id INTEGER REFERENCES documents(id),
    nodes_added INTEGER NOT NULL DEFAULT 0,
    edges_added INTEGER NOT NULL DEFAULT 0,
    merges_applied INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now'))
);
`

func vecSchema(dimensions int) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_nodes USING vec0(
    node_id INTEGER PRIMARY KEY,
    embedding FLOAT[%d]
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_documents USING vec0(
    document_id INTEGER PRIMARY KEY,
    embedding FLOAT[%d]
);
`, dimensions, dimensions)
}
