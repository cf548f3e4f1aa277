package revstore

import "database/sql"

// schema creates the reserved, non-replicated tables the replicator relies
// on: the revision tree, the current-tip projection used by the change
// feed, the checkpoint table, and the per-remote synced markers (spec §1
// "the underlying storage engine ... beyond the operations the replicator
// invokes").
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id     TEXT PRIMARY KEY,
	sequence   INTEGER NOT NULL,
	generation INTEGER NOT NULL,
	digest     TEXT NOT NULL,
	body       BLOB,
	body_size  INTEGER NOT NULL DEFAULT 0,
	deleted    INTEGER NOT NULL DEFAULT 0,
	foreign_tip INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS documents_sequence ON documents(sequence);

CREATE TABLE IF NOT EXISTS revisions (
	doc_id        TEXT NOT NULL,
	generation    INTEGER NOT NULL,
	digest        TEXT NOT NULL,
	parent_digest TEXT,
	body          BLOB,
	deleted       INTEGER NOT NULL DEFAULT 0,
	foreign_rev   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (doc_id, generation, digest)
);

CREATE TABLE IF NOT EXISTS remote_markers (
	doc_id             TEXT NOT NULL,
	remote             TEXT NOT NULL,
	synced_generation  INTEGER NOT NULL,
	synced_digest      TEXT NOT NULL,
	PRIMARY KEY (doc_id, remote)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	key  TEXT PRIMARY KEY,
	data BLOB
);

CREATE TABLE IF NOT EXISTS local_meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
