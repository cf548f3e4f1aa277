// Package revstore is the concrete storage-engine collaborator spec.md §1
// describes narrowly: "a key-value store on top of SQL tables," exposing
// only the operations the replicator invokes (enumerate changes, read/write
// a document with a revision history, insert/merge a foreign revision,
// maintain a per-remote last-synced marker). Built on modernc.org/sqlite,
// the same driver viant-sqlite-vec uses for its own SQL-adjacent storage.
package revstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/codetrek/litesync/pkg/model"
)

// Store is the replicator's database handle (spec §3 "Ownership"). The
// DBActor, the InsertBatcher and the CheckpointStore all call it; its
// single pooled connection serializes their statements.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed revision store at
// path. Use ":memory:" for an ephemeral store, matching modernc.org/sqlite's
// convention.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("revstore: open: %w", err)
	}
	// A single connection serializes every caller at the pool and avoids
	// SQLite's writer-lock contention entirely.
	db.SetMaxOpenConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("revstore: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LocalUUID returns the database's persistent identity, minting one with
// google/uuid on first use (spec §4.4's "local DB UUID").
func (s *Store) LocalUUID(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM local_meta WHERE key = 'uuid'`)
	var id string
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO local_meta(key, value) VALUES('uuid', ?)`, id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// IsEmpty reports whether the database holds any documents (spec §4.1
// get_checkpoint's "dbIsEmpty").
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`)
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

// GetCheckpoint reads the local checkpoint document by key.
func (s *Store) GetCheckpoint(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM checkpoints WHERE key = ?`, key)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// SetCheckpoint persists data atomically under key (spec §4.1 set_checkpoint).
func (s *Store) SetCheckpoint(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints(key, data) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data`, key, data)
	return err
}

// EnumerateChanges returns change-feed entries with sequence > since, in
// ascending sequence order, applying the optional docID allow-set and
// skipDeleted/skipForeign filters (spec §4.1 get_changes).
func (s *Store) EnumerateChanges(ctx context.Context, since uint64, docIDs map[string]struct{}, limit int, skipDeleted, skipForeign bool) ([]model.ChangeEntry, error) {
	query := `SELECT doc_id, sequence, generation, digest, deleted, body_size, foreign_tip
	          FROM documents WHERE sequence > ?`
	args := []interface{}{since}
	if skipDeleted {
		query += ` AND deleted = 0`
	}
	if skipForeign {
		query += ` AND foreign_tip = 0`
	}
	query += ` ORDER BY sequence ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChangeEntry
	for rows.Next() {
		var (
			docID           string
			seq             uint64
			gen             int
			digest          string
			deleted         bool
			bodySize        int
			foreignTip      bool
		)
		if err := rows.Scan(&docID, &seq, &gen, &digest, &deleted, &bodySize, &foreignTip); err != nil {
			return nil, err
		}
		if docIDs != nil {
			if _, ok := docIDs[docID]; !ok {
				continue
			}
		}
		out = append(out, model.ChangeEntry{
			Sequence: seq,
			DocID:    docID,
			RevID:    model.RevID{Generation: gen, Digest: digest},
			Deleted:  deleted,
			BodySize: bodySize,
		})
	}
	return out, rows.Err()
}

// DocState is the current tip of a document's revision tree.
type DocState struct {
	RevID      model.RevID
	Body       []byte
	Deleted    bool
	ForeignTip bool
	Sequence   uint64
}

// GetDocument reads the current tip of docID's revision tree.
func (s *Store) GetDocument(ctx context.Context, docID string) (DocState, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT sequence, generation, digest, body, deleted, foreign_tip
		FROM documents WHERE doc_id = ?`, docID)
	var st DocState
	var gen int
	var digest string
	err := row.Scan(&st.Sequence, &gen, &digest, &st.Body, &st.Deleted, &st.ForeignTip)
	if err == sql.ErrNoRows {
		return DocState{}, false, nil
	}
	if err != nil {
		return DocState{}, false, err
	}
	st.RevID = model.RevID{Generation: gen, Digest: digest}
	return st, true, nil
}

// RevisionExists reports whether (docID, revID) is already present in the
// revision tree, used by find_or_request_revs to suppress re-requesting
// revisions already on disk.
func (s *Store) RevisionExists(ctx context.Context, docID string, revID model.RevID) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM revisions WHERE doc_id = ? AND generation = ? AND digest = ?`,
		docID, revID.Generation, revID.Digest)
	var x int
	err := row.Scan(&x)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func nextSequence(ctx context.Context, tx *sql.Tx) (uint64, error) {
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM documents`)
	var n uint64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CreateLocal inserts a brand-new, locally-authored document at generation
// 1, bypassing the conflict machinery InsertRevision applies to foreign
// (replicated) revisions.
func (s *Store) CreateLocal(ctx context.Context, docID string, revID model.RevID, body []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq, err := nextSequence(ctx, tx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO revisions(doc_id, generation, digest, parent_digest, body, deleted, foreign_rev)
		VALUES (?, ?, ?, NULL, ?, 0, 0)`, docID, revID.Generation, revID.Digest, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO documents(doc_id, sequence, generation, digest, body, body_size, deleted, foreign_tip)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0)`, docID, seq, revID.Generation, revID.Digest, body, len(body)); err != nil {
		return err
	}
	return tx.Commit()
}

const kMaxPossibleAncestors = 10

// FindAncestors walks the revision tree from (docID, revID) toward the
// root, returning up to kMaxPossibleAncestors parent RevIDs in descending
// generation order. Mirrors DBWorker::findAncestors's cap on how deep a
// proposeChanges ancestor list is ever searched (spec §4.1, §8).
func (s *Store) FindAncestors(ctx context.Context, docID string, revID model.RevID) ([]model.RevID, error) {
	var out []model.RevID
	gen, digest := revID.Generation, revID.Digest
	for i := 0; i < kMaxPossibleAncestors; i++ {
		row := s.db.QueryRowContext(ctx, `SELECT parent_digest FROM revisions
			WHERE doc_id = ? AND generation = ? AND digest = ?`, docID, gen, digest)
		var parentDigest sql.NullString
		if err := row.Scan(&parentDigest); err != nil {
			if err == sql.ErrNoRows {
				break
			}
			return out, err
		}
		if !parentDigest.Valid {
			break
		}
		gen--
		digest = parentDigest.String
		out = append(out, model.RevID{Generation: gen, Digest: digest})
	}
	return out, nil
}

// FindProposedChange reports the status a proposeChanges entry should carry
// for (docID, revID, parentRevID): 0 if the peer should send the revision,
// 409 if the peer's claimed parent is stale relative to our tip, 403 if
// revID is already our tip or our history already forked past the
// proposed parent (spec §4.1).
func (s *Store) FindProposedChange(ctx context.Context, docID string, revID, parentRevID model.RevID) (int, error) {
	tip, found, err := s.GetDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	if !found {
		if parentRevID.IsZero() {
			return 0, nil
		}
		return 409, nil
	}
	if tip.RevID == revID {
		return 403, nil
	}
	if parentRevID.IsZero() {
		return 403, nil
	}
	if tip.RevID == parentRevID {
		return 0, nil
	}
	if tip.RevID.Less(parentRevID) {
		return 409, nil
	}
	return 403, nil
}

// InsertRevision merges a single foreign (replicated) revision into the
// tree, in its own transaction. Most callers should prefer
// InsertRevisionBatch, which amortizes the fsync cost of a commit across
// many revisions (spec §4.1's batched insert algorithm); this remains for
// callers inserting exactly one revision.
func (s *Store) InsertRevision(ctx context.Context, rev model.RevToInsert, forced bool) (conflict bool, err error) {
	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return false, txErr
	}
	defer tx.Rollback()

	conflict, err = insertRevisionTx(ctx, tx, rev, forced)
	if err != nil {
		return conflict, err
	}
	return conflict, tx.Commit()
}

// BatchInsertResult reports the per-revision outcome of InsertRevisionBatch.
type BatchInsertResult struct {
	Rev      model.RevToInsert
	Conflict bool
	Err      error
}

// InsertRevisionBatch merges every rev into the tree inside a single write
// transaction, committing once (spec §4.1: "amortizes fsync cost across
// many revs" — the point of batching at all). Each revision is first
// attempted as a non-forced insert; a generation mismatch (the revision's
// claimed parent isn't the current tip) surfaces as model.ErrConflict, and
// that revision alone is retried forced, mirroring the two-phase
// insert_revision algorithm the spec describes. A non-conflict error
// aborts and rolls back the whole batch, since it indicates the
// transaction itself is no longer trustworthy.
func (s *Store) InsertRevisionBatch(ctx context.Context, revs []model.RevToInsert) ([]BatchInsertResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	results := make([]BatchInsertResult, len(revs))
	for i, rev := range revs {
		conflict, err := insertRevisionTx(ctx, tx, rev, false)
		if errors.Is(err, model.ErrConflict) {
			conflict, err = insertRevisionTx(ctx, tx, rev, true)
		}
		if err != nil && !errors.Is(err, model.ErrConflict) {
			return nil, err
		}
		results[i] = BatchInsertResult{Rev: rev, Conflict: conflict, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

// insertRevisionTx runs InsertRevision's core logic against an
// already-open transaction. If the revision's immediate parent is the
// current tip, it becomes the new tip. If forced is true (spec's "force
// insert" path, retried after a resolved conflict, or used when the
// peer's history has diverged), it is inserted as a branch and the new
// tip is chosen by RevID.Less. If forced is false and the revision does
// not extend the known tip, it is left as a non-winning branch and
// insertRevisionTx returns model.ErrConflict so the caller can retry
// forced — the generation-mismatch signal spec §4.1 describes.
func insertRevisionTx(ctx context.Context, tx *sql.Tx, rev model.RevToInsert, forced bool) (conflict bool, err error) {
	var parentDigest interface{}
	if len(rev.History) > 0 {
		parentDigest = rev.History[0].Digest
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions(doc_id, generation, digest, parent_digest, body, deleted, foreign_rev)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(doc_id, generation, digest) DO NOTHING`,
		rev.DocID, rev.RevID.Generation, rev.RevID.Digest, parentDigest, rev.Body, rev.Flags.Deleted); err != nil {
		return false, err
	}

	row := tx.QueryRowContext(ctx, `SELECT sequence, generation, digest FROM documents WHERE doc_id = ?`, rev.DocID)
	var curSeq uint64
	var curGen int
	var curDigest string
	err = row.Scan(&curSeq, &curGen, &curDigest)
	switch {
	case err == sql.ErrNoRows:
		seq, serr := nextSequence(ctx, tx)
		if serr != nil {
			return false, serr
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(doc_id, sequence, generation, digest, body, body_size, deleted, foreign_tip)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)`, rev.DocID, seq, rev.RevID.Generation, rev.RevID.Digest, rev.Body, len(rev.Body), rev.Flags.Deleted); err != nil {
			return false, err
		}
		return false, nil
	case err != nil:
		return false, err
	}

	curTip := model.RevID{Generation: curGen, Digest: curDigest}
	extendsTip := len(rev.History) > 0 && rev.History[0] == curTip
	becomesTip := extendsTip
	if !extendsTip && forced {
		becomesTip = curTip.Less(rev.RevID)
		conflict = true
	} else if !extendsTip {
		return true, fmt.Errorf("%w: doc %q rev %s does not extend tip %s", model.ErrConflict, rev.DocID, rev.RevID, curTip)
	}

	if becomesTip {
		seq, serr := nextSequence(ctx, tx)
		if serr != nil {
			return conflict, serr
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET sequence = ?, generation = ?, digest = ?, body = ?, body_size = ?, deleted = ?, foreign_tip = 1
			WHERE doc_id = ?`, seq, rev.RevID.Generation, rev.RevID.Digest, rev.Body, len(rev.Body), rev.Flags.Deleted, rev.DocID); err != nil {
			return conflict, err
		}
	}

	return conflict, nil
}

// MarkRemoteSynced records the last revision of docID known to be synced
// with remote (spec §1's "per-remote synced markers").
func (s *Store) MarkRemoteSynced(ctx context.Context, docID, remote string, revID model.RevID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remote_markers(doc_id, remote, synced_generation, synced_digest) VALUES (?, ?, ?, ?)
		ON CONFLICT(doc_id, remote) DO UPDATE SET synced_generation = excluded.synced_generation, synced_digest = excluded.synced_digest`,
		docID, remote, revID.Generation, revID.Digest)
	return err
}

// GetRemoteSynced returns the last revision of docID marked synced with
// remote, if any.
func (s *Store) GetRemoteSynced(ctx context.Context, docID, remote string) (model.RevID, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT synced_generation, synced_digest FROM remote_markers WHERE doc_id = ? AND remote = ?`, docID, remote)
	var gen int
	var digest string
	err := row.Scan(&gen, &digest)
	if err == sql.ErrNoRows {
		return model.RevID{}, false, nil
	}
	if err != nil {
		return model.RevID{}, false, err
	}
	return model.RevID{Generation: gen, Digest: digest}, true, nil
}
