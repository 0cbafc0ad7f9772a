/*
Copyright 2024 The godos Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package catalog implements the durable hex-digest -> pack-coordinates
// index that backs the object store's Pack Store. It is a thin,
// single-writer layer over database/sql with the modernc.org/sqlite
// pure-Go driver: every mutating call opens or reuses a *sql.DB against
// the container's packs.idx file.
package catalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// maxHostParams bounds how many hex keys go into a single "WHERE hashkey
// IN (...)" query, to stay clear of SQLite's host-parameter limit.
const maxHostParams = 950

// SQLiteSelectError wraps a failure executing a catalog SELECT.
type SQLiteSelectError struct {
	Err error
}

func (e *SQLiteSelectError) Error() string { return fmt.Sprintf("catalog select: %v", e.Err) }
func (e *SQLiteSelectError) Unwrap() error { return e.Err }

// SQLiteInsertError wraps a failure executing a catalog INSERT.
type SQLiteInsertError struct {
	Err error
}

func (e *SQLiteInsertError) Error() string { return fmt.Sprintf("catalog insert: %v", e.Err) }
func (e *SQLiteInsertError) Unwrap() error { return e.Err }

// Entry is one catalog row: the pack-store coordinates of a single
// logical object.
type Entry struct {
	Hashkey    string
	Compressed bool
	RawSize    int64
	Size       int64
	Offset     int64
	PackID     int64
}

const schema = `
CREATE TABLE IF NOT EXISTS db_object (
	id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	hashkey VARCHAR NOT NULL,
	compressed BOOLEAN NOT NULL,
	raw_size INTEGER NOT NULL,
	size INTEGER NOT NULL,
	offset INTEGER NOT NULL,
	pack_id INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_db_object_hashkey ON db_object (hashkey);
`

// Create opens (creating if needed) the catalog database at path,
// enables write-ahead journaling, and ensures the entries table and its
// unique hashkey index exist. It is idempotent.
func Create(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return &SQLiteInsertError{Err: err}
	}
	defer db.Close()

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return &SQLiteInsertError{Err: err}
	}
	if _, err := db.Exec(schema); err != nil {
		return &SQLiteInsertError{Err: err}
	}
	return nil
}

// Catalog is an open handle onto a container's catalog database. It is
// safe for concurrent readers; it assumes a single concurrent writer, as
// the rest of the store does.
type Catalog struct {
	db *sql.DB
}

// Open opens the catalog database at path. The schema must already
// exist (see Create).
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &SQLiteInsertError{Err: err}
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database handle.
func (c *Catalog) Close() error { return c.db.Close() }

// Tx is a single catalog transaction, used by the pack store to batch
// inserts within one pack-rollover window.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a new transaction.
func (c *Catalog) Begin() (*Tx, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, &SQLiteInsertError{Err: err}
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return &SQLiteInsertError{Err: err}
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return &SQLiteInsertError{Err: err}
	}
	return nil
}

// Insert records e within the transaction. Duplicate hashkeys are
// silently ignored (INSERT OR IGNORE semantics), matching the store's
// idempotent-insert invariant.
func (t *Tx) Insert(e Entry) error {
	_, err := t.tx.Exec(
		`INSERT OR IGNORE INTO db_object (hashkey, compressed, raw_size, size, offset, pack_id) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Hashkey, e.Compressed, e.RawSize, e.Size, e.Offset, e.PackID,
	)
	if err != nil {
		return &SQLiteInsertError{Err: err}
	}
	return nil
}

// Select looks up a single entry by hex digest. The second return value
// is false if no such entry exists.
func (c *Catalog) Select(hashkey string) (Entry, bool, error) {
	row := c.db.QueryRow(
		`SELECT hashkey, compressed, raw_size, size, offset, pack_id FROM db_object WHERE hashkey = ?`,
		hashkey,
	)
	var e Entry
	if err := row.Scan(&e.Hashkey, &e.Compressed, &e.RawSize, &e.Size, &e.Offset, &e.PackID); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, &SQLiteSelectError{Err: err}
	}
	return e, true, nil
}

// SelectMany looks up entries for the given hex digests, chunking the
// request into groups of at most maxHostParams keys per query. Missing
// keys are simply absent from the result; order is not preserved.
func (c *Catalog) SelectMany(hashkeys []string) ([]Entry, error) {
	var out []Entry
	for start := 0; start < len(hashkeys); start += maxHostParams {
		end := min(start+maxHostParams, len(hashkeys))
		chunk := hashkeys[start:end]

		placeholders := make([]byte, 0, len(chunk)*2)
		args := make([]any, len(chunk))
		for i, h := range chunk {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = h
		}
		query := fmt.Sprintf(
			"SELECT hashkey, compressed, raw_size, size, offset, pack_id FROM db_object WHERE hashkey IN (%s)",
			placeholders,
		)
		rows, err := c.db.Query(query, args...)
		if err != nil {
			return nil, &SQLiteSelectError{Err: err}
		}
		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.Hashkey, &e.Compressed, &e.RawSize, &e.Size, &e.Offset, &e.PackID); err != nil {
				rows.Close()
				return nil, &SQLiteSelectError{Err: err}
			}
			out = append(out, e)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, &SQLiteSelectError{Err: err}
		}
		rows.Close()
	}
	return out, nil
}

// AllHashkeys returns every hex digest present in the catalog, used by
// the loose-to-pack migration to dedup before inserting.
func (c *Catalog) AllHashkeys() (map[string]bool, error) {
	rows, err := c.db.Query(`SELECT hashkey FROM db_object`)
	if err != nil {
		return nil, &SQLiteSelectError{Err: err}
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, &SQLiteSelectError{Err: err}
		}
		set[h] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &SQLiteSelectError{Err: err}
	}
	return set, nil
}

// Stats returns the number of catalog entries and the sum of their
// RawSize.
func (c *Catalog) Stats() (count int64, totalRawSize int64, err error) {
	row := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(raw_size), 0) FROM db_object`)
	if err := row.Scan(&count, &totalRawSize); err != nil {
		return 0, 0, &SQLiteSelectError{Err: err}
	}
	return count, totalRawSize, nil
}
