package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteRing is a single storage ring (writable or read-only) backed by a local sqlite
// file, grounded on the teacher's localdb.DB (a sql.DB wrapper storing
// blobs keyed by collection+key, WAL-mode, avoiding the file-lock
// timeouts a single-process BoltDB deployment would hit).
type SQLiteRing struct {
	name     string
	readOnly bool
	db       *sql.DB
}

// OpenSQLiteRing opens/creates the ring's sqlite file under stateDir.
func OpenSQLiteRing(stateDir, name string, readOnly bool) (*SQLiteRing, error) {
	if stateDir == "" {
		stateDir = "."
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(stateDir, fmt.Sprintf("ring-%s.sqlite", name))
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		// non-fatal: some filesystems don't support WAL.
		_ = err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (id INTEGER PRIMARY KEY, data BLOB NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init sqlite ring %q schema: %w", name, err)
	}
	return &SQLiteRing{name: name, readOnly: readOnly, db: db}, nil
}

func (r *SQLiteRing) Close() error { return r.db.Close() }

func (r *SQLiteRing) Name() string   { return r.name }
func (r *SQLiteRing) ReadOnly() bool { return r.readOnly }

func (r *SQLiteRing) Select(ctx context.Context, id int64) (Record, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return Record{ID: id, Data: data}, true, nil
}

func (r *SQLiteRing) Insert(ctx context.Context, data []byte) (int64, error) {
	if r.readOnly {
		return 0, ErrReadOnly(r.name)
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO records(data) VALUES (?)`, data)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRing) InsertAt(ctx context.Context, id int64, data []byte) error {
	if r.readOnly {
		return ErrReadOnly(r.name)
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO records(id, data) VALUES (?, ?)`, id, data)
	return err
}

func (r *SQLiteRing) Update(ctx context.Context, id int64, data []byte) error {
	if r.readOnly {
		return ErrReadOnly(r.name)
	}
	_, err := r.db.ExecContext(ctx, `UPDATE records SET data = ? WHERE id = ?`, data, id)
	return err
}

func (r *SQLiteRing) Delete(ctx context.Context, id int64) error {
	if r.readOnly {
		return ErrReadOnly(r.name)
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	return err
}

func (r *SQLiteRing) Scan(ctx context.Context, opts ScanOptions) (<-chan Record, error) {
	query := `SELECT id, data FROM records WHERE id >= ? AND (? = 0 OR id <= ?) ORDER BY id`
	if opts.Reverse {
		query = `SELECT id, data FROM records WHERE id >= ? AND (? = 0 OR id <= ?) ORDER BY id DESC`
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	rows, err := r.db.QueryContext(ctx, query, opts.Start, opts.Stop, opts.Stop)
	if err != nil {
		return nil, err
	}

	out := make(chan Record)
	go func() {
		defer rows.Close()
		defer close(out)
		for rows.Next() {
			var rec Record
			if err := rows.Scan(&rec.ID, &rec.Data); err != nil {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
