package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

// RethinkRing is a networked storage ring backed by a RethinkDB table,
// grounded on the teacher's db.Manager (a *r.Session wrapper issuing
// Table()/Insert()/Get()/Changes() terms). Record ids are stored as the
// table's primary key, encoded as a base-10 string since RethinkDB
// primary keys are JSON scalars, not fixed-width integers.
type RethinkRing struct {
	name     string
	readOnly bool
	sess     *r.Session
	table    string
}

// OpenRethinkRing wraps an existing session; table is created if
// absent, mirroring db.Manager.CreateTable's "create or already exists"
// tolerance.
func OpenRethinkRing(sess *r.Session, dbName, table string, readOnly bool) (*RethinkRing, error) {
	if _, err := r.DB(dbName).TableCreate(table).RunWrite(sess); err != nil {
		// tolerate "already exists", matching the teacher's string check
		if !isAlreadyExists(err) {
			return nil, fmt.Errorf("storage: create rethink table %s.%s: %w", dbName, table, err)
		}
	}
	return &RethinkRing{name: table, readOnly: readOnly, sess: sess, table: table}, nil
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

func (ring *RethinkRing) Name() string   { return ring.name }
func (ring *RethinkRing) ReadOnly() bool { return ring.readOnly }

type rethinkDoc struct {
	ID   string `rethinkdb:"id"`
	Data []byte `rethinkdb:"data"`
}

func (ring *RethinkRing) Select(ctx context.Context, id int64) (Record, bool, error) {
	cur, err := r.Table(ring.table).Get(strconv.FormatInt(id, 10)).Run(ring.sess, r.RunOpts{Context: ctx})
	if err != nil {
		return Record{}, false, err
	}
	defer cur.Close()
	var doc rethinkDoc
	if cur.IsNil() {
		return Record{}, false, nil
	}
	if err := cur.One(&doc); err != nil {
		return Record{}, false, err
	}
	return Record{ID: id, Data: doc.Data}, true, nil
}

func (ring *RethinkRing) Insert(ctx context.Context, data []byte) (int64, error) {
	if ring.readOnly {
		return 0, ErrReadOnly(ring.name)
	}
	res, err := r.Table(ring.table).Insert(map[string]any{"data": data}).RunWrite(ring.sess, r.RunOpts{Context: ctx})
	if err != nil {
		return 0, err
	}
	if len(res.GeneratedKeys) == 0 {
		return 0, fmt.Errorf("storage: rethink insert returned no generated key")
	}
	id, err := strconv.ParseInt(res.GeneratedKeys[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("storage: rethink generated a non-integer key %q: %w", res.GeneratedKeys[0], err)
	}
	return id, nil
}

func (ring *RethinkRing) InsertAt(ctx context.Context, id int64, data []byte) error {
	if ring.readOnly {
		return ErrReadOnly(ring.name)
	}
	_, err := r.Table(ring.table).Insert(rethinkDoc{ID: strconv.FormatInt(id, 10), Data: data}, r.InsertOpts{Conflict: "error"}).RunWrite(ring.sess, r.RunOpts{Context: ctx})
	return err
}

func (ring *RethinkRing) Update(ctx context.Context, id int64, data []byte) error {
	if ring.readOnly {
		return ErrReadOnly(ring.name)
	}
	_, err := r.Table(ring.table).Get(strconv.FormatInt(id, 10)).Update(map[string]any{"data": data}).RunWrite(ring.sess, r.RunOpts{Context: ctx})
	return err
}

func (ring *RethinkRing) Delete(ctx context.Context, id int64) error {
	if ring.readOnly {
		return ErrReadOnly(ring.name)
	}
	_, err := r.Table(ring.table).Get(strconv.FormatInt(id, 10)).Delete().RunWrite(ring.sess, r.RunOpts{Context: ctx})
	return err
}

// Scan streams records in id order. Only opts.Limit is applied; Start,
// Stop and Reverse are ignored.
func (ring *RethinkRing) Scan(ctx context.Context, opts ScanOptions) (<-chan Record, error) {
	term := r.Table(ring.table).OrderBy(r.OrderByOpts{Index: "id"})
	if opts.Limit > 0 {
		term = term.Limit(opts.Limit)
	}
	cur, err := term.Run(ring.sess, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, err
	}
	out := make(chan Record)
	go func() {
		defer cur.Close()
		defer close(out)
		var doc rethinkDoc
		for cur.Next(&doc) {
			id, err := strconv.ParseInt(doc.ID, 10, 64)
			if err != nil {
				continue
			}
			select {
			case out <- Record{ID: id, Data: doc.Data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Watch subscribes to table changefeeds, the teacher's
// db.Manager.SubscribeTable idiom, surfaced here as a stream of the
// post-change Record so a Registry can invalidate stale cache entries
// pushed by another node.
func (ring *RethinkRing) Watch(ctx context.Context) (<-chan Record, error) {
	cur, err := r.Table(ring.table).Changes(r.ChangesOpts{IncludeInitial: false}).Run(ring.sess, r.RunOpts{Context: ctx})
	if err != nil {
		return nil, err
	}
	out := make(chan Record)
	go func() {
		defer cur.Close()
		defer close(out)
		var change struct {
			NewVal *rethinkDoc `rethinkdb:"new_val"`
		}
		for cur.Next(&change) {
			if change.NewVal == nil {
				continue
			}
			id, err := strconv.ParseInt(change.NewVal.ID, 10, 64)
			if err != nil {
				continue
			}
			select {
			case out <- Record{ID: id, Data: change.NewVal.Data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
