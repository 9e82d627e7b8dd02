// Package memdb is an in-process core.DocStore. It is the default store for local runs and tests.
package memdb

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/storage/database/feed"
)

type (
	DB struct {
		mu     sync.RWMutex
		tables map[string]*table
		feed   *feed.Broker
	}

	table struct {
		rows map[string]core.Data
	}
)

var _ core.DocStore = (*DB)(nil) // interface compliance check

func Open(opts ...feed.Option) *DB {
	db := &DB{tables: make(map[string]*table)}
	db.feed = feed.New(db.Query, opts...)
	return db
}

// tbl must be called with db.mu held.
func (db *DB) tbl(collection string) *table {
	t, ok := db.tables[collection]
	if !ok {
		t = &table{rows: make(map[string]core.Data)}
		db.tables[collection] = t
	}
	return t
}

func (db *DB) Create(ctx context.Context, collection, id string, data core.Data) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.New().String()
	}

	db.mu.Lock()
	t := db.tbl(collection)
	if _, exists := t.rows[id]; exists {
		db.mu.Unlock()
		return "", core.ErrAlreadyExists
	}
	t.rows[id] = core.ResolveServerTimestamps(core.CopyData(data), core.NowFunc())
	db.mu.Unlock()

	db.feed.Publish(collection)
	return id, nil
}

func (db *DB) Update(ctx context.Context, collection, id string, data core.Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	row, ok := db.tbl(collection).rows[id]
	if !ok {
		db.mu.Unlock()
		return core.ErrNotFound
	}
	// only save set fields
	for k, v := range core.ResolveServerTimestamps(core.CopyData(data), core.NowFunc()) {
		row[k] = v
	}
	db.mu.Unlock()

	db.feed.Publish(collection)
	return nil
}

func (db *DB) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	delete(db.tbl(collection).rows, id)
	db.mu.Unlock()

	db.feed.Publish(collection)
	return nil
}

func (db *DB) Get(ctx context.Context, collection, id string) (core.Document, error) {
	if err := ctx.Err(); err != nil {
		return core.Document{}, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[collection]
	if !ok {
		return core.Document{}, core.ErrNotFound
	}
	row, ok := t.rows[id]
	if !ok {
		return core.Document{}, core.ErrNotFound
	}
	return core.Document{ID: id, Data: core.CopyData(row)}, nil
}

func (db *DB) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.mu.RLock()
	docs := make([]core.Document, 0)
	if t, ok := db.tables[q.Collection]; ok {
		for id, row := range t.rows {
			doc := core.Document{ID: id, Data: row}
			if q.Matches(doc) {
				docs = append(docs, core.Document{ID: id, Data: core.CopyData(row)})
			}
		}
	}
	db.mu.RUnlock()

	q.Sort(docs)
	return docs, nil
}

func (db *DB) Subscribe(q core.Query, onSnapshot core.SnapshotFunc) (core.Unsubscribe, error) {
	return db.feed.Subscribe(q, onSnapshot)
}

func (db *DB) Close() error {
	db.feed.Close()
	return nil
}
