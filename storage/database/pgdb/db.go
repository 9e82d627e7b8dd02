// Package pgdb is a core.DocStore over a PostgreSQL JSONB table.
//
// Writes fire a trigger that NOTIFYs the changed collection; every process
// listening on the channel re-runs its live queries for that collection.
package pgdb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/storage/database/feed"
)

// Channel is the NOTIFY channel of the documents trigger.
const Channel = "document_changes"

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

const uniqueViolation = "23505"

type (
	DB struct {
		db       *sqlx.DB
		listener *pq.Listener
		feed     *feed.Broker
		logger   core.Logger
		done     chan struct{}
		stopped  chan struct{}

		closeOnce sync.Once
		closeErr  error
	}

	row struct {
		ID   string `db:"id"`
		Data []byte `db:"data"`
	}
)

var _ core.DocStore = (*DB)(nil) // interface compliance check

// Open connects to the database at dsn and starts listening for changes.
// The documents table must have been migrated.
func Open(dsn string, logger core.Logger, opts ...feed.Option) (*DB, error) {
	if logger == nil {
		logger = core.NopLogger{}
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}

	store := newDB(db, logger, opts...)
	store.listener = pq.NewListener(dsn, minReconnect, maxReconnect, store.listenerEvent)
	if err = store.listener.Listen(Channel); err != nil {
		_ = store.listener.Close()
		_ = db.Close()
		return nil, errors.Wrap(err, "listening for changes")
	}
	go store.listen()
	return store, nil
}

func newDB(db *sqlx.DB, logger core.Logger, opts ...feed.Option) *DB {
	store := &DB{
		db:      db,
		logger:  logger,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	store.feed = feed.New(store.Query, append([]feed.Option{feed.WithLogger(logger)}, opts...)...)
	return store
}

// SQL exposes the connection for migrations and maintenance.
func (db *DB) SQL() *sqlx.DB {
	return db.db
}

func (db *DB) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		db.logger.Warn("change listener disconnected", err)
	case pq.ListenerEventConnectionAttemptFailed:
		db.logger.Warn("change listener reconnect failed", err)
	}
}

// listen forwards change notifications to the live queries. After a reconnect
// the notifications sent in between are lost, so every collection is refreshed.
func (db *DB) listen() {
	defer close(db.stopped)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case n := <-db.listener.Notify:
			if n == nil {
				for _, collection := range db.feed.Collections() {
					db.feed.Publish(collection)
				}
				continue
			}
			db.feed.Publish(n.Extra)
		case <-ticker.C:
			go func() { _ = db.listener.Ping() }()
		case <-db.done:
			return
		}
	}
}

func encode(data core.Data) ([]byte, error) {
	b, err := json.Marshal(core.ResolveServerTimestamps(core.CopyData(data), core.NowFunc()))
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	return b, nil
}

func decode(r row) (core.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(r.Data))
	dec.UseNumber()
	data := make(core.Data)
	if err := dec.Decode(&data); err != nil {
		return core.Document{}, errors.Wrapf(err, "decoding document %s", r.ID)
	}
	return core.Document{ID: r.ID, Data: data}, nil
}

func (db *DB) Create(ctx context.Context, collection, id string, data core.Data) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	b, err := encode(data)
	if err != nil {
		return "", err
	}

	const q = `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`
	if _, err = db.db.ExecContext(ctx, q, collection, id, string(b)); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return "", core.ErrAlreadyExists
		}
		return "", errors.Wrap(err, "inserting document")
	}
	db.feed.Publish(collection)
	return id, nil
}

// Update merges the top level fields of data into the stored document.
func (db *DB) Update(ctx context.Context, collection, id string, data core.Data) error {
	b, err := encode(data)
	if err != nil {
		return err
	}

	const q = `UPDATE documents SET data = data || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`
	res, err := db.db.ExecContext(ctx, q, collection, id, string(b))
	if err != nil {
		return errors.Wrap(err, "updating document")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "updating document")
	} else if n == 0 {
		return core.ErrNotFound
	}
	db.feed.Publish(collection)
	return nil
}

func (db *DB) Delete(ctx context.Context, collection, id string) error {
	const q = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	if _, err := db.db.ExecContext(ctx, q, collection, id); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	db.feed.Publish(collection)
	return nil
}

func (db *DB) Get(ctx context.Context, collection, id string) (core.Document, error) {
	var r row
	const q = `SELECT id, data FROM documents WHERE collection = $1 AND id = $2`
	if err := db.db.GetContext(ctx, &r, q, collection, id); err != nil {
		if err == sql.ErrNoRows {
			return core.Document{}, core.ErrNotFound
		}
		return core.Document{}, errors.Wrap(err, "getting document")
	}
	return decode(r)
}

// Query pushes the equality filters down as a JSONB containment and orders in
// memory, so that every store sorts mixed values the same way.
func (db *DB) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	stmt, args, err := selectStatement(q)
	if err != nil {
		return nil, err
	}

	var rows []row
	if err = db.db.SelectContext(ctx, &rows, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}

	docs := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := decode(r)
		if err != nil {
			return nil, err
		}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	q.Sort(docs)
	return docs, nil
}

func selectStatement(q core.Query) (string, []interface{}, error) {
	var (
		sb       strings.Builder
		args     = []interface{}{q.Collection}
		contains = make(map[string]interface{})
	)
	sb.WriteString("SELECT id, data FROM documents WHERE collection = $1")
	for _, f := range q.Where {
		if f.Field == core.IDField {
			args = append(args, core.AsString(f.Value))
			sb.WriteString(fmt.Sprintf(" AND id = $%d", len(args)))
			continue
		}
		contains[f.Field] = f.Value
	}
	if len(contains) > 0 {
		b, err := json.Marshal(contains)
		if err != nil {
			return "", nil, errors.Wrap(err, "encoding filters")
		}
		args = append(args, string(b))
		sb.WriteString(fmt.Sprintf(" AND data @> $%d::jsonb", len(args)))
	}
	return sb.String(), args, nil
}

func (db *DB) Subscribe(q core.Query, onSnapshot core.SnapshotFunc) (core.Unsubscribe, error) {
	return db.feed.Subscribe(q, onSnapshot)
}

// Close stops the change listener and the live queries, then closes the
// connection. Later calls return the result of the first.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		close(db.done)
		<-db.stopped
		db.feed.Close()
		if err := db.listener.Close(); err != nil {
			db.logger.Warn("closing change listener", err)
		}
		db.closeErr = db.db.Close()
	})
	return db.closeErr
}
