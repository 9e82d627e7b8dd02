// Package feed fans document changes out to live queries.
//
// Each subscription owns a delivery goroutine. Change signals coalesce: a subscriber
// that falls behind skips straight to the latest result set, which is always complete.
package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
)

var ErrClosed = errors.New("feed: broker closed")

// FetchFunc evaluates a query against the current store state.
type FetchFunc func(ctx context.Context, q core.Query) ([]core.Document, error)

// Option customizes Broker construction.
type Option func(*Broker)

// WithLogger injects a logger for fetch failures.
func WithLogger(logger core.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type Broker struct {
	fetch  FetchFunc
	logger core.Logger

	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{} // {collection: subs}
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	query      core.Query
	onSnapshot core.SnapshotFunc
	signal     chan struct{}
	done       chan struct{}
	cancelled  int32
	once       sync.Once
}

func New(fetch FetchFunc, opts ...Option) *Broker {
	b := &Broker{
		fetch:  fetch,
		logger: core.NopLogger{},
		subs:   make(map[string]map[*subscription]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe registers a live query. The first snapshot is delivered asynchronously.
func (b *Broker) Subscribe(q core.Query, onSnapshot core.SnapshotFunc) (core.Unsubscribe, error) {
	if onSnapshot == nil {
		return nil, errors.New("feed: nil snapshot func")
	}
	sub := &subscription{
		query:      q,
		onSnapshot: onSnapshot,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.subs[q.Collection] == nil {
		b.subs[q.Collection] = make(map[*subscription]struct{})
	}
	b.subs[q.Collection][sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	openSubscriptions.WithLabelValues(q.Collection).Inc()
	sub.notify()
	go b.run(sub)

	return func() { b.remove(sub) }, nil
}

// Publish signals every live query on collection that its result set may have changed.
func (b *Broker) Publish(collection string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[collection] {
		sub.notify()
	}
}

// Collections lists the collections with at least one live query.
func (b *Broker) Collections() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	colls := make([]string, 0, len(b.subs))
	for coll, subs := range b.subs {
		if len(subs) > 0 {
			colls = append(colls, coll)
		}
	}
	return colls
}

// Close cancels every subscription and waits for in-flight deliveries to return.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscription
	for _, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		b.remove(sub)
	}
	b.wg.Wait()
}

func (b *Broker) remove(sub *subscription) {
	sub.once.Do(func() {
		atomic.StoreInt32(&sub.cancelled, 1)
		close(sub.done)

		b.mu.Lock()
		if subs, ok := b.subs[sub.query.Collection]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subs, sub.query.Collection)
			}
		}
		b.mu.Unlock()
		openSubscriptions.WithLabelValues(sub.query.Collection).Dec()
	})
}

func (b *Broker) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case <-sub.signal:
		}

		docs, err := b.fetch(context.Background(), sub.query)
		if err != nil {
			b.logger.Error("feed: fetching snapshot", errors.Wrapf(err, "querying %s", sub.query.Collection))
			continue
		}
		if sub.isCancelled() {
			return
		}
		sub.onSnapshot(docs)
		deliveredSnapshots.WithLabelValues(sub.query.Collection).Inc()
	}
}

// notify never blocks: a pending signal already covers this change.
func (sub *subscription) notify() {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

func (sub *subscription) isCancelled() bool {
	return atomic.LoadInt32(&sub.cancelled) == 1
}
