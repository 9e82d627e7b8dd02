// Package live keeps in-memory views of live store queries for one client session.
package live

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
)

var ErrClosed = errors.New("live: collection closed")

// SubscribeFunc opens a live query delivering whole values to onChange.
type SubscribeFunc[V any] func(onChange func(V)) (core.Unsubscribe, error)

// Snapshot is the state of a Collection. Loading stays true until the first value
// of the current binding arrives.
type Snapshot[V any] struct {
	Value   V
	Loading bool
}

// Collection holds the latest value of one live query.
//
// Binding replaces the query: the previous subscription is released first, and values
// it still delivers are dropped. onUpdate sees every state change in order and must
// not call back into the Collection.
type Collection[V any] struct {
	onUpdate func(Snapshot[V])

	deliver sync.Mutex // serializes state changes with onUpdate

	mu      sync.Mutex
	value   V
	loading bool
	gen     uint64
	unsub   core.Unsubscribe
	closed  bool
}

func NewCollection[V any](onUpdate func(Snapshot[V])) *Collection[V] {
	if onUpdate == nil {
		onUpdate = func(Snapshot[V]) {}
	}
	return &Collection[V]{onUpdate: onUpdate, loading: true}
}

func (c *Collection[V]) Snapshot() Snapshot[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot[V]{Value: c.value, Loading: c.loading}
}

// Bind releases the current subscription, resets the collection to loading
// and subscribes again.
func (c *Collection[V]) Bind(subscribe SubscribeFunc[V]) error {
	c.deliver.Lock()
	gen, err := c.reset()
	c.deliver.Unlock()
	if err != nil {
		return err
	}

	unsub, err := subscribe(func(v V) { c.apply(gen, v) })
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.gen != gen { // rebound or closed meanwhile
		c.mu.Unlock()
		unsub()
		return nil
	}
	c.unsub = unsub
	c.mu.Unlock()
	return nil
}

// Unbind releases the current subscription and leaves the collection empty and loading.
func (c *Collection[V]) Unbind() {
	c.deliver.Lock()
	defer c.deliver.Unlock()
	_, _ = c.reset()
}

// reset must be called with c.deliver held.
func (c *Collection[V]) reset() (uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	unsub := c.unsub
	c.unsub = nil
	c.gen++
	gen := c.gen
	wasLoading := c.loading
	var zero V
	c.value = zero
	c.loading = true
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if !wasLoading {
		c.onUpdate(Snapshot[V]{Value: zero, Loading: true})
	}
	return gen, nil
}

func (c *Collection[V]) apply(gen uint64, v V) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.loading = false
	c.mu.Unlock()

	c.onUpdate(Snapshot[V]{Value: v})
}

// Close releases the subscription. Later values are dropped. Calling it again is a no-op.
func (c *Collection[V]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}
