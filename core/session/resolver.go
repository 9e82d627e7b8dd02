package session

import (
	"context"
	"sync"
	"time"

	"github.com/welfareschool/backend/core"
)

const lookupTimeout = 10 * time.Second

// Resolver follows an identity stream and resolves the admin flag of each identity.
//
// A new identity is never admin until its own lookup says so: the flag drops to false
// on every identity change, and results of superseded lookups are discarded.
// A failed or missing lookup leaves the identity a regular user.
type Resolver struct {
	lookup RoleLookup
	log    core.Logger

	// deliver serializes state changes with their notifications.
	// Watchers must not call SetIdentity.
	deliver sync.Mutex

	mu       sync.Mutex
	state    State
	seq      uint64
	watchers map[int]func(State)
	nextID   int
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  core.Unsubscribe
}

// NewResolver starts resolving the identities reported by stream.
func NewResolver(stream IdentityStream, lookup RoleLookup, log core.Logger) *Resolver {
	r := newResolver(lookup, log)
	unsub := stream.OnChange(r.SetIdentity)
	r.mu.Lock()
	r.unsub = unsub
	r.mu.Unlock()
	return r
}

func newResolver(lookup RoleLookup, log core.Logger) *Resolver {
	if log == nil {
		log = core.NopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		lookup:   lookup,
		log:      log,
		state:    State{Resolving: true},
		watchers: make(map[int]func(State)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// State returns the current session state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Watch calls fn with the current state, then after every change until unsubscribed.
func (r *Resolver) Watch(fn func(State)) core.Unsubscribe {
	r.deliver.Lock()
	defer r.deliver.Unlock()

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	state := r.state
	r.mu.Unlock()

	fn(state)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, id)
			r.mu.Unlock()
		})
	}
}

// SetIdentity records an identity change. A nil identity signs the session out.
func (r *Resolver) SetIdentity(id *Identity) {
	r.deliver.Lock()
	defer r.deliver.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.seq++
	seq := r.seq
	if id != nil {
		cp := *id
		id = &cp
	}
	r.state.Identity = id
	r.state.IsAdmin = false
	if id == nil {
		r.state.Resolving = false
	}
	state, watchers := r.state, r.watcherList()
	r.mu.Unlock()

	notify(watchers, state)

	if id != nil {
		r.wg.Add(1)
		go r.resolve(seq, id.UID)
	}
}

func (r *Resolver) resolve(seq uint64, uid string) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.ctx, lookupTimeout)
	defer cancel()
	isAdmin, err := r.lookup.IsAdmin(ctx, uid)
	if err != nil {
		r.log.Error("checking admin status", err, Identity{UID: uid})
		isAdmin = false
	}

	r.deliver.Lock()
	defer r.deliver.Unlock()

	r.mu.Lock()
	if r.closed || seq != r.seq {
		r.mu.Unlock()
		return
	}
	r.state.IsAdmin = isAdmin
	r.state.Resolving = false
	state, watchers := r.state, r.watcherList()
	r.mu.Unlock()

	notify(watchers, state)
}

// watcherList must be called with r.mu held.
func (r *Resolver) watcherList() []func(State) {
	list := make([]func(State), 0, len(r.watchers))
	for i := 0; i < r.nextID; i++ {
		if fn, ok := r.watchers[i]; ok {
			list = append(list, fn)
		}
	}
	return list
}

func notify(watchers []func(State), state State) {
	for _, fn := range watchers {
		fn(state)
	}
}

// Close stops following the identity stream and abandons pending lookups.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsub := r.unsub
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.cancel()
	r.wg.Wait()
}
