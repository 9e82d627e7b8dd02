package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
)

type lookupResult struct {
	isAdmin bool
	err     error
}

// fakeLookup answers each uid from its own channel, so tests control timing.
type fakeLookup struct {
	mu      sync.Mutex
	replies map[string]chan lookupResult
	calls   []string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{replies: make(map[string]chan lookupResult)}
}

func (l *fakeLookup) reply(uid string) chan lookupResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.replies[uid]
	if !ok {
		ch = make(chan lookupResult, 1)
		l.replies[uid] = ch
	}
	return ch
}

func (l *fakeLookup) IsAdmin(ctx context.Context, uid string) (bool, error) {
	l.mu.Lock()
	l.calls = append(l.calls, uid)
	l.mu.Unlock()
	select {
	case res := <-l.reply(uid):
		return res.isAdmin, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (l *fakeLookup) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type fakeStream struct {
	current *Identity
}

func (s *fakeStream) OnChange(fn func(*Identity)) core.Unsubscribe {
	fn(s.current)
	return func() {}
}

type recordingLogger struct {
	core.NopLogger
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func waitFor(t *testing.T, r *Resolver, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		state := r.State()
		if cond(state) {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never reached, last = %+v", state)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestResolver_ResolvesAdmin(t *testing.T) {
	lookup := newFakeLookup()
	r := NewResolver(&fakeStream{current: &Identity{UID: "u1", Email: "a@b.co"}}, lookup, nil)
	defer r.Close()

	if state := r.State(); !state.Resolving || state.IsAdmin || state.UID() != "u1" {
		t.Errorf("State() before lookup = %+v, want resolving non-admin u1", state)
	}

	lookup.reply("u1") <- lookupResult{isAdmin: true}
	state := waitFor(t, r, func(s State) bool { return !s.Resolving })
	if !state.IsAdmin || !state.SignedIn() {
		t.Errorf("State() after lookup = %+v, want admin", state)
	}
}

func TestResolver_IdentityChangeDropsPrivilege(t *testing.T) {
	lookup := newFakeLookup()
	r := newResolver(lookup, nil)
	defer r.Close()

	r.SetIdentity(&Identity{UID: "admin"})
	lookup.reply("admin") <- lookupResult{isAdmin: true}
	waitFor(t, r, func(s State) bool { return s.IsAdmin })

	// u2's lookup is still pending
	r.SetIdentity(&Identity{UID: "u2"})
	if state := r.State(); state.IsAdmin || state.UID() != "u2" {
		t.Errorf("State() during pending lookup = %+v, want non-admin u2", state)
	}
	if r.State().Resolving {
		t.Error("Resolving came back after the first resolution")
	}

	lookup.reply("u2") <- lookupResult{isAdmin: false}
	waitFor(t, r, func(s State) bool { return lookup.callCount() == 2 })
}

func TestResolver_DiscardsStaleLookup(t *testing.T) {
	lookup := newFakeLookup()
	r := newResolver(lookup, nil)
	defer r.Close()

	var mu sync.Mutex
	var seen []State
	unwatch := r.Watch(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unwatch()

	r.SetIdentity(&Identity{UID: "slow-admin"})
	r.SetIdentity(&Identity{UID: "u2"})
	lookup.reply("u2") <- lookupResult{isAdmin: false}
	waitFor(t, r, func(s State) bool { return !s.Resolving })

	// the superseded lookup finishes last
	lookup.reply("slow-admin") <- lookupResult{isAdmin: true}
	time.Sleep(20 * time.Millisecond)

	if state := r.State(); state.IsAdmin || state.UID() != "u2" {
		t.Errorf("State() = %+v, stale lookup applied", state)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, s := range seen {
		if s.IsAdmin {
			t.Errorf("watcher saw admin state %+v", s)
		}
	}
	if len(seen) != 4 { // initial, two identity changes, one resolution
		t.Errorf("watcher saw %d states, want 4", len(seen))
	}
}

func TestResolver_FailSafe(t *testing.T) {
	tests := []struct {
		name       string
		identity   *Identity
		reply      *lookupResult
		wantCalls  int
		wantLogged bool
	}{
		{name: "signed out", identity: nil},
		{name: "missing account", identity: &Identity{UID: "u1"}, reply: &lookupResult{}, wantCalls: 1},
		{name: "lookup failure", identity: &Identity{UID: "u1"}, reply: &lookupResult{isAdmin: true, err: errors.New("unavailable")}, wantCalls: 1, wantLogged: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := newFakeLookup()
			log := new(recordingLogger)
			if tt.reply != nil {
				lookup.reply(tt.identity.UID) <- *tt.reply
			}
			r := NewResolver(&fakeStream{current: tt.identity}, lookup, log)
			defer r.Close()

			state := waitFor(t, r, func(s State) bool { return !s.Resolving })
			if state.IsAdmin {
				t.Errorf("State() = %+v, want non-admin", state)
			}
			if got := lookup.callCount(); got != tt.wantCalls {
				t.Errorf("lookups = %d, want %d", got, tt.wantCalls)
			}
			log.mu.Lock()
			if logged := len(log.errors) > 0; logged != tt.wantLogged {
				t.Errorf("logged = %v, want %v", logged, tt.wantLogged)
			}
			log.mu.Unlock()
		})
	}
}

func TestResolver_SignOut(t *testing.T) {
	lookup := newFakeLookup()
	lookup.reply("admin") <- lookupResult{isAdmin: true}
	r := NewResolver(&fakeStream{current: &Identity{UID: "admin"}}, lookup, nil)
	waitFor(t, r, func(s State) bool { return s.IsAdmin })

	r.SetIdentity(nil)
	if state := r.State(); state.IsAdmin || state.Identity != nil || state.SignedIn() {
		t.Errorf("State() after sign out = %+v", state)
	}

	r.Close()
	r.Close()
	r.SetIdentity(&Identity{UID: "late"})
	if r.State().Identity != nil {
		t.Error("SetIdentity() after Close() changed the state")
	}
}
