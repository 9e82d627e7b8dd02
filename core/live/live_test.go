package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/core/transaction"
	"github.com/welfareschool/backend/storage/database/memdb"
)

// manualSource hands out subscriptions whose values the test pushes by hand.
type manualSource struct {
	mu       sync.Mutex
	handlers []func([]string)
	released []bool
}

func (s *manualSource) subscribe(onChange func([]string)) (core.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.handlers)
	s.handlers = append(s.handlers, onChange)
	s.released = append(s.released, false)
	return func() {
		s.mu.Lock()
		s.released[i] = true
		s.mu.Unlock()
	}, nil
}

func (s *manualSource) push(i int, v []string) {
	s.mu.Lock()
	fn := s.handlers[i]
	s.mu.Unlock()
	fn(v)
}

func (s *manualSource) isReleased(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[i]
}

func TestCollection_Loading(t *testing.T) {
	var updates []Snapshot[[]string]
	src := new(manualSource)
	c := NewCollection(func(s Snapshot[[]string]) { updates = append(updates, s) })

	if !c.Snapshot().Loading {
		t.Fatal("new collection is not loading")
	}
	if err := c.Bind(src.subscribe); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if !c.Snapshot().Loading {
		t.Error("collection stopped loading before the first value")
	}

	src.push(0, []string{})
	if snap := c.Snapshot(); snap.Loading || snap.Value == nil {
		t.Errorf("Snapshot() after empty value = %+v, want loaded", snap)
	}
	src.push(0, []string{"a", "b"})
	if snap := c.Snapshot(); len(snap.Value) != 2 {
		t.Errorf("Snapshot() = %+v, want whole value replaced", snap)
	}
	if len(updates) != 2 {
		t.Errorf("onUpdate calls = %d, want 2", len(updates))
	}
}

func TestCollection_RebindDropsStaleValues(t *testing.T) {
	src := new(manualSource)
	c := NewCollection[[]string](nil)

	_ = c.Bind(src.subscribe)
	src.push(0, []string{"old"})
	_ = c.Bind(src.subscribe)

	if !src.isReleased(0) {
		t.Error("Bind() did not release the previous subscription")
	}
	if snap := c.Snapshot(); !snap.Loading || snap.Value != nil {
		t.Errorf("Snapshot() after rebind = %+v, want empty and loading", snap)
	}

	src.push(0, []string{"stale"})
	if snap := c.Snapshot(); snap.Value != nil {
		t.Errorf("stale value applied: %+v", snap)
	}
	src.push(1, []string{"new"})
	if snap := c.Snapshot(); snap.Loading || snap.Value[0] != "new" {
		t.Errorf("Snapshot() = %+v, want new value", snap)
	}

	c.Unbind()
	if !src.isReleased(1) || !c.Snapshot().Loading {
		t.Error("Unbind() did not release and reset")
	}
}

func TestCollection_Close(t *testing.T) {
	src := new(manualSource)
	c := NewCollection[[]string](nil)
	_ = c.Bind(src.subscribe)

	c.Close()
	c.Close()
	if !src.isReleased(0) {
		t.Error("Close() did not release the subscription")
	}
	src.push(0, []string{"late"})
	if c.Snapshot().Value != nil {
		t.Error("value applied after Close()")
	}
	if err := c.Bind(src.subscribe); err != ErrClosed {
		t.Errorf("Bind() after Close() error = %v, want %v", err, ErrClosed)
	}

	failing := NewCollection[[]string](nil)
	boom := errors.New("unavailable")
	err := failing.Bind(func(func([]string)) (core.Unsubscribe, error) { return nil, boom })
	if err != boom || !failing.Snapshot().Loading {
		t.Errorf("Bind() failure = %v, loading %v", err, failing.Snapshot().Loading)
	}
}

func TestMutator(t *testing.T) {
	boom := errors.New("unavailable")
	tests := []struct {
		name    string
		action  Action
		entity  string
		err     error
		wantMsg Notification
	}{
		{name: "add", action: ActionAdd, entity: "student", wantMsg: Notification{LevelSuccess, "Student added successfully!"}},
		{name: "create", action: ActionCreate, entity: "invoice", wantMsg: Notification{LevelSuccess, "Invoice created successfully!"}},
		{name: "add failure", action: ActionAdd, entity: "student", err: boom, wantMsg: Notification{LevelError, "Failed to add student"}},
		{name: "delete failure", action: ActionDelete, entity: "user", err: boom, wantMsg: Notification{LevelError, "Failed to delete user"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Notification
			m := NewMutator(NotifierFunc(func(n Notification) { got = append(got, n) }), nil)

			err := m.Run(tt.action, tt.entity, func() error { return tt.err })
			if err != tt.err {
				t.Errorf("Run() error = %v, want %v", err, tt.err)
			}
			if len(got) != 1 || got[0] != tt.wantMsg {
				t.Errorf("notifications = %+v, want %+v", got, tt.wantMsg)
			}
		})
	}

	m := NewMutator(nil, nil)
	id, err := m.Create(ActionAdd, "student", func() (string, error) { return "s1", nil })
	if id != "s1" || err != nil {
		t.Errorf("Create() = %q, %v", id, err)
	}
}

type pushStream struct {
	mu sync.Mutex
	fn func(*session.Identity)
}

func (s *pushStream) OnChange(fn func(*session.Identity)) core.Unsubscribe {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	fn(nil)
	return func() {}
}

func (s *pushStream) emit(id *session.Identity) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	fn(id)
}

type recordingListener struct {
	mu       sync.Mutex
	sessions []session.State
}

func (l *recordingListener) SessionChanged(state session.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions = append(l.sessions, state)
}

func (l *recordingListener) CollectionChanged(Update) {}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorkspace_ScopedUsers(t *testing.T) {
	ctx := context.Background()
	db := memdb.Open()
	defer db.Close()
	conf := &core.Config{}
	conf.Access.ScopeQueriesByRole = true

	accounts := account.NewService(db, conf)
	_, _ = db.Create(ctx, account.Collection, "admin", core.Data{"name": "Admin", "isAdmin": true})
	_, _ = db.Create(ctx, account.Collection, "u1", core.Data{"name": "User", "isAdmin": false})

	svcs := Services{
		Students:     student.NewService(db, conf),
		Transactions: transaction.NewService(db),
		Invoices:     invoice.NewService(db, nil, nil),
		Attendance:   attendance.NewService(db),
		Accounts:     accounts,
	}
	stream := new(pushStream)
	resolver := session.NewResolver(stream, accounts, nil)
	defer resolver.Close()
	ws := NewWorkspace(svcs, resolver, new(recordingListener), nil)
	defer ws.Close()

	stream.emit(&session.Identity{UID: "u1"})
	eventually(t, "own account", func() bool {
		snap := ws.Users.Snapshot()
		return !snap.Loading && len(snap.Value) == 1 && snap.Value[0].ID == "u1"
	})

	stream.emit(&session.Identity{UID: "admin"})
	eventually(t, "all accounts", func() bool {
		snap := ws.Users.Snapshot()
		return !snap.Loading && len(snap.Value) == 2
	})
}

func TestWorkspace(t *testing.T) {
	ctx := context.Background()
	db := memdb.Open()
	defer db.Close()
	conf := &core.Config{}

	accounts := account.NewService(db, conf)
	_, _ = db.Create(ctx, account.Collection, "admin", core.Data{"name": "Admin", "isAdmin": true})
	_, _ = db.Create(ctx, account.Collection, "u1", core.Data{"name": "User", "isAdmin": false})
	_, _ = db.Create(ctx, student.Collection, "s1", core.Data{"name": "Amani", "createdBy": "u1"})

	svcs := Services{
		Students:     student.NewService(db, conf),
		Transactions: transaction.NewService(db),
		Invoices:     invoice.NewService(db, nil, nil),
		Attendance:   attendance.NewService(db),
		Accounts:     accounts,
	}
	stream := new(pushStream)
	resolver := session.NewResolver(stream, accounts, nil)
	defer resolver.Close()
	listener := new(recordingListener)
	ws := NewWorkspace(svcs, resolver, listener, nil)
	defer ws.Close()

	if !ws.Students.Snapshot().Loading || !ws.Transactions.Snapshot().Loading {
		t.Error("signed-out workspace should be loading")
	}

	stream.emit(&session.Identity{UID: "u1"})
	eventually(t, "students", func() bool {
		snap := ws.Students.Snapshot()
		return !snap.Loading && len(snap.Value) == 1
	})
	eventually(t, "transactions", func() bool { return !ws.Transactions.Snapshot().Loading })
	if !ws.Users.Snapshot().Loading {
		t.Error("users bound for a non-admin")
	}

	stream.emit(&session.Identity{UID: "admin"})
	eventually(t, "users", func() bool {
		snap := ws.Users.Snapshot()
		return !snap.Loading && len(snap.Value) == 2
	})
	if !ws.Session().IsAdmin {
		t.Error("workspace did not follow the resolved role")
	}

	stream.emit(nil)
	if !ws.Students.Snapshot().Loading || !ws.Users.Snapshot().Loading || !ws.Attendance.Snapshot().Loading {
		t.Error("sign out did not reset the collections")
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.sessions) < 5 {
		t.Errorf("listener saw %d session changes, want at least 5", len(listener.sessions))
	}
	for _, s := range listener.sessions {
		if s.IsAdmin && s.UID() != "admin" {
			t.Errorf("listener saw %s as admin", s.UID())
		}
	}
}
