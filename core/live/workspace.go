package live

import (
	"sync"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/core/transaction"
)

type Services struct {
	Students     *student.Service
	Transactions *transaction.Service
	Invoices     *invoice.Service
	Attendance   *attendance.Service
	Accounts     *account.Service
}

// Update reports a change of one workspace collection.
type Update struct {
	Collection string      `json:"collection"`
	Loading    bool        `json:"loading"`
	Data       interface{} `json:"data"`
}

// Listener receives session changes and collection updates. Calls for one collection
// arrive in order. Calls must not block on the workspace.
type Listener interface {
	SessionChanged(state session.State)
	CollectionChanged(upd Update)
}

// Workspace keeps the live collections of one client session.
//
// It follows the session resolver. Transactions, invoices and attendance are bound
// while an identity is present. Students are bound once the identity's role is
// resolved, and rebound when the identity or role changes. Users are bound for
// resolved admins, and for non-admins when account queries are scoped by role,
// in which case they hold the caller's own account only.
type Workspace struct {
	svcs     Services
	listener Listener
	logger   core.Logger

	Students     *Collection[[]student.Student]
	Transactions *Collection[[]transaction.Transaction]
	Invoices     *Collection[[]invoice.Invoice]
	Attendance   *Collection[attendance.Register]
	Users        *Collection[[]account.Account]

	mu      sync.Mutex
	state   session.State
	openUID string       // identity the open collections are bound to
	roleKey *roleBinding // binding of the role-gated collections
	unwatch core.Unsubscribe
	closed  bool
}

type roleBinding struct {
	uid     string
	isAdmin bool
}

// NewWorkspace creates the collections and starts following resolver.
func NewWorkspace(svcs Services, resolver *session.Resolver, listener Listener, logger core.Logger) *Workspace {
	if logger == nil {
		logger = core.NopLogger{}
	}
	ws := &Workspace{svcs: svcs, listener: listener, logger: logger}
	ws.Students = NewCollection(forward[[]student.Student](listener, student.Collection))
	ws.Transactions = NewCollection(forward[[]transaction.Transaction](listener, transaction.Collection))
	ws.Invoices = NewCollection(forward[[]invoice.Invoice](listener, invoice.Collection))
	ws.Attendance = NewCollection(forward[attendance.Register](listener, attendance.Collection))
	ws.Users = NewCollection(forward[[]account.Account](listener, account.Collection))

	unwatch := resolver.Watch(ws.follow)
	ws.mu.Lock()
	ws.unwatch = unwatch
	ws.mu.Unlock()
	return ws
}

func forward[V any](listener Listener, collection string) func(Snapshot[V]) {
	return func(snap Snapshot[V]) {
		if listener != nil {
			listener.CollectionChanged(Update{Collection: collection, Loading: snap.Loading, Data: snap.Value})
		}
	}
}

// Session returns the session state the workspace last saw.
func (ws *Workspace) Session() session.State {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.state
}

func (ws *Workspace) follow(state session.State) {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.state = state
	ws.mu.Unlock()

	if ws.listener != nil {
		ws.listener.SessionChanged(state)
	}
	ws.bindOpen(state)
	ws.bindRoleGated(state)
}

func (ws *Workspace) bindOpen(state session.State) {
	uid := state.UID()
	ws.mu.Lock()
	if uid == ws.openUID {
		ws.mu.Unlock()
		return
	}
	ws.openUID = uid
	ws.mu.Unlock()

	if uid == "" {
		ws.Transactions.Unbind()
		ws.Invoices.Unbind()
		ws.Attendance.Unbind()
		return
	}
	ws.bind("transactions", ws.Transactions.Bind(ws.svcs.Transactions.Subscribe))
	ws.bind("invoices", ws.Invoices.Bind(ws.svcs.Invoices.Subscribe))
	ws.bind("attendance", ws.Attendance.Bind(ws.svcs.Attendance.Subscribe))
}

func (ws *Workspace) bindRoleGated(state session.State) {
	var key *roleBinding
	if state.SignedIn() {
		key = &roleBinding{uid: state.UID(), isAdmin: state.IsAdmin}
	}

	ws.mu.Lock()
	if sameBinding(ws.roleKey, key) {
		ws.mu.Unlock()
		return
	}
	ws.roleKey = key
	ws.mu.Unlock()

	if key == nil {
		ws.Students.Unbind()
		ws.Users.Unbind()
		return
	}

	uid, isAdmin := key.uid, key.isAdmin
	ws.bind("students", ws.Students.Bind(func(onChange func([]student.Student)) (core.Unsubscribe, error) {
		return ws.svcs.Students.Subscribe(uid, isAdmin, onChange)
	}))
	if !isAdmin && !ws.svcs.Accounts.ScopesByRole() {
		ws.Users.Unbind()
		return
	}
	ws.bind("users", ws.Users.Bind(func(onChange func([]account.Account)) (core.Unsubscribe, error) {
		return ws.svcs.Accounts.Subscribe(uid, isAdmin, onChange)
	}))
}

func sameBinding(a, b *roleBinding) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (ws *Workspace) bind(collection string, err error) {
	if err != nil && err != ErrClosed {
		ws.logger.Error("binding live "+collection, err, ws.Session().Identity)
	}
}

// Close stops following the resolver and releases every subscription.
func (ws *Workspace) Close() {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.closed = true
	unwatch := ws.unwatch
	ws.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	ws.Students.Close()
	ws.Transactions.Close()
	ws.Invoices.Close()
	ws.Attendance.Close()
	ws.Users.Close()
}
