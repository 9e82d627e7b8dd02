package echoapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/dashboard"
	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/core/transaction"
	"github.com/welfareschool/backend/services/identity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Frame types
const (
	frameSession      = "session"
	frameSnapshot     = "snapshot"
	frameDashboard    = "dashboard"
	frameNotification = "notification"
	frameError        = "error"
)

// Client message types
const (
	msgAuth    = "auth"
	msgSignOut = "signOut"
)

type frame struct {
	Type       string      `json:"type"`
	Collection string      `json:"collection,omitempty"`
	Loading    bool        `json:"loading,omitempty"`
	Data       interface{} `json:"data"`
}

type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

type liveApi struct {
	apiDeps
	auth     *authenticator
	upgrader websocket.Upgrader
}

func registerLiveAPI(g *echo.Group, auth *authenticator, deps apiDeps, conf *core.Config) {
	api := liveApi{
		apiDeps: deps,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(conf),
		},
	}
	g.GET("/live", api.serve)
}

// checkOrigin accepts any origin in debug, the frontend origin otherwise.
func checkOrigin(conf *core.Config) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return conf.Debug || origin == "" || origin == conf.FrontendBaseURL
	}
}

// serve streams the live workspace of one client. The client signs in and out
// with auth and signOut messages; every session change, collection snapshot,
// derived dashboard and mutation outcome is pushed as a frame.
func (api *liveApi) serve(ctx echo.Context) error {
	ws, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader has replied
	}
	conn := newLiveConn(ws, api.logger)
	defer conn.close()
	if !api.hub.add("", conn) {
		return nil
	}
	liveConnections.Inc()
	defer liveConnections.Dec()
	go conn.writePump()

	sess := identity.NewSession()
	listener := &liveListener{conn: conn, hub: api.hub}
	resolver := session.NewResolver(sess, api.svcs.Accounts, api.logger)
	workspace := live.NewWorkspace(api.svcs, resolver, listener, api.logger)
	defer func() {
		workspace.Close()
		resolver.Close()
		api.hub.remove(listener.currentUID(), conn)
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err = ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				api.logger.Warn("reading live message", err)
			}
			return nil
		}

		switch msg.Type {
		case msgAuth:
			id, err := api.auth.ParseToken(msg.Token)
			if err != nil {
				conn.send(frame{Type: frameError, Data: errInvalidToken.Message})
				continue
			}
			sess.Set(&id)
		case msgSignOut:
			sess.SignOut()
		default:
			conn.send(frame{Type: frameError, Data: "unknown message type"})
		}
	}
}

// liveListener forwards workspace changes to the connection and derives the
// dashboard from the latest collections.
type liveListener struct {
	conn *liveConn
	hub  *Hub

	mu         sync.Mutex
	uid        string
	isAdmin    bool
	in         dashboard.Input
	attendance attendance.Register
}

var _ live.Listener = (*liveListener)(nil)

func (l *liveListener) currentUID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uid
}

func (l *liveListener) SessionChanged(state session.State) {
	l.mu.Lock()
	old := l.uid
	l.uid = state.UID()
	l.isAdmin = state.IsAdmin
	l.mu.Unlock()

	l.hub.move(old, state.UID(), l.conn)
	l.conn.send(frame{Type: frameSession, Data: state})
}

func (l *liveListener) CollectionChanged(upd live.Update) {
	l.conn.send(frame{Type: frameSnapshot, Collection: upd.Collection, Loading: upd.Loading, Data: upd.Data})

	l.mu.Lock()
	switch v := upd.Data.(type) {
	case []student.Student:
		l.in.Students = v
	case []transaction.Transaction:
		l.in.Transactions = v
	case []invoice.Invoice:
		l.in.Invoices = v
	case []account.Account:
		l.in.Accounts = v
	case attendance.Register:
		l.attendance = v
	}
	in := l.in
	in.Attendance = l.attendance[attendance.Today()]
	if !l.isAdmin {
		// user counts are for admins, a scoped non-admin only holds their own account
		in.Accounts = nil
	}
	l.mu.Unlock()

	l.conn.send(frame{Type: frameDashboard, Data: dashboard.Compute(in)})
}

// liveConn owns the websocket writes. Frames are queued and written in order by
// writePump; a client that cannot keep up is disconnected.
type liveConn struct {
	ws     *websocket.Conn
	logger core.Logger
	out    chan frame
	done   chan struct{}
	once   sync.Once
}

func newLiveConn(ws *websocket.Conn, logger core.Logger) *liveConn {
	return &liveConn{
		ws:     ws,
		logger: logger,
		out:    make(chan frame, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *liveConn) send(f frame) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- f:
	case <-c.done:
	default:
		c.logger.Warn("live client too slow, disconnecting")
		c.close()
	}
}

func (c *liveConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.close()
				return
			}
			liveFrames.WithLabelValues(f.Type).Inc()
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (c *liveConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
