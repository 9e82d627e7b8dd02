package echoapi

import (
	"sync"

	"github.com/welfareschool/backend/core/live"
)

// Hub tracks the live connections by identity uid ("" while signed out), so that
// the outcome of a mutation reaches the user who made it.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]map[*liveConn]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*liveConn]struct{})}
}

// add registers c under uid. It fails once the hub is closed.
func (h *Hub) add(uid string, c *liveConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.conns[uid]
	if !ok {
		set = make(map[*liveConn]struct{})
		h.conns[uid] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) remove(uid string, c *liveConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[uid]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, uid)
		}
	}
}

// move re-registers c from one uid to another.
func (h *Hub) move(from, to string, c *liveConn) {
	if from == to {
		return
	}
	h.remove(from, c)
	h.add(to, c)
}

func (h *Hub) connections(uid string) []*liveConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := make([]*liveConn, 0, len(h.conns[uid]))
	for c := range h.conns[uid] {
		conns = append(conns, c)
	}
	return conns
}

// Notifier delivers notifications to every live connection of uid.
func (h *Hub) Notifier(uid string) live.Notifier {
	return live.NotifierFunc(func(n live.Notification) {
		if uid == "" {
			return
		}
		for _, c := range h.connections(uid) {
			c.send(frame{Type: frameNotification, Data: n})
		}
	})
}

// CloseAll closes every live connection and refuses new ones.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	var all []*liveConn
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.conns = make(map[string]map[*liveConn]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}
