// Package realtime delivers sync events to live websocket connections. A
// connection belongs to one session, joins rooms, and is closed exactly once.
package realtime

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub owns the connection table and the room table. Both are guarded by mu;
// frames are queued outside of it.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*conn
	rooms map[string]map[string]struct{}

	metrics *Metrics
	logger  *zap.Logger
}

// NewHub creates an empty hub. A nil metrics value gets unregistered collectors.
func NewHub(metrics *Metrics, logger *zap.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:   make(map[string]*conn),
		rooms:   make(map[string]map[string]struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

// register makes c the connection of its session and joins its user room.
// A previous connection of the same session is detached and closed.
func (h *Hub) register(c *conn) {
	h.mu.Lock()
	old := h.conns[c.sessionID]
	if old != nil {
		h.detachLocked(old)
	}
	h.conns[c.sessionID] = c
	h.joinLocked(c, UserRoom(c.userID))
	h.updateGaugesLocked()
	h.mu.Unlock()

	if old != nil {
		h.purge(old, reasonReplaced)
	}
	h.logger.Debug("connection registered", zap.String("session_id", c.sessionID), zap.String("user_id", c.userID))
}

// purge closes c and removes it from both tables. Only the first call has
// an effect.
func (h *Hub) purge(c *conn, reason string) {
	c.once.Do(func() {
		h.mu.Lock()
		h.detachLocked(c)
		h.updateGaugesLocked()
		h.mu.Unlock()

		c.shutdown()
		h.metrics.Purges.WithLabelValues(reason).Inc()
		h.logger.Debug("connection purged",
			zap.String("session_id", c.sessionID),
			zap.String("user_id", c.userID),
			zap.String("reason", reason))
	})
}

// detachLocked removes c from every room and, if it is still the registered
// connection of its session, from the connection table.
func (h *Hub) detachLocked(c *conn) {
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	if h.conns[c.sessionID] == c {
		delete(h.conns, c.sessionID)
	}
}

func (h *Hub) joinLocked(c *conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[room] = members
	}
	members[c.sessionID] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *conn, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c.sessionID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) updateGaugesLocked() {
	h.metrics.Connections.Set(float64(len(h.conns)))
	h.metrics.Rooms.Set(float64(len(h.rooms)))
}

// setVaultRooms replaces the room membership of c with its user room plus
// one room per vault.
func (h *Hub) setVaultRooms(c *conn, vaultIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[c.sessionID] != c {
		return
	}
	want := map[string]struct{}{UserRoom(c.userID): {}}
	for _, id := range vaultIDs {
		want[VaultRoom(id)] = struct{}{}
	}
	for room := range c.rooms {
		if _, keep := want[room]; !keep {
			h.leaveLocked(c, room)
		}
	}
	for room := range want {
		h.joinLocked(c, room)
	}
	h.updateGaugesLocked()
}

// Dispatch applies sync actions in order. It is the callback business logic
// registers to push actions.
func (h *Hub) Dispatch(actions ...Action) {
	for _, a := range actions {
		switch a := a.(type) {
		case SendEvent:
			h.sendEvent(a)
		case DisconnectSession:
			h.disconnectSession(a.SessionID)
		case DisconnectUser:
			h.disconnectUser(a.UserID)
		case DeleteRooms:
			h.deleteRooms(a.Rooms)
		default:
			h.logger.Warn("unknown sync action", zap.Any("action", a))
		}
	}
}

func (h *Hub) sendEvent(a SendEvent) {
	msg, err := json.Marshal(a.Event)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", a.Event.Type), zap.Error(err))
		return
	}
	ignored := make(map[string]struct{}, len(a.IgnoreSessions))
	for _, sid := range a.IgnoreSessions {
		ignored[sid] = struct{}{}
	}

	h.mu.Lock()
	targets := make(map[string]*conn)
	for _, room := range a.Rooms {
		for sid := range h.rooms[room] {
			if _, skip := ignored[sid]; skip {
				continue
			}
			if c, ok := h.conns[sid]; ok {
				targets[sid] = c
			}
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.enqueue(msg) {
			h.purge(c, reasonSlowConsumer)
			continue
		}
		h.metrics.Delivered.Inc()
	}
}

func (h *Hub) disconnectSession(sessionID string) {
	h.mu.Lock()
	c := h.conns[sessionID]
	h.mu.Unlock()
	if c != nil {
		h.purge(c, reasonDisconnect)
	}
}

func (h *Hub) disconnectUser(userID string) {
	h.mu.Lock()
	var victims []*conn
	for _, c := range h.conns {
		if c.userID == userID {
			victims = append(victims, c)
		}
	}
	h.mu.Unlock()
	for _, c := range victims {
		h.purge(c, reasonUserGone)
	}
}

// CloseAll purges every connection. Used on server shutdown, since
// hijacked connections are not tracked by http.Server.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	victims := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		victims = append(victims, c)
	}
	h.mu.Unlock()
	for _, c := range victims {
		h.purge(c, reasonShutdown)
	}
}

func (h *Hub) deleteRooms(rooms []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		for sid := range h.rooms[room] {
			if c, ok := h.conns[sid]; ok {
				delete(c.rooms, room)
			}
		}
		delete(h.rooms, room)
	}
	h.updateGaugesLocked()
}

// Sessions returns the ids of the open sessions, sorted.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.conns))
	for sid := range h.conns {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// Members returns the session ids in room, sorted.
func (h *Hub) Members(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.rooms[room]))
	for sid := range h.rooms[room] {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
