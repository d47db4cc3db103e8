package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/localfirst/syncd/errors"
	"go.uber.org/zap"
)

// conn is one open websocket bound to a session.
type conn struct {
	srv       *Server
	ws        *websocket.Conn
	sessionID string
	userID    string

	// rooms is guarded by the hub mutex.
	rooms map[string]struct{}

	send  chan []byte
	renew chan renewal
	done  chan struct{}
	once  sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	// expiry is owned by the writer goroutine after start.
	expiry time.Time
}

func newConn(srv *Server, ws *websocket.Conn, sessionID, userID string, expiry time.Time) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &conn{
		srv:       srv,
		ws:        ws,
		sessionID: sessionID,
		userID:    userID,
		rooms:     make(map[string]struct{}),
		send:      make(chan []byte, srv.cfg.SendBuffer),
		renew:     make(chan renewal, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		expiry:    expiry,
	}
}

// enqueue queues msg without blocking. It reports false when the send
// buffer is full. Frames queued to a closed connection are dropped.
func (c *conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *conn) enqueueEvent(ev ServerEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		c.srv.logger.Error("encode server event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if !c.enqueue(msg) {
		c.srv.hub.purge(c, reasonSlowConsumer)
	}
}

// shutdown is called once, from Hub.purge.
func (c *conn) shutdown() {
	c.cancel()
	close(c.done)
}

// renewal moves the connection expiry. reply is written once the new
// expiry is in effect.
type renewal struct {
	expiry time.Time
	reply  []byte
}

func (c *conn) renewTo(expiry time.Time, reply ServerEvent) {
	msg, err := json.Marshal(reply)
	if err != nil {
		c.srv.logger.Error("encode server event", zap.String("type", reply.Type), zap.Error(err))
		return
	}
	select {
	case c.renew <- renewal{expiry: expiry, reply: msg}:
	case <-c.done:
	}
}

// readLoop processes inbound frames in arrival order until the socket fails.
func (c *conn) readLoop() {
	cfg := c.srv.cfg
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		mt, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.srv.hub.purge(c, reasonClosed)
			return
		}
		if mt != websocket.TextMessage {
			c.srv.hub.purge(c, reasonProtocol)
			return
		}
		ev, err := ParseClientEvent(raw)
		if err != nil {
			c.srv.logger.Debug("protocol violation", zap.String("session_id", c.sessionID), zap.Error(err))
			c.srv.hub.purge(c, reasonProtocol)
			return
		}
		switch ev := ev.(type) {
		case TicketEvent:
			c.handleTicket(ev)
		case SubscribeEvent:
			c.handleSubscribe(ev)
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *conn) handleTicket(ev TicketEvent) {
	ctx, cancel := context.WithTimeout(c.ctx, c.srv.cfg.LookupTimeout)
	defer cancel()

	rec, err := c.srv.tickets.Redeem(ctx, ev.Ticket)
	if err == nil && (rec.SessionID != c.sessionID || rec.UserID != c.userID) {
		err = errors.AccessForbidden(errors.IdentifierTicketMismatch, "ticket belongs to another session")
	}
	if err != nil {
		c.enqueueEvent(ErrorReply(ev.ID, errors.IdentifierOf(err)))
		if errors.IsAccessError(err) {
			c.srv.hub.purge(c, reasonAccess)
		}
		return
	}
	c.renewTo(rec.ConnectionExpiry, Ack(ev.ID))
}

func (c *conn) handleSubscribe(ev SubscribeEvent) {
	ctx, cancel := context.WithTimeout(c.ctx, c.srv.cfg.LookupTimeout)
	defer cancel()

	if err := c.srv.vaults.CheckOwnership(ctx, c.userID, ev.Vaults); err != nil {
		c.enqueueEvent(ErrorReply(ev.ID, errors.IdentifierOf(err)))
		return
	}
	c.srv.hub.setVaultRooms(c, ev.Vaults)
	c.enqueueEvent(Ack(ev.ID))
}

func untilAt(clk clock.Clock, at time.Time) time.Duration {
	d := at.Sub(clk.Now())
	if d < 0 {
		return 0
	}
	return d
}

// writeLoop is the only writer of the socket. It owns the keep-alive ping
// and the connection expiry timers.
func (c *conn) writeLoop() {
	cfg := c.srv.cfg
	clk := c.srv.clock
	defer c.ws.Close()

	ping := clk.NewTimer(cfg.PingPeriod)
	refresh := clk.NewTimer(untilAt(clk, c.expiry.Add(-cfg.RefreshLead)))
	expire := clk.NewTimer(untilAt(clk, c.expiry))
	defer ping.Stop()
	defer refresh.Stop()
	defer expire.Stop()

	write := func(mt int, msg []byte) bool {
		c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
		if err := c.ws.WriteMessage(mt, msg); err != nil {
			c.srv.hub.purge(c, reasonWriteFailed)
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-c.send:
			write(websocket.TextMessage, msg)
		case r := <-c.renew:
			c.expiry = r.expiry
			refresh.Reset(untilAt(clk, r.expiry.Add(-cfg.RefreshLead)))
			expire.Reset(untilAt(clk, r.expiry))
			write(websocket.TextMessage, r.reply)
		case <-refresh.Chan():
			if untilAt(clk, c.expiry.Add(-cfg.RefreshLead)) > 0 {
				continue
			}
			msg, err := json.Marshal(RefreshTicket(c.expiry))
			if err == nil {
				write(websocket.TextMessage, msg)
			}
		case <-expire.Chan():
			if untilAt(clk, c.expiry) > 0 {
				continue
			}
			c.srv.hub.purge(c, reasonExpired)
		case <-ping.Chan():
			if write(websocket.PingMessage, nil) {
				ping.Reset(cfg.PingPeriod)
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes what is still queued, then a close frame, under a single
// deadline.
func (c *conn) flush() {
	c.ws.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteWait))
	for {
		select {
		case msg := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
