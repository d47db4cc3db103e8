package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock/testclock"
	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/manage"
	"github.com/localfirst/syncd/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://app.example.test"

// vaultOwners maps vault id to owner id.
type vaultOwners map[string]string

func (v vaultOwners) CheckOwnership(_ context.Context, userID string, ids []string) error {
	for _, id := range ids {
		if v[id] != userID {
			return errors.AccessForbidden(errors.IdentifierVaultNotOwned, "vault %s", id)
		}
	}
	return nil
}

type harness struct {
	t       *testing.T
	mgr     *manage.Manager
	tickets *manage.TicketIssuer
	srv     *Server
	ts      *httptest.Server
	clk     *testclock.Clock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mgr, err := manage.NewManager(manage.Config{
		Issuer:        "syncd-test",
		Audience:      "syncd-clients",
		AccessSecret:  []byte("realtime-access-secret"),
		RefreshSecret: []byte("realtime-refresh-secret"),
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		TicketTTL:     30 * time.Second,
	}, st)
	require.NoError(t, err)
	clk := testclock.NewClock(time.Now())
	mgr.MapClock(clk)
	tickets := manage.NewTicketIssuer(mgr)

	srv := NewServer(Config{
		AllowedOrigins: []string{testOrigin},
		RefreshLead:    time.Minute,
	}, tickets, vaultOwners{"v1": "u1", "v2": "u1", "v9": "u2"}, WithClock(clk))
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return &harness{t: t, mgr: mgr, tickets: tickets, srv: srv, ts: ts, clk: clk}
}

func (h *harness) login(userID string) *manage.TokenPair {
	h.t.Helper()
	pair, err := h.mgr.IssueNewPair(context.Background(), manage.Identity{UserID: userID, Role: "user", Verified: true})
	require.NoError(h.t, err)
	return pair
}

func (h *harness) ticket(pair *manage.TokenPair) string {
	h.t.Helper()
	tk, err := h.tickets.RequestTicket(context.Background(), pair.AccessToken)
	require.NoError(h.t, err)
	return tk.Ticket
}

func (h *harness) dial(path, origin string, protocols ...string) (*websocket.Conn, error) {
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + path
	d := websocket.Dialer{Subprotocols: protocols, HandshakeTimeout: 2 * time.Second}
	ws, resp, err := d.Dial(url, http.Header{"Origin": {origin}})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws, err
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

// connect opens a connection for pair and consumes the welcome frame.
func (h *harness) connect(pair *manage.TokenPair) *client {
	h.t.Helper()
	ws, err := h.dial("/sync", testOrigin, "syncd."+h.ticket(pair))
	require.NoError(h.t, err)
	h.t.Cleanup(func() { ws.Close() })
	c := &client{t: h.t, ws: ws}

	f := c.next()
	require.Equal(h.t, TypeWelcome, f.Type)
	var w WelcomeData
	require.NoError(h.t, json.Unmarshal(f.Data, &w))
	require.Equal(h.t, pair.SessionID, w.SessionID)
	return c
}

func (c *client) next() frame {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	var f frame
	require.NoError(c.t, json.Unmarshal(raw, &f))
	return f
}

func (c *client) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(v))
}

// expectClosed reads until the server closes the connection.
func (c *client) expectClosed() {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := c.ws.ReadMessage()
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			c.t.Fatalf("connection was not closed")
		}
		return
	}
}

func reply(t *testing.T, f frame) ReplyData {
	t.Helper()
	var r ReplyData
	require.NoError(t, json.Unmarshal(f.Data, &r))
	return r
}

func marker(rooms ...string) SendEvent {
	return SendEvent{Rooms: rooms, Event: DomainEvent("marker", nil)}
}

func TestUpgradeRejections(t *testing.T) {
	h := newHarness(t)
	pair := h.login("u1")

	_, err := h.dial("/sync", "https://evil.example", "syncd."+h.ticket(pair))
	require.Error(t, err, "unknown origin")

	_, err = h.dial("/sync", testOrigin)
	require.Error(t, err, "missing subprotocol")

	_, err = h.dial("/sync", testOrigin, "other."+h.ticket(pair))
	require.Error(t, err, "wrong subprotocol prefix")

	_, err = h.dial("/elsewhere", testOrigin, "syncd."+h.ticket(pair))
	require.Error(t, err, "wrong path")

	_, err = h.dial("/sync", testOrigin, "syncd.not-a-ticket")
	require.Error(t, err, "unknown ticket")

	tk := h.ticket(pair)
	ws, err := h.dial("/sync", testOrigin, "syncd."+tk)
	require.NoError(t, err)
	ws.Close()
	_, err = h.dial("/sync", testOrigin, "syncd."+tk)
	require.Error(t, err, "tickets are single use")

	require.Equal(t, float64(1), testutil.ToFloat64(h.srv.metrics.Rejected.WithLabelValues(rejectOrigin)))
	require.Equal(t, float64(2), testutil.ToFloat64(h.srv.metrics.Rejected.WithLabelValues(rejectTicket)))
}

func TestExpiredTicketRefused(t *testing.T) {
	h := newHarness(t)
	tk := h.ticket(h.login("u1"))
	h.clk.Advance(31 * time.Second)

	_, err := h.dial("/sync", testOrigin, "syncd."+tk)
	require.Error(t, err)
	require.Empty(t, h.srv.Hub().Sessions())
}

func TestUpgradeEchoesSubprotocolAndJoinsUserRoom(t *testing.T) {
	h := newHarness(t)
	pair := h.login("u1")
	c := h.connect(pair)

	require.True(t, strings.HasPrefix(c.ws.Subprotocol(), "syncd."))
	require.Equal(t, []string{pair.SessionID}, h.srv.Hub().Members(UserRoom("u1")))
}

func TestOneConnectionPerSession(t *testing.T) {
	h := newHarness(t)
	pair := h.login("u1")
	first := h.connect(pair)
	second := h.connect(pair)

	first.expectClosed()
	require.Equal(t, []string{pair.SessionID}, h.srv.Hub().Sessions())

	h.srv.Hub().Dispatch(marker(UserRoom("u1")))
	require.Equal(t, "marker", second.next().Type)
}

func TestTwoDeviceScenario(t *testing.T) {
	h := newHarness(t)
	p1 := h.login("u1")
	p2 := h.login("u1")
	require.NotEqual(t, p1.SessionID, p2.SessionID)

	d1 := h.connect(p1)
	d2 := h.connect(p2)
	require.ElementsMatch(t, []string{p1.SessionID, p2.SessionID}, h.srv.Hub().Members(UserRoom("u1")))

	hub := h.srv.Hub()
	hub.Dispatch(SendEvent{
		Rooms:          []string{UserRoom("u1")},
		Event:          DomainEvent("vault-create", map[string]string{"id": "v3"}),
		IgnoreSessions: []string{p1.SessionID},
	})
	require.Equal(t, "vault-create", d2.next().Type)

	hub.Dispatch(marker(UserRoom("u1")))
	require.Equal(t, "marker", d1.next().Type, "ignored session must not see the event")
	require.Equal(t, "marker", d2.next().Type)
}

func TestSubscribeAndVaultDelivery(t *testing.T) {
	h := newHarness(t)
	p1 := h.login("u1")
	p2 := h.login("u1")
	d1 := h.connect(p1)
	d2 := h.connect(p2)

	for i, d := range []*client{d1, d2} {
		id := []string{"s1", "s2"}[i]
		d.send(map[string]any{"type": "subscribe", "messageId": id, "data": map[string]any{"vaults": []string{"v1"}}})
		f := d.next()
		require.Equal(t, TypeAck, f.Type)
		require.Equal(t, id, reply(t, f).MessageID)
	}

	h.srv.Hub().Dispatch(SendEvent{
		Rooms:          []string{UserRoom("u1"), VaultRoom("v1")},
		Event:          DomainEvent("vault-update", map[string]string{"id": "v1"}),
		IgnoreSessions: []string{p1.SessionID},
	})
	require.Equal(t, "vault-update", d2.next().Type)

	h.srv.Hub().Dispatch(marker(UserRoom("u1")))
	require.Equal(t, "marker", d1.next().Type)
	require.Equal(t, "marker", d2.next().Type, "event is delivered once even through two rooms")
}

func TestSubscribeNotOwnedKeepsConnection(t *testing.T) {
	h := newHarness(t)
	c := h.connect(h.login("u1"))

	c.send(map[string]any{"type": "subscribe", "messageId": "s1", "data": map[string]any{"vaults": []string{"v1", "v9"}}})
	f := c.next()
	require.Equal(t, TypeError, f.Type)
	r := reply(t, f)
	require.Equal(t, "s1", r.MessageID)
	require.Equal(t, errors.IdentifierVaultNotOwned, r.Identifier)
	require.Empty(t, h.srv.Hub().Members(VaultRoom("v1")))

	h.srv.Hub().Dispatch(marker(UserRoom("u1")))
	require.Equal(t, "marker", c.next().Type)
}

func TestDeleteRoomsThenSendOverSocket(t *testing.T) {
	h := newHarness(t)
	c := h.connect(h.login("u1"))
	c.send(map[string]any{"type": "subscribe", "messageId": "s1", "data": map[string]any{"vaults": []string{"v2"}}})
	require.Equal(t, TypeAck, c.next().Type)

	hub := h.srv.Hub()
	hub.Dispatch(DeleteRooms{Rooms: []string{VaultRoom("v2")}})
	hub.Dispatch(SendEvent{Rooms: []string{VaultRoom("v2")}, Event: DomainEvent("vault-update", nil)})
	hub.Dispatch(marker(UserRoom("u1")))
	require.Equal(t, "marker", c.next().Type)
}

func TestProtocolViolationPurges(t *testing.T) {
	cases := map[string]any{
		"unknown type":  map[string]any{"type": "dance", "messageId": "x", "data": map[string]any{}},
		"extra field":   map[string]any{"type": "ticket", "messageId": "x", "data": map[string]any{"ticket": "t"}, "extra": 1},
		"no message id": map[string]any{"type": "ticket", "data": map[string]any{"ticket": "t"}},
		"not an object": []int{1, 2, 3},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			c := h.connect(h.login("u1"))
			c.send(payload)
			c.expectClosed()
			require.Eventually(t, func() bool { return len(h.srv.Hub().Sessions()) == 0 }, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestDisconnectActionsCloseSockets(t *testing.T) {
	h := newHarness(t)
	p1 := h.login("u1")
	p2 := h.login("u1")
	p3 := h.login("u2")
	d1 := h.connect(p1)
	d2 := h.connect(p2)
	d3 := h.connect(p3)

	hub := h.srv.Hub()
	hub.Dispatch(DisconnectSession{SessionID: p1.SessionID})
	d1.expectClosed()

	hub.Dispatch(DisconnectUser{UserID: "u1"})
	d2.expectClosed()
	require.Equal(t, []string{p3.SessionID}, hub.Sessions())

	hub.Dispatch(marker(UserRoom("u2")))
	require.Equal(t, "marker", d3.next().Type)
}

func TestTicketEventMismatchPurges(t *testing.T) {
	h := newHarness(t)
	c := h.connect(h.login("u1"))
	foreign := h.ticket(h.login("u1"))

	c.send(map[string]any{"type": "ticket", "messageId": "t1", "data": map[string]any{"ticket": foreign}})
	f := c.next()
	require.Equal(t, TypeError, f.Type)
	require.Equal(t, errors.IdentifierTicketMismatch, reply(t, f).Identifier)
	c.expectClosed()
}

func TestTicketEventUnknownTicketPurges(t *testing.T) {
	h := newHarness(t)
	c := h.connect(h.login("u1"))

	c.send(map[string]any{"type": "ticket", "messageId": "t1", "data": map[string]any{"ticket": "missing"}})
	f := c.next()
	require.Equal(t, TypeError, f.Type)
	require.Equal(t, errors.IdentifierTicketInvalid, reply(t, f).Identifier)
	c.expectClosed()
}

func TestRefreshRenewAndExpiry(t *testing.T) {
	h := newHarness(t)
	pair := h.login("u1")
	c := h.connect(pair)

	h.clk.Advance(4 * time.Minute)
	require.Equal(t, TypeRefreshTicket, c.next().Type)

	rotated, err := h.mgr.Rotate(context.Background(), manage.Identity{UserID: "u1", Role: "user", Verified: true}, pair.SessionID)
	require.NoError(t, err)
	c.send(map[string]any{"type": "ticket", "messageId": "r1", "data": map[string]any{"ticket": h.ticket(rotated)}})
	f := c.next()
	require.Equal(t, TypeAck, f.Type)
	require.Equal(t, "r1", reply(t, f).MessageID)

	h.clk.Advance(2 * time.Minute)
	h.srv.Hub().Dispatch(marker(UserRoom("u1")))
	require.Equal(t, "marker", c.next().Type, "renewed connection outlives the first expiry")

	h.clk.Advance(4 * time.Minute)
	c.expectClosed()
	require.Eventually(t, func() bool { return len(h.srv.Hub().Sessions()) == 0 }, 2*time.Second, 10*time.Millisecond)
}
