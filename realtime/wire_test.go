package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseClientEvent(t *testing.T) {
	ev, err := ParseClientEvent([]byte(`{"type":"ticket","messageId":"m1","data":{"ticket":"abc"}}`))
	require.NoError(t, err)
	require.Equal(t, TicketEvent{ID: "m1", Ticket: "abc"}, ev)

	ev, err = ParseClientEvent([]byte(`{"type":"subscribe","messageId":"m2","data":{"vaults":["v1","v2"]}}`))
	require.NoError(t, err)
	require.Equal(t, SubscribeEvent{ID: "m2", Vaults: []string{"v1", "v2"}}, ev)

	ev, err = ParseClientEvent([]byte(`{"type":"subscribe","messageId":"m3","data":{"vaults":[]}}`))
	require.NoError(t, err)
	require.Empty(t, ev.(SubscribeEvent).Vaults)
}

func TestParseClientEventRejects(t *testing.T) {
	bad := []string{
		``,
		`null`,
		`[]`,
		`{"type":"ticket","messageId":"m1"}`,
		`{"type":"ticket","messageId":"m1","data":null}`,
		`{"type":"ticket","data":{"ticket":"abc"}}`,
		`{"type":"ticket","messageId":"m1","data":{"ticket":""}}`,
		`{"type":"ticket","messageId":"m1","data":{"ticket":"abc","extra":true}}`,
		`{"type":"ticket","messageId":"m1","data":{"ticket":"abc"},"extra":true}`,
		`{"type":"subscribe","messageId":"m1","data":{}}`,
		`{"type":"subscribe","messageId":"m1","data":{"vaults":[""]}}`,
		`{"type":"subscribe","messageId":"m1","data":{"vaults":"v1"}}`,
		`{"type":"welcome","messageId":"m1","data":{}}`,
		`{"type":"ticket","messageId":"m1","data":{"ticket":"abc"}} {}`,
	}
	for _, raw := range bad {
		_, err := ParseClientEvent([]byte(raw))
		require.Error(t, err, raw)
	}
}

func TestServerEventShapes(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := json.Marshal(Welcome("g1", "u1", at))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"welcome","data":{"sessionId":"g1","userId":"u1","expiresAt":"2026-01-02T03:04:05Z"}}`, string(b))

	b, err = json.Marshal(ErrorReply("m1", "TICKET_INVALID"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","data":{"messageId":"m1","identifier":"TICKET_INVALID"}}`, string(b))

	b, err = json.Marshal(Ack("m2"))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"ack","data":{"messageId":"m2"}}`, string(b))

	b, err = json.Marshal(DomainEvent("user-create", nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"user-create"}`, string(b))
}
