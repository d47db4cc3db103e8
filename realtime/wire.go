package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Client event types.
const (
	TypeTicket    = "ticket"
	TypeSubscribe = "subscribe"
)

// Server event types. Domain events use their own names.
const (
	TypeWelcome       = "welcome"
	TypeAck           = "ack"
	TypeError         = "error"
	TypeRefreshTicket = "refresh-ticket"
)

// ClientEvent is a parsed inbound frame.
type ClientEvent interface {
	MessageID() string
}

// TicketEvent carries a renewal ticket for the current connection.
type TicketEvent struct {
	ID     string
	Ticket string
}

// SubscribeEvent replaces the vault rooms of the connection.
type SubscribeEvent struct {
	ID     string
	Vaults []string
}

func (e TicketEvent) MessageID() string    { return e.ID }
func (e SubscribeEvent) MessageID() string { return e.ID }

type clientEnvelope struct {
	Type      string          `json:"type"`
	MessageID string          `json:"messageId"`
	Data      json.RawMessage `json:"data"`
}

type ticketData struct {
	Ticket string `json:"ticket"`
}

type subscribeData struct {
	Vaults []string `json:"vaults"`
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data")
	}
	return nil
}

// ParseClientEvent decodes an inbound frame. Any shape outside the known
// events is an error.
func ParseClientEvent(raw []byte) (ClientEvent, error) {
	var env clientEnvelope
	if err := decodeStrict(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.MessageID == "" {
		return nil, fmt.Errorf("missing messageId")
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("missing data")
	}
	switch env.Type {
	case TypeTicket:
		var d ticketData
		if err := decodeStrict(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode ticket: %w", err)
		}
		if d.Ticket == "" {
			return nil, fmt.Errorf("empty ticket")
		}
		return TicketEvent{ID: env.MessageID, Ticket: d.Ticket}, nil
	case TypeSubscribe:
		var d subscribeData
		if err := decodeStrict(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode subscribe: %w", err)
		}
		if d.Vaults == nil {
			return nil, fmt.Errorf("missing vaults")
		}
		for _, v := range d.Vaults {
			if v == "" {
				return nil, fmt.Errorf("empty vault id")
			}
		}
		return SubscribeEvent{ID: env.MessageID, Vaults: d.Vaults}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// ServerEvent is an outbound frame.
type ServerEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WelcomeData is sent once the connection is open.
type WelcomeData struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ReplyData answers a client event.
type ReplyData struct {
	MessageID  string `json:"messageId"`
	Identifier string `json:"identifier,omitempty"`
}

// RefreshTicketData asks the client for a new ticket before ExpiresAt.
type RefreshTicketData struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

func Welcome(sessionID, userID string, expiresAt time.Time) ServerEvent {
	return ServerEvent{Type: TypeWelcome, Data: WelcomeData{SessionID: sessionID, UserID: userID, ExpiresAt: expiresAt}}
}

func Ack(messageID string) ServerEvent {
	return ServerEvent{Type: TypeAck, Data: ReplyData{MessageID: messageID}}
}

func ErrorReply(messageID, identifier string) ServerEvent {
	return ServerEvent{Type: TypeError, Data: ReplyData{MessageID: messageID, Identifier: identifier}}
}

func RefreshTicket(expiresAt time.Time) ServerEvent {
	return ServerEvent{Type: TypeRefreshTicket, Data: RefreshTicketData{ExpiresAt: expiresAt}}
}

// DomainEvent wraps a business event for delivery.
func DomainEvent(eventType string, data any) ServerEvent {
	return ServerEvent{Type: eventType, Data: data}
}
