package manage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/localfirst/syncd/errors"
	"github.com/localfirst/syncd/store"
	"go.uber.org/zap"
)

const ticketBytes = 32

func ticketKey(ticket string) string { return "tkt-" + ticket }

// TicketRecord is what a ticket redeems to.
type TicketRecord struct {
	UserID           string    `json:"userId"`
	SessionID        string    `json:"sessionId"`
	ConnectionExpiry time.Time `json:"connectionExpiry"`
	TicketExpiry     time.Time `json:"ticketExpiry"`
}

// Ticket is handed to the client, which presents it when opening or renewing
// a real-time connection.
type Ticket struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TicketIssuer mints and redeems single-use connection tickets.
type TicketIssuer struct {
	manager *Manager
	store   store.ExpiringStore
	ttl     time.Duration
}

// NewTicketIssuer shares the manager's store, clock and logger.
func NewTicketIssuer(m *Manager) *TicketIssuer {
	return &TicketIssuer{manager: m, store: m.store, ttl: m.cfg.TicketTTL}
}

// TTL is the lifetime of a ticket.
func (ti *TicketIssuer) TTL() time.Duration { return ti.ttl }

// RequestTicket validates the access token and stores a fresh ticket bound
// to its user and session.
func (ti *TicketIssuer) RequestTicket(ctx context.Context, accessToken string) (*Ticket, error) {
	claims, ok := ti.manager.ValidateAccess(ctx, accessToken)
	if !ok {
		return nil, errors.AccessUnauthorized("", "invalid access token")
	}

	buf := make([]byte, ticketBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.System(err, "read random ticket")
	}
	ticket := hex.EncodeToString(buf)

	now := ti.manager.clock.Now()
	rec := TicketRecord{
		UserID:           claims.Subject,
		SessionID:        claims.GroupID,
		ConnectionExpiry: claims.ExpiresAt.Time,
		TicketExpiry:     now.Add(ti.ttl),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.System(err, "encode ticket")
	}

	sctx, cancel := ti.manager.storeCtx(ctx)
	defer cancel()
	if err := ti.store.Set(sctx, ticketKey(ticket), string(raw), ti.ttl); err != nil {
		return nil, errors.System(err, "store ticket")
	}
	ti.manager.logger.Debug("ticket issued", zap.String("user_id", rec.UserID), zap.String("session_id", rec.SessionID))
	return &Ticket{Ticket: ticket, ExpiresAt: rec.TicketExpiry}, nil
}

// Redeem consumes ticket. A ticket can be redeemed once.
func (ti *TicketIssuer) Redeem(ctx context.Context, ticket string) (*TicketRecord, error) {
	if ticket == "" {
		return nil, errors.AccessUnauthorized(errors.IdentifierTicketInvalid, "empty ticket")
	}

	sctx, cancel := ti.manager.storeCtx(ctx)
	defer cancel()
	raw, err := ti.store.Take(sctx, ticketKey(ticket))
	if err == store.ErrNotFound {
		return nil, errors.AccessUnauthorized(errors.IdentifierTicketInvalid, "unknown or used ticket")
	}
	if err != nil {
		return nil, errors.System(err, "take ticket")
	}

	var rec TicketRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.UserID == "" || rec.SessionID == "" {
		return nil, errors.RequestInvalid(errors.IdentifierTicketMalformed, "malformed ticket record")
	}
	now := ti.manager.clock.Now()
	if !now.Before(rec.TicketExpiry) || !now.Before(rec.ConnectionExpiry) {
		return nil, errors.RequestInvalid(errors.IdentifierTicketExpired, "ticket expired")
	}
	return &rec, nil
}
