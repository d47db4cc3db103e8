// Package events carries domain change events from business logic to the
// real-time layer.
package events

import (
	"strings"

	"github.com/juju/pubsub/v2"
)

// Type names a domain event.
type Type string

const (
	UserCreate     Type = "user-create"
	UserUpdate     Type = "user-update"
	UserDelete     Type = "user-delete"
	VaultCreate    Type = "vault-create"
	VaultUpdate    Type = "vault-update"
	VaultDelete    Type = "vault-delete"
	AuthLogout     Type = "auth-logout"
	UserDisconnect Type = "user-disconnect"
)

// Types lists every domain event type.
var Types = []Type{
	UserCreate, UserUpdate, UserDelete,
	VaultCreate, VaultUpdate, VaultDelete,
	AuthLogout, UserDisconnect,
}

// Event is a domain change. OriginSessionID is the session that caused it,
// if any; it does not receive its own echo.
type Event struct {
	Type            Type   `json:"type"`
	UserID          string `json:"userId"`
	VaultID         string `json:"vaultId,omitempty"`
	OriginSessionID string `json:"-"`
	Data            any    `json:"data,omitempty"`
}

const topicPrefix = "domain."

func topic(t Type) string { return topicPrefix + string(t) }

// Bus is an in-process event bus.
type Bus struct {
	hub *pubsub.SimpleHub
}

func NewBus() *Bus {
	return &Bus{hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{})}
}

// Publish delivers ev to every subscriber. The returned channel is closed
// once all of them have run.
func (b *Bus) Publish(ev Event) <-chan struct{} {
	return pubsub.Wait(b.hub.Publish(topic(ev.Type), ev))
}

// Subscribe calls handler for events of type t until the returned function
// is called.
func (b *Bus) Subscribe(t Type, handler func(Event)) func() {
	return b.hub.Subscribe(topic(t), func(_ string, data interface{}) {
		if ev, ok := data.(Event); ok {
			handler(ev)
		}
	})
}

// SubscribeAll calls handler for every domain event in publish order until
// the returned function is called.
func (b *Bus) SubscribeAll(handler func(Event)) func() {
	match := func(t string) bool { return strings.HasPrefix(t, topicPrefix) }
	return b.hub.SubscribeMatch(match, func(_ string, data interface{}) {
		if ev, ok := data.(Event); ok {
			handler(ev)
		}
	})
}
