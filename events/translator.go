package events

import (
	"sync"

	"github.com/localfirst/syncd/realtime"
	"go.uber.org/zap"
)

// Translator turns domain events into sync actions and hands them to the
// registered callbacks.
type Translator struct {
	mu        sync.Mutex
	callbacks []realtime.ActionFunc
	logger    *zap.Logger
}

func NewTranslator(logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{logger: logger}
}

// RegisterActionCallback adds a receiver of sync actions, typically
// realtime.Hub.Dispatch.
func (t *Translator) RegisterActionCallback(cb realtime.ActionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Attach subscribes the translator to every event on bus through a single
// subscription, so actions reach the callbacks in publish order.
func (t *Translator) Attach(bus *Bus) (detach func()) {
	return bus.SubscribeAll(t.Handle)
}

// Handle translates ev and pushes the result to every callback.
func (t *Translator) Handle(ev Event) {
	actions := Translate(ev)
	if len(actions) == 0 {
		return
	}
	t.mu.Lock()
	cbs := append([]realtime.ActionFunc(nil), t.callbacks...)
	t.mu.Unlock()

	t.logger.Debug("domain event translated",
		zap.String("type", string(ev.Type)),
		zap.String("user_id", ev.UserID),
		zap.Int("actions", len(actions)))
	for _, cb := range cbs {
		cb(actions...)
	}
}

func ignoring(sessionID string) []string {
	if sessionID == "" {
		return nil
	}
	return []string{sessionID}
}

// Translate maps a domain event to its sync actions.
func Translate(ev Event) []realtime.Action {
	userRoom := realtime.UserRoom(ev.UserID)
	payload := realtime.DomainEvent(string(ev.Type), ev)

	switch ev.Type {
	case UserUpdate, VaultCreate:
		return []realtime.Action{
			realtime.SendEvent{Rooms: []string{userRoom}, Event: payload, IgnoreSessions: ignoring(ev.OriginSessionID)},
		}
	case UserDelete:
		return []realtime.Action{
			realtime.SendEvent{Rooms: []string{userRoom}, Event: payload},
			realtime.DisconnectUser{UserID: ev.UserID},
			realtime.DeleteRooms{Rooms: []string{userRoom}},
		}
	case VaultUpdate:
		return []realtime.Action{
			realtime.SendEvent{
				Rooms:          []string{userRoom, realtime.VaultRoom(ev.VaultID)},
				Event:          payload,
				IgnoreSessions: ignoring(ev.OriginSessionID),
			},
		}
	case VaultDelete:
		vaultRoom := realtime.VaultRoom(ev.VaultID)
		return []realtime.Action{
			realtime.SendEvent{Rooms: []string{userRoom, vaultRoom}, Event: payload},
			realtime.DeleteRooms{Rooms: []string{vaultRoom}},
		}
	case AuthLogout:
		if ev.OriginSessionID == "" {
			return nil
		}
		return []realtime.Action{realtime.DisconnectSession{SessionID: ev.OriginSessionID}}
	case UserDisconnect:
		return []realtime.Action{realtime.DisconnectUser{UserID: ev.UserID}}
	default:
		return nil
	}
}
