package realtime

// Room names.
func UserRoom(userID string) string   { return "user-" + userID }
func VaultRoom(vaultID string) string { return "vault-" + vaultID }

// Action is a sync action pushed by business logic. The set of actions is
// closed: SendEvent, DisconnectSession, DisconnectUser, DeleteRooms.
type Action interface {
	action()
}

// SendEvent delivers Event once to every session in any of Rooms, except the
// sessions listed in IgnoreSessions.
type SendEvent struct {
	Rooms          []string
	Event          ServerEvent
	IgnoreSessions []string
}

// DisconnectSession purges the connection of one session.
type DisconnectSession struct {
	SessionID string
}

// DisconnectUser purges every connection of a user.
type DisconnectUser struct {
	UserID string
}

// DeleteRooms tears rooms down without closing their members' connections.
type DeleteRooms struct {
	Rooms []string
}

func (SendEvent) action()         {}
func (DisconnectSession) action() {}
func (DisconnectUser) action()    {}
func (DeleteRooms) action()       {}

// ActionFunc receives sync actions; Hub.Dispatch is one.
type ActionFunc func(actions ...Action)
