// Package events defines the typed event surface emitted by a session to
// its subscribers, and the bus that routes them.
package events

import "time"

// Type identifies the kind of event carried by an Event.
type Type string

const (
	TypeConnected     Type = "connected"
	TypeDisconnected  Type = "disconnected"
	TypeError         Type = "error"
	TypePlayers       Type = "players"
	TypePlayerJoin    Type = "playerJoin"
	TypePlayerLeave   Type = "playerLeave"
	TypePlayerUpdated Type = "playerUpdated"
	TypeBELog         Type = "beLog"
	TypePlayerMessage Type = "playerMessage"
	TypeAdminMessage  Type = "adminMessage"
)

// Event is a single typed occurrence routed through the Bus. Payload holds
// one of the *Payload structs below, selected by Type.
type Event struct {
	Type    Type
	At      time.Time
	Payload interface{}
}

// ErrorKind classifies the non-fatal and fatal errors surfaced via
// TypeError.
type ErrorKind string

const (
	ErrKindDecode         ErrorKind = "DecodeError"
	ErrKindAuth           ErrorKind = "AuthError"
	ErrKindLoginTimeout   ErrorKind = "LoginTimeout"
	ErrKindIdleTimeout    ErrorKind = "IdleTimeout"
	ErrKindCommandTimeout ErrorKind = "CommandTimeout"
	ErrKindTransport      ErrorKind = "TransportError"
	ErrKindParse          ErrorKind = "ParseError"
	ErrKindUnknownMessage ErrorKind = "UnknownServerMessage"
)

// DisconnectedPayload accompanies TypeDisconnected.
type DisconnectedPayload struct {
	Reason  string
	Aborted bool
}

// ErrorPayload accompanies TypeError.
type ErrorPayload struct {
	Kind    ErrorKind
	Err     error
	Details string
}

// PlayersPayload accompanies TypePlayers: a full roster snapshot following
// a completed roster dump.
type PlayersPayload struct {
	Snapshot Snapshot
}

// PlayerJoinPayload accompanies TypePlayerJoin.
type PlayerJoinPayload struct {
	Player Player
}

// PlayerLeavePayload accompanies TypePlayerLeave.
type PlayerLeavePayload struct {
	Player Player
	Reason string
}

// FieldChange records whether a specific roster field changed in an update.
type FieldChange struct {
	Ping     bool
	Verified bool
	Lobby    bool
}

// Any reports whether at least one tracked field changed.
func (c FieldChange) Any() bool {
	return c.Ping || c.Verified || c.Lobby
}

// PlayerUpdatedPayload accompanies TypePlayerUpdated.
type PlayerUpdatedPayload struct {
	Player  Player
	Changes FieldChange
}

// BELogPayload accompanies TypeBELog.
type BELogPayload struct {
	LogType  string
	PlayerID uint32
	GUID     string
	Filter   int
	Body     string
	Player   *Player // resolved Player, if one exists for PlayerID
}

// PlayerMessagePayload accompanies TypePlayerMessage.
type PlayerMessagePayload struct {
	Player  Player
	Channel string
	Text    string
}

// AdminMessagePayload accompanies TypeAdminMessage.
type AdminMessagePayload struct {
	AdminID uint32
	Channel string
	Text    string
}

// Player is the authoritative roster entry.
type Player struct {
	ID          uint32
	Name        string
	IP          string
	GUID        string
	Ping        int32
	Lobby       bool
	Verified    bool
	ConnectedAt time.Time
}

// Snapshot is an immutable, independently-owned copy of the roster
// returned by Players(). It never aliases the live roster's storage.
type Snapshot struct {
	Players     []Player
	RosterReady bool
	CapturedAt  time.Time
}
