// Package broker is the boundary with the peer-connection broker: identity
// registration, session setup between identities, and the session
// transport. Implementations deliver everything they observe as Events
// through a Sink and never block on it.
package broker

import (
	"fmt"
	"regexp"
)

// EventKind identifies a broker or session event.
type EventKind int

const (
	// EventOpen reports the identity confirmed by the broker (Event.ID).
	EventOpen EventKind = iota + 1
	// EventError is a peer-level failure (Event.Err).
	EventError
	// EventConnection is an inbound session request (Event.Conn).
	EventConnection
	// EventDisconnected reports the link to the broker was lost.
	EventDisconnected
	// EventClose reports the peer was destroyed.
	EventClose

	// ConnOpen reports the session is ready for data.
	ConnOpen
	// ConnData carries one inbound payload (Event.Data).
	ConnData
	// ConnClose reports the session ended, for whatever reason.
	ConnClose
	// ConnError is a session-level failure (Event.Err).
	ConnError
)

var kindNames = map[EventKind]string{
	EventOpen:         "open",
	EventError:        "error",
	EventConnection:   "connection",
	EventDisconnected: "disconnected",
	EventClose:        "close",
	ConnOpen:          "conn-open",
	ConnData:          "conn-data",
	ConnClose:         "conn-close",
	ConnError:         "conn-error",
}

func (k EventKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is delivered to a Sink. Conn is set for every Conn* event and for
// EventConnection.
type Event struct {
	Kind EventKind
	ID   string
	Conn Conn
	Data []byte
	Err  error
}

// Sink receives events. It must not block.
type Sink func(Event)

// Dialer registers identities with a broker.
type Dialer interface {
	// Dial asks the broker for requestedID and returns at once. The outcome
	// arrives later as EventOpen or EventError. An empty requestedID lets
	// the broker pick one.
	Dial(requestedID string, sink Sink) Peer
}

// Peer is a local identity registered (or being registered) with a broker.
type Peer interface {
	// ID returns the confirmed identity, or "" before EventOpen.
	ID() string
	// Connect starts an outbound session toward remoteID. The session
	// reports ConnOpen when ready.
	Connect(remoteID string) Conn
	// Close destroys the peer and every session it owns.
	Close() error
}

// Conn is one session between two identities.
type Conn interface {
	// Peer returns the remote identity.
	Peer() string
	// Open reports whether data can be sent.
	Open() bool
	// Send transmits one payload. There is no delivery confirmation.
	Send(data []byte) error
	// Close ends the session on both sides. Idempotent.
	Close() error
}

// ErrorType classifies broker errors.
type ErrorType string

const (
	ErrUnavailableID   ErrorType = "unavailable-id"
	ErrInvalidID       ErrorType = "invalid-id"
	ErrPeerUnavailable ErrorType = "peer-unavailable"
	ErrNetwork         ErrorType = "network"
	ErrServer          ErrorType = "server-error"
	ErrNotOpen         ErrorType = "not-open"
)

// Error is a failure reported by a broker.
type Error struct {
	Type    ErrorType
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf builds an Error of the given type.
func Errorf(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID reports whether id is acceptable as a broker identity.
func ValidID(id string) bool {
	return validID.MatchString(id)
}
