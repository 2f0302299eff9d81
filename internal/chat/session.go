package chat

import (
	"fmt"

	"github.com/joebot/peerchat/internal/broker"
)

// State is the lifecycle position of a Session.
type State int

const (
	Idle State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type trigger int

const (
	triggerOpen trigger = iota
	triggerClose
	triggerError
)

// transitions lists every legal move. Closed has no exits.
var transitions = map[State]map[trigger]State{
	Idle: {
		triggerOpen:  Open,
		triggerClose: Closed,
		triggerError: Closed,
	},
	Open: {
		triggerClose: Closed,
		triggerError: Closed,
	},
}

// Session is one connection attempt with a remote identity. A closed
// Session is never reused.
type Session struct {
	RemoteID string

	state State
	conn  broker.Conn
}

func newSession(conn broker.Conn) *Session {
	return &Session{RemoteID: conn.Peer(), state: Idle, conn: conn}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// fire applies t and reports whether the state changed.
func (s *Session) fire(t trigger) bool {
	next, ok := transitions[s.state][t]
	if !ok {
		return false
	}
	s.state = next
	return true
}

// close ends the session locally and on the transport.
func (s *Session) close() {
	s.fire(triggerClose)
	s.conn.Close()
}
