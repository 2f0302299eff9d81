package chat

// Status is the connection indicator.
type Status struct {
	Connected bool
	RemoteID  string
}

// Text is the indicator caption.
func (s Status) Text() string {
	if s.Connected {
		return "CONNECTED TO " + s.RemoteID
	}
	return "DISCONNECTED"
}

// View renders the controller's effects. Methods are called from the
// controller's loop goroutine and must not block.
type View interface {
	// IdentityReady shows the confirmed ID for out-of-band sharing and
	// enables the peer-connect input.
	IdentityReady(id string)
	// IdentityLost reports that the broker registration ended; the operator
	// has to bootstrap again.
	IdentityLost()
	StatusChanged(Status)
	MessageAppended(ChatMessage)
	InputEnabled(bool)
	// Alert reports a failed operation to the operator.
	Alert(err error)
}
