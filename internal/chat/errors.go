package chat

import "fmt"

// ValidationError reports unusable operator input. Nothing changes.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// BrokerError reports a failed identity or session negotiation.
type BrokerError struct {
	Message string
}

func (e *BrokerError) Error() string { return "connection error: " + e.Message }

// TransportError reports the failure of an open session.
type TransportError struct {
	RemoteID string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection error with %s: %v", e.RemoteID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotConnectedError reports an operation that needs a connection nobody has
// established yet.
type NotConnectedError struct {
	Message string
}

func (e *NotConnectedError) Error() string { return e.Message }

func validation(msg string) error { return &ValidationError{Message: msg} }
