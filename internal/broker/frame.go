package broker

import "encoding/json"

// FrameType is the discriminator of a relay wire frame.
type FrameType string

const (
	FrameRegister   FrameType = "register"
	FrameOpen       FrameType = "open"
	FrameError      FrameType = "error"
	FrameConnect    FrameType = "connect"
	FrameConnection FrameType = "connection"
	FrameAccept     FrameType = "accept"
	FrameOpened     FrameType = "opened"
	FrameData       FrameType = "data"
	FrameClose      FrameType = "close"
)

// Frame is one JSON text message exchanged with the relay.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Conn      string          `json:"conn,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorType ErrorType       `json:"errorType,omitempty"`
}

// Err converts an error frame into an *Error.
func (f *Frame) Err() *Error {
	t := f.ErrorType
	if t == "" {
		t = ErrServer
	}
	return &Error{Type: t, Message: f.Error}
}

// ErrorFrame builds an error frame from err.
func ErrorFrame(conn string, err *Error) Frame {
	return Frame{Type: FrameError, Conn: conn, Error: err.Message, ErrorType: err.Type}
}

// EncodePayload wraps data for the Payload field. Valid JSON is carried
// as-is, anything else as a JSON string.
func EncodePayload(data []byte) json.RawMessage {
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}

// FrameOverhead bounds what a data frame adds around its payload.
const FrameOverhead = 256
