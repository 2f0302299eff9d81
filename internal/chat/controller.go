// Package chat is the connection lifecycle of a peer chat: identity
// bootstrap, the single-session acceptor/initiator and the message
// channel adapter.
//
// All state lives in a Controller and is touched only by the goroutine
// running Run (or calling the exported operations directly). Broker
// callbacks and UI requests are funnelled through one event queue.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joebot/peerchat/internal/broker"
	"github.com/joebot/peerchat/internal/bus"
)

type requestKind int

const (
	requestBootstrap requestKind = iota
	requestConnect
	requestSend
)

type request struct {
	kind requestKind
	arg  string
}

// item is one queued event: a broker event tagged with the identity
// generation that produced it, or an operator request.
type item struct {
	gen uint64
	ev  broker.Event
	req *request
}

// Options configures a Controller.
type Options struct {
	// TimeFormat is the layout for message times. Defaults to "15:04".
	TimeFormat string
	// Now overrides the clock.
	Now func() time.Time
	// MaxMessageBytes caps the encoded payload of one message. Defaults to
	// DefaultMaxMessageBytes.
	MaxMessageBytes int
}

// DefaultMaxMessageBytes fits one payload inside the relay's default 64 KiB
// frame limit.
const DefaultMaxMessageBytes = 64<<10 - broker.FrameOverhead

// Controller owns the session context: the local identity, its broker peer
// and at most one Session.
type Controller struct {
	dialer     broker.Dialer
	view       View
	queue      *bus.Queue[item]
	now        func() time.Time
	timeFormat string
	maxMessage int

	gen      uint64
	identity *LocalIdentity
	peer     broker.Peer
	session  *Session

	transcript []ChatMessage
}

// NewController creates a controller that registers identities through
// dialer and renders into view.
func NewController(dialer broker.Dialer, view View, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = DefaultTimeFormat
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return &Controller{
		dialer:     dialer,
		view:       view,
		queue:      bus.NewQueue[item](),
		now:        opts.Now,
		timeFormat: opts.TimeFormat,
		maxMessage: opts.MaxMessageBytes,
	}
}

// RequestBootstrap queues Bootstrap(label). Failures go to View.Alert.
func (c *Controller) RequestBootstrap(label string) {
	c.queue.Publish(item{req: &request{kind: requestBootstrap, arg: label}})
}

// RequestConnect queues Connect(remoteID).
func (c *Controller) RequestConnect(remoteID string) {
	c.queue.Publish(item{req: &request{kind: requestConnect, arg: remoteID}})
}

// RequestSend queues Send(text).
func (c *Controller) RequestSend(text string) {
	c.queue.Publish(item{req: &request{kind: requestSend, arg: text}})
}

// Run drains the event queue until ctx is cancelled, then destroys the peer.
func (c *Controller) Run(ctx context.Context) error {
	defer c.shutdown()
	for {
		it, err := c.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) {
				return nil
			}
			return err
		}
		c.process(it)
	}
}

// Drain handles every queued event without waiting for more.
func (c *Controller) Drain() {
	for c.queue.Len() > 0 {
		it, err := c.queue.Next(context.Background())
		if err != nil {
			return
		}
		c.process(it)
	}
}

func (c *Controller) process(it item) {
	var err error
	if it.req != nil {
		switch it.req.kind {
		case requestBootstrap:
			err = c.Bootstrap(it.req.arg)
		case requestConnect:
			err = c.Connect(it.req.arg)
		case requestSend:
			err = c.Send(it.req.arg)
		}
	} else if it.gen == c.gen {
		err = c.handle(it.ev)
	}
	if err != nil {
		c.view.Alert(err)
	}
}

func (c *Controller) shutdown() {
	c.discardPeer()
	c.queue.Close()
}

// Identity returns the local identity, or nil before Bootstrap.
func (c *Controller) Identity() *LocalIdentity { return c.identity }

// Session returns the active session, or nil.
func (c *Controller) Session() *Session { return c.session }

// Messages returns a copy of the transcript in arrival order.
func (c *Controller) Messages() []ChatMessage {
	out := make([]ChatMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Bootstrap requests a broker identity derived from label. A confirmed
// identity cannot be replaced; a pending or failed one can.
func (c *Controller) Bootstrap(label string) error {
	if c.identity != nil && c.identity.confirmed {
		return validation("identity already established as " + c.identity.BrokerID)
	}
	id, err := newIdentity(label)
	if err != nil {
		return err
	}

	c.discardPeer()
	c.identity = id
	gen := c.gen
	slog.Info("Requesting identity", "label", id.Label, "id", id.BrokerID)
	c.peer = c.dialer.Dial(id.BrokerID, func(ev broker.Event) {
		c.queue.Publish(item{gen: gen, ev: ev})
	})
	return nil
}

// Connect opens a session toward remoteID, superseding any existing one.
func (c *Controller) Connect(remoteID string) error {
	remoteID = strings.TrimSpace(remoteID)
	if remoteID == "" {
		return validation("please enter peer id")
	}
	if c.peer == nil || c.identity == nil || !c.identity.confirmed {
		return &NotConnectedError{Message: "identity not established"}
	}
	if remoteID == c.identity.BrokerID {
		return validation("cannot connect to your own id")
	}

	if prev := c.session; prev != nil {
		slog.Info("Superseding session", "remote", prev.RemoteID)
		c.session = nil
		prev.close()
		c.disconnected()
	}

	slog.Info("Connecting", "remote", remoteID)
	c.session = newSession(c.peer.Connect(remoteID))
	return nil
}

// Send transmits text on the open session and records it locally.
func (c *Controller) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return validation("please enter message")
	}
	s := c.session
	if s == nil || s.state != Open || !s.conn.Open() {
		return &NotConnectedError{Message: "not connected to peer"}
	}

	ts := c.now().UnixMilli()
	data, err := json.Marshal(Payload{Message: text, Timestamp: ts})
	if err != nil {
		return err
	}
	if len(data) > c.maxMessage {
		return validation(fmt.Sprintf("message too long (%d bytes, limit %d)", len(data), c.maxMessage))
	}
	if err := s.conn.Send(data); err != nil {
		slog.Warn("Send failed", "remote", s.RemoteID, "err", err)
	}

	c.appendMessage(ChatMessage{
		Text:         text,
		Timestamp:    ts,
		SenderIsSelf: true,
		Sender:       c.identity.BrokerID,
		Time:         formatTimestamp(ts, c.timeFormat),
	})
	return nil
}

func (c *Controller) handle(ev broker.Event) error {
	switch ev.Kind {
	case broker.EventOpen:
		if c.identity == nil {
			return nil
		}
		c.identity.BrokerID = ev.ID
		c.identity.confirmed = true
		slog.Info("Identity confirmed", "id", ev.ID)
		c.view.IdentityReady(ev.ID)

	case broker.EventError:
		slog.Warn("Broker error", "err", ev.Err)
		if c.identity != nil && !c.identity.confirmed {
			c.identity = nil
			c.discardPeer()
		}
		return &BrokerError{Message: errMessage(ev.Err)}

	case broker.EventConnection:
		c.acceptIncoming(ev.Conn)

	case broker.EventDisconnected, broker.EventClose:
		// The registration is gone with the link; a new Bootstrap is needed.
		slog.Warn("Broker link down", "event", ev.Kind)
		c.identity = nil
		c.discardPeer()
		c.disconnected()
		c.view.IdentityLost()
		return &BrokerError{Message: "lost connection to broker"}

	case broker.ConnOpen:
		s := c.active(ev.Conn)
		if s == nil || !s.fire(triggerOpen) {
			return nil
		}
		slog.Info("Session open", "remote", s.RemoteID)
		c.view.StatusChanged(Status{Connected: true, RemoteID: s.RemoteID})
		c.view.InputEnabled(true)

	case broker.ConnData:
		if s := c.active(ev.Conn); s != nil && s.state == Open {
			c.onReceive(s, ev.Data)
		}

	case broker.ConnClose:
		s := c.active(ev.Conn)
		if s == nil {
			return nil
		}
		slog.Info("Session closed", "remote", s.RemoteID)
		s.fire(triggerClose)
		c.session = nil
		c.disconnected()

	case broker.ConnError:
		s := c.active(ev.Conn)
		if s == nil {
			return nil
		}
		wasOpen := s.state == Open
		s.fire(triggerError)
		c.session = nil
		s.conn.Close()
		c.disconnected()
		slog.Warn("Session failed", "remote", s.RemoteID, "err", ev.Err)
		if wasOpen {
			return &TransportError{RemoteID: s.RemoteID, Err: ev.Err}
		}
		return &BrokerError{Message: errMessage(ev.Err)}
	}
	return nil
}

// acceptIncoming promotes conn to the active session unless one exists, in
// which case conn is closed and dropped without notice.
func (c *Controller) acceptIncoming(conn broker.Conn) {
	if c.session != nil {
		slog.Info("Rejecting session, already busy", "remote", conn.Peer(), "active", c.session.RemoteID)
		conn.Close()
		return
	}
	slog.Info("Accepting session", "remote", conn.Peer())
	c.session = newSession(conn)
}

func (c *Controller) onReceive(s *Session, data []byte) {
	slog.Debug("Message received", "remote", s.RemoteID, "payload", string(data))
	text, ts, ok := decodePayload(data)
	display := invalidTime
	if ok {
		display = formatTimestamp(ts, c.timeFormat)
	}
	c.appendMessage(ChatMessage{
		Text:      text,
		Timestamp: ts,
		Sender:    s.RemoteID,
		Time:      display,
	})
}

func (c *Controller) appendMessage(m ChatMessage) {
	c.transcript = append(c.transcript, m)
	c.view.MessageAppended(m)
}

// active returns the session if conn belongs to it.
func (c *Controller) active(conn broker.Conn) *Session {
	if c.session == nil || c.session.conn != conn {
		return nil
	}
	return c.session
}

func (c *Controller) disconnected() {
	c.view.StatusChanged(Status{})
	c.view.InputEnabled(false)
}

// discardPeer destroys the current peer. Events it still emits carry a
// stale generation and are ignored.
func (c *Controller) discardPeer() {
	c.gen++
	if c.peer == nil {
		return
	}
	if s := c.session; s != nil {
		c.session = nil
		s.close()
	}
	if err := c.peer.Close(); err != nil {
		slog.Debug("Peer close failed", "err", err)
	}
	c.peer = nil
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
