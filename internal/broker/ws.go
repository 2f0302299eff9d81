package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketDialer registers identities with a relay over WebSocket.
type WebSocketDialer struct {
	URL              string
	HandshakeTimeout time.Duration
}

// NewWebSocketDialer creates a dialer for the relay at url (ws:// or wss://).
func NewWebSocketDialer(url string, handshakeTimeout time.Duration) *WebSocketDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebSocketDialer{URL: url, HandshakeTimeout: handshakeTimeout}
}

// Dial connects to the relay in the background and registers requestedID.
func (d *WebSocketDialer) Dial(requestedID string, sink Sink) Peer {
	p := &wsPeer{
		sink:  sink,
		conns: make(map[string]*wsConn),
		done:  make(chan struct{}),
	}
	go p.run(d, requestedID)
	return p
}

type wsPeer struct {
	sink Sink

	writeMu sync.Mutex
	ws      *websocket.Conn

	mu      sync.Mutex
	id      string
	conns   map[string]*wsConn
	pending []Frame
	closing bool
	done    chan struct{}
}

func (p *wsPeer) run(d *WebSocketDialer, requestedID string) {
	defer close(p.done)

	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	ws, _, err := dialer.Dial(d.URL, nil)
	if err != nil {
		slog.Warn("Broker dial failed", "url", d.URL, "err", err)
		p.sink(Event{Kind: EventError, Err: Errorf(ErrNetwork, "could not reach broker: %v", err)})
		return
	}

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		ws.Close()
		return
	}
	p.ws = ws
	p.mu.Unlock()

	if err := p.write(Frame{Type: FrameRegister, ID: requestedID}); err != nil {
		ws.Close()
		p.sink(Event{Kind: EventError, Err: Errorf(ErrNetwork, "register: %v", err)})
		return
	}

	p.readLoop()
}

func (p *wsPeer) readLoop() {
	for {
		var f Frame
		if err := p.ws.ReadJSON(&f); err != nil {
			p.teardown(err)
			return
		}
		p.handle(f)
	}
}

func (p *wsPeer) handle(f Frame) {
	switch f.Type {
	case FrameOpen:
		p.mu.Lock()
		p.id = f.ID
		pending := p.pending
		p.pending = nil
		p.mu.Unlock()
		p.sink(Event{Kind: EventOpen, ID: f.ID})
		for _, pf := range pending {
			p.writeOrLog(pf)
		}

	case FrameError:
		if f.Conn == "" {
			p.sink(Event{Kind: EventError, Err: f.Err()})
			return
		}
		if c := p.conn(f.Conn); c != nil {
			p.sink(Event{Kind: ConnError, Conn: c, Err: f.Err()})
			c.finish()
		}

	case FrameConnection:
		c := &wsConn{peer: p, id: f.Conn, remote: f.From}
		p.mu.Lock()
		p.conns[c.id] = c
		p.mu.Unlock()
		p.sink(Event{Kind: EventConnection, Conn: c})
		// The answering side accepts automatically; the controller may
		// still close the session straight away.
		p.writeOrLog(Frame{Type: FrameAccept, Conn: c.id})

	case FrameOpened:
		if c := p.conn(f.Conn); c != nil && c.markOpen() {
			p.sink(Event{Kind: ConnOpen, Conn: c})
		}

	case FrameData:
		if c := p.conn(f.Conn); c != nil {
			p.sink(Event{Kind: ConnData, Conn: c, Data: []byte(f.Payload)})
		}

	case FrameClose:
		if c := p.conn(f.Conn); c != nil {
			c.finish()
		}

	default:
		slog.Debug("Ignoring relay frame", "type", f.Type)
	}
}

// teardown runs once the socket stops reading, for any reason.
func (p *wsPeer) teardown(readErr error) {
	p.mu.Lock()
	closing := p.closing
	conns := make([]*wsConn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		c.finish()
	}

	if closing {
		p.sink(Event{Kind: EventClose})
		return
	}
	slog.Warn("Broker connection lost", "err", readErr)
	p.sink(Event{Kind: EventDisconnected})
}

func (p *wsPeer) write(f Frame) error {
	p.mu.Lock()
	ws := p.ws
	p.mu.Unlock()
	if ws == nil {
		return errors.New("broker: not connected")
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return ws.WriteJSON(f)
}

// writeOrLog is write for frames whose loss only the relay would notice.
func (p *wsPeer) writeOrLog(f Frame) {
	if err := p.write(f); err != nil {
		slog.Debug("Relay write failed", "type", f.Type, "conn", f.Conn, "err", err)
	}
}

func (p *wsPeer) conn(id string) *wsConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[id]
}

func (p *wsPeer) forget(c *wsConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[c.id] == c {
		delete(p.conns, c.id)
	}
}

func (p *wsPeer) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *wsPeer) Connect(remoteID string) Conn {
	c := &wsConn{peer: p, id: "dc_" + uuid.NewString(), remote: remoteID}
	f := Frame{Type: FrameConnect, To: remoteID, Conn: c.id}

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		c.closed = true
		p.sink(Event{Kind: ConnError, Conn: c, Err: Errorf(ErrNotOpen, "peer is closed")})
		p.sink(Event{Kind: ConnClose, Conn: c})
		return c
	}
	p.conns[c.id] = c
	queued := p.id == ""
	if queued {
		p.pending = append(p.pending, f)
	}
	p.mu.Unlock()

	if !queued {
		if err := p.write(f); err != nil {
			p.sink(Event{Kind: ConnError, Conn: c, Err: Errorf(ErrNetwork, "connect: %v", err)})
			c.finish()
		}
	}
	return c
}

func (p *wsPeer) Close() error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	ws := p.ws
	p.mu.Unlock()

	if ws == nil {
		// Still dialing; run() notices closing and exits.
		p.sink(Event{Kind: EventClose})
		return nil
	}

	p.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "peer closed")
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		slog.Debug("Broker close frame failed", "err", err)
	}
	p.writeMu.Unlock()
	err := ws.Close()
	<-p.done
	if err != nil {
		return fmt.Errorf("close broker connection: %w", err)
	}
	return nil
}

type wsConn struct {
	peer   *wsPeer
	id     string
	remote string

	mu     sync.Mutex
	open   bool
	closed bool
}

func (c *wsConn) Peer() string { return c.remote }

func (c *wsConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *wsConn) markOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.open = true
	return true
}

func (c *wsConn) Send(data []byte) error {
	if !c.Open() {
		return Errorf(ErrNotOpen, "connection to %s is not open", c.remote)
	}
	return c.peer.write(Frame{Type: FrameData, Conn: c.id, Payload: EncodePayload(data)})
}

// Close tells the relay and ends the session locally.
func (c *wsConn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.mu.Unlock()
	if already {
		return nil
	}
	c.peer.writeOrLog(Frame{Type: FrameClose, Conn: c.id})
	c.finish()
	return nil
}

// finish marks the conn closed and emits ConnClose once.
func (c *wsConn) finish() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	c.mu.Unlock()

	c.peer.forget(c)
	c.peer.sink(Event{Kind: ConnClose, Conn: c})
}
