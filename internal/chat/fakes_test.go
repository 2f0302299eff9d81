package chat

import (
	"errors"
	"sync"

	"github.com/joebot/peerchat/internal/broker"
)

type fakeDialer struct {
	requested []string
	peers     []*fakePeer
}

func (d *fakeDialer) Dial(requestedID string, sink broker.Sink) broker.Peer {
	p := &fakePeer{sink: sink}
	d.requested = append(d.requested, requestedID)
	d.peers = append(d.peers, p)
	return p
}

func (d *fakeDialer) last() *fakePeer { return d.peers[len(d.peers)-1] }

type fakePeer struct {
	sink   broker.Sink
	id     string
	conns  []*fakeConn
	closed bool
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Connect(remoteID string) broker.Conn {
	c := &fakeConn{peer: p, remote: remoteID}
	p.conns = append(p.conns, c)
	return c
}

func (p *fakePeer) Close() error {
	p.closed = true
	return nil
}

// incoming simulates the broker surfacing an inbound session.
func (p *fakePeer) incoming(remoteID string) *fakeConn {
	c := &fakeConn{peer: p, remote: remoteID}
	p.sink(broker.Event{Kind: broker.EventConnection, Conn: c})
	return c
}

func (p *fakePeer) emit(kind broker.EventKind) {
	p.sink(broker.Event{Kind: kind})
}

type fakeConn struct {
	peer   *fakePeer
	remote string
	open     bool
	closed   bool
	failSend bool
	sent     [][]byte
}

func (c *fakeConn) Peer() string { return c.remote }
func (c *fakeConn) Open() bool   { return c.open && !c.closed }

func (c *fakeConn) Send(data []byte) error {
	if !c.Open() {
		return broker.Errorf(broker.ErrNotOpen, "not open")
	}
	if c.failSend {
		return errors.New("write lost")
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.open = false
	c.peer.sink(broker.Event{Kind: broker.ConnClose, Conn: c})
	return nil
}

// opened simulates the transport confirming the session.
func (c *fakeConn) opened() {
	c.open = true
	c.peer.sink(broker.Event{Kind: broker.ConnOpen, Conn: c})
}

func (c *fakeConn) data(payload string) {
	c.peer.sink(broker.Event{Kind: broker.ConnData, Conn: c, Data: []byte(payload)})
}

func (c *fakeConn) fail(err error) {
	c.peer.sink(broker.Event{Kind: broker.ConnError, Conn: c, Err: err})
}

// remoteClose simulates the other side hanging up.
func (c *fakeConn) remoteClose() {
	c.closed = true
	c.open = false
	c.peer.sink(broker.Event{Kind: broker.ConnClose, Conn: c})
}

type recordingView struct {
	mu       sync.Mutex
	ids      []string
	lost     int
	statuses []Status
	messages []ChatMessage
	inputs   []bool
	alerts   []error
}

func (v *recordingView) IdentityReady(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ids = append(v.ids, id)
}

func (v *recordingView) IdentityLost() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lost++
	v.ids = append(v.ids, "")
}

func (v *recordingView) StatusChanged(s Status) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.statuses = append(v.statuses, s)
}

func (v *recordingView) MessageAppended(m ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, m)
}

func (v *recordingView) InputEnabled(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inputs = append(v.inputs, on)
}

func (v *recordingView) Alert(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, err)
}

func (v *recordingView) lastStatus() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.statuses) == 0 {
		return Status{}
	}
	return v.statuses[len(v.statuses)-1]
}

func (v *recordingView) inputEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.inputs) > 0 && v.inputs[len(v.inputs)-1]
}

func (v *recordingView) messageCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.messages)
}

func (v *recordingView) identity() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.ids) == 0 {
		return ""
	}
	return v.ids[len(v.ids)-1]
}
