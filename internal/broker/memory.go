package broker

import (
	"sync"

	"github.com/google/uuid"
)

// Network is an in-process broker. Every peer dialed on the same Network
// can reach every other; sessions open as soon as they are requested.
type Network struct {
	mu    sync.Mutex
	peers map[string]*memPeer
}

// NewNetwork creates an empty in-process broker.
func NewNetwork() *Network {
	return &Network{peers: make(map[string]*memPeer)}
}

type delivery struct {
	sink Sink
	ev   Event
}

func flush(ds []delivery) {
	for _, d := range ds {
		d.sink(d.ev)
	}
}

// Dial registers requestedID on the network.
func (n *Network) Dial(requestedID string, sink Sink) Peer {
	p := &memPeer{net: n, sink: sink, conns: make(map[*memConn]struct{})}

	id := requestedID
	if id == "" {
		id = uuid.NewString()
	}

	n.mu.Lock()
	switch {
	case !ValidID(id):
		n.mu.Unlock()
		sink(Event{Kind: EventError, Err: Errorf(ErrInvalidID, "ID %q is invalid", id)})
		return p
	case n.peers[id] != nil:
		n.mu.Unlock()
		sink(Event{Kind: EventError, Err: Errorf(ErrUnavailableID, "ID %q is taken", id)})
		return p
	}
	p.id = id
	n.peers[id] = p
	n.mu.Unlock()

	sink(Event{Kind: EventOpen, ID: id})
	return p
}

// Peers returns the registered identities.
func (n *Network) Peers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}

type memPeer struct {
	net   *Network
	sink  Sink
	id    string
	conns map[*memConn]struct{}
	dead  bool
}

func (p *memPeer) ID() string {
	p.net.mu.Lock()
	defer p.net.mu.Unlock()
	return p.id
}

func (p *memPeer) Connect(remoteID string) Conn {
	local := &memConn{owner: p, remote: remoteID}

	n := p.net
	n.mu.Lock()
	target := n.peers[remoteID]
	registered := !p.dead && p.id != ""
	if !registered || target == nil {
		local.closed = true
		n.mu.Unlock()
		err := Errorf(ErrPeerUnavailable, "could not connect to peer %s", remoteID)
		if !registered {
			err = Errorf(ErrNotOpen, "peer is not registered")
		}
		p.sink(Event{Kind: ConnError, Conn: local, Err: err})
		p.sink(Event{Kind: ConnClose, Conn: local})
		return local
	}

	far := &memConn{owner: target, remote: p.id}
	local.other, far.other = far, local
	local.open, far.open = true, true
	p.conns[local] = struct{}{}
	target.conns[far] = struct{}{}
	ds := []delivery{
		{p.sink, Event{Kind: ConnOpen, Conn: local}},
		{target.sink, Event{Kind: EventConnection, Conn: far}},
		{target.sink, Event{Kind: ConnOpen, Conn: far}},
	}
	n.mu.Unlock()

	flush(ds)
	return local
}

func (p *memPeer) Close() error {
	n := p.net
	n.mu.Lock()
	if p.dead {
		n.mu.Unlock()
		return nil
	}
	p.dead = true
	if p.id != "" && n.peers[p.id] == p {
		delete(n.peers, p.id)
	}
	var ds []delivery
	for c := range p.conns {
		ds = append(ds, c.closeLocked()...)
	}
	ds = append(ds, delivery{p.sink, Event{Kind: EventClose}})
	n.mu.Unlock()

	flush(ds)
	return nil
}

type memConn struct {
	owner  *memPeer
	remote string
	other  *memConn
	open   bool
	closed bool
}

func (c *memConn) Peer() string { return c.remote }

func (c *memConn) Open() bool {
	c.owner.net.mu.Lock()
	defer c.owner.net.mu.Unlock()
	return c.open
}

func (c *memConn) Send(data []byte) error {
	n := c.owner.net
	n.mu.Lock()
	if !c.open || c.other == nil {
		n.mu.Unlock()
		return Errorf(ErrNotOpen, "connection to %s is not open", c.remote)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	d := delivery{c.other.owner.sink, Event{Kind: ConnData, Conn: c.other, Data: buf}}
	n.mu.Unlock()

	d.sink(d.ev)
	return nil
}

func (c *memConn) Close() error {
	n := c.owner.net
	n.mu.Lock()
	ds := c.closeLocked()
	n.mu.Unlock()

	flush(ds)
	return nil
}

// closeLocked ends both halves of the session. Caller holds net.mu.
func (c *memConn) closeLocked() []delivery {
	var ds []delivery
	for _, half := range []*memConn{c, c.other} {
		if half == nil || half.closed {
			continue
		}
		half.closed = true
		half.open = false
		delete(half.owner.conns, half)
		ds = append(ds, delivery{half.owner.sink, Event{Kind: ConnClose, Conn: half}})
	}
	return ds
}
