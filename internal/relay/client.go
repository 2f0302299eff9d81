package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joebot/peerchat/internal/broker"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 64
)

type outbound struct {
	frame      broker.Frame
	closeAfter bool
}

// client is one WebSocket connection. Frames are written by a single
// writer goroutine fed through send.
type client struct {
	srv  *Server
	ws   *websocket.Conn
	send chan outbound

	id string // owned by readPump

	once sync.Once
	quit chan struct{}
}

func newClient(s *Server, ws *websocket.Conn) *client {
	return &client{
		srv:  s,
		ws:   ws,
		send: make(chan outbound, sendBacklog),
		quit: make(chan struct{}),
	}
}

// deliver queues a frame. A client whose backlog is full is disconnected.
func (c *client) deliver(f broker.Frame) {
	c.enqueue(outbound{frame: f})
}

// fail sends an error frame and closes the connection after it.
func (c *client) fail(conn string, err *broker.Error) {
	slog.Debug("Rejecting client", "peer", c.id, "err", err)
	c.enqueue(outbound{frame: broker.ErrorFrame(conn, err), closeAfter: true})
}

func (c *client) enqueue(o outbound) {
	select {
	case <-c.quit:
		return
	default:
	}
	select {
	case c.send <- o:
	case <-c.quit:
	default:
		slog.Warn("Client backlog full, disconnecting", "remote", c.ws.RemoteAddr().String())
		c.shutdown()
	}
}

func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.quit)
		c.ws.Close()
	})
}

func (c *client) readPump() {
	defer func() {
		c.shutdown()
		c.srv.drop(c)
	}()

	pongWait := 2 * c.srv.opts.PingInterval
	c.ws.SetReadLimit(c.srv.opts.MaxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f broker.Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Client read failed", "peer", c.id, "err", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.srv.dispatch(c, f)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.srv.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.quit:
			return
		case o := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(o.frame); err != nil {
				return
			}
			if o.closeAfter {
				msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, o.frame.Error)
				c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
