package broker

import "log/slog"

// EchoID is the identity `chat --local` gives its echo peer.
const EchoID = "echo"

// StartEcho registers id on n as a peer that accepts every session and sends
// each payload back on the session it arrived on.
func StartEcho(n *Network, id string) Peer {
	return n.Dial(id, func(ev Event) {
		switch ev.Kind {
		case EventError:
			slog.Warn("Echo peer not registered", "id", id, "err", ev.Err)
		case EventConnection:
			slog.Debug("Echo session", "remote", ev.Conn.Peer())
		case ConnData:
			if err := ev.Conn.Send(ev.Data); err != nil {
				slog.Debug("Echo send failed", "remote", ev.Conn.Peer(), "err", err)
			}
		}
	})
}
