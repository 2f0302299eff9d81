package chat

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joebot/peerchat/internal/broker"
	"github.com/joebot/peerchat/internal/relay"
)

func startRelay(t *testing.T) (*relay.Server, *broker.WebSocketDialer) {
	t.Helper()
	r := relay.New(relay.Options{PingInterval: time.Second})
	srv := httptest.NewServer(r.Routes())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/peerjs"
	return r, broker.NewWebSocketDialer(url, time.Second)
}

func TestChatOverRelay(t *testing.T) {
	_, d := startRelay(t)
	a, va, _ := startController(t, d)
	b, vb, stopB := startController(t, d)

	a.RequestBootstrap("555-1234")
	b.RequestBootstrap("999-8887")
	require.Eventually(t, func() bool {
		return va.identity() == "5551234" && vb.identity() == "9998887"
	}, eventually, tick)

	a.RequestConnect("9998887")
	require.Eventually(t, func() bool {
		return va.lastStatus().Text() == "CONNECTED TO 9998887" &&
			vb.lastStatus().Text() == "CONNECTED TO 5551234" &&
			va.inputEnabled() && vb.inputEnabled()
	}, eventually, tick)

	a.RequestSend("hello")
	require.Eventually(t, func() bool { return len(vb.received()) == 1 }, eventually, tick)
	b.RequestSend("hi yourself")
	require.Eventually(t, func() bool { return len(va.received()) == 1 }, eventually, tick)

	assert.Equal(t, []string{"5551234: hello"}, vb.received())
	assert.Equal(t, []string{"9998887: hi yourself"}, va.received())

	stopB()
	require.Eventually(t, func() bool {
		return va.lastStatus().Text() == "DISCONNECTED" && !va.inputEnabled()
	}, eventually, tick)
}

func TestBusyPeerRejectsThirdPartyOverRelay(t *testing.T) {
	_, d := startRelay(t)
	a, va, _ := startController(t, d)
	b, vb, _ := startController(t, d)
	c, vc, _ := startController(t, d)

	a.RequestBootstrap("1")
	b.RequestBootstrap("2")
	c.RequestBootstrap("3")
	require.Eventually(t, func() bool {
		return va.identity() == "1" && vb.identity() == "2" && vc.identity() == "3"
	}, eventually, tick)

	a.RequestConnect("2")
	require.Eventually(t, func() bool {
		return vb.lastStatus().Text() == "CONNECTED TO 1" && va.lastStatus().Text() == "CONNECTED TO 2"
	}, eventually, tick)

	// 2 accepts on the wire, then closes the extra session straight away.
	c.RequestConnect("2")
	require.Eventually(t, func() bool {
		vc.mu.Lock()
		defer vc.mu.Unlock()
		n := len(vc.statuses)
		return n > 0 && !vc.statuses[n-1].Connected && len(vc.inputs) > 0 && !vc.inputs[len(vc.inputs)-1]
	}, eventually, tick)

	a.RequestSend("still here")
	require.Eventually(t, func() bool { return len(vb.received()) == 1 }, eventually, tick)
	assert.Equal(t, "CONNECTED TO 1", vb.lastStatus().Text())
	assert.Equal(t, "CONNECTED TO 2", va.lastStatus().Text())
	assert.Empty(t, vc.received())
}

func TestOversizedMessageKeepsRelaySession(t *testing.T) {
	_, d := startRelay(t)
	a, va, _ := startController(t, d)
	b, vb, _ := startController(t, d)

	a.RequestBootstrap("111")
	b.RequestBootstrap("222")
	require.Eventually(t, func() bool {
		return va.identity() == "111" && vb.identity() == "222"
	}, eventually, tick)
	a.RequestConnect("222")
	require.Eventually(t, func() bool { return va.inputEnabled() && vb.inputEnabled() }, eventually, tick)

	a.RequestSend(strings.Repeat("x", 70<<10))
	require.Eventually(t, func() bool { return va.alertCount() == 1 }, eventually, tick)
	va.mu.Lock()
	var verr *ValidationError
	assert.ErrorAs(t, va.alerts[0], &verr)
	va.mu.Unlock()

	a.RequestSend("fits")
	require.Eventually(t, func() bool { return len(vb.received()) == 1 }, eventually, tick)
	assert.Equal(t, "CONNECTED TO 222", va.lastStatus().Text())
	assert.Equal(t, 1, va.messageCount())
}

func TestRelayLinkLossAllowsNewBootstrap(t *testing.T) {
	r, d := startRelay(t)
	a, va, _ := startController(t, d)

	a.RequestBootstrap("111")
	require.Eventually(t, func() bool { return va.identity() == "111" }, eventually, tick)

	r.DisconnectAll()
	require.Eventually(t, func() bool {
		va.mu.Lock()
		defer va.mu.Unlock()
		return va.lost == 1
	}, eventually, tick)
	assert.Empty(t, va.identity())
	require.Eventually(t, func() bool { return va.alertCount() == 1 }, eventually, tick)

	// The same number registers again once the relay forgets the old socket.
	require.Eventually(t, func() bool { return len(r.Peers()) == 0 }, eventually, tick)
	a.RequestBootstrap("111")
	require.Eventually(t, func() bool { return va.identity() == "111" }, eventually, tick)
}
