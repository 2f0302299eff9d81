package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joebot/peerchat/internal/broker"
)

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond

func startController(t *testing.T, dialer broker.Dialer) (*Controller, *recordingView, context.CancelFunc) {
	t.Helper()
	v := &recordingView{}
	c := NewController(dialer, v, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()
	stop := func() {
		cancel()
		wg.Wait()
	}
	t.Cleanup(stop)
	return c, v, stop
}

func TestTwoPeersChatOverNetwork(t *testing.T) {
	net := broker.NewNetwork()
	a, va, stopA := startController(t, net)
	b, vb, _ := startController(t, net)

	a.RequestBootstrap("555-1234")
	b.RequestBootstrap("999-8887")
	require.Eventually(t, func() bool {
		return va.identity() == "5551234" && vb.identity() == "9998887"
	}, eventually, tick)

	a.RequestConnect("9998887")
	require.Eventually(t, func() bool {
		return va.lastStatus().Text() == "CONNECTED TO 9998887" &&
			vb.lastStatus().Text() == "CONNECTED TO 5551234"
	}, eventually, tick)
	assert.True(t, va.inputEnabled())
	assert.True(t, vb.inputEnabled())

	a.RequestSend("hello")
	b.RequestSend("hi yourself")
	require.Eventually(t, func() bool {
		return va.messageCount() == 2 && vb.messageCount() == 2
	}, eventually, tick)

	vb.mu.Lock()
	var got []string
	for _, m := range vb.messages {
		if !m.SenderIsSelf {
			got = append(got, m.Text)
		}
	}
	vb.mu.Unlock()
	assert.Equal(t, []string{"hello"}, got)

	stopA()
	require.Eventually(t, func() bool {
		return vb.lastStatus().Text() == "DISCONNECTED" && !vb.inputEnabled()
	}, eventually, tick)
}

func TestBusyPeerRejectsThirdParty(t *testing.T) {
	net := broker.NewNetwork()
	a, va, _ := startController(t, net)
	b, vb, _ := startController(t, net)
	c, vc, _ := startController(t, net)

	a.RequestBootstrap("1")
	b.RequestBootstrap("2")
	c.RequestBootstrap("3")
	require.Eventually(t, func() bool {
		return va.identity() == "1" && vb.identity() == "2" && vc.identity() == "3"
	}, eventually, tick)

	a.RequestConnect("2")
	require.Eventually(t, func() bool {
		return vb.lastStatus().Text() == "CONNECTED TO 1"
	}, eventually, tick)

	c.RequestConnect("2")
	require.Eventually(t, func() bool {
		vc.mu.Lock()
		defer vc.mu.Unlock()
		return len(vc.statuses) >= 2
	}, eventually, tick)
	require.Eventually(t, func() bool {
		return vc.lastStatus().Text() == "DISCONNECTED"
	}, eventually, tick)

	assert.Equal(t, "CONNECTED TO 1", vb.lastStatus().Text())
	assert.Equal(t, "CONNECTED TO 2", va.lastStatus().Text())
}

func TestDuplicateIdentityIsBrokerError(t *testing.T) {
	net := broker.NewNetwork()
	a, va, _ := startController(t, net)
	b, vb, _ := startController(t, net)

	a.RequestBootstrap("555-1234")
	require.Eventually(t, func() bool { return va.identity() == "5551234" }, eventually, tick)

	b.RequestBootstrap("5551234")
	require.Eventually(t, func() bool {
		vb.mu.Lock()
		defer vb.mu.Unlock()
		return len(vb.alerts) == 1
	}, eventually, tick)

	vb.mu.Lock()
	alert := vb.alerts[0]
	vb.mu.Unlock()
	var berr *BrokerError
	require.ErrorAs(t, alert, &berr)
	assert.Empty(t, vb.identity())
}

func (v *recordingView) alertCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.alerts)
}

func (v *recordingView) received() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, m := range v.messages {
		if !m.SenderIsSelf {
			out = append(out, m.Sender+": "+m.Text)
		}
	}
	return out
}

func TestEchoPeerAnswersOnLocalNetwork(t *testing.T) {
	net := broker.NewNetwork()
	echo := broker.StartEcho(net, broker.EchoID)
	t.Cleanup(func() { echo.Close() })
	a, va, _ := startController(t, net)

	a.RequestBootstrap("555-1234")
	require.Eventually(t, func() bool { return va.identity() == "5551234" }, eventually, tick)

	a.RequestConnect(broker.EchoID)
	require.Eventually(t, func() bool {
		return va.lastStatus().Text() == "CONNECTED TO echo" && va.inputEnabled()
	}, eventually, tick)

	a.RequestSend("anyone there?")
	require.Eventually(t, func() bool { return va.messageCount() == 2 }, eventually, tick)
	assert.Equal(t, []string{"echo: anyone there?"}, va.received())
}
