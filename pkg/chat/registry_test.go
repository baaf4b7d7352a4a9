package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistrySecondConnectReplacesFirst(t *testing.T) {
	r := NewRegistry()
	ws1 := newStubWire()
	ws2 := newStubWire()
	c1 := NewConn("s1", ws1, 8, 0)
	c2 := NewConn("s1", ws2, 8, 0)

	r.Connect("s1", c1)
	r.Connect("s1", c2)

	require.Equal(t, 1, r.Count())
	got, ok := r.Get("s1")
	require.True(t, ok)
	require.Same(t, c2, got)
	require.Eventually(t, func() bool { return ws1.isClosed() }, time.Second, 5*time.Millisecond)
}

func TestRegistryDisconnectOfReplacedConnKeepsEntry(t *testing.T) {
	r := NewRegistry()
	c1 := NewConn("s1", newStubWire(), 8, 0)
	c2 := NewConn("s1", newStubWire(), 8, 0)
	r.Connect("s1", c1)
	r.Connect("s1", c2)

	// the old handler's deferred cleanup must not tear down the reconnect
	r.Disconnect("s1", c1)
	require.True(t, r.IsConnected("s1"))

	r.Disconnect("s1", c2)
	require.False(t, r.IsConnected("s1"))
}

func TestRegistryDispatchToAbsentSessionIsNoOp(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Dispatch("ghost", NewFinalAnswer("hi", "")))
}

func TestRegistryDispatchSendsSerializedEvent(t *testing.T) {
	r := NewRegistry()
	ws := newStubWire()
	conn := NewConn("s1", ws, 8, 0)
	r.Connect("s1", conn)
	defer r.Disconnect("s1", conn)

	require.NoError(t, r.Dispatch("s1", NewFinalAnswer("answer", "steps")))

	require.Eventually(t, func() bool { return ws.writeCount() == 1 }, time.Second, 5*time.Millisecond)
	var ev Event
	require.NoError(t, json.Unmarshal(ws.writtenAt(0), &ev))
	require.Equal(t, EventEnd, ev.Type)
	require.Equal(t, "answer", *ev.Message)
	require.Equal(t, "steps", ev.IntermediateSteps)
	require.True(t, ev.IsBot)
}

func TestRegistryDispatchDropsConnOnSendFailure(t *testing.T) {
	r := NewRegistry()
	conn := NewConn("s1", newStubWire(), 8, 0)
	r.Connect("s1", conn)
	conn.Close()

	err := r.Dispatch("s1", NewFinalAnswer("x", ""))
	require.Error(t, err)
	require.False(t, r.IsConnected("s1"))
}
