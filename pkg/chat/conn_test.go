package chat

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestConnDeliversQueuedWritesInOrder(t *testing.T) {
	ws := newStubWire()
	conn := NewConn("s1", ws, 8, 0)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte("one")))
	require.NoError(t, conn.Send([]byte("two")))
	require.NoError(t, conn.Send([]byte("three")))

	require.Eventually(t, func() bool { return ws.writeCount() == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "one", string(ws.writtenAt(0)))
	require.Equal(t, "two", string(ws.writtenAt(1)))
	require.Equal(t, "three", string(ws.writtenAt(2)))
}

func TestConnSendAfterCloseFails(t *testing.T) {
	ws := newStubWire()
	conn := NewConn("s1", ws, 8, 0)
	conn.Close()
	conn.Close() // idempotent

	require.ErrorIs(t, conn.Send([]byte("x")), ErrConnClosed)
	require.True(t, ws.isClosed())
}

func TestConnReportsFullSendBuffer(t *testing.T) {
	ws := newBlockingStubWire()
	conn := NewConn("s1", ws, 1, 0)
	defer conn.Close()
	defer ws.releaseWrites()

	// With writes blocked, at most one message sits in the pump and one in
	// the buffer; the third enqueue must fail.
	var sawFull bool
	for i := 0; i < 3; i++ {
		if err := conn.Send([]byte("x")); errors.Is(err, ErrSendBufferFull) {
			sawFull = true
			break
		}
	}
	require.True(t, sawFull)
}

func TestConnClosesOnWriteFailure(t *testing.T) {
	ws := newStubWire()
	ws.writeErr = errors.New("broken pipe")
	conn := NewConn("s1", ws, 8, 0)

	require.NoError(t, conn.Send([]byte("x")))
	require.Eventually(t, func() bool { return ws.isClosed() }, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, conn.Send([]byte("y")), ErrConnClosed)
}
