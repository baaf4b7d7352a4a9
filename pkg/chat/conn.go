package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// WireConn is the transport surface the registry needs from a websocket
// connection. *websocket.Conn satisfies it; tests substitute stubs.
type WireConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
)

// Conn wraps one live websocket connection with an ordered outbound send
// queue. History and artifact notifications originate on other goroutines;
// the queue hands them off to a single writer goroutine so wire writes never
// interleave.
type Conn struct {
	sessionID    string
	ws           WireConn
	sendCh       chan []byte
	closed       chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func NewConn(sessionID string, ws WireConn, sendBuffer int, writeTimeout time.Duration) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if writeTimeout < 0 {
		writeTimeout = defaultWriteTimeout
	}
	c := &Conn{
		sessionID:    sessionID,
		ws:           ws,
		sendCh:       make(chan []byte, sendBuffer),
		closed:       make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	go c.writePump()
	return c
}

func (c *Conn) SessionID() string {
	if c == nil {
		return ""
	}
	return c.sessionID
}

// Send enqueues data for the writer goroutine. It never blocks: a full buffer
// means the client cannot keep up and the connection is dropped by the caller.
func (c *Conn) Send(data []byte) error {
	if c == nil {
		return ErrConnClosed
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close shuts down the writer goroutine and the underlying connection. Safe to
// call more than once.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.sendCh:
			if c.writeTimeout > 0 {
				_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("component", "chat").Str("session_id", c.sessionID).Msg("ws write failed, closing connection")
				c.Close()
				return
			}
		}
	}
}
