package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// stubWire is an in-memory WireConn for tests. Inbound payloads are fed
// through pushRead; writes are recorded.
type stubWire struct {
	mu        sync.Mutex
	writes    [][]byte
	writeErr  error
	closed    bool
	closeOnce sync.Once
	readCh    chan []byte
	blockCh   chan struct{}
}

func newStubWire() *stubWire {
	blockCh := make(chan struct{})
	close(blockCh)
	return &stubWire{readCh: make(chan []byte, 16), blockCh: blockCh}
}

// newBlockingStubWire blocks every write until releaseWrites is called.
func newBlockingStubWire() *stubWire {
	return &stubWire{readCh: make(chan []byte, 16), blockCh: make(chan struct{})}
}

func (s *stubWire) releaseWrites() {
	close(s.blockCh)
}

func (s *stubWire) pushRead(data []byte) {
	s.readCh <- data
}

func (s *stubWire) endReads() {
	s.closeOnce.Do(func() { close(s.readCh) })
}

func (s *stubWire) ReadMessage() (int, []byte, error) {
	data, ok := <-s.readCh
	if !ok {
		return 0, nil, errors.New("read on closed connection")
	}
	return websocket.TextMessage, data, nil
}

func (s *stubWire) WriteMessage(_ int, data []byte) error {
	<-s.blockCh
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.closed {
		return errors.New("write on closed connection")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.writes = append(s.writes, cp)
	return nil
}

func (s *stubWire) SetWriteDeadline(_ time.Time) error { return nil }

func (s *stubWire) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.endReads()
	return nil
}

func (s *stubWire) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *stubWire) writtenAt(i int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.writes) {
		return nil
	}
	return s.writes[i]
}

func (s *stubWire) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
