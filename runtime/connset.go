package runtime

import (
	"bufio"
	"net"
	"sync"

	"go.uber.org/multierr"

	"github.com/openrobo/openrobo/message"
)

// connEntry is one open connection, keyed by the thread-ID of whoever
// is on the other end (§4.4 Connection-set entry). writeMu serializes
// frame writes from multiple goroutines onto the same socket (the main
// dispatcher's forwarding path and a worker's own sends never share an
// entry, but the mutex keeps the type safe to reuse either way).
type connEntry struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader
	writeMu sync.Mutex
}

// ConnectionSet is a thread's collection of open sockets, keyed by
// thread-ID (§4.4). Every operation thread and the main thread each own
// one; a connection set is not shared between goroutines except via the
// owning thread's own API calls.
type ConnectionSet struct {
	mu      sync.Mutex
	byID    map[string]*connEntry
	byConn  map[net.Conn]*connEntry
}

func newConnectionSet() *ConnectionSet {
	return &ConnectionSet{
		byID:   make(map[string]*connEntry),
		byConn: make(map[net.Conn]*connEntry),
	}
}

// FindByID returns the connection registered under id, if any.
func (s *ConnectionSet) FindByID(id string) (net.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// FindByConn returns the thread-ID registered for conn, if any.
func (s *ConnectionSet) FindByConn(conn net.Conn) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byConn[conn]
	if !ok {
		return "", false
	}
	return e.id, true
}

// CreateNew registers a new connection under id, created lazily on
// first send or on accept (§4.4).
func (s *ConnectionSet) CreateNew(id string, conn net.Conn) *bufio.Reader {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &connEntry{id: id, conn: conn, reader: bufio.NewReader(conn)}
	s.byID[id] = e
	s.byConn[conn] = e
	return e.reader
}

// Delete removes and closes the connection registered under id.
func (s *ConnectionSet) Delete(id string) {
	s.mu.Lock()
	e, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		delete(s.byConn, e.conn)
	}
	s.mu.Unlock()
	if ok {
		e.conn.Close()
	}
}

// DeleteByConn removes and closes the entry registered under conn,
// returning the thread-ID it was registered under, if any.
func (s *ConnectionSet) DeleteByConn(conn net.Conn) (string, bool) {
	s.mu.Lock()
	e, ok := s.byConn[conn]
	if ok {
		delete(s.byConn, conn)
		delete(s.byID, e.id)
	}
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	e.conn.Close()
	return e.id, true
}

// Reader returns the buffered reader for the connection registered
// under id.
func (s *ConnectionSet) Reader(id string) (*bufio.Reader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.reader, true
}

// entry returns the raw entry (used internally for locked writes).
func (s *ConnectionSet) entry(id string) (*connEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	return e, ok
}

// All returns a snapshot of every (id, conn) pair currently registered.
func (s *ConnectionSet) All() map[string]net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]net.Conn, len(s.byID))
	for id, e := range s.byID {
		out[id] = e.conn
	}
	return out
}

// SendFrame writes a framed message (plus optional suffix) to the
// connection registered under id, serializing concurrent writers.
func (s *ConnectionSet) SendFrame(id string, msg []byte, suffix []byte) error {
	e, ok := s.entry(id)
	if !ok {
		return ErrUnknownDestination
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return message.WriteFrame(e.conn, msg, suffix)
}

// SendStopByte writes the single raw `\0` stop signal to the connection
// registered under id — never framed, so the peer's next read sees it
// ahead of (or interleaved with) any length-prefixed frame (§4.2, §4.9).
func (s *ConnectionSet) SendStopByte(id string) error {
	e, ok := s.entry(id)
	if !ok {
		return ErrUnknownDestination
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, err := e.conn.Write([]byte{0})
	return err
}

// CloseAll tears down every connection owned by this set (§5: "closed on
// thread exit"), aggregating any close errors (mirroring the teacher's
// Voltron.Run defer loop over vol.clients, generalized to report every
// failure instead of discarding all but the last).
func (s *ConnectionSet) CloseAll() error {
	s.mu.Lock()
	entries := make([]*connEntry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.byID = make(map[string]*connEntry)
	s.byConn = make(map[net.Conn]*connEntry)
	s.mu.Unlock()
	var err error
	for _, e := range entries {
		err = multierr.Append(err, e.conn.Close())
	}
	return err
}
