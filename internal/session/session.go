// Package session tracks live device connections and which one currently
// speaks for each device identity.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fleettrack/internal/protocol"
)

const writeTimeout = 10 * time.Second

// Session is one live connection. It is created by Registry.OnConnect and
// stays valid until the connection closes, even after a newer login for the
// same identity supersedes it.
type Session struct {
	ID string

	conn     net.Conn
	remote   string
	lastSeen atomic.Int64
	serial   atomic.Uint32

	mu       sync.RWMutex
	identity string
	codec    protocol.Codec

	writeMu sync.Mutex
}

func newSession(conn net.Conn, now time.Time) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		conn:   conn,
		remote: conn.RemoteAddr().String(),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Codec is nil until the server has sniffed the protocol.
func (s *Session) Codec() protocol.Codec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codec
}

func (s *Session) SetCodec(c protocol.Codec) {
	s.mu.Lock()
	s.codec = c
	s.mu.Unlock()
}

func (s *Session) RemoteAddr() string { return s.remote }

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// NextSerial returns the serial number for the next server-originated frame.
func (s *Session) NextSerial() uint16 {
	return uint16(s.serial.Add(1))
}

// Write sends one complete frame. Concurrent writers never interleave.
func (s *Session) Write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(frame)
	return err
}

func (s *Session) Close() error {
	return s.conn.Close()
}
