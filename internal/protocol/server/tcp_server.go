// Package server is the TCP listener tracker terminals connect to.
package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/core/service"
	"fleettrack/internal/metrics"
	"fleettrack/internal/protocol"
	"fleettrack/internal/session"
)

const (
	readBufferSize = 4096
	// maxBuffered bounds the bytes kept for a frame that never completes.
	maxBuffered = 64 * 1024
	sniffLength = 3
)

type checksumReporter interface {
	ChecksumOK(frame []byte) bool
}

type TCPServer struct {
	addr        string
	idleTimeout time.Duration
	codecs      []protocol.Codec
	registry    *session.Registry
	positions   service.PositionService
	commands    service.CommandService
	logger      *log.Entry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

func NewTCPServer(addr string, idleTimeout time.Duration, codecs []protocol.Codec, registry *session.Registry,
	positions service.PositionService, commands service.CommandService, logger *log.Entry) *TCPServer {
	return &TCPServer{
		addr:        addr,
		idleTimeout: idleTimeout,
		codecs:      codecs,
		registry:    registry,
		positions:   positions,
		commands:    commands,
		logger:      logger.WithField("component", "tcp"),
	}
}

// Start binds the listener and serves connections in the background until
// Stop is called.
func (s *TCPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.WithField("addr", listener.Addr().String()).Info("TCP server listening")

	s.wg.Add(1)
	go s.acceptConnections(ctx, listener)
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every live connection and waits for the
// connection handlers to return.
func (s *TCPServer) Stop() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
	s.registry.Close()
	s.wg.Wait()
}

func (s *TCPServer) acceptConnections(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.WithError(err).Error("error accepting connection")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *TCPServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	metrics.ConnectionsAccepted.Add(1)
	metrics.ConnectionsActive.Add(1)
	defer metrics.ConnectionsActive.Add(-1)

	sess := s.registry.OnConnect(conn)
	logger := s.logger.WithFields(log.Fields{"remote": sess.RemoteAddr(), "session": sess.ID})

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("connection handler panicked")
		}
		s.registry.OnDisconnect(ctx, sess)
		conn.Close()
	}()

	s.extendDeadline(conn)
	var pending []byte
	buffer := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			pending = s.consume(ctx, conn, sess, append(pending, buffer[:n]...), logger)
		}
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				logger.WithField("device", sess.Identity()).Info("idle timeout, closing connection")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				logger.WithError(err).Warn("error reading from connection")
			}
			return
		}
	}
}

// extendDeadline pushes the idle deadline out. It runs at connect and after
// every decoded frame, so bytes that never form a valid frame do not keep
// the connection alive.
func (s *TCPServer) extendDeadline(conn net.Conn) {
	if s.idleTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	}
}

// consume splits and handles every complete frame in buf and returns the
// unconsumed tail.
func (s *TCPServer) consume(ctx context.Context, conn net.Conn, sess *session.Session, buf []byte, logger *log.Entry) []byte {
	codec := sess.Codec()
	if codec == nil {
		skipped := 0
		for codec = protocol.Detect(buf, s.codecs...); codec == nil; codec = protocol.Detect(buf, s.codecs...) {
			if len(buf) < sniffLength {
				return append([]byte(nil), buf...)
			}
			buf = buf[1:]
			skipped++
		}
		sess.SetCodec(codec)
		logger.WithFields(log.Fields{"codec": codec.Name(), "skipped": skipped}).Debug("protocol detected")
	}

	for len(buf) > 0 {
		frame, advance := codec.Split(buf)
		if advance == 0 {
			break
		}
		buf = buf[advance:]
		if frame != nil {
			s.handleFrame(ctx, conn, sess, codec, frame, logger)
		}
	}

	if len(buf) > maxBuffered {
		metrics.FramesDropped.Add(1)
		logger.WithField("bytes", len(buf)).Warn("incomplete frame too large, discarding")
		return nil
	}
	return append([]byte(nil), buf...)
}

func (s *TCPServer) handleFrame(ctx context.Context, conn net.Conn, sess *session.Session, codec protocol.Codec, frame []byte, logger *log.Entry) {
	if cr, ok := codec.(checksumReporter); ok && !cr.ChecksumOK(frame) {
		metrics.ChecksumMismatches.Add(1)
		logger.WithField("frame", hex.EncodeToString(frame)).Debug("checksum mismatch")
	}

	packet, err := codec.Decode(frame)
	if err != nil {
		metrics.FramesDropped.Add(1)
		logger.WithError(err).WithField("frame", hex.EncodeToString(frame)).Debug("dropping malformed frame")
		return
	}
	metrics.FramesDecoded.Add(1)
	s.extendDeadline(conn)

	// A login always (re)claims the identity, even on a connection that was
	// bound to it before and has since been superseded. Protocols that carry
	// the identity on every frame bind the session on the first one.
	if id := packet.DeviceIdentity(); id != "" {
		if packet.Kind() == protocol.KindLogin {
			s.login(ctx, sess, id, logger)
		} else if id != sess.Identity() {
			s.login(ctx, sess, id, logger)
			s.deliverPending(ctx, id, logger)
		}
	}

	identity := sess.Identity()
	logger = logger.WithFields(log.Fields{"device": identity, "packet": packet.Kind(), "serial": packet.Serial()})

	if p, ok := packet.(*protocol.LoginPacket); ok {
		// The ack must reach the device before any queued command.
		s.ack(sess, codec, p, logger)
		s.deliverPending(ctx, identity, logger)
		return
	}

	if identity == "" {
		logger.Debug("dropping frame received before login")
		return
	}
	s.registry.Touch(ctx, sess)

	switch p := packet.(type) {
	case *protocol.HeartbeatPacket:
		if err := s.positions.Touch(ctx, identity); err != nil && !unresolved(err) {
			logger.WithError(err).Error("heartbeat not recorded")
		}
		s.ack(sess, codec, p, logger)

	case *protocol.LocationPacket:
		for _, fix := range p.History {
			s.location(ctx, identity, fix, codec.Name(), logger)
		}
		s.location(ctx, identity, p.Fix, codec.Name(), logger)
		s.ack(sess, codec, p, logger)

	case *protocol.AlarmPacket:
		logger.WithField("alarm", p.Name).Info("device alarm")
		if _, err := s.positions.HandleAlarm(ctx, identity, p, codec.Name()); err != nil && !unresolved(err) {
			logger.WithError(err).Error("alarm processing failed")
		}
		s.ack(sess, codec, p, logger)

	case *protocol.CommandReplyPacket:
		cmd, err := s.commands.HandleReply(ctx, identity, p.ServerFlag, p.Content)
		if err != nil {
			logger.WithError(err).Warn("command reply not matched")
			return
		}
		logger.WithField("command_id", cmd.ID).Info("command acknowledged")
	}
}

func (s *TCPServer) location(ctx context.Context, identity string, fix protocol.Fix, codecName string, logger *log.Entry) {
	if _, err := s.positions.HandleLocation(ctx, identity, fix, codecName); err != nil && !unresolved(err) {
		logger.WithError(err).Error("location processing failed")
	}
}

func (s *TCPServer) login(ctx context.Context, sess *session.Session, identity string, logger *log.Entry) {
	if prev := s.registry.OnLogin(ctx, sess, identity); prev != nil {
		logger.WithFields(log.Fields{"device": identity, "previous": prev.ID}).Info("login superseded an older session")
	}
	if err := s.positions.Touch(ctx, identity); err != nil && !unresolved(err) {
		logger.WithError(err).WithField("device", identity).Error("login not recorded")
	}
}

func (s *TCPServer) ack(sess *session.Session, codec protocol.Codec, p protocol.Packet, logger *log.Entry) {
	frame := codec.EncodeAck(p)
	if frame == nil {
		return
	}
	if err := sess.Write(frame); err != nil {
		logger.WithError(err).Warn("ack write failed")
	}
}

func (s *TCPServer) deliverPending(ctx context.Context, identity string, logger *log.Entry) {
	n, err := s.commands.DeliverPending(ctx, identity)
	if err != nil {
		logger.WithError(err).Warn("pending command delivery failed")
	}
	if n > 0 {
		logger.WithField("commands", n).Info("delivered queued commands")
	}
}

// unresolved errors are logged by the pipeline itself.
func unresolved(err error) bool {
	return errors.Is(err, service.ErrUnknownDevice) || errors.Is(err, service.ErrUnassignedDevice)
}
