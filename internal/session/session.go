package session

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mukthiteja/Secure-VPN/internal/cryptoenv"
	"github.com/Mukthiteja/Secure-VPN/internal/metrics"
	"github.com/Mukthiteja/Secure-VPN/internal/protocol"
)

// Default timeouts, matching spec.md §4.4 and §4.5's recommended values.
const (
	DefaultHandshakeTimeout  = 5 * time.Second
	DefaultAuthTimeout       = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second

	// MaxDecryptFailures is the number of consecutive ENCRYPTED_DATA
	// decrypt failures tolerated in the Established phase before the
	// session is closed (spec.md §4.6).
	MaxDecryptFailures = 3
)

// Session is one end of one tunnel: the state built up across the
// handshake (C4), auth exchange (C5), and Established-phase dispatch
// (C6), bound to a single transport connection.
type Session struct {
	conn     net.Conn
	reader   *protocol.FrameReader
	writer   *protocol.FrameWriter
	writeMu  sync.Mutex
	isClient bool

	LocalID string
	PeerID  string

	phase atomic.Int32

	keys     *cryptoenv.SessionKeys
	envelope *cryptoenv.Envelope

	AuthenticatedUser string

	decryptFailures int

	heartbeatInterval time.Duration
	lastSendActivity  atomic.Int64
	lastRecvActivity  atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}

	metrics *metrics.Metrics
}

// Option configures optional Session behavior at handshake time.
type Option func(*Session)

// WithMetrics attaches a Metrics instance the session records frame,
// heartbeat, and decrypt-failure counters to. Omitted or nil leaves the
// session unmetered.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

func newSession(conn net.Conn, isClient bool, opts ...Option) *Session {
	s := &Session{
		conn:              conn,
		reader:            protocol.NewFrameReader(conn),
		writer:            protocol.NewFrameWriter(conn),
		isClient:          isClient,
		heartbeatInterval: DefaultHeartbeatInterval,
		closed:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.phase.Store(int32(PhaseAwaitingHello))
	s.touchSend()
	s.touchRecv()
	return s
}

// Phase returns the session's current phase.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Session) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

func (s *Session) touchSend() { s.lastSendActivity.Store(time.Now().UnixNano()) }
func (s *Session) touchRecv() { s.lastRecvActivity.Store(time.Now().UnixNano()) }

// LastSendActivity returns the time a frame was last written.
func (s *Session) LastSendActivity() time.Time {
	return time.Unix(0, s.lastSendActivity.Load())
}

// LastRecvActivity returns the time a frame was last read.
func (s *Session) LastRecvActivity() time.Time {
	return time.Unix(0, s.lastRecvActivity.Load())
}

// writeFrame serializes writes onto the single physical connection; a
// frame is either fully written or the call fails (spec.md §5).
func (s *Session) writeFrame(frameType uint8, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writer.WriteFrame(frameType, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	s.touchSend()
	if s.metrics != nil {
		s.metrics.RecordFrameSent(protocol.FrameTypeName(frameType))
	}
	return nil
}

// readFrame reads the next frame within the given deadline, translating
// transport/protocol failures into the session error taxonomy.
func (s *Session) readFrame(timeout time.Duration) (*protocol.Frame, error) {
	if timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
		}
		defer s.conn.SetReadDeadline(time.Time{})
	}

	f, err := s.reader.Read()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrTimeout
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
		}
		switch err {
		case protocol.ErrZeroLengthFrame, protocol.ErrFrameTooLarge, protocol.ErrInvalidFrame:
			return nil, fmt.Errorf("%w: %v", ErrProtocolError, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransportError, err)
	}
	s.touchRecv()
	if s.metrics != nil {
		s.metrics.RecordFrameReceived(protocol.FrameTypeName(f.Type))
	}
	return f, nil
}

// Send encrypts data and writes it as an ENCRYPTED_DATA frame. Only valid
// once the session is Established.
func (s *Session) Send(data []byte) error {
	if s.Phase() != PhaseEstablished {
		return fmt.Errorf("%w: session not established", ErrProtocolError)
	}
	sealed, err := s.envelope.Seal(data)
	if err != nil {
		return fmt.Errorf("session: seal: %w", err)
	}
	return s.writeFrame(protocol.FrameEncryptedData, sealed)
}

// SendHeartbeat writes a zero-payload HEARTBEAT frame.
func (s *Session) SendHeartbeat() error {
	if err := s.writeFrame(protocol.FrameHeartbeat, nil); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.HeartbeatsSent.Inc()
	}
	return nil
}

// Recv reads and dispatches frames until application data is available,
// the deadline elapses, or the session ends. HEARTBEAT frames are
// answered in place and do not return to the caller; CLOSE transitions
// the session to Closed and returns ErrClosed; isolated decrypt failures
// are dropped and retried up to MaxDecryptFailures.
func (s *Session) Recv(timeout time.Duration) ([]byte, error) {
	if s.Phase() != PhaseEstablished {
		return nil, fmt.Errorf("%w: session not established", ErrProtocolError)
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if s.Phase() == PhaseClosed {
			return nil, ErrClosed
		}

		remaining := timeout
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, ErrTimeout
			}
		}

		f, err := s.readFrame(remaining)
		if err != nil {
			return nil, err
		}

		switch f.Type {
		case protocol.FrameEncryptedData:
			plain, err := s.envelope.Open(f.Payload)
			if err != nil {
				s.decryptFailures++
				if s.metrics != nil {
					s.metrics.DecryptFailures.Inc()
				}
				if s.decryptFailures > MaxDecryptFailures {
					s.failClosed()
					return nil, fmt.Errorf("%w: too many consecutive decrypt failures", ErrAuthFailure)
				}
				continue
			}
			s.decryptFailures = 0
			return plain, nil

		case protocol.FrameData:
			// Legacy cleartext DATA, tolerated for interoperability with
			// the earlier unencrypted revision (spec.md §9, note 1).
			return f.Payload, nil

		case protocol.FrameHeartbeat:
			if s.metrics != nil {
				s.metrics.HeartbeatsRecv.Inc()
			}
			if err := s.SendHeartbeat(); err != nil {
				return nil, err
			}
			continue

		case protocol.FrameClose:
			s.setPhase(PhaseClosed)
			s.signalClosed()
			return nil, ErrClosed

		default:
			s.failClosed()
			return nil, fmt.Errorf("%w: unexpected frame type %s in Established phase", ErrProtocolError, protocol.FrameTypeName(f.Type))
		}
	}
}

// Close sends a CLOSE frame (best-effort), zeroes session keys, and
// releases the transport.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.Phase() != PhaseClosed {
			// Bound the final write so a peer that is not reading cannot
			// block Close.
			_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = s.writeFrame(protocol.FrameClose, nil)
		}
		s.setPhase(PhaseClosed)
		s.keys.Zero()
		err = s.conn.Close()
		close(s.closed)
	})
	return err
}

// failClosed transitions to Closed and releases the transport without
// attempting a final CLOSE write (used after a protocol violation).
func (s *Session) failClosed() {
	s.closeOnce.Do(func() {
		s.setPhase(PhaseClosed)
		s.keys.Zero()
		_ = s.conn.Close()
		close(s.closed)
	})
}

func (s *Session) signalClosed() {
	s.closeOnce.Do(func() {
		s.keys.Zero()
		_ = s.conn.Close()
		close(s.closed)
	})
}

// Done returns a channel closed once the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
