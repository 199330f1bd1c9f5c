// Package server runs the tunnel listener: it accepts TLS connections,
// drives the handshake and AUTH exchange for each, and dispatches
// Established sessions to a handler under a bounded worker pool.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Mukthiteja/Secure-VPN/internal/auth"
	"github.com/Mukthiteja/Secure-VPN/internal/logging"
	"github.com/Mukthiteja/Secure-VPN/internal/metrics"
	"github.com/Mukthiteja/Secure-VPN/internal/session"
	"github.com/Mukthiteja/Secure-VPN/internal/sessionid"
	"github.com/Mukthiteja/Secure-VPN/internal/transport"
)

// Handler processes one Established session. The server closes the
// session after Handler returns.
type Handler func(s *session.Session)

// Config configures a Server.
type Config struct {
	Address          string
	TLSConfig        *tls.Config
	Verifier         *auth.Store
	MaxConcurrent    int
	QueueDepth       int
	HandshakeTimeout time.Duration
	AuthTimeout      time.Duration

	// AuthAttemptsPerSecond and AuthBurst bound the rate at which new
	// connections are allowed to attempt AUTH, independent of the
	// credential verifier itself. Zero disables the limit.
	AuthAttemptsPerSecond float64
	AuthBurst             int

	Handler Handler
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// EchoHandler reads application data from an Established session and
// writes it straight back, matching the reference tunnel's demo
// application protocol.
func EchoHandler(s *session.Session) {
	for {
		data, err := s.Recv(0)
		if err != nil {
			return
		}
		if err := s.Send(data); err != nil {
			return
		}
	}
}

// metricsEchoHandler echoes application data like EchoHandler, additionally
// recording byte counters and logging a human-readable transfer summary
// when the session ends.
func metricsEchoHandler(m *metrics.Metrics, logger *slog.Logger) Handler {
	return func(s *session.Session) {
		var sent, received uint64
		for {
			data, err := s.Recv(0)
			if err != nil {
				break
			}
			received += uint64(len(data))
			m.BytesReceived.Add(float64(len(data)))

			if err := s.Send(data); err != nil {
				break
			}
			sent += uint64(len(data))
			m.BytesSent.Add(float64(len(data)))
		}
		logger.Debug("session transfer summary",
			logging.KeyPeerID, s.PeerID,
			"sent", humanize.IBytes(sent),
			"received", humanize.IBytes(received))
	}
}

// Server accepts tunnel connections on a single TLS listener, bounding
// concurrent session handling to cfg.MaxConcurrent with a cfg.QueueDepth
// backlog of connections waiting for a free worker.
type Server struct {
	cfg      Config
	listener net.Listener

	queue chan net.Conn
	sem   *semaphore.Weighted
	inUse atomic.Int64

	authLimiter *rate.Limiter

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	shutdown context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Server. Zero-valued MaxConcurrent/QueueDepth/timeouts and
// a nil Handler/Logger/Metrics fall back to sensible defaults.
func New(cfg Config) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = session.DefaultHandshakeTimeout
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = session.DefaultAuthTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default()
	}
	if cfg.Handler == nil {
		cfg.Handler = metricsEchoHandler(cfg.Metrics, cfg.Logger)
	}

	shutdown, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		queue:    make(chan net.Conn, cfg.QueueDepth),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		stopCh:   make(chan struct{}),
		shutdown: shutdown,
		cancel:   cancel,
	}
	if cfg.AuthAttemptsPerSecond > 0 {
		burst := cfg.AuthBurst
		if burst <= 0 {
			burst = 1
		}
		s.authLimiter = rate.NewLimiter(rate.Limit(cfg.AuthAttemptsPerSecond), burst)
	}
	return s
}

// Start opens the TLS listener and begins accepting connections in the
// background. It returns once the listener is open.
func (s *Server) Start() error {
	if s.running.Load() {
		return errors.New("server: already running")
	}

	ln, err := transport.Listen(s.cfg.Address, s.cfg.TLSConfig)
	if err != nil {
		return err
	}
	s.listener = ln
	s.running.Store(true)

	s.wg.Add(2)
	go s.acceptLoop()
	go s.dispatchLoop()

	return nil
}

// Stop closes the listener, waits for in-flight sessions to finish, and
// returns once every goroutine the server started has exited.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.stopCh)
		s.cancel()
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	s.wg.Wait()
	return err
}

// Address returns the listener's bound address.
func (s *Server) Address() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				close(s.queue)
				return
			default:
				s.cfg.Logger.Warn("accept failed", logging.KeyError, err)
				continue
			}
		}

		select {
		case s.queue <- conn:
		default:
			s.cfg.Logger.Warn("queue full, rejecting connection", logging.KeyRemoteAddr, conn.RemoteAddr())
			s.cfg.Metrics.WorkerPoolRejected.Inc()
			_ = conn.Close()
		}
	}
}

func (s *Server) dispatchLoop() {
	defer s.wg.Done()

	for conn := range s.queue {
		if err := s.sem.Acquire(s.shutdown, 1); err != nil {
			_ = conn.Close()
			continue
		}

		s.cfg.Metrics.WorkerPoolInUse.Set(float64(s.inUse.Add(1)))
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() {
				s.sem.Release(1)
				s.cfg.Metrics.WorkerPoolInUse.Set(float64(s.inUse.Add(-1)))
			}()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	localID, err := sessionid.New()
	if err != nil {
		s.cfg.Logger.Error("generate session id", "error", err)
		return
	}

	sess, err := session.ServerHandshake(conn, localID, s.cfg.HandshakeTimeout, session.WithMetrics(s.cfg.Metrics))
	if err != nil {
		s.cfg.Logger.Warn("handshake failed", logging.KeyRemoteAddr, conn.RemoteAddr(), logging.KeyError, err)
		s.cfg.Metrics.RecordHandshakeError(handshakeErrorReason(err))
		return
	}
	defer sess.Close()

	if s.authLimiter != nil && !s.authLimiter.Allow() {
		s.cfg.Logger.Warn("auth rate limit exceeded", logging.KeyRemoteAddr, conn.RemoteAddr())
		s.cfg.Metrics.AuthFailures.Inc()
		return
	}

	s.cfg.Metrics.AuthAttempts.Inc()
	if err := sess.ServerAuthenticate(s.cfg.Verifier, s.cfg.AuthTimeout); err != nil {
		s.cfg.Logger.Warn("auth failed", logging.KeyPeerID, sess.PeerID, logging.KeyError, err)
		s.cfg.Metrics.AuthFailures.Inc()
		return
	}

	s.cfg.Logger.Info("session established", logging.KeyPeerID, sess.PeerID, "user", sess.AuthenticatedUser)
	s.cfg.Metrics.RecordSessionEstablished()
	defer s.cfg.Metrics.RecordSessionClosed("close")

	s.cfg.Handler(sess)
}

func handshakeErrorReason(err error) string {
	switch {
	case errors.Is(err, session.ErrTimeout):
		return "timeout"
	case errors.Is(err, session.ErrProtocolError):
		return "protocol_error"
	case errors.Is(err, session.ErrTransportError):
		return "transport_error"
	default:
		return "handshake_failed"
	}
}
