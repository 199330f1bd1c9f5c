package session

import (
	"fmt"
	"net"
	"time"

	"github.com/Mukthiteja/Secure-VPN/internal/cryptoenv"
	"github.com/Mukthiteja/Secure-VPN/internal/protocol"
)

// ClientHandshake performs the client side of the two-message handshake
// (spec.md §4.4): send HELLO, await HELLO_ACK, derive session keys.
func ClientHandshake(conn net.Conn, localSessionID string, timeout time.Duration, opts ...Option) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	start := time.Now()
	s := newSession(conn, true, opts...)
	s.LocalID = localSessionID

	clientNonce, err := randomBytes(protocol.NonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: generate client nonce: %v", ErrHandshakeFailed, err)
	}

	hello := &protocol.Hello{SessionID: localSessionID}
	copy(hello.ClientNonce[:], clientNonce)
	payload, err := hello.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := s.writeFrame(protocol.FrameHello, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	f, err := s.readFrame(timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if f.Type != protocol.FrameHelloAck {
		return nil, fmt.Errorf("%w: expected HELLO_ACK, got %s", ErrHandshakeFailed, protocol.FrameTypeName(f.Type))
	}

	ack, err := protocol.DecodeHelloAck(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	keys, err := cryptoenv.DeriveSessionKeys(ack.KeySeed[:], clientNonce, ack.ServerNonce[:])
	if err != nil {
		return nil, fmt.Errorf("%w: derive keys: %v", ErrHandshakeFailed, err)
	}

	s.PeerID = ack.SessionID
	s.keys = keys
	s.envelope = cryptoenv.NewEnvelope(keys)
	s.setPhase(PhaseAwaitingAuthResult)
	if s.metrics != nil {
		s.metrics.HandshakeLatency.Observe(time.Since(start).Seconds())
	}
	return s, nil
}

// ServerHandshake performs the server side of the handshake: await HELLO,
// generate server_nonce and key_seed, reply with HELLO_ACK, derive keys.
func ServerHandshake(conn net.Conn, localSessionID string, timeout time.Duration, opts ...Option) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	start := time.Now()
	s := newSession(conn, false, opts...)
	s.LocalID = localSessionID

	f, err := s.readFrame(timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if f.Type != protocol.FrameHello {
		return nil, fmt.Errorf("%w: expected HELLO, got %s", ErrHandshakeFailed, protocol.FrameTypeName(f.Type))
	}

	hello, err := protocol.DecodeHello(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	serverNonce, err := randomBytes(protocol.NonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: generate server nonce: %v", ErrHandshakeFailed, err)
	}
	keySeed, err := randomBytes(protocol.KeySeedSize)
	if err != nil {
		return nil, fmt.Errorf("%w: generate key seed: %v", ErrHandshakeFailed, err)
	}

	ack := &protocol.HelloAck{SessionID: localSessionID}
	copy(ack.ServerNonce[:], serverNonce)
	copy(ack.KeySeed[:], keySeed)
	payload, err := ack.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := s.writeFrame(protocol.FrameHelloAck, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	keys, err := cryptoenv.DeriveSessionKeys(keySeed, hello.ClientNonce[:], serverNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: derive keys: %v", ErrHandshakeFailed, err)
	}

	s.PeerID = hello.SessionID
	s.keys = keys
	s.envelope = cryptoenv.NewEnvelope(keys)
	s.setPhase(PhaseAwaitingAuth)
	if s.metrics != nil {
		s.metrics.HandshakeLatency.Observe(time.Since(start).Seconds())
	}
	return s, nil
}
