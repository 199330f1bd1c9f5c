// Package client dials a tunnel server and completes the handshake and
// AUTH exchange, handing back an Established session ready for Send/Recv.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/Mukthiteja/Secure-VPN/internal/session"
	"github.com/Mukthiteja/Secure-VPN/internal/sessionid"
	"github.com/Mukthiteja/Secure-VPN/internal/transport"
)

// Config holds everything needed to establish one tunnel session.
type Config struct {
	ServerAddress    string
	TLSConfig        *tls.Config
	Username         string
	Password         string
	SessionID        string
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	AuthTimeout      time.Duration
}

// Connect dials cfg.ServerAddress over TLS, performs the tunnel
// handshake, and authenticates, returning an Established session.
func Connect(ctx context.Context, cfg Config) (*session.Session, error) {
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	conn, err := transport.Dial(ctx, cfg.ServerAddress, cfg.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	localID := cfg.SessionID
	if localID == "" {
		localID, err = sessionid.New()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("client: generate session id: %w", err)
		}
	}

	sess, err := session.ClientHandshake(conn, localID, cfg.HandshakeTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := sess.ClientAuthenticate(cfg.Username, cfg.Password, cfg.AuthTimeout); err != nil {
		return nil, err
	}

	return sess, nil
}
