package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// Listen opens a TLS listener on addr. Each accepted net.Conn carries
// exactly one session; the caller is responsible for running the
// handshake/auth/session loop over it.
func Listen(addr string, tlsConfig *tls.Config) (net.Listener, error) {
	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return ln, nil
}

// Dial connects to addr over TLS, completing the TLS handshake before
// returning, so the caller can start the tunnel handshake immediately.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := &tls.Dialer{Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return conn, nil
}
