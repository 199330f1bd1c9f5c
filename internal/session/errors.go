package session

import (
	"errors"
	"fmt"
)

// Sentinel errors matching the error taxonomy a caller of Send/Recv/Close
// needs to distinguish (spec.md §7).
var (
	// ErrTransportError indicates an irrecoverable TLS/socket I/O failure.
	ErrTransportError = errors.New("session: transport error")

	// ErrProtocolError indicates a malformed frame, unexpected frame type,
	// oversize frame, or bad length field. Terminal for the session.
	ErrProtocolError = errors.New("session: protocol error")

	// ErrHandshakeFailed indicates a handshake timeout or payload shape
	// violation.
	ErrHandshakeFailed = errors.New("session: handshake failed")

	// ErrAuthFailure indicates a MAC mismatch or PKCS#7 unpad failure on a
	// received envelope.
	ErrAuthFailure = errors.New("session: auth failure")

	// ErrMalformedEnvelope names a structural envelope error (too short,
	// bad iv_len). Session does not return it: cryptoenv.Envelope.Open
	// reports structural errors as an authentication failure, so Recv and
	// ServerAuthenticate surface them as ErrAuthFailure.
	ErrMalformedEnvelope = errors.New("session: malformed envelope")

	// ErrTimeout indicates an expected frame was not received within its
	// deadline.
	ErrTimeout = errors.New("session: timeout")

	// ErrClosed indicates a graceful close was observed.
	ErrClosed = errors.New("session: closed")
)

// AuthRejectedError is returned to a client when the server reports
// ok=false in an AUTH_RESULT frame.
type AuthRejectedError struct {
	Msg string
}

func (e *AuthRejectedError) Error() string {
	return fmt.Sprintf("session: auth rejected: %s", e.Msg)
}
