package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mukthiteja/Secure-VPN/internal/protocol"
)

// CredentialVerifier is the external contract (C7) the server side of the
// auth exchange consumes.
type CredentialVerifier interface {
	Verify(username, password string) bool
}

// ClientAuthenticate sends an encrypted AUTH frame carrying username and
// password, then awaits a cleartext AUTH_RESULT (spec.md §4.5). On
// rejection it returns *AuthRejectedError and closes the session.
func (s *Session) ClientAuthenticate(username, password string, timeout time.Duration) error {
	if s.Phase() != PhaseAwaitingAuthResult {
		return fmt.Errorf("%w: not awaiting auth result", ErrProtocolError)
	}
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}

	reqJSON, err := json.Marshal(protocol.AuthRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("session: marshal auth request: %w", err)
	}
	sealed, err := s.envelope.Seal(reqJSON)
	if err != nil {
		return fmt.Errorf("session: seal auth request: %w", err)
	}
	if err := s.writeFrame(protocol.FrameAuth, sealed); err != nil {
		return err
	}

	f, err := s.readFrame(timeout)
	if err != nil {
		return err
	}
	if f.Type != protocol.FrameAuthResult {
		s.failClosed()
		return fmt.Errorf("%w: expected AUTH_RESULT, got %s", ErrProtocolError, protocol.FrameTypeName(f.Type))
	}

	result, err := protocol.DecodeAuthResult(f.Payload)
	if err != nil {
		s.failClosed()
		return fmt.Errorf("%w: %v", ErrProtocolError, err)
	}
	if !result.OK {
		s.failClosed()
		return &AuthRejectedError{Msg: result.Message}
	}

	s.AuthenticatedUser = username
	s.setPhase(PhaseEstablished)
	return nil
}

// ServerAuthenticate awaits an AUTH frame, decrypts and parses it,
// verifies the credentials, and replies with AUTH_RESULT (spec.md §4.5).
// A rejection or malformed payload sends AUTH_RESULT(false, ...), then
// CLOSE, and returns an error; success advances to Established.
func (s *Session) ServerAuthenticate(verifier CredentialVerifier, timeout time.Duration) error {
	if s.Phase() != PhaseAwaitingAuth {
		return fmt.Errorf("%w: not awaiting auth", ErrProtocolError)
	}
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}

	f, err := s.readFrame(timeout)
	if err != nil {
		return err
	}
	if f.Type != protocol.FrameAuth {
		s.rejectAuth("protocol")
		return fmt.Errorf("%w: expected AUTH, got %s", ErrProtocolError, protocol.FrameTypeName(f.Type))
	}

	plain, err := s.envelope.Open(f.Payload)
	if err != nil {
		s.rejectAuth("invalid auth payload")
		return fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}

	var req protocol.AuthRequest
	if err := json.Unmarshal(plain, &req); err != nil || req.Username == "" {
		s.rejectAuth("invalid auth payload")
		return fmt.Errorf("%w: invalid auth JSON", ErrProtocolError)
	}

	if verifier == nil || !verifier.Verify(req.Username, req.Password) {
		s.rejectAuth("authentication failed")
		return &AuthRejectedError{Msg: "authentication failed"}
	}

	result := &protocol.AuthResult{OK: true, Message: "OK"}
	if err := s.writeFrame(protocol.FrameAuthResult, result.Encode()); err != nil {
		return err
	}

	s.AuthenticatedUser = req.Username
	s.setPhase(PhaseEstablished)
	return nil
}

// rejectAuth sends AUTH_RESULT(false, msg) followed by CLOSE, best-effort,
// and tears the session down.
func (s *Session) rejectAuth(msg string) {
	result := &protocol.AuthResult{OK: false, Message: msg}
	_ = s.writeFrame(protocol.FrameAuthResult, result.Encode())
	_ = s.writeFrame(protocol.FrameClose, nil)
	s.failClosed()
}
