package protocol

import (
	"encoding/binary"
	"fmt"
)

// Hello is the payload of a HELLO frame:
//
//	[ id_len : u8 ] [ id : id_len bytes (ASCII) ] [ client_nonce : 16 bytes ]
type Hello struct {
	SessionID   string
	ClientNonce [NonceSize]byte
}

// Encode serializes Hello to bytes.
func (h *Hello) Encode() ([]byte, error) {
	if len(h.SessionID) > MaxSessionIDLen {
		return nil, fmt.Errorf("%w: session id too long (%d bytes)", ErrInvalidFrame, len(h.SessionID))
	}
	buf := make([]byte, 1+len(h.SessionID)+NonceSize)
	buf[0] = uint8(len(h.SessionID))
	offset := 1
	copy(buf[offset:], h.SessionID)
	offset += len(h.SessionID)
	copy(buf[offset:], h.ClientNonce[:])
	return buf, nil
}

// DecodeHello parses a HELLO payload. Per spec.md §4.4 the server requires
// payload length >= 1 + id_len + 16.
func DecodeHello(buf []byte) (*Hello, error) {
	if len(buf) < 1+NonceSize {
		return nil, fmt.Errorf("%w: HELLO too short", ErrInvalidFrame)
	}
	idLen := int(buf[0])
	if len(buf) < 1+idLen+NonceSize {
		return nil, fmt.Errorf("%w: HELLO payload too short for declared id length", ErrInvalidFrame)
	}
	h := &Hello{SessionID: string(buf[1 : 1+idLen])}
	copy(h.ClientNonce[:], buf[1+idLen:1+idLen+NonceSize])
	return h, nil
}

// HelloAck is the payload of a HELLO_ACK frame:
//
//	[ id_len : u8 ] [ id : id_len bytes ] [ server_nonce : 16 bytes ] [ key_seed : 32 bytes ]
type HelloAck struct {
	SessionID   string
	ServerNonce [NonceSize]byte
	KeySeed     [KeySeedSize]byte
}

// Encode serializes HelloAck to bytes.
func (h *HelloAck) Encode() ([]byte, error) {
	if len(h.SessionID) > MaxSessionIDLen {
		return nil, fmt.Errorf("%w: session id too long (%d bytes)", ErrInvalidFrame, len(h.SessionID))
	}
	buf := make([]byte, 1+len(h.SessionID)+NonceSize+KeySeedSize)
	buf[0] = uint8(len(h.SessionID))
	offset := 1
	copy(buf[offset:], h.SessionID)
	offset += len(h.SessionID)
	copy(buf[offset:], h.ServerNonce[:])
	offset += NonceSize
	copy(buf[offset:], h.KeySeed[:])
	return buf, nil
}

// DecodeHelloAck parses a HELLO_ACK payload. Per spec.md §4.4 the client
// requires payload length >= 1 + id_len + 16 + 32.
func DecodeHelloAck(buf []byte) (*HelloAck, error) {
	if len(buf) < 1+NonceSize+KeySeedSize {
		return nil, fmt.Errorf("%w: HELLO_ACK too short", ErrInvalidFrame)
	}
	idLen := int(buf[0])
	if len(buf) < 1+idLen+NonceSize+KeySeedSize {
		return nil, fmt.Errorf("%w: HELLO_ACK payload too short for declared id length", ErrInvalidFrame)
	}
	h := &HelloAck{SessionID: string(buf[1 : 1+idLen])}
	offset := 1 + idLen
	copy(h.ServerNonce[:], buf[offset:offset+NonceSize])
	offset += NonceSize
	copy(h.KeySeed[:], buf[offset:offset+KeySeedSize])
	return h, nil
}

// AuthResult is the payload of an AUTH_RESULT frame, sent in cleartext
// (spec.md §4.5 canonical choice):
//
//	[ ok : u8 (0|1) ] [ msg_len : u16 big-endian ] [ msg : msg_len UTF-8 bytes ]
type AuthResult struct {
	OK      bool
	Message string
}

// Encode serializes AuthResult to bytes.
func (a *AuthResult) Encode() []byte {
	msg := []byte(a.Message)
	if len(msg) > 0xFFFF {
		msg = msg[:0xFFFF]
	}
	buf := make([]byte, 1+2+len(msg))
	if a.OK {
		buf[0] = 1
	}
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(msg)))
	copy(buf[3:], msg)
	return buf
}

// DecodeAuthResult parses an AUTH_RESULT payload.
func DecodeAuthResult(buf []byte) (*AuthResult, error) {
	if len(buf) < 3 {
		return nil, fmt.Errorf("%w: AUTH_RESULT too short", ErrInvalidFrame)
	}
	msgLen := int(binary.BigEndian.Uint16(buf[1:3]))
	if len(buf) < 3+msgLen {
		return nil, fmt.Errorf("%w: AUTH_RESULT message truncated", ErrInvalidFrame)
	}
	return &AuthResult{
		OK:      buf[0] != 0,
		Message: string(buf[3 : 3+msgLen]),
	}, nil
}

// AuthRequest is the plaintext JSON object carried inside the AUTH frame's
// encrypted envelope: {"username": str, "password": str}.
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
