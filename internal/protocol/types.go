// Package protocol defines the wire protocol for the tunnel's inner channel:
// frame layout, handshake payloads, and the auth-result payload.
package protocol

// Frame type constants. AUTH carries the same encrypted envelope format as
// ENCRYPTED_DATA and is distinguished by frame type; AUTH_RESULT is sent in
// cleartext (see AuthResult).
const (
	FrameHello         uint8 = 1 // HELLO
	FrameHelloAck      uint8 = 2 // HELLO_ACK
	FrameData          uint8 = 3 // DATA (legacy cleartext; see FrameEncryptedData)
	FrameHeartbeat     uint8 = 4 // HEARTBEAT
	FrameClose         uint8 = 5 // CLOSE
	FrameEncryptedData uint8 = 6 // ENCRYPTED_DATA
	FrameAuth          uint8 = 7 // AUTH
	FrameAuthResult    uint8 = 8 // AUTH_RESULT
)

// Protocol constants.
const (
	// HeaderSize is the size of the frame length header in bytes. The type
	// byte immediately follows the header and is counted in length, not in
	// HeaderSize.
	HeaderSize = 4

	// MaxFrameSize bounds the length field value, recommended by spec.md
	// §4.1 to guard against unbounded memory use from a hostile peer.
	MaxFrameSize = 1 << 20 // 1 MiB

	// NonceSize is the size of a handshake nonce in bytes.
	NonceSize = 16

	// KeySeedSize is the size of the server-generated key seed in bytes.
	KeySeedSize = 32

	// MaxSessionIDLen is the maximum length of a session id in bytes.
	MaxSessionIDLen = 255
)

// FrameTypeName returns a human-readable name for a frame type.
func FrameTypeName(t uint8) string {
	switch t {
	case FrameHello:
		return "HELLO"
	case FrameHelloAck:
		return "HELLO_ACK"
	case FrameData:
		return "DATA"
	case FrameHeartbeat:
		return "HEARTBEAT"
	case FrameClose:
		return "CLOSE"
	case FrameEncryptedData:
		return "ENCRYPTED_DATA"
	case FrameAuth:
		return "AUTH"
	case FrameAuthResult:
		return "AUTH_RESULT"
	default:
		return "UNKNOWN"
	}
}

// IsKnownFrameType reports whether t is one of the defined frame types.
// Per spec.md §4.6, any other type is a protocol violation.
func IsKnownFrameType(t uint8) bool {
	switch t {
	case FrameHello, FrameHelloAck, FrameData, FrameHeartbeat, FrameClose,
		FrameEncryptedData, FrameAuth, FrameAuthResult:
		return true
	default:
		return false
	}
}
