// Package cryptoenv implements the session key schedule (C2) and the
// encrypt-then-MAC envelope (C3) used to protect application payloads
// once a session is established.
package cryptoenv

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// EncKeySize and MacKeySize are the sizes of the two derived subkeys.
	EncKeySize = 32
	MacKeySize = 32

	// hkdfInfo is the fixed context string mixed into HKDF-Expand. It must
	// match byte-for-byte between client and server.
	hkdfInfo = "CustomVpn-v1"
)

// SessionKeys holds the two subkeys derived from a handshake's key seed and
// nonces: one for AES-256-CBC encryption, one for HMAC-SHA256 authentication.
type SessionKeys struct {
	EncKey [EncKeySize]byte
	MacKey [MacKeySize]byte
}

// DeriveSessionKeys runs HKDF-SHA256 (RFC 5869) over keySeed, with
// salt = clientNonce||serverNonce and info = "CustomVpn-v1", producing a
// 64-byte output key material split into EncKey||MacKey.
func DeriveSessionKeys(keySeed, clientNonce, serverNonce []byte) (*SessionKeys, error) {
	salt := make([]byte, 0, len(clientNonce)+len(serverNonce))
	salt = append(salt, clientNonce...)
	salt = append(salt, serverNonce...)

	reader := hkdf.New(sha256.New, keySeed, salt, []byte(hkdfInfo))

	okm := make([]byte, EncKeySize+MacKeySize)
	if _, err := io.ReadFull(reader, okm); err != nil {
		return nil, fmt.Errorf("derive session keys: %w", err)
	}

	keys := &SessionKeys{}
	copy(keys.EncKey[:], okm[:EncKeySize])
	copy(keys.MacKey[:], okm[EncKeySize:])
	return keys, nil
}

// Zero overwrites both subkeys with zero bytes. Callers should defer this
// on session teardown.
func (k *SessionKeys) Zero() {
	if k == nil {
		return
	}
	for i := range k.EncKey {
		k.EncKey[i] = 0
	}
	for i := range k.MacKey {
		k.MacKey[i] = 0
	}
}
