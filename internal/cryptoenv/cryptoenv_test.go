package cryptoenv

import (
	"bytes"
	"testing"
)

func TestDeriveSessionKeysDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	clientNonce := bytes.Repeat([]byte{0x02}, 16)
	serverNonce := bytes.Repeat([]byte{0x03}, 16)

	k1, err := DeriveSessionKeys(seed, clientNonce, serverNonce)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	k2, err := DeriveSessionKeys(seed, clientNonce, serverNonce)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	if k1.EncKey != k2.EncKey || k1.MacKey != k2.MacKey {
		t.Error("DeriveSessionKeys() not deterministic for identical inputs")
	}
	if k1.EncKey == k1.MacKey {
		t.Error("EncKey and MacKey must differ")
	}
}

func TestDeriveSessionKeysDiffersByNonce(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	a, err := DeriveSessionKeys(seed, bytes.Repeat([]byte{0x02}, 16), bytes.Repeat([]byte{0x03}, 16))
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	b, err := DeriveSessionKeys(seed, bytes.Repeat([]byte{0x02}, 16), bytes.Repeat([]byte{0x04}, 16))
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	if a.EncKey == b.EncKey {
		t.Error("different server nonces produced the same EncKey")
	}
}

func TestSessionKeysZero(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	k, err := DeriveSessionKeys(seed, bytes.Repeat([]byte{0x02}, 16), bytes.Repeat([]byte{0x03}, 16))
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	k.Zero()
	var zero [EncKeySize]byte
	if k.EncKey != zero || k.MacKey != zero {
		t.Error("Zero() did not clear both subkeys")
	}
}

func testKeys(t *testing.T) *SessionKeys {
	t.Helper()
	seed := bytes.Repeat([]byte{0x09}, 32)
	keys, err := DeriveSessionKeys(seed, bytes.Repeat([]byte{0x0a}, 16), bytes.Repeat([]byte{0x0b}, 16))
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	return keys
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(testKeys(t))

	cases := [][]byte{
		nil,
		[]byte("hi"),
		bytes.Repeat([]byte{0x7f}, 1000),
	}
	for _, pt := range cases {
		sealed, err := env.Seal(pt)
		if err != nil {
			t.Fatalf("Seal() error = %v", err)
		}
		opened, err := env.Open(sealed)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if !bytes.Equal(opened, pt) && !(len(opened) == 0 && len(pt) == 0) {
			t.Errorf("Open() = %v, want %v", opened, pt)
		}
	}
}

func TestEnvelopeSealProducesDistinctIVs(t *testing.T) {
	env := NewEnvelope(testKeys(t))
	a, err := env.Seal([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	b, err := env.Seal([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two Seal() calls on the same plaintext produced identical ciphertext")
	}
}

func TestEnvelopeOpenRejectsTamperedTag(t *testing.T) {
	env := NewEnvelope(testKeys(t))
	sealed, err := env.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF

	if _, err := env.Open(sealed); err != ErrAuthFailure {
		t.Fatalf("Open() error = %v, want ErrAuthFailure", err)
	}
}

func TestEnvelopeOpenRejectsTamperedCiphertext(t *testing.T) {
	env := NewEnvelope(testKeys(t))
	sealed, err := env.Seal([]byte("payload-of-decent-length"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	sealed[20] ^= 0x01

	if _, err := env.Open(sealed); err != ErrAuthFailure {
		t.Fatalf("Open() error = %v, want ErrAuthFailure", err)
	}
}

func TestEnvelopeOpenRejectsShortFrame(t *testing.T) {
	env := NewEnvelope(testKeys(t))
	if _, err := env.Open([]byte{1, 2, 3}); err != ErrAuthFailure {
		t.Fatalf("Open() error = %v, want ErrAuthFailure", err)
	}
}

func TestEnvelopeOpenRejectsWrongKey(t *testing.T) {
	sealer := NewEnvelope(testKeys(t))
	sealed, err := sealer.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	otherKeys, err := DeriveSessionKeys(bytes.Repeat([]byte{0x99}, 32), bytes.Repeat([]byte{0x0a}, 16), bytes.Repeat([]byte{0x0b}, 16))
	if err != nil {
		t.Fatalf("DeriveSessionKeys() error = %v", err)
	}
	opener := NewEnvelope(otherKeys)
	if _, err := opener.Open(sealed); err != ErrAuthFailure {
		t.Fatalf("Open() error = %v, want ErrAuthFailure", err)
	}
}
