package cryptoenv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

const (
	ivSize  = 16
	tagSize = sha256.Size
)

// ErrAuthFailure is returned by Open when the HMAC tag does not match, or
// the frame is too short to contain one. Callers count these toward the
// decrypt-failure threshold (spec.md §7, N_MAX_DECRYPT_FAILURES).
var ErrAuthFailure = errors.New("cryptoenv: authentication failed")

// Envelope seals application payloads with AES-256-CBC then HMAC-SHA256
// (encrypt-then-MAC). Wire format:
//
//	[ iv_len : u8 (always 16) ] [ iv : 16 bytes ] [ ciphertext ] [ hmac_tag : 32 bytes ]
type Envelope struct {
	keys *SessionKeys
}

// NewEnvelope constructs an Envelope bound to the given session keys.
func NewEnvelope(keys *SessionKeys) *Envelope {
	return &Envelope{keys: keys}
}

// Seal encrypts plaintext and appends an HMAC-SHA256 tag over the whole
// framed output (iv_len || iv || ciphertext).
func (e *Envelope) Seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.keys.EncKey[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: new cipher: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("cryptoenv: generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, 1+ivSize+len(ciphertext)+tagSize)
	out = append(out, byte(ivSize))
	out = append(out, iv...)
	out = append(out, ciphertext...)

	mac := hmac.New(sha256.New, e.keys.MacKey[:])
	mac.Write(out)
	out = mac.Sum(out)

	return out, nil
}

// Open verifies the HMAC tag in constant time and, if it matches, decrypts
// and un-pads the payload. Any failure (short frame, bad iv_len, bad tag,
// bad padding) returns ErrAuthFailure so callers cannot distinguish the
// cause from the response, per spec.md's error taxonomy.
func (e *Envelope) Open(frame []byte) ([]byte, error) {
	if len(frame) < 1+ivSize+tagSize {
		return nil, ErrAuthFailure
	}
	ivLen := int(frame[0])
	if ivLen != ivSize {
		return nil, ErrAuthFailure
	}
	if len(frame) < 1+ivLen+tagSize {
		return nil, ErrAuthFailure
	}

	macOffset := len(frame) - tagSize
	gotTag := frame[macOffset:]
	signed := frame[:macOffset]

	mac := hmac.New(sha256.New, e.keys.MacKey[:])
	mac.Write(signed)
	wantTag := mac.Sum(nil)
	if !hmac.Equal(gotTag, wantTag) {
		return nil, ErrAuthFailure
	}

	iv := frame[1 : 1+ivLen]
	ciphertext := frame[1+ivLen : macOffset]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrAuthFailure
	}

	block, err := aes.NewCipher(e.keys.EncKey[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoenv: new cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, block.BlockSize())
	if err != nil {
		return nil, ErrAuthFailure
	}
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("cryptoenv: invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errors.New("cryptoenv: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("cryptoenv: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}
