// Package auth implements the credential verifier (C7): loading a JSON
// credential file and checking a username/password pair against it during
// the AUTH exchange.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// saltSize is the length in bytes of a freshly generated salt.
const saltSize = 16

// ErrCredentialFileMissing is returned when the configured credential file
// does not exist.
var ErrCredentialFileMissing = errors.New("auth: credential file not found")

// userRecord is a single entry in the credential file's "users" array.
// A record carries either a salt+hash pair or a plaintext password.
type userRecord struct {
	Username string `json:"username"`
	Salt     string `json:"salt,omitempty"`
	Hash     string `json:"hash,omitempty"`
	Password string `json:"password,omitempty"`
}

type credential struct {
	salt []byte
	hash []byte
	// plain holds the plaintext password, and hasPlain is set, when this
	// record uses a (non-empty) plaintext password rather than a salted hash.
	plain    string
	hasPlain bool
}

// Store holds verified credentials loaded from a credential file. It is
// read-only after construction and safe for concurrent use.
type Store struct {
	users map[string]credential
}

// credentialFile is the top-level shape of the JSON credential file.
type credentialFile struct {
	Users []userRecord `json:"users"`
}

// LoadFromFile reads and parses a JSON credential file. Duplicate
// usernames resolve last-writer-wins: a later entry in the "users" array
// replaces an earlier one with the same username.
func LoadFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialFileMissing, path)
		}
		return nil, fmt.Errorf("auth: read credential file: %w", err)
	}

	var parsed credentialFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("auth: parse credential file: %w", err)
	}

	store := &Store{users: make(map[string]credential, len(parsed.Users))}
	for _, rec := range parsed.Users {
		cred, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("auth: user %q: %w", rec.Username, err)
		}
		// Last entry for a given username overwrites any earlier one.
		store.users[rec.Username] = cred
	}
	return store, nil
}

func decodeRecord(rec userRecord) (credential, error) {
	if rec.Salt != "" && rec.Hash != "" {
		salt, err := base64.StdEncoding.DecodeString(rec.Salt)
		if err != nil {
			return credential{}, fmt.Errorf("decode salt: %w", err)
		}
		hash, err := base64.StdEncoding.DecodeString(rec.Hash)
		if err != nil {
			return credential{}, fmt.Errorf("decode hash: %w", err)
		}
		return credential{salt: salt, hash: hash}, nil
	}
	if rec.Password != "" {
		return credential{plain: rec.Password, hasPlain: true}, nil
	}
	// Neither a salt+hash pair nor a plaintext password: this record can
	// never verify.
	return credential{}, nil
}

// ComputePasswordHash returns SHA-256(salt||password), matching the
// original credential file's hash derivation.
func ComputePasswordHash(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}

// AddUser adds or replaces a salted-hash credential entry for username in
// the JSON credential file at path, creating the file if it does not yet
// exist. It is used by the setup wizard and the adduser CLI command.
func AddUser(path, username, password string) error {
	var parsed credentialFile

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("auth: parse credential file: %w", err)
		}
	case os.IsNotExist(err):
		// Start a fresh credential file.
	default:
		return fmt.Errorf("auth: read credential file: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("auth: generate salt: %w", err)
	}
	hash := ComputePasswordHash(salt, password)

	rec := userRecord{
		Username: username,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Hash:     base64.StdEncoding.EncodeToString(hash),
	}

	replaced := false
	for i, existing := range parsed.Users {
		if existing.Username == username {
			parsed.Users[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		parsed.Users = append(parsed.Users, rec)
	}

	out, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: encode credential file: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("auth: write credential file: %w", err)
	}
	return nil
}

// Verify checks a username/password pair. An unknown username always
// fails rather than erroring, so callers cannot distinguish "no such
// user" from "wrong password" (spec.md's AUTH error taxonomy).
func (s *Store) Verify(username, password string) bool {
	cred, ok := s.users[username]
	if !ok {
		return false
	}
	if len(cred.hash) > 0 && len(cred.salt) > 0 {
		computed := ComputePasswordHash(cred.salt, password)
		return subtle.ConstantTimeCompare(computed, cred.hash) == 1
	}
	if cred.hasPlain {
		return subtle.ConstantTimeCompare([]byte(password), []byte(cred.plain)) == 1
	}
	return false
}
