package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashAPIKey hashes an API key using Argon2id.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyAPIKey checks an API key against an Argon2id hash.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("auth: invalid hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}

	expectedHash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	computedHash := argon2.IDKey([]byte(apiKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return subtle.ConstantTimeCompare(expectedHash, computedHash) == 1, nil
}

// DummyVerify performs an Argon2id hash with the same cost parameters as
// real verification. Call this on auth failure paths where no real hash
// was checked, so response timing does not reveal whether a key exists.
func DummyVerify() {
	argon2.IDKey([]byte("dummy"), make([]byte, saltLen), argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Keyring is the in-memory registry of operator API keys. The gateway has
// no tenant database; keys are seeded at startup from configuration.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]keyEntry // identity -> entry
}

type keyEntry struct {
	hash string
	role Role
}

// NewKeyring creates an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]keyEntry)}
}

// Seed registers (or replaces) an identity's API key.
func (k *Keyring) Seed(identity, apiKey string, role Role) error {
	hash, err := HashAPIKey(apiKey)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.keys[identity] = keyEntry{hash: hash, role: role}
	k.mu.Unlock()
	return nil
}

// Verify checks an identity/key pair and returns the role on success.
func (k *Keyring) Verify(identity, apiKey string) (Role, bool) {
	k.mu.RLock()
	entry, ok := k.keys[identity]
	k.mu.RUnlock()
	if !ok {
		DummyVerify()
		return "", false
	}
	match, err := VerifyAPIKey(apiKey, entry.hash)
	if err != nil || !match {
		return "", false
	}
	return entry.role, true
}

// Empty reports whether no keys are seeded (auth disabled, dev mode).
func (k *Keyring) Empty() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) == 0
}
