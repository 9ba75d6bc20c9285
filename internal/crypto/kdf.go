package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize       = 32     // AES-256 and XChaCha20 key size
	SaltSize      = 16     // Salt size in bytes
	MinIterations = 100000 // Lower bound accepted for stored key material
	DefaultIters  = 480000 // Default PBKDF2 iterations
)

// KDF handles key derivation from raw key material
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF(iterations int) (*KDF, error) {
	if iterations <= 0 {
		iterations = DefaultIters
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("kdf iterations %d below minimum %d", iterations, MinIterations)
	}

	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:       salt,
		Iterations: iterations,
	}, nil
}

// DeriveKey derives a KeySize encryption key from secret
func (k *KDF) DeriveKey(secret []byte) []byte {
	return pbkdf2.Key(secret, k.Salt, k.Iterations, KeySize, sha256.New)
}
