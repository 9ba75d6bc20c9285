package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite identifies the AEAD used for a blob. Its value is the blob version byte.
type Suite byte

const (
	SuiteAES256GCM         Suite = 1
	SuiteXChaCha20Poly1305 Suite = 2

	DefaultSuite = SuiteAES256GCM
)

// String returns the configuration name of the suite
func (s Suite) String() string {
	switch s {
	case SuiteAES256GCM:
		return "aes-256-gcm"
	case SuiteXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// ParseSuite maps a configuration name to a Suite. Empty selects DefaultSuite.
func ParseSuite(name string) (Suite, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultSuite, nil
	case "aes-256-gcm", "aes-gcm", "aes":
		return SuiteAES256GCM, nil
	case "xchacha20-poly1305", "xchacha":
		return SuiteXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("unknown cipher suite %q", name)
	}
}

func (s Suite) valid() bool {
	return s == SuiteAES256GCM || s == SuiteXChaCha20Poly1305
}

func (s Suite) nonceSize() int {
	if s == SuiteXChaCha20Poly1305 {
		return chacha20poly1305.NonceSizeX
	}
	return 12
}

func (s Suite) newAEAD(key []byte) (cipher.AEAD, error) {
	switch s {
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return gcm, nil
	case SuiteXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create XChaCha20-Poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: unsupported blob version %d", ErrIntegrity, byte(s))
	}
}
