package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	TagSize    = 16 // AEAD authentication tag size for both suites
	headerSize = len(blobMagic) + 1 + 8
)

var blobMagic = [4]byte{'C', 'V', 'L', 'T'}

var (
	ErrIntegrity  = errors.New("integrity check failed")
	ErrExpired    = errors.New("blob expired")
	ErrInvalidKey = errors.New("invalid key length")
)

// Seal encrypts plaintext under key and returns a versioned blob
func Seal(key, plaintext []byte, suite Suite) ([]byte, error) {
	return sealAt(key, plaintext, suite, time.Now())
}

func sealAt(key, plaintext []byte, suite Suite, issuedAt time.Time) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if !suite.valid() {
		return nil, fmt.Errorf("unknown cipher suite %d", byte(suite))
	}

	aead, err := suite.newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonceSize := suite.nonceSize()
	blob := make([]byte, headerSize+nonceSize, headerSize+nonceSize+len(plaintext)+aead.Overhead())
	copy(blob, blobMagic[:])
	blob[len(blobMagic)] = byte(suite)
	binary.BigEndian.PutUint64(blob[len(blobMagic)+1:headerSize], uint64(issuedAt.Unix()))

	nonce, err := GenerateRandom(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	copy(blob[headerSize:], nonce)

	// Header is authenticated but not encrypted
	return aead.Seal(blob, nonce, plaintext, blob[:headerSize]), nil
}

// Open verifies and decrypts a blob produced by Seal.
// Any modification of the blob or a wrong key yields ErrIntegrity.
func Open(key, blob []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	suite, err := parseHeader(blob)
	if err != nil {
		return nil, err
	}

	nonceSize := suite.nonceSize()
	if len(blob) < headerSize+nonceSize+TagSize {
		return nil, fmt.Errorf("%w: blob truncated", ErrIntegrity)
	}

	aead, err := suite.newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := blob[headerSize : headerSize+nonceSize]
	plaintext, err := aead.Open(nil, nonce, blob[headerSize+nonceSize:], blob[:headerSize])
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrIntegrity)
	}

	return plaintext, nil
}

// OpenWithMaxAge is Open plus an expiry check on the embedded timestamp.
// A zero maxAge disables the check.
func OpenWithMaxAge(key, blob []byte, maxAge time.Duration) ([]byte, error) {
	plaintext, err := Open(key, blob)
	if err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		return plaintext, nil
	}

	issued, _ := IssuedAt(blob)
	if time.Since(issued) > maxAge {
		ClearBytes(plaintext)
		return nil, fmt.Errorf("%w: issued %s", ErrExpired, issued.UTC().Format(time.RFC3339))
	}
	return plaintext, nil
}

// IssuedAt returns the timestamp embedded in the blob header.
// The timestamp is only trustworthy after Open succeeded.
func IssuedAt(blob []byte) (time.Time, error) {
	if _, err := parseHeader(blob); err != nil {
		return time.Time{}, err
	}
	secs := binary.BigEndian.Uint64(blob[len(blobMagic)+1 : headerSize])
	return time.Unix(int64(secs), 0), nil
}

// BlobSuite reports the suite a blob was sealed with
func BlobSuite(blob []byte) (Suite, error) {
	return parseHeader(blob)
}

func parseHeader(blob []byte) (Suite, error) {
	if len(blob) < headerSize {
		return 0, fmt.Errorf("%w: blob truncated", ErrIntegrity)
	}
	if [4]byte(blob[:len(blobMagic)]) != blobMagic {
		return 0, fmt.Errorf("%w: bad magic", ErrIntegrity)
	}
	suite := Suite(blob[len(blobMagic)])
	if !suite.valid() {
		return 0, fmt.Errorf("%w: unsupported blob version %d", ErrIntegrity, byte(suite))
	}
	return suite, nil
}
