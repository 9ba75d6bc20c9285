package crypto

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateRandom(KeySize)
	require.NoError(t, err)
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)

	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"owner_id": 12345, "features": {"welcome": true}}`),
		bytes.Repeat([]byte{0xff, 0x00}, 4096),
	}

	for _, suite := range []Suite{SuiteAES256GCM, SuiteXChaCha20Poly1305} {
		for _, p := range payloads {
			blob, err := Seal(key, p, suite)
			require.NoError(t, err)

			got, err := Open(key, blob)
			require.NoError(t, err, "suite %s", suite)
			assert.True(t, bytes.Equal(p, got), "round trip mismatch for suite %s", suite)

			s, err := BlobSuite(blob)
			require.NoError(t, err)
			assert.Equal(t, suite, s)
		}
	}
}

func TestSealProducesDistinctBlobs(t *testing.T) {
	key := testKey(t)
	a, err := Seal(key, []byte("same"), DefaultSuite)
	require.NoError(t, err)
	b, err := Seal(key, []byte("same"), DefaultSuite)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonces must differ")
}

func TestOpenDetectsEveryBitFlip(t *testing.T) {
	key := testKey(t)

	for _, suite := range []Suite{SuiteAES256GCM, SuiteXChaCha20Poly1305} {
		blob, err := Seal(key, []byte(`{"admin_password":"hunter2"}`), suite)
		require.NoError(t, err)

		for i := 0; i < len(blob)*8; i++ {
			tampered := append([]byte(nil), blob...)
			tampered[i/8] ^= 1 << (i % 8)

			plaintext, err := Open(key, tampered)
			if !errors.Is(err, ErrIntegrity) {
				t.Fatalf("suite %s bit %d: expected ErrIntegrity, got %v", suite, i, err)
			}
			if plaintext != nil {
				t.Fatalf("suite %s bit %d: plaintext returned on failure", suite, i)
			}
		}
	}
}

func TestOpenRejectsTruncation(t *testing.T) {
	key := testKey(t)
	blob, err := Seal(key, []byte("payload"), DefaultSuite)
	require.NoError(t, err)

	for n := 0; n < len(blob); n++ {
		_, err := Open(key, blob[:n])
		assert.ErrorIs(t, err, ErrIntegrity, "length %d", n)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	blob, err := Seal(testKey(t), []byte("payload"), DefaultSuite)
	require.NoError(t, err)

	_, err = Open(testKey(t), blob)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := Seal(make([]byte, 16), []byte("x"), DefaultSuite)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = Open(make([]byte, 31), []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestIssuedAtAndMaxAge(t *testing.T) {
	key := testKey(t)
	issued := time.Now().Add(-2 * time.Hour).Truncate(time.Second)

	blob, err := sealAt(key, []byte("old"), DefaultSuite, issued)
	require.NoError(t, err)

	ts, err := IssuedAt(blob)
	require.NoError(t, err)
	assert.True(t, ts.Equal(issued))

	_, err = OpenWithMaxAge(key, blob, time.Hour)
	assert.ErrorIs(t, err, ErrExpired)

	got, err := OpenWithMaxAge(key, blob, 3*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)

	got, err = OpenWithMaxAge(key, blob, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)
}

func TestParseSuite(t *testing.T) {
	tests := []struct {
		in   string
		want Suite
		err  bool
	}{
		{"", DefaultSuite, false},
		{"aes-256-gcm", SuiteAES256GCM, false},
		{"AES-GCM", SuiteAES256GCM, false},
		{"xchacha20-poly1305", SuiteXChaCha20Poly1305, false},
		{"rot13", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSuite(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, name string) Suite {
	t.Helper()
	s, err := ParseSuite(name)
	require.NoError(t, err)
	return s
}

func TestKDF(t *testing.T) {
	_, err := NewKDF(1000)
	assert.Error(t, err)

	kdf, err := NewKDF(MinIterations)
	require.NoError(t, err)
	assert.Len(t, kdf.Salt, SaltSize)

	secret := []byte("entropy")
	k1 := kdf.DeriveKey(secret)
	k2 := kdf.DeriveKey(secret)
	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)

	other := &KDF{Salt: make([]byte, SaltSize), Iterations: MinIterations}
	assert.NotEqual(t, k1, other.DeriveKey(secret))
}

func TestClearBytes(t *testing.T) {
	b := []byte("secret")
	ClearBytes(b)
	assert.Equal(t, make([]byte, 6), b)
}
