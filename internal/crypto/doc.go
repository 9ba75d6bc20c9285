// Package crypto provides the authenticated cipher of the vault.
//
// Blobs are versioned envelopes:
//
//	magic "CVLT" | version (1) | issued-at unix seconds (8, big endian) | nonce | ciphertext+tag
//
// The header is bound as additional data, so flipping any bit of a blob,
// truncating it or opening it with another key fails with ErrIntegrity.
//
// Versions:
//   - 1: AES-256-GCM, 12-byte random nonce
//   - 2: XChaCha20-Poly1305, 24-byte random nonce
//
// Key derivation uses PBKDF2-HMAC-SHA256 over the raw key material with
// a random salt. The iteration count is stored next to the salt.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
package crypto
