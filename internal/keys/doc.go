// Package keys manages the vault's key material.
//
// The key file is a small BBolt database with a single "keys" bucket:
//   - entropy: 32 random bytes from crypto/rand
//   - salt, iterations: PBKDF2-HMAC-SHA256 parameters
//   - vault_id, created: identity of this key material
//
// The working key is derived on every load and kept in a memguard enclave
// for the process lifetime; it is never written to disk. Loading never
// falls back to fresh key material. Regenerate is the explicit, logged
// recovery path and orphans every blob sealed with the old key.
package keys
