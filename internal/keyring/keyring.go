package keyring

import (
	"errors"
	"path/filepath"

	"github.com/zalando/go-keyring"
)

const serviceName = "cfgvault"

// ErrNotFound is returned when no escrowed key material exists for a vault
var ErrNotFound = keyring.ErrNotFound

// Account returns the keyring account for the key file at keyPath. It is
// derived from the location rather than the vault id so that a lost key
// file can still be found.
func Account(keyPath string) string {
	abs, err := filepath.Abs(keyPath)
	if err != nil {
		return filepath.Clean(keyPath)
	}
	return abs
}

// SaveKeyMaterial stores exported key material in the OS keyring
func SaveKeyMaterial(account string, encoded string) error {
	return keyring.Set(serviceName, account, encoded)
}

// GetKeyMaterial retrieves exported key material from the OS keyring
func GetKeyMaterial(account string) (string, error) {
	return keyring.Get(serviceName, account)
}

// DeleteKeyMaterial removes escrowed key material from the OS keyring
func DeleteKeyMaterial(account string) error {
	return keyring.Delete(serviceName, account)
}

// HasKeyMaterial checks if key material is escrowed for the account
func HasKeyMaterial(account string) bool {
	_, err := keyring.Get(serviceName, account)
	return err == nil
}

// IsNotFound reports whether err means nothing is stored
func IsNotFound(err error) bool {
	return errors.Is(err, keyring.ErrNotFound)
}
