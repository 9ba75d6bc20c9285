package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/illarion/cfgvault/internal/document"
)

// RotateKey replaces the key material.
//
// In Ready or KeyLoaded the current document is re-encrypted under the new
// key and nothing is lost, though backups sealed with the old key can no
// longer be restored. In Corrupted, or after Open failed on the key file,
// the unreadable vault file is moved aside, a new key is generated and the
// document starts empty; this requires confirm.
func (v *Vault) RotateKey(confirm bool) (err error) {
	start := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.observer.ObserveOperation("rotate_key", time.Since(start), err) }()

	switch v.state {
	case StateReady, StateKeyLoaded:
		return v.reencryptLocked()
	case StateCorrupted:
		if !confirm {
			return ErrConfirmationRequired
		}
		return v.resetLocked("vault file unreadable")
	default:
		if v.cause == nil {
			return ErrNotOpen
		}
		if !confirm {
			return ErrConfirmationRequired
		}
		return v.resetLocked("key file unusable")
	}
}

func (v *Vault) reencryptLocked() error {
	var doc *document.Document
	err := v.keys.WithKey(func(key []byte) error {
		var err error
		doc, err = v.loadLocked(key)
		return err
	})
	if err != nil {
		return err
	}

	// Keep the old material until the vault file is sealed under the new one
	previous, err := v.keys.Export()
	if err != nil {
		return fmt.Errorf("failed to read current key material: %w", err)
	}
	if err := v.keys.Regenerate("key rotation"); err != nil {
		return v.restoreKeysLocked(previous, err)
	}

	err = v.keys.WithKey(func(key []byte) error {
		return v.saveLocked(key, doc)
	})
	if err != nil {
		if rerr := v.keys.Import(previous); rerr != nil {
			return errors.Join(err, fmt.Errorf("failed to restore previous key material: %w", rerr))
		}
		return err
	}

	v.logger.Info("key rotated, vault re-encrypted", "vault_id", v.keys.VaultID())
	v.logger.Warn("backups sealed with the previous key can no longer be restored", "dir", v.cfg.BackupPath())
	return nil
}

// restoreKeysLocked puts the previous key material back when a failed
// regeneration left the key file or the loaded key missing
func (v *Vault) restoreKeysLocked(previous string, cause error) error {
	exists, err := v.keys.Exists()
	if err == nil && exists && v.keys.Loaded() {
		return cause
	}
	if rerr := v.keys.Import(previous); rerr != nil {
		return errors.Join(cause, fmt.Errorf("failed to restore previous key material: %w", rerr))
	}
	return cause
}

func (v *Vault) resetLocked(reason string) error {
	orphaned, err := v.store.MoveAside(v.now())
	if err != nil {
		return err
	}
	if err := v.keys.Regenerate(reason); err != nil {
		return err
	}

	v.cause = nil
	v.setStateLocked(StateKeyLoaded)

	err = v.keys.WithKey(func(key []byte) error {
		return v.saveLocked(key, document.New())
	})
	if err != nil {
		return err
	}

	v.logger.Warn("vault reset with new key material, previous secrets are unrecoverable",
		"reason", reason, "orphaned", orphaned, "vault_id", v.keys.VaultID())
	return nil
}
