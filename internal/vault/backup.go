package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/illarion/cfgvault/internal/document"
	"github.com/illarion/cfgvault/internal/security"
	"github.com/illarion/cfgvault/internal/storage"
)

const (
	backupPrefix     = "config-"
	backupSuffix     = ".vault"
	backupTimeLayout = "20060102T150405Z"
)

// BackupInfo describes one file in the backup directory
type BackupInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

func backupName(now time.Time) string {
	return backupPrefix + now.UTC().Format(backupTimeLayout) + "-" + uuid.NewString()[:8] + backupSuffix
}

// isGeneratedBackup reports whether name has exactly the shape backupName
// produces. Generated names sort in creation order.
func isGeneratedBackup(name string) bool {
	rest, ok := strings.CutPrefix(name, backupPrefix)
	if !ok {
		return false
	}
	rest, ok = strings.CutSuffix(rest, backupSuffix)
	if !ok {
		return false
	}
	stamp, id, ok := strings.Cut(rest, "-")
	if !ok || len(stamp) != len(backupTimeLayout) || len(id) != 8 {
		return false
	}
	if _, err := time.Parse(backupTimeLayout, stamp); err != nil {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

// Backup copies the current encrypted blob into the backup directory under
// a timestamped name and returns its path
func (v *Vault) Backup() (string, error) {
	var path string
	err := v.withKey("backup", func(key []byte) error {
		blob, err := v.currentBlobLocked(key)
		if err != nil {
			return err
		}
		dir, err := v.backupDirLocked()
		if err != nil {
			return err
		}

		name := backupName(v.now())
		if err := dir.WriteFileInRoot(name, blob, storage.FilePermSecure); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		path = filepath.Join(dir.Dir(), name)
		v.logger.Info("backup written", "path", path)
		return nil
	})
	return path, err
}

// BackupTo copies the current encrypted blob to target. Relative targets
// are placed inside the backup directory.
func (v *Vault) BackupTo(target string) (string, error) {
	var path string
	err := v.withKey("backup", func(key []byte) error {
		blob, err := v.currentBlobLocked(key)
		if err != nil {
			return err
		}
		dir, err := v.backupDirLocked()
		if err != nil {
			return err
		}

		resolved, err := dir.Resolve(target)
		if err != nil {
			return fmt.Errorf("invalid backup path: %w", err)
		}
		if err := storage.WriteFileAtomic(resolved, blob, storage.FilePermSecure); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		path = resolved
		v.logger.Info("backup written", "path", path)
		return nil
	})
	return path, err
}

// Restore replaces the vault with a backup. The backup must open and parse
// under the current key; otherwise the vault is left untouched.
func (v *Vault) Restore(path string) error {
	return v.withKey("restore", func(key []byte) error {
		doc, err := v.openBackupLocked(key, path)
		if err != nil {
			return err
		}
		if err := v.saveLocked(key, doc); err != nil {
			return err
		}
		v.setStateLocked(StateReady)
		v.logger.Info("vault restored from backup", "backup", path)
		return nil
	})
}

// InspectBackup returns the redacted content of a backup
func (v *Vault) InspectBackup(path string) (*document.Document, error) {
	var out *document.Document
	err := v.withKey("inspect_backup", func(key []byte) error {
		doc, err := v.openBackupLocked(key, path)
		if err != nil {
			return err
		}
		out = v.redactor.Redact(doc)
		return nil
	})
	return out, err
}

// ListBackups returns the backups in the backup directory, oldest first
func (v *Vault) ListBackups() ([]BackupInfo, error) {
	var out []BackupInfo
	err := v.run("list_backups", func() error {
		var err error
		out, err = v.listBackupsLocked()
		return err
	})
	return out, err
}

// PruneBackups removes the oldest timestamped backups so that at most keep
// remain, and returns the removed names. Only names produced by Backup are
// pruned; files written by BackupTo never are, even when they start with
// the same prefix. keep <= 0 disables pruning.
func (v *Vault) PruneBackups(keep int) ([]string, error) {
	var removed []string
	err := v.run("prune_backups", func() error {
		if keep <= 0 {
			return nil
		}
		backups, err := v.listBackupsLocked()
		if err != nil {
			return err
		}

		var generated []BackupInfo
		for _, b := range backups {
			if isGeneratedBackup(b.Name) {
				generated = append(generated, b)
			}
		}
		if len(generated) <= keep {
			return nil
		}

		dir, err := v.backupDirLocked()
		if err != nil {
			return err
		}
		for _, b := range generated[:len(generated)-keep] {
			if err := dir.RemoveInRoot(b.Name); err != nil {
				return fmt.Errorf("failed to remove backup %s: %w", b.Name, err)
			}
			removed = append(removed, b.Name)
			v.logger.Info("pruned backup", "name", b.Name)
		}
		return nil
	})
	return removed, err
}

func (v *Vault) listBackupsLocked() ([]BackupInfo, error) {
	dir, err := v.backupDirLocked()
	if err != nil {
		return nil, err
	}
	names, err := dir.ListFiles(backupSuffix)
	if err != nil {
		return nil, err
	}

	out := make([]BackupInfo, 0, len(names))
	for _, name := range names {
		info, err := dir.StatInRoot(name)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, BackupInfo{
			Name:    name,
			Path:    filepath.Join(dir.Dir(), name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

func (v *Vault) backupDirLocked() (*security.PathValidator, error) {
	if v.backups != nil {
		return v.backups, nil
	}
	pv, err := security.New(v.cfg.BackupPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open backup directory: %w", err)
	}
	v.backups = pv
	return pv, nil
}

// currentBlobLocked returns the vault blob after checking that it opens
// under key, so a damaged file is never copied into the backups
func (v *Vault) currentBlobLocked(key []byte) ([]byte, error) {
	blob, err := v.store.ReadBlob()
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, ErrNothingToBackup
	}
	if _, err := storage.DecodeBlob(key, blob); err != nil {
		return nil, v.markCorruptedLocked(err)
	}
	return blob, nil
}

func (v *Vault) openBackupLocked(key []byte, path string) (*document.Document, error) {
	var (
		blob []byte
		err  error
	)
	if filepath.IsAbs(path) {
		blob, err = os.ReadFile(path)
	} else {
		var dir *security.PathValidator
		if dir, err = v.backupDirLocked(); err == nil {
			blob, err = dir.ReadFileInRoot(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}

	doc, err := storage.DecodeBlob(key, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	return doc, nil
}
