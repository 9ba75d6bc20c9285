package keys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/illarion/cfgvault/internal/crypto"
)

// Bucket and field names inside the key file
var (
	KeysBucket = []byte("keys")

	fieldVersion  = []byte("version")
	fieldEntropy  = []byte("entropy")
	fieldSalt     = []byte("salt")
	fieldIters    = []byte("iterations")
	fieldVaultID  = []byte("vault_id")
	fieldCreated  = []byte("created")
	formatVersion = []byte("1")
)

const (
	EntropySize    = 32
	FilePermSecure = 0600 // File: owner rw only
	openTimeout    = time.Second
)

// material is everything persisted in the key file
type material struct {
	Entropy    []byte
	Salt       []byte
	Iterations uint32
	VaultID    string
	Created    time.Time
}

// writeKeyFile creates a fresh key file next to path and renames it into
// place, so an interrupted write never leaves a half-built key file
func writeKeyFile(path string, m material) error {
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".new")
	os.Remove(tmpPath)

	db, err := bolt.Open(tmpPath, FilePermSecure, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(KeysBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", KeysBucket, err)
		}

		iters := make([]byte, 4)
		binary.BigEndian.PutUint32(iters, m.Iterations)
		created, err := m.Created.MarshalBinary()
		if err != nil {
			return err
		}

		for _, kv := range []struct{ k, v []byte }{
			{fieldVersion, formatVersion},
			{fieldEntropy, m.Entropy},
			{fieldSalt, m.Salt},
			{fieldIters, iters},
			{fieldVaultID, []byte(m.VaultID)},
			{fieldCreated, created},
		} {
			if err := b.Put(kv.k, kv.v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write key file: %w", err)
	}

	if err := db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close key file: %w", err)
	}
	if err := os.Chmod(tmpPath, FilePermSecure); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set key file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install key file: %w", err)
	}
	return nil
}

// readKeyFile loads and validates the key file. Format problems map to
// ErrKeyFileCorrupt, I/O and permission problems to ErrKeyFilePermissionDenied.
func readKeyFile(path string) (material, error) {
	var m material

	// Check readability first so permission problems are not mistaken for corruption
	f, err := os.Open(path)
	if err != nil {
		return m, classifyOpenError(err)
	}
	f.Close()

	db, err := bolt.Open(path, FilePermSecure, &bolt.Options{ReadOnly: true, Timeout: openTimeout})
	if err != nil {
		return m, classifyOpenError(err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(KeysBucket)
		if b == nil {
			return errors.New("keys bucket not found")
		}
		if v := b.Get(fieldVersion); string(v) != string(formatVersion) {
			return fmt.Errorf("unsupported key file version %q", v)
		}

		// Copy since slices are only valid during the transaction
		m.Entropy = append([]byte(nil), b.Get(fieldEntropy)...)
		if len(m.Entropy) != EntropySize {
			return fmt.Errorf("entropy has %d bytes, want %d", len(m.Entropy), EntropySize)
		}
		m.Salt = append([]byte(nil), b.Get(fieldSalt)...)
		if len(m.Salt) != crypto.SaltSize {
			return fmt.Errorf("salt has %d bytes, want %d", len(m.Salt), crypto.SaltSize)
		}

		iters := b.Get(fieldIters)
		if len(iters) != 4 {
			return errors.New("iterations not found")
		}
		m.Iterations = binary.BigEndian.Uint32(iters)

		m.VaultID = string(b.Get(fieldVaultID))
		if created := b.Get(fieldCreated); created != nil {
			if err := m.Created.UnmarshalBinary(created); err != nil {
				return fmt.Errorf("invalid created time: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return material{}, fmt.Errorf("%w: %v", ErrKeyFileCorrupt, err)
	}
	return m, nil
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrKeyFileNotFound, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, bolt.ErrTimeout):
		return fmt.Errorf("%w: %v", ErrKeyFilePermissionDenied, err)
	default:
		return fmt.Errorf("%w: %v", ErrKeyFileCorrupt, err)
	}
}
