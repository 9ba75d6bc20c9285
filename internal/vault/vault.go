package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/illarion/cfgvault/internal/config"
	"github.com/illarion/cfgvault/internal/crypto"
	"github.com/illarion/cfgvault/internal/document"
	"github.com/illarion/cfgvault/internal/keys"
	"github.com/illarion/cfgvault/internal/security"
	"github.com/illarion/cfgvault/internal/storage"
)

const DirPermSecure = 0700 // Directory: owner rwx only

var (
	ErrCorrupted            = errors.New("vault unreadable; rotate key to continue, existing secrets are unrecoverable")
	ErrNotOpen              = errors.New("vault not open")
	ErrConfirmationRequired = errors.New("confirmation required: the unreadable vault will be discarded")
	ErrNothingToBackup      = errors.New("vault file does not exist")
	ErrInvalidBackup        = errors.New("backup cannot be opened with the current key")
)

// Observer receives operation outcomes and state transitions
type Observer interface {
	ObserveOperation(op string, d time.Duration, err error)
	ObserveState(s State)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, time.Duration, error) {}
func (nopObserver) ObserveState(State)                            {}

// Option configures a Vault
type Option func(*Vault)

// WithLogger sets the logger used by the vault and its components
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// WithObserver registers an observer for operations and state changes
func WithObserver(o Observer) Option {
	return func(v *Vault) { v.observer = o }
}

// WithClock overrides the time source used for backup names and orphaned
// file suffixes
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// Vault is the encrypted configuration store. Construct one per process
// and pass it to every collaborator; all methods are safe for concurrent use
// and each runs in a single critical section from load to save.
type Vault struct {
	cfg      *config.Config
	keys     *keys.Manager
	store    *storage.Store
	redactor *Redactor
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	mu      sync.Mutex
	state   State
	cause   error // why the vault is Corrupted, or why Open failed
	backups *security.PathValidator
}

// New creates a vault for cfg. Nothing touches the disk until Open.
func New(cfg *config.Config, opts ...Option) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Vault{
		cfg:      cfg,
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.keys = keys.NewManager(cfg.KeyPath(),
		keys.WithIterations(cfg.KDFIterations),
		keys.WithLogger(v.logger))
	v.store = storage.New(cfg.VaultPath(),
		storage.WithSuite(cfg.Suite()),
		storage.WithLogger(v.logger))
	v.redactor = NewRedactor(cfg.SensitivePatterns)
	return v, nil
}

// Open loads or creates key material and reads the vault file. On success
// the vault is Ready. A key file failure, including a missing key next to
// an existing vault file, leaves it Uninitialized and an unreadable vault
// file leaves it Corrupted; in both cases RotateKey(true) can recover.
func (v *Vault) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUninitialized {
		return nil
	}

	if err := os.MkdirAll(v.cfg.DataDir, DirPermSecure); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := v.checkKeyPresentLocked(); err != nil {
		v.cause = err
		v.logger.Error("refusing to create key material for an existing vault",
			"key", v.keys.Path(), "vault", v.store.Path(), "error", err)
		return err
	}

	if _, err := v.keys.Open(); err != nil {
		v.cause = err
		v.logger.Error("cannot load key material", "path", v.keys.Path(), "error", err)
		return err
	}
	v.cause = nil
	v.setStateLocked(StateKeyLoaded)

	return v.keys.WithKey(func(key []byte) error {
		if _, err := v.loadLocked(key); err != nil {
			return err
		}
		if v.store.Digest() == ([32]byte{}) {
			// No vault file yet: persist the empty document
			if err := v.saveLocked(key, document.New()); err != nil {
				return err
			}
			v.logger.Info("created vault", "path", v.store.Path(), "vault_id", v.keys.VaultID())
		}
		return nil
	})
}

// checkKeyPresentLocked fails with keys.ErrKeyFileNotFound when the key file
// is gone but a non-empty vault file remains. A fresh key could never open
// that file, so generating one is left to an explicit restore or rotate.
func (v *Vault) checkKeyPresentLocked() error {
	exists, err := v.keys.Exists()
	if err != nil || exists {
		return err
	}
	info, err := os.Stat(v.store.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat vault file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s is missing but %s holds sealed data",
		keys.ErrKeyFileNotFound, v.keys.Path(), v.store.Path())
}

// Close drops the derived key and releases the backup directory handle.
// The vault must be opened again before further use.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.keys.Close()
	v.cause = nil
	v.setStateLocked(StateUninitialized)
	if v.backups != nil {
		err := v.backups.Close()
		v.backups = nil
		return err
	}
	return nil
}

// State returns the current lifecycle state
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns why the vault is Corrupted or failed to open, if it did
func (v *Vault) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cause
}

// Config returns the configuration the vault was created with
func (v *Vault) Config() *config.Config { return v.cfg }

// Keys returns the key manager, for escrow commands
func (v *Vault) Keys() *keys.Manager { return v.keys }

// Redactor returns the redactor used for safe views
func (v *Vault) Redactor() *Redactor { return v.redactor }

// LastDigest returns the SHA-256 of the vault blob this process last read
// or wrote
func (v *Vault) LastDigest() [32]byte {
	return v.store.Digest()
}

// Get returns the raw value at path, or def when it is absent
func (v *Vault) Get(path string, def document.Value) (document.Value, error) {
	out := def
	err := v.view("get", func(doc *document.Document) error {
		out = doc.Get(path, def)
		return nil
	})
	if err != nil {
		return def, err
	}
	return out, nil
}

// GetAll returns a copy of the whole document with raw values
func (v *Vault) GetAll() (*document.Document, error) {
	var out *document.Document
	err := v.view("get_all", func(doc *document.Document) error {
		out = doc
		return nil
	})
	return out, err
}

// GetAllSafe returns the whole document with sensitive values masked
func (v *Vault) GetAllSafe() (*document.Document, error) {
	var out *document.Document
	err := v.view("get_all_safe", func(doc *document.Document) error {
		out = v.redactor.Redact(doc)
		return nil
	})
	return out, err
}

// Set stores value at path, creating intermediate maps
func (v *Vault) Set(path string, value document.Value) error {
	err := v.mutate("set", func(doc *document.Document) (bool, error) {
		if _, err := doc.Set(path, value); err != nil {
			return false, err
		}
		return true, nil
	})
	if err == nil {
		v.logger.Debug("value set", "path", path, "sensitive", v.redactor.IsSensitivePath(path))
	}
	return err
}

// Delete removes the value at path. It reports whether anything was
// removed; deleting an absent path does not rewrite the vault file.
func (v *Vault) Delete(path string) (bool, error) {
	var removed bool
	err := v.mutate("delete", func(doc *document.Document) (bool, error) {
		removed = doc.Delete(path)
		return removed, nil
	})
	return removed, err
}

// Update runs fn on the current document and saves the result, all inside
// one critical section. If fn returns an error nothing is written.
func (v *Vault) Update(fn func(doc *document.Document) error) error {
	return v.mutate("update", func(doc *document.Document) (bool, error) {
		if err := fn(doc); err != nil {
			return false, err
		}
		return true, nil
	})
}

// run executes fn under the vault lock and reports the outcome to the
// observer
func (v *Vault) run(op string, fn func() error) (err error) {
	start := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	defer func() { v.observer.ObserveOperation(op, time.Since(start), err) }()

	if err := v.checkLocked(); err != nil {
		return err
	}
	return fn()
}

func (v *Vault) withKey(op string, fn func(key []byte) error) error {
	return v.run(op, func() error {
		return v.keys.WithKey(fn)
	})
}

func (v *Vault) view(op string, fn func(doc *document.Document) error) error {
	return v.withKey(op, func(key []byte) error {
		doc, err := v.loadLocked(key)
		if err != nil {
			return err
		}
		return fn(doc)
	})
}

// mutate loads the document, applies fn and saves when fn reports a change
func (v *Vault) mutate(op string, fn func(doc *document.Document) (bool, error)) error {
	return v.withKey(op, func(key []byte) error {
		doc, err := v.loadLocked(key)
		if err != nil {
			return err
		}
		changed, err := fn(doc)
		if err != nil || !changed {
			return err
		}
		return v.saveLocked(key, doc)
	})
}

func (v *Vault) checkLocked() error {
	switch v.state {
	case StateUninitialized:
		if v.cause != nil {
			return fmt.Errorf("%w: %w", ErrNotOpen, v.cause)
		}
		return ErrNotOpen
	case StateCorrupted:
		return v.corruptedErrLocked()
	}
	return nil
}

func (v *Vault) corruptedErrLocked() error {
	if v.cause == nil {
		return ErrCorrupted
	}
	return fmt.Errorf("%w: %w", ErrCorrupted, v.cause)
}

func (v *Vault) setStateLocked(s State) {
	if v.state == s {
		return
	}
	v.logger.Debug("vault state changed", "from", v.state.String(), "to", s.String())
	v.state = s
	v.observer.ObserveState(s)
}

// isCorruption reports whether err means the vault file cannot be trusted,
// as opposed to a transient I/O failure
func isCorruption(err error) bool {
	return errors.Is(err, crypto.ErrIntegrity) || errors.Is(err, document.ErrSerialization)
}

// markCorruptedLocked moves the vault to Corrupted when err is an integrity
// or serialization failure and returns the error callers should see
func (v *Vault) markCorruptedLocked(err error) error {
	if !isCorruption(err) {
		return err
	}
	v.cause = err
	v.setStateLocked(StateCorrupted)
	v.logger.Error("vault file failed integrity check", "path", v.store.Path(), "error", err)
	return v.corruptedErrLocked()
}

func (v *Vault) loadLocked(key []byte) (*document.Document, error) {
	doc, err := v.store.Load(key)
	if err != nil {
		return nil, v.markCorruptedLocked(err)
	}
	if v.state == StateKeyLoaded {
		v.setStateLocked(StateReady)
	}
	return doc, nil
}

func (v *Vault) saveLocked(key []byte, doc *document.Document) error {
	if err := v.store.Save(key, doc); err != nil {
		return err
	}
	v.writeSafeViewLocked(doc)
	return nil
}

// writeSafeViewLocked refreshes the redacted plaintext snapshot. The vault
// file is already saved at this point, so a failure here is only logged.
func (v *Vault) writeSafeViewLocked(doc *document.Document) {
	if v.cfg.SafeViewFile == "" {
		return
	}
	data, err := v.redactor.Redact(doc).Marshal()
	if err == nil {
		err = storage.WriteFileAtomic(v.cfg.SafeViewPath(), data, storage.FilePermSecure)
	}
	if err != nil {
		v.logger.Warn("failed to write safe view", "path", v.cfg.SafeViewPath(), "error", err)
	}
}
