package keys

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/illarion/cfgvault/internal/crypto"
)

var (
	ErrKeyFileCorrupt          = errors.New("key file corrupt")
	ErrKeyFilePermissionDenied = errors.New("key file not accessible")
	ErrKeyFileNotFound         = errors.New("key file not found")
	ErrKeyFileExists           = errors.New("key file already exists")
	ErrNotLoaded               = errors.New("key material not loaded")
	ErrInvalidExport           = errors.New("invalid exported key material")
)

const exportPrefix = "cfgvault-key-v1:"

// Manager owns the key file and holds the derived key for the process lifetime
type Manager struct {
	path       string
	iterations int
	logger     *slog.Logger

	mu      sync.Mutex
	enclave *memguard.Enclave
	vaultID string
	created time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithIterations sets the PBKDF2 iteration count for newly generated key material
func WithIterations(n int) Option {
	return func(m *Manager) { m.iterations = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager for the key file at path. Nothing is read
// until Open, Initialize or Load is called.
func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{
		path:       path,
		iterations: crypto.DefaultIters,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the key file path
func (m *Manager) Path() string { return m.path }

// Exists reports whether the key file is present
func (m *Manager) Exists() (bool, error) {
	_, err := os.Stat(m.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrKeyFilePermissionDenied, err)
}

// Open loads the key file, creating it first when it does not exist.
// It reports whether new key material was generated.
func (m *Manager) Open() (bool, error) {
	exists, err := m.Exists()
	if err != nil {
		return false, err
	}
	if !exists {
		return true, m.Initialize()
	}
	return false, m.Load()
}

// Initialize generates fresh key material and writes the key file.
// It refuses to overwrite an existing key file.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exists, err := m.Exists()
	if err != nil {
		return err
	}
	if exists {
		return ErrKeyFileExists
	}
	return m.generateLocked()
}

func (m *Manager) generateLocked() error {
	kdf, err := crypto.NewKDF(m.iterations)
	if err != nil {
		return err
	}
	entropy, err := crypto.GenerateRandom(EntropySize)
	if err != nil {
		return fmt.Errorf("failed to generate key entropy: %w", err)
	}
	defer crypto.ClearBytes(entropy)

	mat := material{
		Entropy:    entropy,
		Salt:       kdf.Salt,
		Iterations: uint32(kdf.Iterations),
		VaultID:    uuid.NewString(),
		Created:    time.Now().UTC(),
	}
	if err := writeKeyFile(m.path, mat); err != nil {
		return err
	}

	m.installLocked(mat)
	m.logger.Info("generated new key material", "path", m.path, "vault_id", mat.VaultID, "iterations", mat.Iterations)
	return nil
}

// Load reads the key file and re-derives the working key. It never falls
// back to fresh key material.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mat, err := readKeyFile(m.path)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(mat.Entropy)

	if mat.Iterations < crypto.MinIterations {
		return fmt.Errorf("%w: iterations %d below minimum %d", ErrKeyFileCorrupt, mat.Iterations, crypto.MinIterations)
	}

	if info, err := os.Stat(m.path); err == nil && info.Mode().Perm()&0077 != 0 {
		m.logger.Warn("key file is readable by other users", "path", m.path, "mode", info.Mode().Perm().String())
	}

	m.installLocked(mat)
	return nil
}

// installLocked derives the key from mat and seals it in an enclave
func (m *Manager) installLocked(mat material) {
	kdf := &crypto.KDF{Salt: mat.Salt, Iterations: int(mat.Iterations)}
	derived := kdf.DeriveKey(mat.Entropy)

	// NewEnclave wipes derived
	m.enclave = memguard.NewEnclave(derived)
	m.vaultID = mat.VaultID
	m.created = mat.Created
}

// Regenerate replaces the key file with new key material. Every blob sealed
// under the old key becomes unreadable. The new file is renamed over the old
// one, so on failure the previous key file and loaded key stay in place.
func (m *Manager) Regenerate(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Warn("regenerating key material, data sealed with the previous key is unrecoverable",
		"path", m.path, "reason", reason)

	return m.generateLocked()
}

// Loaded reports whether a derived key is available
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enclave != nil
}

// WithKey lends the derived key to fn. The buffer is wiped when fn returns,
// so fn must not retain it.
func (m *Manager) WithKey(fn func(key []byte) error) error {
	m.mu.Lock()
	enclave := m.enclave
	m.mu.Unlock()

	if enclave == nil {
		return ErrNotLoaded
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("failed to open key enclave: %w", err)
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

// VaultID returns the identifier stored in the key file
func (m *Manager) VaultID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vaultID
}

// Created returns when the key material was generated
func (m *Manager) Created() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// Close drops the derived key
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enclave = nil
}

type exported struct {
	Entropy    []byte    `json:"entropy"`
	Salt       []byte    `json:"salt"`
	Iterations uint32    `json:"iterations"`
	VaultID    string    `json:"vault_id"`
	Created    time.Time `json:"created"`
}

// Export encodes the persisted key material as a single line of text, for
// escrow outside the data directory
func (m *Manager) Export() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mat, err := readKeyFile(m.path)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(mat.Entropy)

	raw, err := json.Marshal(exported{
		Entropy:    mat.Entropy,
		Salt:       mat.Salt,
		Iterations: mat.Iterations,
		VaultID:    mat.VaultID,
		Created:    mat.Created,
	})
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(raw)

	return exportPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Import replaces the key file with previously exported key material and
// loads it
func (m *Manager) Import(encoded string) error {
	payload, ok := strings.CutPrefix(strings.TrimSpace(encoded), exportPrefix)
	if !ok {
		return fmt.Errorf("%w: missing prefix", ErrInvalidExport)
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	defer crypto.ClearBytes(raw)

	var e exported
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	defer crypto.ClearBytes(e.Entropy)

	if len(e.Entropy) != EntropySize || len(e.Salt) != crypto.SaltSize || e.Iterations < crypto.MinIterations {
		return fmt.Errorf("%w: incomplete key material", ErrInvalidExport)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mat := material{
		Entropy:    e.Entropy,
		Salt:       e.Salt,
		Iterations: e.Iterations,
		VaultID:    e.VaultID,
		Created:    e.Created,
	}
	if err := writeKeyFile(m.path, mat); err != nil {
		return err
	}
	m.installLocked(mat)
	m.logger.Info("imported key material", "path", m.path, "vault_id", mat.VaultID)
	return nil
}
