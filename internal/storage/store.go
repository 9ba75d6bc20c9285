package storage

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/illarion/cfgvault/internal/crypto"
	"github.com/illarion/cfgvault/internal/document"
)

const FilePermSecure = 0600 // File: owner rw only

// Store persists one encrypted document in a single blob file
type Store struct {
	path   string
	suite  crypto.Suite
	logger *slog.Logger

	mu         sync.Mutex
	lastDigest [sha256.Size]byte
}

// Option configures a Store
type Option func(*Store)

// WithSuite selects the cipher suite for new writes
func WithSuite(suite crypto.Suite) Option {
	return func(s *Store) { s.suite = suite }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a store for the blob file at path
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		suite:  crypto.DefaultSuite,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the blob file path
func (s *Store) Path() string { return s.path }

// Suite returns the cipher suite used for writes
func (s *Store) Suite() crypto.Suite { return s.suite }

// ReadBlob returns the raw blob, or nil when the file does not exist
func (s *Store) ReadBlob() ([]byte, error) {
	blob, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vault file: %w", err)
	}
	return blob, nil
}

// Load reads and decrypts the document. A missing or empty vault file
// yields an empty document.
func (s *Store) Load(key []byte) (*document.Document, error) {
	blob, err := s.ReadBlob()
	if err != nil {
		return nil, err
	}
	if blob == nil {
		s.remember(nil)
		return document.New(), nil
	}
	if len(blob) == 0 {
		s.logger.Warn("vault file is empty, starting from an empty document", "path", s.path)
		s.remember(blob)
		return document.New(), nil
	}

	doc, err := DecodeBlob(key, blob)
	if err != nil {
		return nil, err
	}
	s.remember(blob)
	return doc, nil
}

// Save encrypts the document and atomically replaces the vault file
func (s *Store) Save(key []byte, doc *document.Document) error {
	blob, err := EncodeBlob(key, doc, s.suite)
	if err != nil {
		return err
	}
	return s.WriteBlob(blob)
}

// WriteBlob atomically replaces the vault file with an already sealed blob
func (s *Store) WriteBlob(blob []byte) error {
	if err := WriteFileAtomic(s.path, blob, FilePermSecure); err != nil {
		return fmt.Errorf("failed to write vault file: %w", err)
	}
	s.remember(blob)
	return nil
}

// MoveAside renames the vault file to <path>.orphaned-<unix> and returns the
// new name. A missing file is not an error and returns "".
func (s *Store) MoveAside(now time.Time) (string, error) {
	target := s.path + ".orphaned-" + strconv.FormatInt(now.Unix(), 10)
	if err := os.Rename(s.path, target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to move vault file aside: %w", err)
	}
	s.remember(nil)
	return target, nil
}

// Digest returns the SHA-256 of the blob last read or written by this store.
// The zero digest means no file.
func (s *Store) Digest() [sha256.Size]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDigest
}

func (s *Store) remember(blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blob == nil {
		s.lastDigest = [sha256.Size]byte{}
		return
	}
	s.lastDigest = sha256.Sum256(blob)
}

// EncodeBlob serializes and seals a document
func EncodeBlob(key []byte, doc *document.Document, suite crypto.Suite) ([]byte, error) {
	plaintext, err := doc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrSerialization, err)
	}
	defer crypto.ClearBytes(plaintext)

	blob, err := crypto.Seal(key, plaintext, suite)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt document: %w", err)
	}
	return blob, nil
}

// DecodeBlob opens and parses a sealed document
func DecodeBlob(key, blob []byte) (*document.Document, error) {
	plaintext, err := crypto.Open(key, blob)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(plaintext)

	return document.Unmarshal(plaintext)
}
