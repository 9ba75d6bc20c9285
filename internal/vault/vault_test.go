package vault

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/cfgvault/internal/config"
	"github.com/illarion/cfgvault/internal/crypto"
	"github.com/illarion/cfgvault/internal/document"
	"github.com/illarion/cfgvault/internal/keys"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.KDFIterations = crypto.MinIterations
	return cfg
}

func openVault(t *testing.T, cfg *config.Config, opts ...Option) *Vault {
	t.Helper()
	v, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, v.Open())
	t.Cleanup(func() { v.Close() })
	return v
}

func mustGetString(t *testing.T, v *Vault, path string) string {
	t.Helper()
	val, err := v.Get(path, document.Null())
	require.NoError(t, err)
	s, ok := val.AsString()
	require.True(t, ok, "%s is %s", path, val.Kind())
	return s
}

func TestOpenCreatesFiles(t *testing.T) {
	cfg := testConfig(t)
	v := openVault(t, cfg)

	assert.Equal(t, StateReady, v.State())
	for _, p := range []string{cfg.KeyPath(), cfg.VaultPath(), cfg.SafeViewPath()} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), p)
	}

	doc, err := v.GetAll()
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())
}

func TestRestartKeepsValues(t *testing.T) {
	cfg := testConfig(t)

	v := openVault(t, cfg)
	require.NoError(t, v.Set("bot_token", document.String("123456:AAAA-BBBB-CCCC")))
	require.NoError(t, v.Set("cloudinary.cloud_name", document.String("demo")))
	require.NoError(t, v.Close())

	info, err := os.Stat(cfg.VaultPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(cfg.VaultPath())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "AAAA-BBBB-CCCC")

	v2 := openVault(t, cfg)
	assert.Equal(t, "123456:AAAA-BBBB-CCCC", mustGetString(t, v2, "bot_token"))
	assert.Equal(t, "demo", mustGetString(t, v2, "cloudinary.cloud_name"))
}

func TestGetDefault(t *testing.T) {
	v := openVault(t, testConfig(t))
	require.NoError(t, v.Set("a.b", document.Int(1)))

	tests := []struct {
		path string
		want document.Value
	}{
		{"a.b", document.Int(1)},
		{"a.c", document.String("def")},
		{"a.b.c", document.String("def")},
		{"missing", document.String("def")},
		{"", document.String("def")},
	}
	for _, tt := range tests {
		got, err := v.Get(tt.path, document.String("def"))
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "%q: got %s", tt.path, got)
	}
}

func TestSetErrors(t *testing.T) {
	v := openVault(t, testConfig(t))
	require.NoError(t, v.Set("a", document.Int(1)))

	err := v.Set("a.b", document.Int(2))
	assert.ErrorIs(t, err, document.ErrNotMap)

	err = v.Set("x..y", document.Int(2))
	assert.ErrorIs(t, err, document.ErrInvalidPath)

	err = v.Set("x", document.String("\xff\xfeabc"))
	assert.ErrorIs(t, err, document.ErrUnsupportedType)
	got, err := v.Get("x", document.Null())
	require.NoError(t, err)
	assert.True(t, got.IsNull(), "rejected value must not be stored")

	got, err = v.Get("a", document.Null())
	require.NoError(t, err)
	assert.True(t, document.Int(1).Equal(got))
}

func TestDeleteIdempotent(t *testing.T) {
	v := openVault(t, testConfig(t))
	require.NoError(t, v.Set("settings.language", document.String("en")))

	removed, err := v.Delete("settings.language")
	require.NoError(t, err)
	assert.True(t, removed)

	digest := v.LastDigest()
	removed, err = v.Delete("settings.language")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, digest, v.LastDigest(), "no-op delete must not rewrite the vault")

	removed, err = v.Delete("never.existed")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestGetAllSafeRedacts(t *testing.T) {
	cfg := testConfig(t)
	v := openVault(t, cfg)

	const token = "123456789:ABCdefGHIjklMNOpqr"
	require.NoError(t, v.Set("bot_token", document.String(token)))
	require.NoError(t, v.Set("admin_password", document.String("hunter2")))
	require.NoError(t, v.Set("cloudinary.api_secret", document.String("s3cr3t-value-xyz")))
	require.NoError(t, v.Set("bot_name", document.String("Nila Bot")))

	safe, err := v.GetAllSafe()
	require.NoError(t, err)

	got, _ := safe.Get("bot_token", document.Null()).AsString()
	assert.Equal(t, "***Opqr", got)
	got, _ = safe.Get("admin_password", document.Null()).AsString()
	assert.Equal(t, "********", got)
	got, _ = safe.Get("cloudinary.api_secret", document.Null()).AsString()
	assert.Equal(t, "***-xyz", got)
	got, _ = safe.Get("bot_name", document.Null()).AsString()
	assert.Equal(t, "Nila Bot", got)

	data, err := safe.Marshal()
	require.NoError(t, err)
	for _, secret := range []string{token, "hunter2", "s3cr3t-value-xyz"} {
		assert.NotContains(t, string(data), secret)
	}

	view, err := os.ReadFile(cfg.SafeViewPath())
	require.NoError(t, err)
	assert.Equal(t, string(data), string(view))

	// Get returns raw values
	assert.Equal(t, token, mustGetString(t, v, "bot_token"))
}

func TestSafeViewDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.SafeViewFile = ""
	v := openVault(t, cfg)
	require.NoError(t, v.Set("a", document.Int(1)))

	_, err := os.Stat(filepath.Join(cfg.DataDir, "bot_config.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestConcurrentSetLosesNothing(t *testing.T) {
	v := openVault(t, testConfig(t))

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, v.Set("keys.k"+string(rune('a'+i)), document.Int(int64(i))))
		}(i)
	}
	wg.Wait()

	doc, err := v.GetAll()
	require.NoError(t, err)
	keysVal, ok := doc.Lookup("keys")
	require.True(t, ok)
	assert.Equal(t, n, keysVal.Len())
}

func TestConcurrentUpdate(t *testing.T) {
	v := openVault(t, testConfig(t))
	require.NoError(t, v.Set("counter", document.Int(0)))

	const n = 25
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := v.Update(func(doc *document.Document) error {
				cur, _ := doc.Get("counter", document.Int(0)).AsInt()
				_, err := doc.Set("counter", document.Int(cur+1))
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := v.Get("counter", document.Null())
	require.NoError(t, err)
	count, ok := got.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(n), count)
}

func TestUpdateErrorWritesNothing(t *testing.T) {
	v := openVault(t, testConfig(t))
	require.NoError(t, v.Set("a", document.Int(1)))
	digest := v.LastDigest()

	boom := errors.New("boom")
	err := v.Update(func(doc *document.Document) error {
		doc.Set("a", document.Int(2))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, digest, v.LastDigest())

	got, err := v.Get("a", document.Null())
	require.NoError(t, err)
	assert.True(t, document.Int(1).Equal(got))
}

func flipByte(t *testing.T, path string, offset int) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	if offset < 0 {
		offset = len(raw) + offset
	}
	raw[offset] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0600))
}

func TestCorruptedRequiresRotate(t *testing.T) {
	cfg := testConfig(t)
	now := time.Unix(1700000000, 0)

	v := openVault(t, cfg)
	require.NoError(t, v.Set("bot_token", document.String("123:secret-token-value")))
	require.NoError(t, v.Close())

	flipByte(t, cfg.VaultPath(), -1)

	v2, err := New(cfg, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { v2.Close() })

	err = v2.Open()
	require.ErrorIs(t, err, ErrCorrupted)
	assert.ErrorIs(t, err, crypto.ErrIntegrity)
	assert.Contains(t, err.Error(), "rotate key to continue")
	assert.Equal(t, StateCorrupted, v2.State())

	_, err = v2.Get("bot_token", document.Null())
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.ErrorIs(t, v2.Set("a", document.Int(1)), ErrCorrupted)
	_, err = v2.Backup()
	assert.ErrorIs(t, err, ErrCorrupted)

	assert.ErrorIs(t, v2.RotateKey(false), ErrConfirmationRequired)
	assert.Equal(t, StateCorrupted, v2.State())

	require.NoError(t, v2.RotateKey(true))
	assert.Equal(t, StateKeyLoaded, v2.State())

	orphaned := cfg.VaultPath() + ".orphaned-1700000000"
	_, err = os.Stat(orphaned)
	assert.NoError(t, err, "unreadable vault file must be kept aside")

	doc, err := v2.GetAll()
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())
	assert.Equal(t, StateReady, v2.State())
}

func TestMissingKeyWithExistingVault(t *testing.T) {
	cfg := testConfig(t)

	v := openVault(t, cfg)
	require.NoError(t, v.Set("a", document.Int(1)))
	require.NoError(t, v.Close())
	require.NoError(t, os.Remove(cfg.KeyPath()))

	v2, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { v2.Close() })

	err = v2.Open()
	require.ErrorIs(t, err, keys.ErrKeyFileNotFound)
	assert.Equal(t, StateUninitialized, v2.State())
	assert.NoFileExists(t, cfg.KeyPath(), "a replacement key must not be written silently")

	_, err = v2.Get("a", document.Null())
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, err, keys.ErrKeyFileNotFound)

	assert.ErrorIs(t, v2.RotateKey(false), ErrConfirmationRequired)
	require.NoError(t, v2.RotateKey(true))
	assert.Equal(t, StateReady, v2.State())
	got, err := v2.Get("a", document.Null())
	require.NoError(t, err)
	assert.True(t, got.IsNull(), "starting over discards the unreadable data")
}

func TestCorruptKeyFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.KeyPath(), []byte("not a key file at all, just garbage bytes"), 0600))

	v, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })

	err = v.Open()
	require.ErrorIs(t, err, keys.ErrKeyFileCorrupt)
	assert.Equal(t, StateUninitialized, v.State())

	_, err = v.Get("a", document.Null())
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, err, keys.ErrKeyFileCorrupt)

	assert.ErrorIs(t, v.RotateKey(false), ErrConfirmationRequired)
	require.NoError(t, v.RotateKey(true))
	require.NoError(t, v.Set("a", document.Int(1)))
	assert.Equal(t, StateReady, v.State())
}

func TestRotateReencrypts(t *testing.T) {
	cfg := testConfig(t)
	v := openVault(t, cfg)
	require.NoError(t, v.Set("bot_token", document.String("123:keep-me-across-rotation")))
	oldID := v.Keys().VaultID()
	oldDigest := v.LastDigest()

	require.NoError(t, v.RotateKey(false))
	assert.Equal(t, StateReady, v.State())
	assert.NotEqual(t, oldID, v.Keys().VaultID())
	assert.NotEqual(t, oldDigest, v.LastDigest())
	assert.Equal(t, "123:keep-me-across-rotation", mustGetString(t, v, "bot_token"))
	require.NoError(t, v.Close())

	v2 := openVault(t, cfg)
	assert.Equal(t, "123:keep-me-across-rotation", mustGetString(t, v2, "bot_token"))
}

func TestRotateFailureKeepsKeyAndData(t *testing.T) {
	cfg := testConfig(t)
	v := openVault(t, cfg)
	require.NoError(t, v.Set("owner_id", document.Int(42)))
	oldID := v.Keys().VaultID()

	// Block the temp file the new key material is written to
	blocker := filepath.Join(cfg.DataDir, "."+cfg.KeyFile+".new", "x")
	require.NoError(t, os.MkdirAll(blocker, 0700))

	require.Error(t, v.RotateKey(false))
	require.FileExists(t, cfg.KeyPath())
	assert.Equal(t, StateReady, v.State())
	assert.Equal(t, oldID, v.Keys().VaultID())

	got, err := v.Get("owner_id", document.Null())
	require.NoError(t, err)
	assert.True(t, got.Equal(document.Int(42)))
	require.NoError(t, v.Close())

	v2 := openVault(t, cfg)
	got, err = v2.Get("owner_id", document.Null())
	require.NoError(t, err)
	assert.True(t, got.Equal(document.Int(42)))
}

func TestZeroLengthVaultFile(t *testing.T) {
	cfg := testConfig(t)
	v := openVault(t, cfg)
	require.NoError(t, v.Close())
	require.NoError(t, os.Truncate(cfg.VaultPath(), 0))

	v2 := openVault(t, cfg)
	assert.Equal(t, StateReady, v2.State())
	doc, err := v2.GetAll()
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Len())

	_, err = v2.Backup()
	assert.ErrorIs(t, err, ErrNothingToBackup)
}

func TestNotOpen(t *testing.T) {
	v, err := New(testConfig(t))
	require.NoError(t, err)

	_, err = v.Get("a", document.Null())
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, v.RotateKey(true), ErrNotOpen)
	assert.Equal(t, StateUninitialized, v.State())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.KDFIterations = 10
	_, err := New(cfg)
	assert.Error(t, err)
}

type recordingObserver struct {
	mu     sync.Mutex
	ops    []string
	failed []string
	states []State
}

func (o *recordingObserver) ObserveOperation(op string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
	if err != nil {
		o.failed = append(o.failed, op)
	}
}

func (o *recordingObserver) ObserveState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func TestObserver(t *testing.T) {
	cfg := testConfig(t)
	obs := &recordingObserver{}
	v := openVault(t, cfg, WithObserver(obs))

	require.NoError(t, v.Set("a", document.Int(1)))
	_, err := v.Get("a", document.Null())
	require.NoError(t, err)
	_, err = v.GetAllSafe()
	require.NoError(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"set", "get", "get_all_safe"}, obs.ops)
	assert.Empty(t, obs.failed)
	assert.Equal(t, []State{StateKeyLoaded, StateReady}, obs.states)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "corrupted", StateCorrupted.String())
	assert.True(t, strings.HasPrefix(State(42).String(), "unknown"))
}
