package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestCheckOutsideRepo(t *testing.T) {
	status, err := Check(context.Background(), t.TempDir(), []File{{Path: ".secret.key", Secret: true}})
	require.NoError(t, err)
	assert.False(t, status.IsRepo)
	assert.Empty(t, FormatStatus(status))
}

func TestCheckRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(".secret.key\n"), 0600))
	for _, name := range []string{".secret.key", "config.vault", "bot_config.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}
	runGit(t, dir, "add", "bot_config.json", "config.vault")

	files := []File{
		{Path: ".secret.key", Label: "key file", Secret: true},
		{Path: "config.vault", Label: "vault file"},
		{Path: "bot_config.json", Label: "safe view", Secret: true},
	}
	status, err := Check(context.Background(), dir, files)
	require.NoError(t, err)
	require.True(t, status.IsRepo)
	require.Len(t, status.Files, 3)

	key := status.Files[0]
	assert.True(t, key.Exists)
	assert.False(t, key.Tracked)
	assert.True(t, key.Ignored)

	view := status.Files[2]
	assert.True(t, view.Tracked)
	assert.False(t, view.Ignored)
	assert.Equal(t, 1, status.Problems())

	out := FormatStatus(status)
	assert.Contains(t, out, "error: safe view (bot_config.json) is tracked by git")
	assert.Contains(t, out, "ok: key file is ignored by git")
	assert.Contains(t, out, "ok: vault file is tracked")
}
