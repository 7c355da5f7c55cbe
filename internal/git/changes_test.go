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

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=ci", "GIT_AUTHOR_EMAIL=ci@example.com",
			"GIT_COMMITTER_NAME=ci", "GIT_COMMITTER_EMAIL=ci@example.com",
		)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	run("init", "-q", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	run("checkout", "-q", "-b", "feature")

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tokio", "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokio", "src", "lib.rs"), []byte("// lib\n"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "add lib")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("changed\n"), 0o644))
	return dir
}

func TestChangeDetector(t *testing.T) {
	dir := initRepo(t)
	cd := NewChangeDetector(dir, "main")
	ctx := context.Background()

	branch, err := cd.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature", branch)

	files, err := cd.GetChangedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "tokio/src/lib.rs"}, files)
}

func TestGetChangedFiles_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	_, err := NewChangeDetector(t.TempDir(), "").GetChangedFiles(context.Background())
	assert.ErrorContains(t, err, "not a git repository")
}

func TestFilterUnderPath(t *testing.T) {
	files := []string{"README.md", "tokio/src/lib.rs", "tokio-util/src/lib.rs"}

	assert.Equal(t, []string{"tokio/src/lib.rs"}, FilterUnderPath(files, "tokio/"))
	assert.Equal(t, files, FilterUnderPath(files, "."))
	assert.Nil(t, FilterUnderPath(files, "docs"))
}
