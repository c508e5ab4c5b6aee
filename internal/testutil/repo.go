// Package testutil creates throwaway repositories for tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// InitRepo creates a temporary colocated repository with one initial commit
// on main and returns its path.
func InitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	Git(t, dir, "init", "--initial-branch=main")
	Git(t, dir, "config", "user.name", "Test User")
	Git(t, dir, "config", "user.email", "test@example.com")

	// The adapter only checks for the marker directory; the jj CLI itself
	// is replaced by a fake backend in tests.
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".jj"), 0755))

	Commit(t, dir, "README.md", "hello\n", "Initial commit")
	return dir
}

// Commit writes a file, stages everything, and commits with the given
// message. Returns the new commit hash.
func Commit(t *testing.T, dir, file, content, msg string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, file)), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0644))
	Git(t, dir, "add", ".")

	cmd := exec.Command("git", "commit", "-m", msg)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_DATE=2024-01-01T00:00:00Z",
		"GIT_COMMITTER_DATE=2024-01-01T00:00:00Z",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git commit failed: %s", string(out))

	return RevParse(t, dir, "HEAD")
}

// RevParse resolves a ref to a commit hash.
func RevParse(t *testing.T, dir, ref string) string {
	t.Helper()
	return Git(t, dir, "rev-parse", ref)
}

// Git runs a git command in dir and returns its trimmed stdout.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s failed: %s", strings.Join(args, " "), string(out))
	return strings.TrimSpace(string(out))
}
