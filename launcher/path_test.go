package launcher

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/codexcontract"
)

func TestAugmentPath(t *testing.T) {
	requireUnix(t)

	got := AugmentPath("/a:/usr/bin", "/h", "/x")
	want := strings.Join([]string{
		"/a", "/usr/bin",
		"/opt/homebrew/bin", "/usr/local/bin", "/bin", "/usr/sbin", "/sbin",
		"/h/.local/bin", "/h/.cargo/bin",
		"/x",
	}, ":")
	assert.Equal(t, want, got)
}

func TestAugmentPath_DropsEmptyAndDuplicates(t *testing.T) {
	requireUnix(t)

	got := AugmentPath("::/a:/a:", "", "/a", "")
	parts := strings.Split(got, ":")

	assert.Equal(t, "/a", parts[0])
	assert.NotContains(t, parts, "")
	seen := map[string]int{}
	for _, p := range parts {
		seen[p]++
	}
	for p, n := range seen {
		assert.Equal(t, 1, n, "entry %s appears more than once", p)
	}
	assert.NotContains(t, got, ".local", "no home dirs without a home")
}

func TestAugmentPath_Idempotent(t *testing.T) {
	requireUnix(t)

	once := AugmentPath("/a", "/h")
	assert.Equal(t, once, AugmentPath(once, "/h"))
}

func TestResolve_ExplicitBinary(t *testing.T) {
	requireUnix(t)
	t.Setenv("PATH", "/only/this")

	r, err := Resolve(Config{Binary: "/custom/codex", Env: map[string]string{"FOO": "bar"}})
	require.NoError(t, err)

	assert.Equal(t, "/custom/codex", r.Path)
	assert.True(t, r.Explicit)
	assert.Contains(t, r.Env, "FOO=bar")
	assert.Equal(t, "/only/this", lookupEnv(r.Env, "PATH"), "explicit binary inherits PATH unchanged")
}

func TestResolve_DefaultBinaryOnAugmentedPath(t *testing.T) {
	stub := writeScript(t, codexcontract.DefaultBinary, "exit 0")
	dir := filepath.Dir(stub)
	t.Setenv("PATH", dir)

	r, err := Resolve(Config{ExtraPaths: []string{"/extra/bin"}})
	require.NoError(t, err)

	assert.Equal(t, stub, r.Path)
	assert.False(t, r.Explicit)
	path := lookupEnv(r.Env, "PATH")
	assert.True(t, strings.HasPrefix(path, dir+":"), "inherited entries come first: %s", path)
	assert.Contains(t, path, "/usr/local/bin")
	assert.True(t, strings.HasSuffix(path, ":/extra/bin"))
}

func TestResolve_BlankBinaryUsesDefault(t *testing.T) {
	stub := writeScript(t, codexcontract.DefaultBinary, "exit 0")
	t.Setenv("PATH", filepath.Dir(stub))

	r, err := Resolve(Config{Binary: "   "})
	require.NoError(t, err)
	assert.Equal(t, stub, r.Path)
}

func TestResolve_DefaultBinaryNotFound(t *testing.T) {
	requireUnix(t)
	if _, err := lookPathIn(codexcontract.DefaultBinary, strings.Join(commonBinDirs, ":")); err == nil {
		t.Skip("codex is installed in a common directory")
	}
	t.Setenv("PATH", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, err := Resolve(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sessionkit.ErrNotFound))
}

func TestLookPathIn_SkipsNonExecutable(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool"), []byte("x"), 0o644))

	_, err := lookPathIn("tool", dir)
	assert.Error(t, err)

	require.NoError(t, os.Chmod(filepath.Join(dir, "tool"), 0o755))
	got, err := lookPathIn("tool", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tool"), got)
}

func TestSetEnvVar(t *testing.T) {
	env := []string{"A=1", "B=2"}
	env = setEnvVar(env, "A", "3")
	env = setEnvVar(env, "C", "4")

	assert.Equal(t, []string{"A=3", "B=2", "C=4"}, env)
}
