package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/codexcontract"
)

// commonBinDirs are appended to PATH when resolving the default binary.
var commonBinDirs = []string{
	"/opt/homebrew/bin",
	"/usr/local/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
}

// Resolved is the executable and environment a child will be started with.
type Resolved struct {
	Path     string
	Env      []string
	Explicit bool
}

// AugmentPath appends the common installation directories, the home-relative
// tool directories and extra to path. Each entry is added at most once and
// entries already present are skipped. Empty segments are dropped.
func AugmentPath(path, home string, extra ...string) string {
	var entries []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		entries = append(entries, dir)
	}

	for _, dir := range filepath.SplitList(path) {
		add(dir)
	}
	for _, dir := range commonBinDirs {
		add(dir)
	}
	if home != "" {
		add(filepath.Join(home, ".local", "bin"))
		add(filepath.Join(home, ".cargo", "bin"))
	}
	for _, dir := range extra {
		add(dir)
	}

	return strings.Join(entries, string(os.PathListSeparator))
}

// Resolve determines the executable and environment for cfg.
//
// An explicit binary is used verbatim with the inherited environment. The
// default binary is looked up on the augmented PATH, and the child's PATH is
// set to the augmented value. A default binary that cannot be found is
// reported as sessionkit.ErrNotFound.
func Resolve(cfg Config) (Resolved, error) {
	env := os.Environ()
	for k, v := range cfg.Env {
		env = setEnvVar(env, k, v)
	}

	if bin := strings.TrimSpace(cfg.Binary); bin != "" {
		return Resolved{Path: cfg.Binary, Env: env, Explicit: true}, nil
	}

	home, _ := os.UserHomeDir()
	path := AugmentPath(lookupEnv(env, "PATH"), home, cfg.ExtraPaths...)
	env = setEnvVar(env, "PATH", path)

	bin, err := lookPathIn(codexcontract.DefaultBinary, path)
	if err != nil {
		return Resolved{}, sessionkit.NewError("", "resolve",
			fmt.Errorf("%w: %s not found on PATH", sessionkit.ErrNotFound, codexcontract.DefaultBinary))
	}
	return Resolved{Path: bin, Env: env}, nil
}

// lookPathIn searches path for an executable named name.
// exec.LookPath only consults the current process's PATH.
func lookPathIn(name, path string) (string, error) {
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fs.ErrNotExist
}

// setEnvVar updates or adds an environment variable.
func setEnvVar(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

func lookupEnv(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}

// isNotFound reports whether a start error means the executable is missing.
func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
