package codexcontract

import (
	"os"
	"os/exec"
	"path/filepath"
)

func findCodexCLI() (string, error) {
	if p, err := exec.LookPath(DefaultBinary); err == nil {
		return p, nil
	}

	home, _ := os.UserHomeDir()
	candidates := []string{
		"/usr/local/bin/codex",
		filepath.Join(home, ".local", "bin", "codex"),
		filepath.Join(home, ".npm-global", "bin", "codex"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", exec.ErrNotFound
}
