package launcher

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a unix shell")
	}
}

// writeScript writes an executable shell stub named name into a fresh
// temp dir and returns its path.
func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	requireUnix(t)

	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write stub script: %v", err)
	}
	return path
}
