package codexcontract

import (
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestInstalledVersionParses(t *testing.T) {
	if os.Getenv("TEST_REAL_CLI") != "1" {
		t.Skip("Skipping real CLI test. Set TEST_REAL_CLI=1 to run.")
	}
	codexPath, err := findCodexCLI()
	if err != nil {
		t.Skip("codex CLI not found")
	}

	out, err := exec.Command(codexPath, FlagVersion).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to run %s %s: %v", codexPath, FlagVersion, err)
	}
	v, err := ParseVersion(string(out))
	if err != nil {
		t.Fatalf("ParseVersion(%q) error = %v", string(out), err)
	}
	if v.Raw != TestedCLIVersion {
		t.Logf("WARNING: Installed codex version %s differs from tested version %s", v.Raw, TestedCLIVersion)
	}
}

func TestAppServerHelpListed(t *testing.T) {
	if os.Getenv("TEST_REAL_CLI") != "1" {
		t.Skip("Skipping real CLI test. Set TEST_REAL_CLI=1 to run.")
	}
	codexPath, err := findCodexCLI()
	if err != nil {
		t.Skip("codex CLI not found")
	}

	out, err := exec.Command(codexPath, "--help").CombinedOutput()
	if err != nil {
		t.Fatalf("codex --help failed: %v", err)
	}
	if !strings.Contains(string(out), CommandAppServer) {
		t.Errorf("codex --help does not mention %q", CommandAppServer)
	}
}

func TestSyntheticEventsAreNamespaced(t *testing.T) {
	for _, m := range []string{EventConnected, EventStderr, EventParseError} {
		if !strings.HasPrefix(m, "codex/") {
			t.Errorf("synthetic event %q must be namespaced under codex/", m)
		}
	}
}
