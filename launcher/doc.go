// Package launcher resolves, probes and starts the external app-server process.
//
// Path resolution: an explicit Binary is used verbatim. Otherwise the default
// binary name is looked up on the inherited PATH augmented with the common
// installation directories that GUI-launched processes often lack
// (/opt/homebrew/bin, /usr/local/bin, ~/.local/bin, ~/.cargo/bin, ...), and the
// child inherits that augmented PATH.
//
// Probing runs "<binary> --version" under a short timeout and distinguishes
// three failures:
//
//   - sessionkit.ErrNotFound: the binary is not installed
//   - sessionkit.ErrTimeout: the binary is installed but unresponsive
//   - sessionkit.ErrProbeFailed: the binary exited non-zero
//
// Spawn starts the long-running server with all three standard streams piped.
// On unix the child runs in its own process group so Kill also reaches any
// helpers it started.
//
//	cfg := launcher.DefaultConfig()
//	v, err := launcher.Probe(ctx, cfg)
//	if err != nil {
//	    fmt.Println(sessionkit.Remediation(err))
//	    return err
//	}
//	proc, err := launcher.Spawn(ctx, cfg)
package launcher
