// Package sessionkit drives long-lived subprocesses that speak a
// newline-delimited JSON request/response/notification protocol over stdio.
//
// The toolkit is split into small packages that can be used independently:
//
//   - launcher: resolve, probe and spawn the external binary
//   - jsonrpc: line wire format and structural message classification
//   - session: concurrent request multiplexing, inbound routing, handshake
//     and the session registry
//   - event: the event model delivered to subscribers
//   - broker: pub/sub fan-out of events (in-memory or Redis Streams)
//   - config: file/env configuration with hot reload
//   - codexcontract: volatile strings of the default `codex app-server` peer
//   - truncate: bounded text for log attributes and error messages
//
// cmd/sessionkit wraps these in a CLI with probe, call and shell commands.
//
// # Quick Start
//
//	sess, err := session.Open(ctx, session.WithSessionID("workspace-1"))
//	if err != nil {
//	    log.Fatal(sessionkit.Remediation(err))
//	}
//	defer sess.Close()
//
//	reply, err := sess.Request(ctx, "thread/start", map[string]any{"cwd": dir})
//
//	for ev := range sess.Events() {
//	    fmt.Println(ev.Kind, string(ev.Message))
//	}
//
// # Errors
//
// All packages wrap the sentinel errors declared here, so callers can use
// errors.Is to tell "binary not installed" from "installed but unresponsive"
// from "rejected the handshake".
package sessionkit
