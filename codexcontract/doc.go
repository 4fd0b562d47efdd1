// Package codexcontract is the single source of truth for the volatile
// strings of the default peer, `codex app-server`: binary name, subcommand,
// flags, handshake method names and the synthetic event methods this module
// emits alongside protocol traffic.
//
// The session engine itself is method-agnostic; only the handshake and the
// synthetic events reference names from here.
package codexcontract
