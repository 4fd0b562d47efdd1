package codexcontract

// Binary, subcommand and flags used to launch the peer.
const (
	DefaultBinary    = "codex"
	CommandAppServer = "app-server"

	FlagVersion = "--version"
)

// Handshake methods.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
)

// Synthetic event methods. These never appear on the wire; they wrap
// out-of-protocol information so subscribers see one message shape.
const (
	EventConnected  = "codex/connected"
	EventStderr     = "codex/stderr"
	EventParseError = "codex/parseError"
)

// Client identity sent with initialize when none is configured.
const (
	DefaultClientName    = "sessionkit"
	DefaultClientTitle   = "sessionkit"
	DefaultClientVersion = "0.1.0"
)
