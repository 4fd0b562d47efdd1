// Command sessionkit drives a Codex app-server from the terminal.
//
//	sessionkit probe
//	sessionkit call thread/list '{}'
//	sessionkit shell --watch -c sessionkit.toml
//	sessionkit config show
package main
