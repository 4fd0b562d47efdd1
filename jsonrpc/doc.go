// Package jsonrpc implements the line-delimited JSON wire format spoken with
// the child process.
//
// Outbound messages are encoded as a single JSON object followed by '\n'.
// Inbound lines are decoded into a tagged variant (see Kind) before any
// dispatch logic looks at them, so the structural rules live in one place:
//
//	{"id": 3, "result": {...}}          -> KindReply
//	{"id": 3, "error": {...}}           -> KindReply
//	{"id": 9, "method": "x", ...}       -> KindServerRequest
//	{"id": 3}                           -> KindReply (fallback)
//	{"method": "x", "params": {...}}    -> KindNotification
//	not JSON                            -> KindUnparseable
//	anything else                       -> KindUnroutable
//
// Unlike JSON-RPC 2.0 there is no "jsonrpc" version member.
package jsonrpc
