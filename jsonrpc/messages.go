package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Request is a client-to-server request awaiting a reply with the same ID.
type Request struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Notification is a fire-and-forget message. Params is omitted when nil.
type Notification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// Response answers a server-initiated request.
type Response struct {
	ID     uint64 `json:"id"`
	Result any    `json:"result"`
}

// RPCError is the error object a peer may return in place of a result.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("RPC error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Encode marshals a message and appends the line terminator.
// encoding/json never emits a raw newline, so the result is always one line.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return append(data, '\n'), nil
}
