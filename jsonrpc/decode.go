package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind classifies an inbound line.
type Kind int

// Inbound message kinds.
const (
	KindUnroutable Kind = iota
	KindReply
	KindServerRequest
	KindNotification
	KindUnparseable
)

// String returns a human-readable kind.
func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindServerRequest:
		return "server_request"
	case KindNotification:
		return "notification"
	case KindUnparseable:
		return "unparseable"
	default:
		return "unroutable"
	}
}

// Inbound is one decoded line from the peer.
type Inbound struct {
	Kind Kind

	// ID is set for KindReply and KindServerRequest.
	ID uint64

	// Method is set for KindServerRequest and KindNotification.
	Method string

	// Raw is the original JSON object. Empty for KindUnparseable.
	Raw json.RawMessage

	// Line and ParseErr are set for KindUnparseable.
	Line     string
	ParseErr error

	fields map[string]json.RawMessage
}

// Decode classifies a single line. It never fails: invalid JSON yields
// KindUnparseable and valid JSON of an unexpected shape yields KindUnroutable.
func Decode(line []byte) Inbound {
	var value any
	if err := json.Unmarshal(line, &value); err != nil {
		return Inbound{Kind: KindUnparseable, Line: string(line), ParseErr: err}
	}

	raw := json.RawMessage(bytes.Clone(line))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil || fields == nil {
		return Inbound{Kind: KindUnroutable, Raw: raw}
	}

	in := Inbound{Raw: raw, fields: fields}

	id, hasID := numericID(fields["id"])
	_, hasResult := fields["result"]
	_, hasError := fields["error"]
	_, hasMethod := fields["method"]
	if hasMethod {
		in.Method = methodName(fields["method"])
	}

	switch {
	case hasID && (hasResult || hasError):
		in.Kind = KindReply
		in.ID = id
	case hasID && hasMethod:
		in.Kind = KindServerRequest
		in.ID = id
	case hasID:
		in.Kind = KindReply
		in.ID = id
	case hasMethod:
		in.Kind = KindNotification
	default:
		in.Kind = KindUnroutable
	}
	return in
}

// Reply converts a KindReply message into a Reply.
func (in Inbound) Reply() *Reply {
	r := &Reply{ID: in.ID, Raw: in.Raw}
	if v, ok := in.fields["result"]; ok {
		r.Result = v
	}
	if v, ok := in.fields["error"]; ok {
		r.Error = v
	}
	return r
}

// numericID accepts only non-negative integer literals that fit in uint64.
// Strings, floats and null are not correlation ids.
func numericID(raw json.RawMessage) (uint64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	id, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func methodName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

// Reply is the full inbound message that completed a request.
// Result and Error are left raw for the caller to interpret.
type Reply struct {
	ID     uint64
	Result json.RawMessage
	Error  json.RawMessage
	Raw    json.RawMessage
}

// HasError reports whether the reply carries an error member.
func (r *Reply) HasError() bool {
	return len(r.Error) > 0
}

// Err returns the reply's error member as an *RPCError, or nil.
// Error members that are not objects are preserved in RPCError.Data.
func (r *Reply) Err() error {
	if !r.HasError() || string(r.Error) == "null" {
		return nil
	}
	var rpcErr RPCError
	if err := json.Unmarshal(r.Error, &rpcErr); err != nil {
		return &RPCError{Code: CodeInternalError, Message: "malformed error member", Data: r.Error}
	}
	return &rpcErr
}

// Decode unmarshals the result member into v.
func (r *Reply) Decode(v any) error {
	if v == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}
