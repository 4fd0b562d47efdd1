package event

import (
	"encoding/json"
	"time"

	"github.com/randalmurphal/sessionkit/codexcontract"
)

// Kind distinguishes protocol traffic from out-of-protocol information.
type Kind string

// Event kinds.
const (
	// KindProtocol is a notification or server-initiated request from stdout.
	KindProtocol Kind = "protocol"

	// KindDiagnostic is a stderr line or a synthetic lifecycle message.
	KindDiagnostic Kind = "diagnostic"

	// KindParseError is a stdout line that was not valid JSON.
	KindParseError Kind = "parseError"
)

// Event is one message delivered to subscribers.
type Event struct {
	SessionID string          `json:"sessionId"`
	Kind      Kind            `json:"kind"`
	Message   json.RawMessage `json:"message"`
	Time      time.Time       `json:"time"`
}

// Method returns the "method" member of the message, or "" if absent.
func (e Event) Method() string {
	var m struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(e.Message, &m)
	return m.Method
}

// RequestID returns the numeric id of a server-initiated request.
// ok is false for notifications and diagnostics.
func (e Event) RequestID() (id uint64, ok bool) {
	var m struct {
		ID *uint64 `json:"id"`
	}
	if err := json.Unmarshal(e.Message, &m); err != nil || m.ID == nil {
		return 0, false
	}
	return *m.ID, true
}

// Protocol builds an event carrying an inbound message as received.
func Protocol(sessionID string, raw json.RawMessage) Event {
	return Event{SessionID: sessionID, Kind: KindProtocol, Message: raw, Time: time.Now()}
}

// Stderr builds a diagnostic event for one stderr line.
func Stderr(sessionID, line string) Event {
	return synthetic(sessionID, KindDiagnostic, codexcontract.EventStderr, map[string]string{"message": line})
}

// Connected builds the diagnostic event emitted once the handshake succeeds.
func Connected(sessionID string) Event {
	return synthetic(sessionID, KindDiagnostic, codexcontract.EventConnected, map[string]string{"sessionId": sessionID})
}

// ParseError builds the event for a stdout line that was not valid JSON.
func ParseError(sessionID, line string, err error) Event {
	return synthetic(sessionID, KindParseError, codexcontract.EventParseError, map[string]string{
		"error": err.Error(),
		"raw":   line,
	})
}

func synthetic(sessionID string, kind Kind, method string, params map[string]string) Event {
	msg, _ := json.Marshal(struct {
		Method string            `json:"method"`
		Params map[string]string `json:"params"`
	}{method, params})
	return Event{SessionID: sessionID, Kind: kind, Message: msg, Time: time.Now()}
}
