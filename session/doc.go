// Package session runs JSON-RPC sessions against a spawned app-server.
//
// A session owns one child process. Requests from any number of goroutines
// are multiplexed over the child's stdin, one JSON object per line, and
// replies are routed back to their callers by numeric id. Notifications and
// server-initiated requests are delivered as events, as are stderr lines and
// stdout lines that are not valid JSON.
//
// # Opening
//
// Open probes the binary, spawns it, starts the reader goroutines and runs
// the initialize/initialized handshake under a timeout. Only a session that
// completed the handshake is returned; on any failure the process is killed
// and reaped before Open returns.
//
//	sess, err := session.Open(ctx,
//	    session.WithWorkDir("/path/to/project"),
//	    session.WithHandshakeTimeout(15*time.Second),
//	)
//	if err != nil {
//	    return fmt.Errorf("%s: %w", sessionkit.Remediation(err), err)
//	}
//	defer sess.Close()
//
//	reply, err := sess.Request(ctx, "thread/start", params)
//
// Requests carry no timeout of their own; bound them with ctx. An abandoned
// request is removed from the pending table and a late reply is dropped.
//
// # Events
//
//	for ev := range sess.Events() {
//	    if id, ok := ev.RequestID(); ok {
//	        _ = sess.Reply(ctx, id, map[string]string{"decision": "accept"})
//	    }
//	}
//
// The Events channel is bounded. If the consumer falls behind, the oldest
// buffered notification or diagnostic is dropped and counted in
// Info().DroppedEvents. Server requests are never dropped: when the buffer
// holds nothing else the router waits for the consumer. Use WithSink for a
// lossless synchronous subscriber.
//
// # Teardown
//
// When the child's stdout closes, or Close is called, every pending request
// fails with sessionkit.ErrCanceled, further writes fail with
// sessionkit.ErrSessionClosed, the process group is killed and reaped, and
// the Events channel is closed. No event is delivered after Close returns.
//
// # Manager
//
// Manager is a registry of sessions keyed by id, safe for concurrent use.
// Opening under an id that is already live closes and replaces the old
// session.
package session
