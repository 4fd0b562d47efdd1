// Package event defines the messages a session emits to its subscribers.
//
// Every server notification, server-initiated request, stderr line and
// unparseable stdout line becomes one Event tagged with the session that
// produced it. Events from one session are delivered in stream order.
//
// A Sink consumes events. Sinks are called synchronously from the session's
// reader goroutines, so a slow sink slows that session down. Use a
// ChannelSink to decouple a consumer: when full it drops the oldest buffered
// event that is not a server request, and waits only when every buffered
// event is one.
package event
