package session

import (
	"bufio"
	"bytes"
	"log/slog"

	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/jsonrpc"
	"github.com/randalmurphal/sessionkit/truncate"
)

// readLoop routes stdout lines until the stream ends, then tears the
// session down.
func (s *session) readLoop() {
	defer s.loops.Done()

	r := bufio.NewReader(s.conn.Stdout())
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			s.route(line)
		}
		if err != nil {
			s.shutdown(readError(err))
			s.awaitStderr()
			return
		}
	}
}

// route classifies one stdout line and dispatches it.
func (s *session) route(line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	s.touch()

	in := jsonrpc.Decode(line)
	switch in.Kind {
	case jsonrpc.KindReply:
		if !s.pending.resolve(in.ID, in.Reply()) {
			s.logger.Debug("dropping reply for unknown id", slog.Uint64("id", in.ID))
		}

	case jsonrpc.KindServerRequest, jsonrpc.KindNotification:
		s.emit(event.Protocol(s.id, in.Raw))

	case jsonrpc.KindUnparseable:
		s.logger.Debug("unparseable line",
			slog.Any("error", in.ParseErr),
			slog.String("line", truncate.ForLog(in.Line)))
		s.emit(event.ParseError(s.id, in.Line, in.ParseErr))

	default:
		s.logger.Debug("dropping unroutable message", slog.String("raw", truncate.ForLog(string(in.Raw))))
	}
}
