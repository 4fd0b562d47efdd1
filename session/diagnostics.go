package session

import (
	"bufio"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/sessionkit/event"
	"github.com/randalmurphal/sessionkit/truncate"
)

// stderrLoop forwards each non-blank stderr line as a diagnostic event.
func (s *session) stderrLoop() {
	defer s.loops.Done()
	defer close(s.stderrDone)

	r := bufio.NewReader(s.conn.Stderr())
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) != "" {
			s.logger.Debug("stderr", slog.String("line", truncate.ForLog(line)))
			s.emit(event.Stderr(s.id, line))
		}
		if err != nil {
			return
		}
	}
}

// awaitStderr gives the stderr loop a grace period to reach end of stream
// after stdout has ended, then closes stderr. A descendant that left the
// process group can otherwise hold it open indefinitely.
func (s *session) awaitStderr() {
	timer := time.NewTimer(s.config.stderrGrace)
	defer timer.Stop()

	select {
	case <-s.stderrDone:
	case <-timer.C:
		s.logger.Debug("stderr still open after stdout ended, closing it")
		_ = s.conn.Stderr().Close()
	}
}
