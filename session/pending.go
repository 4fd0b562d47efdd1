package session

import (
	"sync"

	"github.com/randalmurphal/sessionkit"
	"github.com/randalmurphal/sessionkit/jsonrpc"
)

// pendingCall is a one-shot completion. Exactly one of respCh or errCh
// receives, and only after the call was removed from the table.
type pendingCall struct {
	respCh chan *jsonrpc.Reply
	errCh  chan error
}

// pendingTable maps request ids to their waiting callers.
type pendingTable struct {
	mu     sync.Mutex
	calls  map[uint64]*pendingCall
	closed bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[uint64]*pendingCall)}
}

// add registers id. It fails once the table has been failed.
func (p *pendingTable) add(id uint64) (*pendingCall, error) {
	pc := &pendingCall{
		respCh: make(chan *jsonrpc.Reply, 1),
		errCh:  make(chan error, 1),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, sessionkit.ErrSessionClosed
	}
	p.calls[id] = pc
	return pc, nil
}

// resolve completes id with reply. It reports false for unknown ids.
func (p *pendingTable) resolve(id uint64, reply *jsonrpc.Reply) bool {
	p.mu.Lock()
	pc, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	}
	p.mu.Unlock()

	if ok {
		pc.respCh <- reply
	}
	return ok
}

// remove drops id without completing it. It reports false if id was
// already completed or failed.
func (p *pendingTable) remove(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.calls[id]
	delete(p.calls, id)
	return ok
}

// failAll completes every waiting call with err and refuses new ones.
// It returns the number of calls failed.
func (p *pendingTable) failAll(err error) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	n := len(p.calls)
	for id, pc := range p.calls {
		delete(p.calls, id)
		pc.errCh <- err
	}
	return n
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
