package engine

import (
	"sync"

	"github.com/robmoffat/fdc3-go/envelope"
)

// pendingWait is the one-shot future behind Exchange and WaitFor. It is
// completed exactly once, by whichever of {matching dispatch, deadline,
// cancellation} happens first; the losers are no-ops.
type pendingWait struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	env *envelope.Envelope
	err error
}

func newPendingWait() *pendingWait {
	return &pendingWait{done: make(chan struct{})}
}

// complete fulfills the future with a matched envelope.
func (p *pendingWait) complete(env *envelope.Envelope) {
	p.once.Do(func() {
		p.mu.Lock()
		p.env = env
		p.mu.Unlock()
		close(p.done)
	})
}

// fail fulfills the future with an error.
func (p *pendingWait) fail(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

// result returns the outcome; only valid after done is closed.
func (p *pendingWait) result() (*envelope.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env, p.err
}
