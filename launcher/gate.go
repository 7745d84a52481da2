package launcher

import (
	"context"
	"sync"
)

// Ready is the successful outcome of server acquisition: a reachable address
// and a cloned session reused for every subsequent evaluation.
type Ready struct {
	Addr    string
	Port    int
	Session string
}

// Gate is a write-once, read-many cell holding the outcome of server
// acquisition. The first publish wins and is terminal: every Await before or
// after it observes the identical outcome for the remainder of the process
// lifetime. There is no retry or re-arm.
type Gate struct {
	once  sync.Once
	done  chan struct{}
	ready Ready
	err   error
}

// NewGate creates an unpublished Gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Publish records the outcome and releases all waiters. Calls after the
// first are ignored.
func (g *Gate) Publish(ready Ready, err error) {
	g.once.Do(func() {
		g.ready = ready
		g.err = err
		close(g.done)
	})
}

// Await blocks until the outcome is published, then returns it. The context
// bounds only the wait, not the publication.
func (g *Gate) Await(ctx context.Context) (Ready, error) {
	select {
	case <-g.done:
		return g.ready, g.err
	case <-ctx.Done():
		return Ready{}, ctx.Err()
	}
}
