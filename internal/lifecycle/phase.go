package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/p-blackswan/factory-agent/internal/factory"
)

// PhaseStatus is the observable state of one lifecycle phase.
type PhaseStatus struct {
	Fired   bool   `json:"fired"`
	Done    bool   `json:"done"`
	Actions int    `json:"actions"`
	Error   string `json:"error,omitempty"`
}

// gate is a one-shot future for a lifecycle phase. The first fire runs
// the handler; later fires wait for it and observe the same outcome.
type gate struct {
	phase factory.Phase
	once  sync.Once
	fired atomic.Bool
	done  chan struct{}

	// written before done is closed
	actions int
	err     error
}

func newGate(p factory.Phase) *gate {
	return &gate{phase: p, done: make(chan struct{})}
}

func (g *gate) fire(actions int, handler func() error) error {
	g.once.Do(func() {
		g.fired.Store(true)
		g.actions = actions
		g.err = handler()
		close(g.done)
	})
	<-g.done
	return g.err
}

func (g *gate) wait(ctx context.Context) error {
	select {
	case <-g.done:
		return g.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) status() PhaseStatus {
	st := PhaseStatus{Fired: g.fired.Load()}
	select {
	case <-g.done:
		st.Done = true
		st.Actions = g.actions
		if g.err != nil {
			st.Error = g.err.Error()
		}
	default:
	}
	return st
}
