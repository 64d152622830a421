package client

import (
	"context"
	"sync"
)

// Scheduler is the engine's execution context. Post runs fn on the context,
// after everything posted before it. Go runs blocking work elsewhere; the work
// must Post its results back.
type Scheduler interface {
	Post(fn func())
	Go(work func())
}

// Loop is a Scheduler that runs posted functions one at a time on the
// goroutine calling Run.
type Loop struct {
	events chan func()
	done   chan struct{}
	once   sync.Once
}

// NewLoop creates a loop whose queue holds up to buffer pending functions
// before Post blocks.
func NewLoop(buffer int) *Loop {
	return &Loop{
		events: make(chan func(), buffer),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn. It is dropped once the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.events <- fn:
	case <-l.done:
	}
}

// Go runs work on its own goroutine.
func (l *Loop) Go(work func()) {
	go work()
}

// Run executes posted functions in order until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case fn := <-l.events:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
