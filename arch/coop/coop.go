// Package coop switches contexts by passing a baton between goroutines.
// Every task context runs on its own goroutine, and exactly one of them
// holds the baton at a time; the others are parked inside Switch.
package coop

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/JackSuuu/JasOS-Kernel/arch"
	"github.com/JackSuuu/JasOS-Kernel/log"
)

var ErrNoEntry = errors.New("context has no entry point")

type state struct {
	resume   chan struct{}
	dead     chan struct{}
	started  bool
	released bool
}

type Coop struct {
	mu sync.Mutex
	wg sync.WaitGroup
}

var _ arch.Switcher = &Coop{}

func New() *Coop {
	return &Coop{}
}

func newState() *state {
	return &state{
		resume: make(chan struct{}, 1),
		dead:   make(chan struct{}),
	}
}

func (c *Coop) stateOf(ctx *arch.Context) *state {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := ctx.Data.(*state)
	if !ok {
		st = newState()
		ctx.Data = st
	}

	return st
}

// Boot adopts the calling goroutine as ctx.
func (c *Coop) Boot(ctx *arch.Context) {
	st := c.stateOf(ctx)

	c.mu.Lock()
	st.started = true
	c.mu.Unlock()
}

// Prepare only records the entry point. The goroutine is started lazily
// on the first Switch into ctx.
func (c *Coop) Prepare(ctx *arch.Context) error {
	if ctx.Entry == nil {
		return ErrNoEntry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx.Data = newState()

	return nil
}

func (c *Coop) run(ctx *arch.Context, st *state) {
	defer c.wg.Done()

	select {
	case <-st.resume:
	case <-st.dead:
		return
	}

	log.L.Trace("coop-start", "task", ctx.Name)

	ctx.Entry()

	if ctx.Exit != nil {
		ctx.Exit()
	}
}

// Switch must be called on the goroutine that owns old. A context whose
// entry returns must end in its Exit hook by switching away from itself
// after it has been released.
func (c *Coop) Switch(old, new *arch.Context) {
	ost := c.stateOf(old)
	nst := c.stateOf(new)

	c.mu.Lock()
	if !nst.started {
		nst.started = true
		c.wg.Add(1)
		go c.run(new, nst)
	}
	released := ost.released
	c.mu.Unlock()

	log.L.Trace("coop-switch", "from", old.Name, "to", new.Name, "released", released)

	nst.resume <- struct{}{}

	if released {
		runtime.Goexit()
	}

	select {
	case <-ost.resume:
	case <-ost.dead:
		runtime.Goexit()
	}
}

func (c *Coop) Release(ctx *arch.Context) {
	st := c.stateOf(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if st.released {
		return
	}

	st.released = true
	close(st.dead)
}

// Wait blocks until every task goroutine has finished. Only meaningful
// after all task contexts have been released.
func (c *Coop) Wait() {
	c.wg.Wait()
}
