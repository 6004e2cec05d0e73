// Package tick drives a kernel's accounting and preemption entry points
// the way a periodic timer does.
package tick

import (
	"context"
	"sync"
	"time"

	"github.com/JackSuuu/JasOS-Kernel/log"
)

// Target is what a tick source calls into. TimerTick does the accounting;
// Schedule is called every quantum ticks to preempt the running task.
type Target interface {
	TimerTick(ms uint32)
	Schedule()
}

const (
	DefaultPeriod  = 10 * time.Millisecond
	DefaultQuantum = 10
)

type Config struct {
	Period  time.Duration
	Quantum int
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}

	if c.Quantum <= 0 {
		c.Quantum = DefaultQuantum
	}

	return c
}

func (c Config) ms() uint32 {
	return uint32(c.Period / time.Millisecond)
}

// Manual is a software tick source. Nothing happens until it is told to
// tick, which makes it suitable for driving the kernel between shell
// commands and in tests.
type Manual struct {
	target Target
	cfg    Config
	count  int
}

func NewManual(target Target, cfg Config) *Manual {
	return &Manual{
		target: target,
		cfg:    cfg.withDefaults(),
	}
}

// Tick fires once, reporting whether it asked the target to reschedule.
func (m *Manual) Tick() bool {
	m.target.TimerTick(m.cfg.ms())
	m.count++

	if m.count%m.cfg.Quantum == 0 {
		m.target.Schedule()
		return true
	}

	return false
}

// Advance fires n ticks and returns how many reschedules it asked for.
func (m *Manual) Advance(n int) int {
	var scheduled int

	for i := 0; i < n; i++ {
		if m.Tick() {
			scheduled++
		}
	}

	return scheduled
}

func (m *Manual) Count() int {
	return m.count
}

// Loop fires from its own goroutine on a time.Ticker, like a timer
// interrupt. The target must tolerate being called asynchronously.
type Loop struct {
	target Target
	cfg    Config

	mu    sync.Mutex
	count int

	done chan struct{}
}

func NewLoop(target Target, cfg Config) *Loop {
	return &Loop{
		target: target,
		cfg:    cfg.withDefaults(),
	}
}

// Start runs the loop until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	l.done = make(chan struct{})

	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()

	log.L.Trace("tick-loop-start", "period", l.cfg.Period, "quantum", l.cfg.Quantum)

	for {
		select {
		case <-ctx.Done():
			log.L.Trace("tick-loop-stop", "ticks", l.Count())
			return
		case <-ticker.C:
			l.fire()
		}
	}
}

func (l *Loop) fire() {
	l.mu.Lock()
	l.count++
	count := l.count
	l.mu.Unlock()

	l.target.TimerTick(l.cfg.ms())

	if count%l.cfg.Quantum == 0 {
		l.target.Schedule()
	}
}

// Wait blocks until a started loop has stopped.
func (l *Loop) Wait() {
	if l.done != nil {
		<-l.done
	}
}

func (l *Loop) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}
