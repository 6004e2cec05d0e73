package tick

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
	"go.uber.org/goleak"

	"github.com/JackSuuu/JasOS-Kernel/arch/sim"
	"github.com/JackSuuu/JasOS-Kernel/kernel"
	"github.com/JackSuuu/JasOS-Kernel/memory"
)

type recorder struct {
	mu        sync.Mutex
	ms        uint32
	schedules int
}

func (r *recorder) TimerTick(ms uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ms += ms
}

func (r *recorder) Schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schedules++
}

func (r *recorder) snapshot() (uint32, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ms, r.schedules
}

func TestManual(t *testing.T) {
	n := neko.Modern(t)

	n.It("schedules once per quantum", func(t *testing.T) {
		var r recorder

		m := NewManual(&r, Config{Period: 5 * time.Millisecond, Quantum: 4})

		require.False(t, m.Tick())
		require.Equal(t, 2, m.Advance(9))
		require.Equal(t, 10, m.Count())

		ms, schedules := r.snapshot()
		require.EqualValues(t, 50, ms)
		require.Equal(t, 2, schedules)
	})

	n.It("uses defaults for an empty config", func(t *testing.T) {
		var r recorder

		m := NewManual(&r, Config{})
		require.Equal(t, 1, m.Advance(DefaultQuantum))

		ms, _ := r.snapshot()
		require.EqualValues(t, DefaultQuantum*10, ms)
	})

	n.It("preempts kernel tasks round robin", func(t *testing.T) {
		heap, err := memory.NewHeap(64 * 1024)
		require.NoError(t, err)

		k, err := kernel.New(heap, sim.New())
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err := k.Create("spin", func() {}, 0)
			require.NoError(t, err)
		}

		m := NewManual(k, Config{Period: 10 * time.Millisecond, Quantum: 2})

		var seen []int
		for i := 0; i < 4; i++ {
			m.Advance(2)
			p, _ := k.Current()
			seen = append(seen, p.ID)
		}

		require.Equal(t, []int{1, 2, 1, 2}, seen)
		require.EqualValues(t, 80, k.Uptime())

		a, _ := k.ByID(1)
		b, _ := k.ByID(2)
		require.EqualValues(t, 40, a.RuntimeMS)
		require.EqualValues(t, 20, b.RuntimeMS)
	})

	n.Meow()
}

func TestLoop(t *testing.T) {
	n := neko.Modern(t)

	n.It("fires until cancelled", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		var r recorder

		l := NewLoop(&r, Config{Period: time.Millisecond, Quantum: 2})

		ctx, cancel := context.WithCancel(context.Background())
		l.Start(ctx)

		require.Eventually(t, func() bool {
			return l.Count() >= 4
		}, 5*time.Second, time.Millisecond)

		cancel()
		l.Wait()

		count := l.Count()
		ms, schedules := r.snapshot()
		require.EqualValues(t, count, ms)
		require.Equal(t, count/2, schedules)
	})

	n.It("requests preemption through the kernel's interrupt target", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		heap, err := memory.NewHeap(64 * 1024)
		require.NoError(t, err)

		k, err := kernel.New(heap, sim.New())
		require.NoError(t, err)

		_, err = k.Create("spin", func() {}, 0)
		require.NoError(t, err)

		l := NewLoop(k.Interrupts(), Config{Period: time.Millisecond, Quantum: 1})

		ctx, cancel := context.WithCancel(context.Background())
		l.Start(ctx)

		require.Eventually(t, k.Checkpoint, 5*time.Second, time.Millisecond)

		cancel()
		l.Wait()

		p, _ := k.Current()
		require.Equal(t, 1, p.ID)
		require.NotZero(t, k.Uptime())
	})

	n.Meow()
}
