package kernel

import (
	"sync"
	"sync/atomic"

	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/JackSuuu/JasOS-Kernel/arch"
	"github.com/JackSuuu/JasOS-Kernel/log"
	"github.com/JackSuuu/JasOS-Kernel/memory"
	"github.com/JackSuuu/JasOS-Kernel/pkg/waiter"
)

const (
	DefaultMaxProcesses = 16
	DefaultStackSize    = 4096

	// MaxNameLen includes room for the terminator the name had on the
	// wire format of the shell, so names keep at most 31 bytes.
	MaxNameLen = 32

	IdleID = 0
)

var ErrBadCapacity = errors.New("process table needs room for idle and one task")

// Kernel is the single handle over all mutable kernel state: the process
// table, the heap that task stacks come from, and the uptime counters.
// Its mutex stands in for masking interrupts.
type Kernel struct {
	mu sync.Mutex

	heap *memory.Heap
	sw   arch.Switcher

	procs     []Process
	current   int
	stackSize uint32

	uptime   uint32
	cpuUsage uint32
	switches uint64

	pending atomic.Bool

	names  *lru.ARCCache
	events waiter.Waiter

	L hclog.Logger
}

type Option func(k *Kernel)

func WithMaxProcesses(n int) Option {
	return func(k *Kernel) {
		k.procs = make([]Process, n)
	}
}

func WithStackSize(sz uint32) Option {
	return func(k *Kernel) {
		k.stackSize = sz
	}
}

func WithLogger(l hclog.Logger) Option {
	return func(k *Kernel) {
		k.L = l
	}
}

// New creates a kernel whose task stacks are carved out of heap and whose
// contexts are switched by sw. The process table is initialized and the
// caller's flow of control becomes the idle task.
func New(heap *memory.Heap, sw arch.Switcher, opts ...Option) (*Kernel, error) {
	k := &Kernel{
		heap:      heap,
		sw:        sw,
		procs:     make([]Process, DefaultMaxProcesses),
		stackSize: DefaultStackSize,
		L:         log.L,
	}

	for _, opt := range opts {
		opt(k)
	}

	if len(k.procs) < 2 {
		return nil, errors.Wrapf(ErrBadCapacity, "capacity=%d", len(k.procs))
	}

	names, err := lru.NewARC(len(k.procs))
	if err != nil {
		return nil, err
	}

	k.names = names
	k.L = k.L.Named("kernel")

	k.Init()

	return k, nil
}

// Init clears the process table and starts the idle task in slot 0 as the
// running context. Stacks still owned by tasks are returned to the heap.
func (k *Kernel) Init() {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i := range k.procs {
		p := &k.procs[i]

		if i != IdleID && p.State != Terminated {
			k.release(p)
		}

		*p = Process{
			ID:    i,
			State: Terminated,
		}
	}

	idle := &k.procs[IdleID]
	idle.Name = "idle"
	idle.State = Running
	idle.ctx = &arch.Context{Name: idle.Name}

	k.sw.Boot(idle.ctx)

	k.current = IdleID
	k.uptime = 0
	k.cpuUsage = 0
	k.switches = 0
	k.pending.Store(false)
	k.names.Purge()

	k.L.Debug("process-table-init", "capacity", len(k.procs))
}

func (k *Kernel) Heap() *memory.Heap {
	return k.heap
}

func (k *Kernel) Capacity() int {
	return len(k.procs)
}

func (k *Kernel) StackSize() uint32 {
	return k.stackSize
}

func (k *Kernel) Uptime() uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.uptime
}

// Switches counts how often Schedule handed the CPU to a different slot.
func (k *Kernel) Switches() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.switches
}

// Shutdown terminates every task and waits for their contexts to wind
// down when the switcher supports it. It must run on the idle context.
func (k *Kernel) Shutdown() {
	k.mu.Lock()

	for i := range k.procs {
		p := &k.procs[i]
		if i == IdleID || p.State == Terminated {
			continue
		}

		k.release(p)
	}

	k.current = IdleID
	k.procs[IdleID].State = Running

	k.mu.Unlock()

	if w, ok := k.sw.(interface{ Wait() }); ok {
		w.Wait()
	}

	k.L.Debug("kernel-shutdown")
}
