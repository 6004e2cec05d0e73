package kernel

import (
	"github.com/pkg/errors"

	"github.com/JackSuuu/JasOS-Kernel/arch"
	"github.com/JackSuuu/JasOS-Kernel/pkg/waiter"
)

var (
	ErrTableFull = errors.New("process table full")
	ErrNoEntry   = errors.New("task has no entry point")
)

const (
	_ waiter.EventType = 1 << iota
	TaskCreated
	TaskExited
	TaskSwitched
)

// Events lets collaborators observe the process table.
func (k *Kernel) Events() *waiter.Waiter {
	return &k.events
}

// Create places a new Ready task in the first free slot and returns its
// id. Every task gets a stack from the heap; only idle runs without an
// entry point. If the table or the heap is exhausted nothing is
// committed and -1 is returned.
func (k *Kernel) Create(name string, entry func(), priority uint32) (int, error) {
	name = truncateName(name)

	if entry == nil {
		return -1, errors.Wrapf(ErrNoEntry, "creating %s", name)
	}

	k.mu.Lock()

	slot := -1
	for i := IdleID + 1; i < len(k.procs); i++ {
		if k.procs[i].State == Terminated {
			slot = i
			break
		}
	}

	if slot == -1 {
		k.mu.Unlock()
		k.L.Trace("process-create-failed", "name", name, "reason", "table-full")
		return -1, errors.Wrapf(ErrTableFull, "creating %s", name)
	}

	ctx := &arch.Context{
		Name:  name,
		Entry: entry,
		Exit:  k.Exit,
	}

	stack, err := k.heap.Alloc(k.stackSize)
	if err != nil {
		k.mu.Unlock()
		k.L.Trace("process-create-failed", "name", name, "reason", "no-stack")
		return -1, errors.Wrapf(err, "allocating stack for %s", name)
	}

	ctx.Stack = k.heap.Bytes(stack)

	if err := k.sw.Prepare(ctx); err != nil {
		k.heap.Free(stack)
		k.mu.Unlock()
		return -1, errors.Wrapf(err, "preparing context for %s", name)
	}

	k.procs[slot] = Process{
		ID:        slot,
		Name:      name,
		State:     Ready,
		Priority:  priority,
		Stack:     stack,
		StackSize: k.stackSize,
		CreatedAt: k.uptime,
		ctx:       ctx,
	}

	if v, ok := k.names.Peek(name); !ok || slot < v.(int) {
		k.names.Add(name, slot)
	}

	k.mu.Unlock()

	k.L.Debug("process-create", "pid", slot, "name", name, "priority", priority, "stack", stack)
	k.events.Notify(TaskCreated)

	return slot, nil
}

// release frees everything p owns. k.mu must be held.
func (k *Kernel) release(p *Process) {
	k.heap.Free(p.Stack)

	p.Stack = 0
	p.StackSize = 0
	p.State = Terminated

	if p.ctx != nil {
		k.sw.Release(p.ctx)
	}

	if v, ok := k.names.Peek(p.Name); ok && v.(int) == p.ID {
		k.names.Remove(p.Name)
	}
}

// Terminate ends task id. Unknown or already terminated ids and the idle
// task are ignored. Terminating the running task reschedules before
// returning, so control never comes back into the dead context.
func (k *Kernel) Terminate(id int) {
	k.mu.Lock()

	if id <= IdleID || id >= len(k.procs) || k.procs[id].State == Terminated {
		k.mu.Unlock()
		return
	}

	p := &k.procs[id]
	name := p.Name
	k.release(p)

	wasCurrent := id == k.current

	k.mu.Unlock()

	k.L.Debug("process-terminate", "pid", id, "name", name, "current", wasCurrent)
	k.events.Notify(TaskExited)

	if wasCurrent {
		k.Schedule()
	}
}

// Exit terminates the running task.
func (k *Kernel) Exit() {
	k.mu.Lock()
	id := k.current
	k.mu.Unlock()

	k.Terminate(id)
}

// next picks the first Ready task after the current slot, wrapping
// around. Idle is never picked by the scan, only as the fallback.
func (k *Kernel) next() int {
	n := len(k.procs)

	for i := 1; i <= n; i++ {
		idx := (k.current + i) % n
		if idx == IdleID {
			continue
		}

		if k.procs[idx].State == Ready {
			return idx
		}
	}

	return IdleID
}

// Schedule hands the CPU to the next Ready task in round-robin order.
// Priority is not consulted.
func (k *Kernel) Schedule() {
	k.mu.Lock()

	prev := k.current
	next := k.next()

	if next == prev {
		k.procs[next].State = Running
		k.mu.Unlock()
		return
	}

	if k.procs[prev].State == Running {
		k.procs[prev].State = Ready
	}

	k.procs[next].State = Running
	k.current = next
	k.switches++

	from, to := k.procs[prev].ctx, k.procs[next].ctx

	k.mu.Unlock()

	k.L.Trace("schedule-switch", "from", prev, "to", next)
	k.events.Notify(TaskSwitched)

	k.sw.Switch(from, to)
}

// Yield gives up the CPU voluntarily.
func (k *Kernel) Yield() {
	k.Schedule()
}

// TimerTick advances uptime by ms, charges it to the running task and
// recomputes CPU usage. It never reschedules.
func (k *Kernel) TimerTick(ms uint32) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.uptime += ms

	if cur := &k.procs[k.current]; cur.State == Running {
		cur.RuntimeMS += ms
	}

	var total uint64
	for i := IdleID + 1; i < len(k.procs); i++ {
		if k.procs[i].State != Terminated {
			total += uint64(k.procs[i].RuntimeMS)
		}
	}

	if k.uptime > 0 {
		k.cpuUsage = uint32(total * 100 / uint64(k.uptime))
	} else {
		k.cpuUsage = 0
	}
}

// RequestSchedule asks for a reschedule at the next Checkpoint. It is
// safe to call from an asynchronous tick source.
func (k *Kernel) RequestSchedule() {
	k.pending.Store(true)
}

// Checkpoint runs a requested reschedule, reporting whether it did.
func (k *Kernel) Checkpoint() bool {
	if !k.pending.CompareAndSwap(true, false) {
		return false
	}

	k.Schedule()
	return true
}

// Deferred is a tick target for sources that fire asynchronously, like a
// timer interrupt. Its Schedule only requests preemption, which the
// running task picks up at its next Checkpoint.
type Deferred struct {
	k *Kernel
}

func (d Deferred) TimerTick(ms uint32) {
	d.k.TimerTick(ms)
}

func (d Deferred) Schedule() {
	d.k.RequestSchedule()
}

func (k *Kernel) Interrupts() Deferred {
	return Deferred{k: k}
}
