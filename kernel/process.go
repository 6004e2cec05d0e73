package kernel

import (
	"github.com/JackSuuu/JasOS-Kernel/arch"
	"github.com/JackSuuu/JasOS-Kernel/memory"
)

type State int

const (
	Ready State = iota
	Running
	// Blocked is modelled but nothing in the kernel moves a task into it.
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Process is the task control block kept in each slot of the table.
// Lookups hand out copies.
type Process struct {
	ID       int
	Name     string
	State    State
	Priority uint32

	Stack     memory.Ptr
	StackSize uint32

	RuntimeMS uint32
	CreatedAt uint32

	ctx *arch.Context
}

func truncateName(name string) string {
	if len(name) >= MaxNameLen {
		return name[:MaxNameLen-1]
	}

	return name
}

// Current returns the task that owns the CPU.
func (k *Kernel) Current() (Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.current < 0 {
		return Process{}, false
	}

	return k.procs[k.current], true
}

func (k *Kernel) ByID(id int) (Process, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if id < 0 || id >= len(k.procs) || k.procs[id].State == Terminated {
		return Process{}, false
	}

	return k.procs[id], true
}

// ByName returns the lowest slot holding a live task called name.
func (k *Kernel) ByName(name string) (Process, bool) {
	name = truncateName(name)

	k.mu.Lock()
	defer k.mu.Unlock()

	if v, ok := k.names.Get(name); ok {
		p := k.procs[v.(int)]
		if p.State != Terminated && p.Name == name {
			return p, true
		}

		k.names.Remove(name)
	}

	for _, p := range k.procs {
		if p.State != Terminated && p.Name == name {
			k.names.Add(name, p.ID)
			return p, true
		}
	}

	return Process{}, false
}

// Processes returns every live task in slot order.
func (k *Kernel) Processes() []Process {
	k.mu.Lock()
	defer k.mu.Unlock()

	var out []Process
	for _, p := range k.procs {
		if p.State != Terminated {
			out = append(out, p)
		}
	}

	return out
}
