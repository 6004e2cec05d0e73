// Package arch defines the execution-context switch primitive. The
// scheduler only ever talks to a Switcher; register layout and the way
// control is actually transferred belong to the implementation.
package arch

import "reflect"

// Context is the saved execution state of one task. Implementations keep
// whatever they need in Data; the scheduler treats it as opaque.
type Context struct {
	// Name is used for tracing only.
	Name string

	// Stack is the task's stack memory, nil for the boot context.
	Stack []byte

	// Entry is where a never-run context starts executing.
	Entry func()

	// Exit runs when Entry returns. It must switch away from the context
	// for good, the way a return address into a task exit routine does.
	Exit func()

	Data interface{}
}

// Switcher transfers control between contexts. Switch is called with
// interrupts masked from the point of view of the caller: the kernel
// never invokes two switch operations concurrently.
type Switcher interface {
	// Boot adopts the currently executing flow of control as ctx.
	Boot(ctx *Context)

	// Prepare lays out the initial frame of a never-run context so that
	// the first Switch into it resumes at ctx.Entry.
	Prepare(ctx *Context) error

	// Switch saves the running state into old and resumes new. It returns
	// when old is switched back in, and never returns if old has been
	// released in the meantime.
	Switch(old, new *Context)

	// Release marks ctx as dead. It will never be resumed again.
	Release(ctx *Context)
}

// EntryAddress returns the code address of fn, 0 for nil.
func EntryAddress(fn func()) uintptr {
	if fn == nil {
		return 0
	}

	return reflect.ValueOf(fn).Pointer()
}
