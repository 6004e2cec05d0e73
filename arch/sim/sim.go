// Package sim implements the context switch on a simulated CPU. Saved
// register frames are pushed onto the task's own stack memory, the way a
// hand written switch routine does it on real hardware, but no task code
// is executed: the CPU only tracks where each task would resume.
package sim

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/JackSuuu/JasOS-Kernel/arch"
	"github.com/JackSuuu/JasOS-Kernel/log"
)

// Callee-saved register slots, in the order they sit in a frame.
const (
	R4 = iota
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	LR

	NumRegs
)

const (
	WordSize   = 8
	FrameSize  = NumRegs * WordSize
	StackAlign = 16
)

var (
	ErrStackTooSmall = errors.New("stack too small for initial frame")
	ErrNoEntry       = errors.New("context has no entry point")
)

// CPU is the simulated register file.
type CPU struct {
	Regs [NumRegs]uint64
	SP   uint32
	PC   uint64
}

type state struct {
	sp    uint32
	saved [NumRegs]uint64
	dead  bool
}

func stateOf(ctx *arch.Context) *state {
	st, ok := ctx.Data.(*state)
	if !ok {
		st = &state{}
		ctx.Data = st
	}

	return st
}

type Sim struct {
	mu       sync.Mutex
	cpu      CPU
	current  *arch.Context
	switches uint64
}

var _ arch.Switcher = &Sim{}

func New() *Sim {
	return &Sim{}
}

func (s *Sim) Boot(ctx *arch.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateOf(ctx)
	s.current = ctx
}

// Prepare writes a zeroed frame at the top of the stack with the entry
// address in the LR slot, so the restore sequence returns into it.
func (s *Sim) Prepare(ctx *arch.Context) error {
	entry := arch.EntryAddress(ctx.Entry)
	if entry == 0 {
		return ErrNoEntry
	}

	top := uint32(len(ctx.Stack)) &^ (StackAlign - 1)
	if top < FrameSize {
		return errors.Wrapf(ErrStackTooSmall, "stack=%d frame=%d", len(ctx.Stack), FrameSize)
	}

	st := stateOf(ctx)
	st.sp = top - FrameSize
	st.dead = false

	var frame [NumRegs]uint64
	frame[LR] = uint64(entry)
	writeFrame(ctx.Stack[st.sp:], &frame)

	log.L.Trace("sim-prepare", "task", ctx.Name, "sp", st.sp, "entry", entry)

	return nil
}

func writeFrame(b []byte, frame *[NumRegs]uint64) {
	for i, v := range frame {
		binary.LittleEndian.PutUint64(b[i*WordSize:], v)
	}
}

func readFrame(b []byte, frame *[NumRegs]uint64) {
	for i := range frame {
		frame[i] = binary.LittleEndian.Uint64(b[i*WordSize:])
	}
}

// Switch pushes the CPU registers onto old's stack and pops new's frame
// into the CPU. The boot context has no stack memory, its frame is held
// aside instead.
func (s *Sim) Switch(old, new *arch.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ost := stateOf(old)
	if !ost.dead {
		if old.Stack == nil {
			ost.saved = s.cpu.Regs
		} else {
			ost.sp -= FrameSize
			writeFrame(old.Stack[ost.sp:], &s.cpu.Regs)
		}
	}

	nst := stateOf(new)
	if new.Stack == nil {
		s.cpu.Regs = nst.saved
	} else {
		readFrame(new.Stack[nst.sp:], &s.cpu.Regs)
		nst.sp += FrameSize
	}

	s.cpu.SP = nst.sp
	s.cpu.PC = s.cpu.Regs[LR]
	s.current = new
	s.switches++

	log.L.Trace("sim-switch", "from", old.Name, "to", new.Name, "pc", s.cpu.PC)
}

func (s *Sim) Release(ctx *arch.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateOf(ctx).dead = true
}

// CPU returns a copy of the register file.
func (s *Sim) CPU() CPU {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cpu
}

// SetReg stands in for a running task modifying a callee-saved register.
func (s *Sim) SetReg(reg int, v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cpu.Regs[reg] = v
}

func (s *Sim) Current() *arch.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

func (s *Sim) Switches() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.switches
}
