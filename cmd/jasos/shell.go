package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/JackSuuu/JasOS-Kernel/console"
	"github.com/JackSuuu/JasOS-Kernel/kernel"
	"github.com/JackSuuu/JasOS-Kernel/log"
	"github.com/JackSuuu/JasOS-Kernel/memory"
	"github.com/JackSuuu/JasOS-Kernel/monitor"
	"github.com/JackSuuu/JasOS-Kernel/pkg/waiter"
	"github.com/JackSuuu/JasOS-Kernel/tick"
)

const (
	prompt  = "> "
	maxLine = 128
)

var errExit = errors.New("exit requested")

type portWriter struct {
	console.Port
}

func (w portWriter) Write(p []byte) (int, error) {
	if err := w.PutString(string(p)); err != nil {
		return 0, err
	}

	return len(p), nil
}

type shell struct {
	k     *kernel.Kernel
	port  console.Port
	out   io.Writer
	clock *tick.Manual
	mon   *monitor.Monitor

	// self is the slot the shell runs in, idle unless it was started as
	// a task of its own.
	self int

	allocs  map[memory.Ptr]uint32
	notices chan waiter.EventType

	L hclog.Logger
}

func newShell(k *kernel.Kernel, port console.Port, clock *tick.Manual, width int) *shell {
	return &shell{
		k:       k,
		port:    port,
		out:     portWriter{port},
		clock:   clock,
		mon:     monitor.New(k, width),
		self:    kernel.IdleID,
		allocs:  make(map[memory.Ptr]uint32),
		notices: make(chan waiter.EventType, 16),
		L:       log.L.Named("shell"),
	}
}

// worker is the body of tasks started with spawn. It only gives the CPU
// back, which is enough to watch the scheduler rotate through it.
func (s *shell) worker() {
	for {
		s.k.Yield()
	}
}

func (s *shell) printf(format string, args ...interface{}) error {
	_, err := fmt.Fprintf(s.out, format, args...)
	return err
}

// Run reads and executes commands until exit or end of input. Each
// command costs one timer tick, and a reschedule requested by an
// asynchronous timer is taken between commands.
func (s *shell) Run() error {
	ev := s.k.Events().RegisterChannel(kernel.TaskExited, s.notices)
	defer s.k.Events().Unregister(ev)

	err := s.printf("\nJasOS Kernel v0.1\nInitialization complete\nType 'help' for available commands\n")
	if err != nil {
		return err
	}

	for {
		if err := s.port.PutString(prompt); err != nil {
			return err
		}

		line, err := console.ReadLine(s.port, maxLine, true)
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return errors.Wrap(err, "reading command")
		}

		// CRLF terminals hand over an empty line after every command.
		if strings.TrimSpace(line) == "" {
			continue
		}

		err = s.exec(line)
		if err == errExit {
			return nil
		}

		if err != nil {
			return err
		}

		s.clock.Tick()
		s.k.Checkpoint()

		if err := s.drainNotices(); err != nil {
			return err
		}
	}
}

func (s *shell) drainNotices() error {
	for {
		select {
		case <-s.notices:
			if err := s.printf("[kernel] process exited\n"); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := fields[0], fields[1:]

	s.L.Trace("shell-command", "cmd", cmd, "args", args)

	switch cmd {
	case "help":
		return s.help()
	case "mem":
		return s.k.Heap().Dump(s.out)
	case "ps":
		return s.k.Dump(s.out)
	case "alloc":
		return s.alloc(args)
	case "free":
		return s.free(args)
	case "spawn":
		return s.spawn(args)
	case "kill":
		return s.kill(args)
	case "yield":
		s.k.Yield()
		return s.current()
	case "sched":
		s.k.Schedule()
		return s.current()
	case "tick":
		return s.tick(args)
	case "monitor":
		return s.monitor(args)
	case "blocks":
		return s.blocks()
	case "exit":
		return errExit
	default:
		return s.printf("Unknown command: %s\nType 'help' for available commands\n", cmd)
	}
}

func (s *shell) help() error {
	return s.printf("Commands:\n" +
		"  help              - Show this help\n" +
		"  mem               - Show the memory map\n" +
		"  ps                - List processes\n" +
		"  alloc SIZE        - Allocate SIZE bytes from the heap\n" +
		"  free ADDR         - Free an allocation made with alloc\n" +
		"  spawn NAME [PRIO] - Create a process\n" +
		"  kill PID          - Terminate a process\n" +
		"  yield             - Give up the CPU\n" +
		"  sched             - Run the scheduler\n" +
		"  tick [N]          - Advance the timer N ticks\n" +
		"  monitor [VIEW]    - Open the system monitor\n" +
		"  blocks            - Verify the heap block list\n" +
		"  exit              - Leave the shell\n")
}

func (s *shell) usage(u string) error {
	return s.printf("Usage: %s\n", u)
}

func (s *shell) current() error {
	p, ok := s.k.Current()
	if !ok {
		return nil
	}

	return s.printf("Current process: %s (PID %d)\n", p.Name, p.ID)
}

func (s *shell) alloc(args []string) error {
	if len(args) != 1 {
		return s.usage("alloc SIZE")
	}

	size, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil || size == 0 {
		return s.printf("Invalid size: %s\n", args[0])
	}

	p, err := s.k.Heap().Alloc(uint32(size))
	if err != nil {
		return s.printf("Allocation failed: %s\n", errors.Cause(err))
	}

	s.allocs[p] = uint32(size)

	return s.printf("Allocated %d bytes at 0x%06x\n", size, uint32(p))
}

func (s *shell) free(args []string) error {
	if len(args) != 1 {
		return s.usage("free ADDR")
	}

	v, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return s.printf("Invalid address: %s\n", args[0])
	}

	p := memory.Ptr(v)

	size, ok := s.allocs[p]
	if !ok {
		return s.printf("No allocation at 0x%06x\n", uint32(p))
	}

	delete(s.allocs, p)
	s.k.Heap().Free(p)

	return s.printf("Freed %d bytes at 0x%06x\n", size, uint32(p))
}

func (s *shell) spawn(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return s.usage("spawn NAME [PRIO]")
	}

	var prio uint64
	if len(args) == 2 {
		var err error
		prio, err = strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return s.printf("Invalid priority: %s\n", args[1])
		}
	}

	id, err := s.k.Create(args[0], s.worker, uint32(prio))
	if err != nil {
		return s.printf("Failed to create process: %s\n", errors.Cause(err))
	}

	return s.printf("Created process %s (PID %d)\n", args[0], id)
}

func (s *shell) kill(args []string) error {
	if len(args) != 1 {
		return s.usage("kill PID")
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		return s.printf("Invalid pid: %s\n", args[0])
	}

	if id == kernel.IdleID || id == s.self {
		return s.printf("Cannot kill PID %d\n", id)
	}

	p, ok := s.k.ByID(id)
	if !ok {
		return s.printf("No such process: %d\n", id)
	}

	s.k.Terminate(id)

	return s.printf("Killed %s (PID %d)\n", p.Name, id)
}

func (s *shell) tick(args []string) error {
	n := 1

	if len(args) == 1 {
		var err error
		n, err = strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return s.printf("Invalid tick count: %s\n", args[0])
		}
	}

	scheduled := s.clock.Advance(n)

	return s.printf("Uptime: %dms (%d reschedules)\n", s.k.Uptime(), scheduled)
}

func (s *shell) monitor(args []string) error {
	if len(args) == 1 {
		mode, ok := monitor.ParseMode(args[0])
		if !ok {
			return s.printf("Unknown view: %s\n", args[0])
		}

		s.mon.SetMode(mode)
	}

	if err := s.mon.Render(s.out); err != nil {
		return err
	}

	for {
		line, err := console.ReadLine(s.port, maxLine, true)
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return errors.Wrap(err, "reading monitor command")
		}

		done, err := s.mon.Command(s.out, line)
		if err != nil || done {
			return err
		}
	}
}

func (s *shell) blocks() error {
	heap := s.k.Heap()

	for _, b := range heap.Blocks() {
		state := "free"
		if b.Used {
			state = "used"
		}

		err := s.printf("0x%06x %6d %s\n", uint32(b.Payload()), b.Size, state)
		if err != nil {
			return err
		}
	}

	if err := heap.Check(); err != nil {
		return s.printf("Heap check failed: %s\n", err)
	}

	return s.printf("Heap check passed\n")
}

// stopTasks terminates every task other than the shell and idle.
func (s *shell) stopTasks() {
	for _, p := range s.k.Processes() {
		if p.ID != kernel.IdleID && p.ID != s.self {
			s.k.Terminate(p.ID)
		}
	}
}
