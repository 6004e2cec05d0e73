// Package monitor renders the system monitor screens: an overview with
// usage bars, the memory map, the process list and a help page.
package monitor

import (
	"fmt"
	"io"
	"strings"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/JackSuuu/JasOS-Kernel/kernel"
	"github.com/JackSuuu/JasOS-Kernel/log"
)

const (
	DefaultWidth = 80

	clearScreen = "\033[2J\033[H"

	maxRule = 50
	maxBar  = 30
	minBar  = 10
)

type Mode int

const (
	Overview Mode = iota
	Memory
	Process
	Help
)

func (m Mode) String() string {
	switch m {
	case Overview:
		return "OVERVIEW"
	case Memory:
		return "MEMORY"
	case Process:
		return "PROCESS"
	case Help:
		return "HELP"
	default:
		return "UNKNOWN"
	}
}

var modeCommands = map[string]Mode{
	"overview": Overview,
	"mem":      Memory,
	"proc":     Process,
	"help":     Help,
}

// ParseMode maps a monitor command to the view it selects.
func ParseMode(cmd string) (Mode, bool) {
	m, ok := modeCommands[cmd]
	return m, ok
}

type Monitor struct {
	k     *kernel.Kernel
	mode  Mode
	width int

	L hclog.Logger
}

// New returns a monitor showing the overview. width is the terminal
// column count, bars and rules shrink to fit narrow terminals.
func New(k *kernel.Kernel, width int) *Monitor {
	if width <= 0 {
		width = DefaultWidth
	}

	return &Monitor{
		k:     k,
		width: width,
		L:     log.L.Named("monitor"),
	}
}

func (m *Monitor) Mode() Mode {
	return m.mode
}

func (m *Monitor) SetMode(mode Mode) {
	m.mode = mode
}

func (m *Monitor) ruleWidth() int {
	if m.width < maxRule {
		return m.width
	}
	return maxRule
}

func (m *Monitor) barWidth() int {
	w := m.width - 20
	switch {
	case w > maxBar:
		return maxBar
	case w < minBar:
		return minBar
	}
	return w
}

func rule(sb *strings.Builder, c byte, n int) {
	sb.WriteString(strings.Repeat(string(c), n))
	sb.WriteByte('\n')
}

// bar draws [###   ] pct% with width cells.
func bar(sb *strings.Builder, pct uint32, width int) {
	if pct > 100 {
		pct = 100
	}

	filled := int(pct) * width / 100

	sb.WriteByte('[')
	sb.WriteString(strings.Repeat("#", filled))
	sb.WriteString(strings.Repeat(" ", width-filled))
	fmt.Fprintf(sb, "] %d%%", pct)
}

func percent(part, total uint32) uint32 {
	if total == 0 {
		return 0
	}
	return uint32(uint64(part) * 100 / uint64(total))
}

func title(sb *strings.Builder, mode Mode) {
	sb.WriteString(clearScreen)
	fmt.Fprintf(sb, "=== JasOS System Monitor - %s ===\n\n", mode)
}

// Render draws the current view on w.
func (m *Monitor) Render(w io.Writer) error {
	var (
		sb  strings.Builder
		err error
	)

	switch m.mode {
	case Memory:
		err = m.memory(&sb)
	case Process:
		err = m.process(&sb)
	case Help:
		m.help(&sb)
	default:
		m.overview(&sb)
	}

	if err != nil {
		return err
	}

	_, err = io.WriteString(w, sb.String())
	return err
}

// Command handles one line typed while the monitor is shown. It returns
// true when the user asked to leave the monitor.
func (m *Monitor) Command(w io.Writer, cmd string) (bool, error) {
	cmd = strings.TrimSpace(cmd)

	switch cmd {
	case "exit":
		return true, nil
	case "":
		return false, m.Render(w)
	}

	mode, ok := ParseMode(cmd)
	if !ok {
		_, err := fmt.Fprintf(w, "Unknown command: %s\nType 'help' for available commands\n", cmd)
		return false, err
	}

	m.L.Debug("monitor-mode", "mode", mode)

	m.mode = mode
	return false, m.Render(w)
}

func (m *Monitor) overview(sb *strings.Builder) {
	mem := m.k.Heap().Stats()
	ps := m.k.Stats()

	title(sb, Overview)

	sb.WriteString("Memory Usage:\n")
	rule(sb, '-', m.ruleWidth())
	sb.WriteString("  ")
	bar(sb, percent(mem.Used, mem.Total), m.barWidth())
	sb.WriteByte('\n')
	fmt.Fprintf(sb, "  Total: %d bytes   Used: %d bytes   Free: %d bytes\n",
		mem.Total, mem.Used, mem.Free)

	sb.WriteString("\nProcess Usage:\n")
	rule(sb, '-', m.ruleWidth())
	sb.WriteString("  CPU: ")
	bar(sb, ps.CPUUsage, m.barWidth())
	sb.WriteByte('\n')
	fmt.Fprintf(sb, "  Total: %d   Running: %d   Ready: %d   Blocked: %d\n",
		ps.Total, ps.Running, ps.Ready, ps.Blocked)

	if cur, ok := m.k.Current(); ok {
		fmt.Fprintf(sb, "\nCurrent Process: %s (PID %d)\n", cur.Name, cur.ID)
	}

	sb.WriteString("\nCommands: mem, proc, help, exit\n")
}

func (m *Monitor) memory(sb *strings.Builder) error {
	heap := m.k.Heap()
	stats := heap.Stats()

	title(sb, Memory)

	sb.WriteString("Memory Statistics:\n")
	rule(sb, '-', m.ruleWidth())
	fmt.Fprintf(sb, "  Total memory:  %d bytes\n", stats.Total)
	fmt.Fprintf(sb, "  Used memory:   %d bytes (%d%%)\n", stats.Used, percent(stats.Used, stats.Total))
	fmt.Fprintf(sb, "  Free memory:   %d bytes (%d%%)\n", stats.Free, percent(stats.Free, stats.Total))
	fmt.Fprintf(sb, "  Block count:   %d (%d used, %d free)\n",
		stats.BlockCount, stats.UsedBlocks, stats.FreeBlocks)
	fmt.Fprintf(sb, "  Overhead:      %d bytes\n\n", stats.Overhead())

	if err := heap.Dump(sb); err != nil {
		return err
	}

	sb.WriteString("\nCommands: overview, proc, help, exit\n")
	return nil
}

func (m *Monitor) process(sb *strings.Builder) error {
	title(sb, Process)

	sb.WriteString("Process List:\n")
	rule(sb, '-', m.ruleWidth())

	if err := m.k.Dump(sb); err != nil {
		return err
	}

	fmt.Fprintf(sb, "\nUptime: %dms   Context switches: %d\n", m.k.Uptime(), m.k.Switches())
	sb.WriteString("\nCommands: overview, mem, help, exit\n")
	return nil
}

func (m *Monitor) help(sb *strings.Builder) {
	title(sb, Help)

	sb.WriteString("Commands:\n")
	rule(sb, '-', m.ruleWidth())
	sb.WriteString("  overview - Show system overview\n")
	sb.WriteString("  mem      - Show detailed memory information\n")
	sb.WriteString("  proc     - Show detailed process information\n")
	sb.WriteString("  help     - Show this help screen\n")
	sb.WriteString("  exit     - Exit the monitor and return to shell\n")

	sb.WriteString("\nMemory Management:\n")
	rule(sb, '-', m.ruleWidth())
	fmt.Fprintf(sb, "  Heap size:   %d KB\n", m.k.Heap().Size()/1024)
	sb.WriteString("  Allocation:  First-fit with block splitting/coalescing\n")

	sb.WriteString("\nProcess Management:\n")
	rule(sb, '-', m.ruleWidth())
	fmt.Fprintf(sb, "  Max processes: %d\n", m.k.Capacity())
	sb.WriteString("  Scheduling:    Round-robin\n")
	fmt.Fprintf(sb, "  Stack size:    %d bytes per process\n", m.k.StackSize())
	sb.WriteString("  States:        Ready, Running, Blocked, Terminated\n")

	sb.WriteString("\nPress Enter or type a command to continue\n")
}
