package kernel

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

type Stats struct {
	Total      uint32
	Running    uint32
	Ready      uint32
	Blocked    uint32
	Terminated uint32
	CPUUsage   uint32
}

func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.stats()
}

func (k *Kernel) stats() Stats {
	var s Stats

	for _, p := range k.procs {
		switch p.State {
		case Running:
			s.Running++
			s.Total++
		case Ready:
			s.Ready++
			s.Total++
		case Blocked:
			s.Blocked++
			s.Total++
		case Terminated:
			s.Terminated++
		}
	}

	s.CPUUsage = k.cpuUsage

	return s
}

// Activity renders one character per slot: R for the running slot, r
// ready, b blocked and . for a free slot.
func (k *Kernel) Activity() string {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.activity()
}

func (k *Kernel) activity() string {
	var sb strings.Builder

	for i, p := range k.procs {
		switch {
		case i == k.current:
			sb.WriteByte('R')
		case p.State == Ready:
			sb.WriteByte('r')
		case p.State == Blocked:
			sb.WriteByte('b')
		default:
			sb.WriteByte('.')
		}
	}

	return sb.String()
}

// Dump writes the process list, the counters and the activity bar.
func (k *Kernel) Dump(w io.Writer) error {
	k.mu.Lock()
	procs := make([]Process, len(k.procs))
	copy(procs, k.procs)
	stats := k.stats()
	activity := k.activity()
	k.mu.Unlock()

	tw := tabwriter.NewWriter(w, 4, 8, 2, ' ', 0)

	fmt.Fprintf(tw, "PID\tSTATE\tPRIORITY\tRUNTIME\tNAME\n")
	for _, p := range procs {
		if p.State == Terminated {
			continue
		}

		fmt.Fprintf(tw, "%d\t%s\t%d\t%dms\t%s\n", p.ID, p.State, p.Priority, p.RuntimeMS, p.Name)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w,
		"\nProcess Statistics:\n"+
			"  Total processes:  %d\n"+
			"  Running:  %d  Ready:  %d  Blocked:  %d\n"+
			"  CPU Usage:  %d%%\n"+
			"\nProcess Activity:\n[%s]\n"+
			"Legend: R = Running, r = Ready, b = Blocked, . = Terminated\n",
		stats.Total, stats.Running, stats.Ready, stats.Blocked, stats.CPUUsage, activity)

	return err
}
