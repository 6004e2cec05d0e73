package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
	"go.uber.org/goleak"

	"github.com/JackSuuu/JasOS-Kernel/config"
	"github.com/JackSuuu/JasOS-Kernel/console"
	"github.com/JackSuuu/JasOS-Kernel/kernel"
	"github.com/JackSuuu/JasOS-Kernel/tick"
)

func bootTest(t *testing.T, archName string) *kernel.Kernel {
	cfg := config.Default()
	cfg.ArenaSize = 16 * 1024
	cfg.MaxProcesses = 4
	cfg.StackSize = 512
	cfg.Arch = archName

	k, err := boot(cfg)
	require.NoError(t, err)

	return k
}

func runShell(t *testing.T, k *kernel.Kernel, archName, input string) string {
	var out bytes.Buffer

	port := console.NewSerial(strings.NewReader(input), &out)
	clock := tick.NewManual(k, tick.Config{Period: 10 * time.Millisecond, Quantum: 10})

	sh := newShell(k, port, clock, 60)
	require.NoError(t, run(k, sh, archName))

	return out.String()
}

func TestShell(t *testing.T) {
	n := neko.Modern(t)

	n.It("runs heap and process commands", func(t *testing.T) {
		k := bootTest(t, config.ArchSim)

		out := runShell(t, k, config.ArchSim,
			"alloc 100\nblocks\nfree 0x10\nfree 0x10\n"+
				"spawn a\nspawn b 3\nps\nkill 1\nkill 0\n"+
				"tick 10\nbogus\nexit\n")

		require.Contains(t, out, "JasOS Kernel v0.1")
		require.Contains(t, out, "Allocated 100 bytes at 0x000010\n")
		require.Contains(t, out, "0x000010    100 used\n")
		require.Contains(t, out, "Heap check passed\n")
		require.Contains(t, out, "Freed 100 bytes at 0x000010\n")
		require.Contains(t, out, "No allocation at 0x000010\n")
		require.Contains(t, out, "Created process a (PID 1)\n")
		require.Contains(t, out, "Created process b (PID 2)\n")
		require.Contains(t, out, "Killed a (PID 1)\n")
		require.Contains(t, out, "[kernel] process exited\n")
		require.Contains(t, out, "Cannot kill PID 0\n")
		require.Contains(t, out, "Uptime: 190ms (1 reschedules)\n")
		require.Contains(t, out, "Unknown command: bogus\n")

		_, ok := k.ByName("a")
		require.False(t, ok)

		b, ok := k.ByName("b")
		require.True(t, ok)
		require.EqualValues(t, 3, b.Priority)

		require.NoError(t, k.Heap().Check())
	})

	n.It("reports allocation failures", func(t *testing.T) {
		k := bootTest(t, config.ArchSim)

		out := runShell(t, k, config.ArchSim, "alloc 1000000\nalloc x\n")

		require.Contains(t, out, "Allocation failed: out of memory")
		require.Contains(t, out, "Invalid size: x\n")
	})

	n.It("does not charge a tick for blank lines", func(t *testing.T) {
		k := bootTest(t, config.ArchSim)

		out := runShell(t, k, config.ArchSim, "spawn a\r\n\r\n   \ntick 1\r\nexit\r\n")

		require.Contains(t, out, "Created process a (PID 1)")
		require.Contains(t, out, "Uptime: 20ms (0 reschedules)\n")
		require.EqualValues(t, 30, k.Uptime())
	})

	n.It("opens the monitor", func(t *testing.T) {
		k := bootTest(t, config.ArchSim)

		out := runShell(t, k, config.ArchSim, "monitor mem\nproc\nexit\nexit\n")

		require.Contains(t, out, "=== JasOS System Monitor - MEMORY ===")
		require.Contains(t, out, "=== JasOS System Monitor - PROCESS ===")
	})

	n.It("rotates through cooperative tasks", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		k := bootTest(t, config.ArchCoop)

		out := runShell(t, k, config.ArchCoop, "spawn a\nspawn b\ntick 10\nps\nkill 1\nexit\n")

		require.Contains(t, out, "Created process a (PID 2)\n")
		require.Contains(t, out, "Created process b (PID 3)\n")
		require.Contains(t, out, "Uptime: 120ms (1 reschedules)\n")
		require.Contains(t, out, "Cannot kill PID 1\n")

		require.NotZero(t, k.Switches())

		procs := k.Processes()
		require.Len(t, procs, 1)
		require.Equal(t, kernel.IdleID, procs[0].ID)

		cur, ok := k.Current()
		require.True(t, ok)
		require.Equal(t, kernel.IdleID, cur.ID)

		k.Shutdown()
	})

	n.Meow()
}
