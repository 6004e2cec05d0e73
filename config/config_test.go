package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "jasos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestConfig(t *testing.T) {
	n := neko.Modern(t)

	n.It("falls back to defaults when the file is missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		require.Equal(t, Default(), cfg)
		require.EqualValues(t, 256*1024, cfg.ArenaSize)
		require.Equal(t, 16, cfg.MaxProcesses)
	})

	n.It("reads values from yaml", func(t *testing.T) {
		path := writeConfig(t, "arena_size: 8192\nmax_processes: 4\narch: coop\nquantum_ticks: 3\n")

		cfg, err := Load(path)
		require.NoError(t, err)
		require.EqualValues(t, 8192, cfg.ArenaSize)
		require.Equal(t, 4, cfg.MaxProcesses)
		require.Equal(t, ArchCoop, cfg.Arch)
		require.EqualValues(t, 4096, cfg.StackSize)

		tc := cfg.Tick()
		require.Equal(t, 10*time.Millisecond, tc.Period)
		require.Equal(t, 3, tc.Quantum)
	})

	n.It("lets the environment override the file", func(t *testing.T) {
		path := writeConfig(t, "stack_size: 2048\n")

		t.Setenv("JASOS_STACK_SIZE", "1024")
		t.Setenv("JASOS_TRACE", "true")

		cfg, err := Load(path)
		require.NoError(t, err)
		require.EqualValues(t, 1024, cfg.StackSize)
		require.True(t, cfg.Trace)
	})

	n.It("rejects broken files and values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "arena_size: [1"))
		require.Error(t, err)

		_, err = Load(writeConfig(t, "max_processes: 1\n"))
		require.Equal(t, ErrInvalid, errors.Cause(err))

		_, err = Load(writeConfig(t, "arch: x86\n"))
		require.Equal(t, ErrInvalid, errors.Cause(err))

		t.Setenv("JASOS_QUANTUM_TICKS", "many")
		_, err = Load("")
		require.Error(t, err)
	})

	n.Meow()
}
