package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/JackSuuu/JasOS-Kernel/kernel"
	"github.com/JackSuuu/JasOS-Kernel/memory"
	"github.com/JackSuuu/JasOS-Kernel/tick"
)

const (
	ArchSim  = "sim"
	ArchCoop = "coop"
)

var ErrInvalid = errors.New("invalid config")

// Config describes the machine the kernel boots on.
type Config struct {
	ArenaSize    uint32 `yaml:"arena_size"`
	MaxProcesses int    `yaml:"max_processes"`
	StackSize    uint32 `yaml:"stack_size"`
	TickPeriodMS uint32 `yaml:"tick_period_ms"`
	QuantumTicks int    `yaml:"quantum_ticks"`
	Arch         string `yaml:"arch"`
	Trace        bool   `yaml:"trace"`
}

func Default() *Config {
	return &Config{
		ArenaSize:    memory.DefaultArenaSize,
		MaxProcesses: kernel.DefaultMaxProcesses,
		StackSize:    kernel.DefaultStackSize,
		TickPeriodMS: uint32(tick.DefaultPeriod / time.Millisecond),
		QuantumTicks: tick.DefaultQuantum,
		Arch:         ArchSim,
	}
}

// Load reads path on top of the defaults. A missing file is not an
// error. JASOS_* environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrapf(err, "reading config %s", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parsing config %s", path)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func envUint(name string, dst *uint32) error {
	str := os.Getenv(name)
	if str == "" {
		return nil
	}

	v, err := strconv.ParseUint(str, 0, 32)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", name)
	}

	*dst = uint32(v)
	return nil
}

func envInt(name string, dst *int) error {
	str := os.Getenv(name)
	if str == "" {
		return nil
	}

	v, err := strconv.Atoi(str)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", name)
	}

	*dst = v
	return nil
}

func (c *Config) applyEnv() error {
	if err := envUint("JASOS_ARENA_SIZE", &c.ArenaSize); err != nil {
		return err
	}

	if err := envInt("JASOS_MAX_PROCESSES", &c.MaxProcesses); err != nil {
		return err
	}

	if err := envUint("JASOS_STACK_SIZE", &c.StackSize); err != nil {
		return err
	}

	if err := envUint("JASOS_TICK_PERIOD_MS", &c.TickPeriodMS); err != nil {
		return err
	}

	if err := envInt("JASOS_QUANTUM_TICKS", &c.QuantumTicks); err != nil {
		return err
	}

	if str := os.Getenv("JASOS_ARCH"); str != "" {
		c.Arch = str
	}

	if str := os.Getenv("JASOS_TRACE"); str != "" {
		v, err := strconv.ParseBool(str)
		if err != nil {
			return errors.Wrap(err, "parsing JASOS_TRACE")
		}
		c.Trace = v
	}

	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.ArenaSize < memory.HeaderSize+memory.MinBlockSize:
		return errors.Wrapf(ErrInvalid, "arena_size %d too small", c.ArenaSize)
	case c.MaxProcesses < 2:
		return errors.Wrapf(ErrInvalid, "max_processes %d, need at least 2", c.MaxProcesses)
	case c.StackSize == 0:
		return errors.Wrap(ErrInvalid, "stack_size must be positive")
	case c.TickPeriodMS == 0:
		return errors.Wrap(ErrInvalid, "tick_period_ms must be positive")
	case c.QuantumTicks <= 0:
		return errors.Wrap(ErrInvalid, "quantum_ticks must be positive")
	case c.Arch != ArchSim && c.Arch != ArchCoop:
		return errors.Wrapf(ErrInvalid, "unknown arch %q", c.Arch)
	}

	return nil
}

func (c *Config) Tick() tick.Config {
	return tick.Config{
		Period:  time.Duration(c.TickPeriodMS) * time.Millisecond,
		Quantum: c.QuantumTicks,
	}
}
