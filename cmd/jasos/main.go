package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/JackSuuu/JasOS-Kernel/arch"
	"github.com/JackSuuu/JasOS-Kernel/arch/coop"
	"github.com/JackSuuu/JasOS-Kernel/arch/sim"
	"github.com/JackSuuu/JasOS-Kernel/config"
	"github.com/JackSuuu/JasOS-Kernel/console"
	"github.com/JackSuuu/JasOS-Kernel/kernel"
	"github.com/JackSuuu/JasOS-Kernel/log"
	"github.com/JackSuuu/JasOS-Kernel/memory"
	"github.com/JackSuuu/JasOS-Kernel/monitor"
	"github.com/JackSuuu/JasOS-Kernel/tick"
)

var (
	fConfig  = pflag.StringP("config", "c", "jasos.yaml", "path to the boot configuration")
	fArena   = pflag.Uint32("arena", 0, "heap arena size in bytes")
	fArch    = pflag.String("arch", "", "context switch implementation (sim or coop)")
	fTrace   = pflag.Bool("trace", false, "enable trace logging")
	fLog     = pflag.String("log", "", "write log output to this file")
	fNoTimer = pflag.Bool("no-timer", false, "disable the periodic timer, only the shell ticks")
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*fConfig)
	if err != nil {
		return nil, err
	}

	if pflag.CommandLine.Changed("arena") {
		cfg.ArenaSize = *fArena
	}

	if pflag.CommandLine.Changed("arch") {
		cfg.Arch = *fArch
	}

	if *fTrace {
		cfg.Trace = true
	}

	return cfg, cfg.Validate()
}

func switcher(name string) arch.Switcher {
	if name == config.ArchCoop {
		return coop.New()
	}

	return sim.New()
}

func boot(cfg *config.Config) (*kernel.Kernel, error) {
	heap, err := memory.NewHeap(cfg.ArenaSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating heap")
	}

	return kernel.New(heap, switcher(cfg.Arch),
		kernel.WithMaxProcesses(cfg.MaxProcesses),
		kernel.WithStackSize(cfg.StackSize),
	)
}

// run drives the shell. On the simulated CPU no task code executes, so
// the shell simply runs on the idle context. With cooperative contexts
// the shell becomes a task itself, so the scheduler can hand the CPU to
// spawned tasks and get it back.
func run(k *kernel.Kernel, sh *shell, archName string) error {
	if archName != config.ArchCoop {
		return sh.Run()
	}

	var runErr error

	id, err := k.Create("shell", func() {
		runErr = sh.Run()
		sh.stopTasks()
	}, 0)
	if err != nil {
		return err
	}

	sh.self = id

	// Returns once the shell task has exited and only idle is left.
	k.Schedule()

	return runErr
}

func main() {
	pflag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jasos: %s\n", err)
		os.Exit(1)
	}

	if *fLog != "" {
		f, err := os.OpenFile(*fLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jasos: %s\n", err)
			os.Exit(1)
		}
		defer f.Close()

		log.Redirect(f)
	}

	log.EnableTrace(cfg.Trace)

	k, err := boot(cfg)
	if err != nil {
		log.L.Error("boot failed", "error", err)
		os.Exit(1)
	}

	log.L.Info("kernel booted",
		"arena", cfg.ArenaSize, "max-processes", cfg.MaxProcesses, "arch", cfg.Arch)

	port := console.NewSerial(os.Stdin, os.Stdout)
	sh := newShell(k, port, tick.NewManual(k, cfg.Tick()), monitor.TerminalWidth(os.Stdout))

	ctx, cancel := context.WithCancel(context.Background())

	var timer *tick.Loop
	if !*fNoTimer {
		timer = tick.NewLoop(k.Interrupts(), cfg.Tick())
		timer.Start(ctx)
	}

	err = run(k, sh, cfg.Arch)

	cancel()
	if timer != nil {
		timer.Wait()
	}

	k.Shutdown()

	if err != nil {
		log.L.Error("shell failed", "error", err)
		os.Exit(1)
	}
}
