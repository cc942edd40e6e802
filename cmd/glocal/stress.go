// stress.go implements the 'glocal stress' command.
package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kolkov/glocal/gls"
)

// stressConfig holds parsed 'glocal stress' flags.
type stressConfig struct {
	goroutines int
	locals     int
	iterations int
	drop       int
	sweep      int
	debug      bool
}

func defaultStressConfig() *stressConfig {
	return &stressConfig{
		goroutines: 64,
		locals:     32,
		iterations: 1000,
		drop:       4,
		sweep:      0,
	}
}

// stressCommand implements the 'glocal stress' command.
//
// Flow:
//  1. Parse flags
//  2. Seed an inheritable trace value on the main goroutine
//  3. Fan out goroutines with gls.Group; each repeatedly sets and reads its
//     locals, drops a few handles, and checks it never sees foreign values
//  4. Print runtime counters
//
// Returns the process exit code. Deferred cleanup such as flushing the debug
// logger has run by the time the caller exits.
func stressCommand(args []string, stdout, stderr io.Writer) int {
	config, err := parseStressArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if config.debug {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer func() { _ = l.Sync() }()
		gls.SetLogger(l)
		defer gls.SetLogger(nil)
	}
	if config.sweep > 0 {
		gls.SetSweepInterval(config.sweep)
	}

	start := time.Now()
	if err := runStress(context.Background(), config); err != nil {
		fmt.Fprintf(stderr, "Stress failed: %v\n", err)
		return 1
	}
	printCounters(stdout, time.Since(start))
	return 0
}

// parseStressArgs parses 'glocal stress' flags.
//
// Supported forms: "-flag N", "-flag=N", and "--flag" variants.
func parseStressArgs(args []string) (*stressConfig, error) {
	config := defaultStressConfig()

	for i := 0; i < len(args); i++ {
		name, value, hasValue := splitFlag(args[i])

		if name == "debug" {
			config.debug = true
			continue
		}

		var target *int
		switch name {
		case "goroutines":
			target = &config.goroutines
		case "locals":
			target = &config.locals
		case "iterations":
			target = &config.iterations
		case "drop":
			target = &config.drop
		case "sweep":
			target = &config.sweep
		default:
			return nil, fmt.Errorf("unknown flag: %s", args[i])
		}

		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("flag -%s requires a value", name)
			}
			i++
			value = args[i]
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid value for -%s: %q", name, value)
		}
		*target = n
	}

	if config.goroutines == 0 || config.locals == 0 {
		return nil, fmt.Errorf("-goroutines and -locals must be positive")
	}
	return config, nil
}

func splitFlag(arg string) (name, value string, hasValue bool) {
	name = arg
	for len(name) > 0 && name[0] == '-' {
		name = name[1:]
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '=' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", false
}

type stressValue struct {
	worker int
	slot   int
	round  int
}

// runStress runs the workload and returns the first isolation violation.
func runStress(ctx context.Context, config *stressConfig) error {
	defer gls.Release()

	trace := gls.NewInheritable(func(parent string) string { return parent + "/worker" })
	trace.Set("stress")

	g, ctx := gls.NewGroup(ctx)
	for w := 0; w < config.goroutines; w++ {
		g.Go(func() error {
			return stressWorker(ctx, w, config, trace)
		})
	}
	return g.Wait()
}

func stressWorker(ctx context.Context, w int, config *stressConfig, trace *gls.InheritableLocal[string]) error {
	if got := trace.Get(); got != "stress/worker" {
		return fmt.Errorf("worker %d inherited %q, want %q", w, got, "stress/worker")
	}

	locals := make([]*gls.Local[stressValue], config.locals)
	for i := range locals {
		locals[i] = gls.New[stressValue]()
	}

	for round := 0; round < config.iterations; round++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for i, l := range locals {
			l.Set(stressValue{worker: w, slot: i, round: round})
		}
		for i, l := range locals {
			want := stressValue{worker: w, slot: i, round: round}
			if got := l.Get(); got != want {
				return fmt.Errorf("worker %d slot %d: got %+v, want %+v", w, i, got, want)
			}
		}
		// Replace a few handles so the old ones become garbage and their
		// entries go stale.
		for i := 0; i < config.drop && i < len(locals); i++ {
			locals[(round+i)%len(locals)] = gls.New[stressValue]()
		}
		if round%100 == 99 {
			runtime.GC()
		}
	}
	return nil
}

func printCounters(w io.Writer, elapsed time.Duration) {
	c := gls.GetCounters()
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "glocal stress\n")
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "elapsed:     %v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "goroutines:  %d registered\n", c.Goroutines)
	fmt.Fprintf(w, "allocated:   %d\n", c.Allocated)
	fmt.Fprintf(w, "released:    %d\n", c.Released)
	fmt.Fprintf(w, "swept:       %d\n", c.Swept)
	fmt.Fprintf(w, "inherited:   %d\n", c.Inherited)
	fmt.Fprintf(w, "==================\n")
}
