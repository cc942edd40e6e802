// Package main implements the glocal CLI tool.
//
// The glocal tool exercises the goroutine-local storage runtime from the
// command line:
//
//	glocal demo              # Walk through Get/Set/Remove and inheritance
//	glocal stress [flags]    # Hammer the runtime from many goroutines
//	glocal info              # Show runtime and Go version information
//
// It is mainly useful for checking a platform (goroutine ID parsing, weak
// pointer support) and for observing sweep and growth behaviour with debug
// logging enabled.
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/glocal/gls"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "demo":
		demoCommand(os.Args[2:])
	case "stress":
		if code := stressCommand(os.Args[2:], os.Stdout, os.Stderr); code != 0 {
			os.Exit(code)
		}
	case "info":
		infoCommand()
	case "version", "--version", "-v":
		fmt.Printf("glocal version %s\n", gls.Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`glocal - goroutine-local storage for Go

USAGE:
    glocal <command> [arguments]

COMMANDS:
    demo       Walk through goroutine-local variables step by step
    stress     Run a concurrent workload against the runtime
    info       Show runtime information
    version    Show version information
    help       Show this help message

STRESS FLAGS:
    -goroutines N    concurrent goroutines (default 64)
    -locals N        locals touched by each goroutine (default 32)
    -iterations N    Get/Set rounds per goroutine (default 1000)
    -drop N          locals dropped each round to create stale entries (default 4)
    -sweep N         allocations between sweeps (default 1000)
    -debug           log runtime events to stderr

EXAMPLES:
    glocal demo
    glocal stress -goroutines 256 -locals 100
    GLOCAL_SWEEP_INTERVAL=50 glocal stress -debug

`)
}

// infoCommand implements 'glocal info'.
func infoCommand() {
	info := gls.GetInfo()
	fmt.Printf("glocal:          %s\n", info.Version)
	fmt.Printf("go:              %s\n", info.GoVersion)
	fmt.Printf("minimum go:      %s\n", gls.MinGoVersion)
	fmt.Printf("sweep interval:  %d\n", info.SweepInterval)
	if !info.Supported {
		fmt.Fprintf(os.Stderr, "WARNING: %s predates %s; weak keys are unavailable\n",
			info.GoVersion, gls.MinGoVersion)
		os.Exit(1)
	}
}
