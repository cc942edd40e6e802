// demo.go implements the 'glocal demo' command.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kolkov/glocal/gls"
)

// demoCommand implements the 'glocal demo' command.
func demoCommand(args []string) {
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "Error: demo takes no arguments\n")
		os.Exit(1)
	}
	runDemo(os.Stdout)
}

// runDemo prints the scenario of one local shared by two goroutines,
// followed by inheritance into a spawned child.
func runDemo(w io.Writer) {
	defer gls.Release()

	k := gls.NewWithInitial(func() int { return 0 })

	k.Set(10)
	fmt.Fprintf(w, "main:   set 10\n")

	other := make(chan int)
	go func() {
		defer gls.Release()
		other <- k.Get()
	}()
	fmt.Fprintf(w, "other:  get %d (own initial value)\n", <-other)

	fmt.Fprintf(w, "main:   get %d\n", k.Get())
	k.Remove()
	fmt.Fprintf(w, "main:   remove, get %d (initializer ran again)\n", k.Get())

	depth := gls.NewInheritable(func(parent int) int { return parent + 1 })
	depth.Set(5)
	child := make(chan int)
	gls.Go(func() { child <- depth.Get() })
	fmt.Fprintf(w, "child:  inherited %d from parent's %d\n", <-child, depth.Get())

	st := gls.CurrentStats()
	fmt.Fprintf(w, "main:   %d/%d slots, %d/%d inheritable\n",
		st.Entries, st.Capacity, st.InheritableEntries, st.InheritableCapacity)
}
