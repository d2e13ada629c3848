// Command agentrt runs agents described by a configuration file, either as a
// long-running process or behind an interactive prompt.
package main

import (
	"fmt"
	"os"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
