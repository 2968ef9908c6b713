// Command lockstep runs the synchronization demonstrations.
package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/lockstep/lockstep/cmd"
)

func main() {
	if err := cmd.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	c := cmd.NewRootCmd("lockstep",
		"Demonstrations of classic synchronization patterns",
		"Each command runs one demonstration and prints what its workers do.")

	if err := c.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
