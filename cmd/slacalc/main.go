// Command slacalc computes business minutes against a work calendar from the
// command line.
package main

import (
	"os"
	_ "time/tzdata"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
