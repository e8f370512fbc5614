package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hookline/stagezero/cmd/stagezero/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stagezero: %v\n", err)

		// The launch's own exit status passes straight through to the
		// container runtime.
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			os.Exit(coded.ExitCode())
		}
		os.Exit(1)
	}
}
