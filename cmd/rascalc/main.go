package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/xplshn/rascal/pkg/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !errors.Is(err, cli.ErrReported) {
			fmt.Fprintf(os.Stderr, "rascalc: %v\n", err)
		}
		os.Exit(1)
	}
}
