package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spherical/table-extractor/cmd/table-extractor/commands"
)

var (
	version = "1.0.0"
)

func main() {
	if err := commands.Execute(version); err != nil {
		if !errors.Is(err, commands.ErrReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
