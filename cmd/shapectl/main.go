// Package main is the entry point for shapectl.
package main

import (
	"fmt"
	"os"

	"github.com/vyrodovalexey/restransform/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "shapectl: %v\n", err)
		os.Exit(1)
	}
}
