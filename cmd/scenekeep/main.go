package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
