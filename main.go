package main

import (
	"os"

	"github.com/charujain10/smartchair-dispatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
