package main

import (
	"os"

	"czsc-engine/cmd/czsc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
