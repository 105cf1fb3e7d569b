package main

import (
	"os"

	"github.com/spec-kit/sla-engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
