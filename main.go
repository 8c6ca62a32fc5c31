package main

import (
	"os"

	"github.com/openabap/adtflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
