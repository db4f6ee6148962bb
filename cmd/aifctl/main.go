package main

import (
	"os"

	"github.com/aifactory/aifctl/cmd/aifctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
