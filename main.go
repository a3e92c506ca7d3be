package main

import (
	"os"

	"github.com/turion/turionlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
