package main

import (
	"os"

	"supersorting.ai/cmd/sssctl/commands"
)

var version = "dev"

func main() {
	commands.SetVersion(version)
	// Errors are already printed by the printer package.
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
