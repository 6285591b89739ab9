package main

import (
	"fmt"
	"os"

	"fileident/cmd/fi/commands"
	"fileident/pkg/server"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(server.ExitCode(err))
	}
}
