package main

import (
	"os"

	"lanehud/cmd/lanehud/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
