package main

import (
	"os"

	"enclavelink/cmd/enclavelink/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
