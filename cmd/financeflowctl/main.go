package main

import (
	"os"

	"financeflow/cmd/financeflowctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
