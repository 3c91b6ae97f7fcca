package main

import (
	"os"

	"ledgerseal/cmd/ledgerseal/commands"
)

func main() {
	os.Exit(commands.Execute())
}
