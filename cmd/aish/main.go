// Command aish converts natural language instructions into shell commands
// using a locally hosted language model.
package main

import (
	"os"

	"github.com/saisasanky/aish/cli"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	os.Exit(cli.New(Version).Run(os.Args[1:]))
}
