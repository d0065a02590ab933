package main

import (
	"os"

	"github.com/brianndofor/clint/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
