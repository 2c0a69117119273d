// elmdev compiles an Elm entry point, serves the output directory and recompiles on change.
package main

import (
	"os"

	"github.com/hupe1980/elmdev/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
