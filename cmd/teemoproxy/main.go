package main

import (
	"os"

	"github.com/mvacoimbra/where-is-teemo/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
