package main

import (
	"os"

	"supportmesh/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
