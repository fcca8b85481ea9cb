package main

import (
	"os"

	"github.com/ppiankov/sitefetch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
