package main

import (
	"os"

	"github.com/blackmichael/bluesky-thread2page/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
