package main

import (
	"os"

	"github.com/zeromq/lcp-node/cmd/lcpnode/commands"
)

func main() {
	if err := commands.GetRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
