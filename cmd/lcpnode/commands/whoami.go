package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	lcp "github.com/zeromq/lcp-node"
)

// GetWhoamiCommand brings up a node just long enough to print the
// random PeerID it generated. Every start draws a fresh id, so a later
// `run` announces a different one.
func GetWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Start a node and print the random PeerID it generated",
		RunE:  runWhoami,
	}
}

func runWhoami(cmd *cobra.Command, args []string) error {
	opts, err := optionsFromFlags(cmd)
	if err != nil {
		return err
	}

	engine, err := lcp.New(opts...)
	if err != nil {
		return fmt.Errorf("lcpnode: %w", err)
	}
	defer engine.Shutdown()

	id := engine.ID()
	fmt.Printf("%x\n", id[:])
	return nil
}
