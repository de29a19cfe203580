// Package commands holds the lcpnode CLI subcommands. Grounded on
// burgrp-surp-go's cmd/surp/commands layout: one file per subcommand,
// a GetXCommand constructor each, wired together from root.go.
package commands

import (
	"github.com/spf13/cobra"

	lcp "github.com/zeromq/lcp-node"
)

// GetRootCommand builds the lcpnode command tree.
func GetRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lcpnode",
		Short: "lcpnode runs or inspects a LAN chat and file-transfer peer",
		Long: `lcpnode runs a single LCP node: a peer that discovers other nodes on the
local network by UDP broadcast, exchanges messages and files over a shared
UDP/TCP port, and replicates named group membership.

lcpnode itself has no interactive console; it logs discovered peers, group
membership changes, delivered messages, and finished file transfers to
standard error. Driving chat interactively, or persisting history to disk, is left
to whatever external tool embeds the underlying engine.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().IntP("port", "p", 0, "shared UDP/TCP port (default 9990)")
	cmd.PersistentFlags().StringP("interface", "i", "", "network interface to bind discovery to (default: first usable)")
	cmd.PersistentFlags().Duration("timeout", 0, "ack-wait / inactivity base unit (default 5s)")
	cmd.PersistentFlags().Duration("echo-interval", 0, "how often to announce presence (default 15s)")
	cmd.PersistentFlags().String("receive-dir", "", "directory incoming files are written to (default \"recibidos\")")
	cmd.PersistentFlags().String("broadcast-addr", "", "override the broadcast destination (mainly for loopback testing)")

	cmd.AddCommand(
		GetRunCommand(),
		GetWhoamiCommand(),
		GetVersionCommand(),
	)

	return cmd
}

func optionsFromFlags(cmd *cobra.Command) ([]lcp.Option, error) {
	var opts []lcp.Option

	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return nil, err
	}
	if port != 0 {
		opts = append(opts, lcp.WithPort(port))
	}

	iface, err := cmd.Flags().GetString("interface")
	if err != nil {
		return nil, err
	}
	if iface != "" {
		opts = append(opts, lcp.WithInterface(iface))
	}

	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}
	if timeout != 0 {
		opts = append(opts, lcp.WithTimeout(timeout))
	}

	echoInterval, err := cmd.Flags().GetDuration("echo-interval")
	if err != nil {
		return nil, err
	}
	if echoInterval != 0 {
		opts = append(opts, lcp.WithEchoInterval(echoInterval))
	}

	receiveDir, err := cmd.Flags().GetString("receive-dir")
	if err != nil {
		return nil, err
	}
	if receiveDir != "" {
		opts = append(opts, lcp.WithReceiveDir(receiveDir))
	}

	broadcastAddr, err := cmd.Flags().GetString("broadcast-addr")
	if err != nil {
		return nil, err
	}
	if broadcastAddr != "" {
		opts = append(opts, lcp.WithBroadcastAddr(broadcastAddr))
	}

	return opts, nil
}
