package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	lcp "github.com/zeromq/lcp-node"
)

// GetRunCommand starts a node and logs its activity until interrupted.
// Grounded on gyre's cmd/monitor ping(): bring up a node, range over its
// event channel, print what happened, exit on signal. Generalized from
// a single ZRE events channel to LCP's three independent streams
// (events, messages, file notifications), fanned into one select loop.
func GetRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node and log discovery/message/file activity",
		RunE:  runRun,
	}
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	opts, err := optionsFromFlags(cmd)
	if err != nil {
		return err
	}

	engine, err := lcp.New(opts...)
	if err != nil {
		return fmt.Errorf("lcpnode: %w", err)
	}
	defer engine.Shutdown()

	selfID := engine.ID()
	logrus.WithField("peer_id", fmt.Sprintf("%x", selfID[:])).Info("node started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	events := engine.Events()
	incoming := engine.Incoming()
	files := engine.IncomingFiles()

	for {
		select {
		case <-sig:
			logrus.Info("shutting down")
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"type":  ev.Type,
				"peer":  fmt.Sprintf("%x", ev.Peer[:4]),
				"group": ev.Group,
			}).Info("event")

		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"from":      fmt.Sprintf("%x", msg.From[:4]),
				"broadcast": msg.Broadcast,
				"group":     msg.Group,
			}).Infof("message: %s", msg.Text)

		case fn, ok := <-files:
			if !ok {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"from":    fmt.Sprintf("%x", fn.From[:4]),
				"path":    fn.Path,
				"size":    fn.Size,
				"success": fn.Success,
			}).Info("file transfer finished")
		}
	}
}
