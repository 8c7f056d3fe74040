package adaptorcli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openjd-adaptors/max-openjd/adaptor/daemon"
)

// serveCmd is the hidden backend mode `daemon start` re-execs into. It owns
// the render session and serves control requests until stopped.
type serveCmd struct {
	connFile string
	initData string
	host     hostFlags
}

func (c *serveCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "_serve",
		Hidden: true,
	}
	cmd.Flags().StringVar(&c.connFile, "connection-file", "", "")
	cmd.Flags().StringVar(&c.initData, "init-data", "", "")
	c.host.register(cmd.Flags())
	return cmd
}

func (c *serveCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	a, err := newSessionAdaptor(c.initData, c.connFile, c.host)
	if err != nil {
		return err
	}
	backend := daemon.NewBackend(a, filepath.Dir(c.connFile), c.connFile)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigs
		log.WithFields(log.Fields{"signal": sig}).Warn("Canceling render session")
		backend.Cancel()
	}()

	return backend.Serve()
}
