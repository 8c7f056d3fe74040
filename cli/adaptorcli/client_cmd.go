package adaptorcli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/openjd-adaptors/max-openjd/adaptor"
	"github.com/openjd-adaptors/max-openjd/client"
	"github.com/openjd-adaptors/max-openjd/client/maxscript"
)

// clientCmd is the hidden host-client mode the adaptor launches. It starts
// 3ds Max, connects back to the adaptor's action socket and executes actions
// until told to close.
type clientCmd struct {
	host hostFlags
}

func (c *clientCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "_client",
		Hidden: true,
	}
	c.host.register(cmd.Flags())
	return cmd
}

func (c *clientCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	socket := os.Getenv(adaptor.ServerPathEnv)
	if socket == "" {
		return errors.Errorf("%s is not set; the client must be launched by the adaptor", adaptor.ServerPathEnv)
	}

	eng, err := maxscript.StartPipeEngine(c.host.argv(), os.Stdout)
	if err != nil {
		return err
	}

	mc, err := client.New(socket, eng, os.Stdout)
	if err != nil {
		eng.Close()
		return err
	}
	return mc.Poll()
}
