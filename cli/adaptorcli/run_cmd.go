package adaptorcli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/openjd-adaptors/max-openjd/adaptor"
	"github.com/openjd-adaptors/max-openjd/common/version"
)

// runCmd runs a whole session in the foreground: start, render every task,
// shut down. Useful for debugging init data without a queue.
type runCmd struct {
	initData string
	runData  []string
	host     hostFlags
}

func (c *runCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full render session in the foreground",
	}
	cmd.Flags().StringVar(&c.initData, "init-data", "", "init data: inline YAML/JSON or a file:// URI")
	cmd.Flags().StringArrayVar(&c.runData, "run-data", nil, "run data for one task (repeatable)")
	c.host.register(cmd.Flags())
	cmd.MarkFlagRequired("init-data")
	cmd.MarkFlagRequired("run-data")
	return cmd
}

func (c *runCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	workDir, err := os.MkdirTemp("", "max-openjd-")
	if err != nil {
		return errors.Wrap(err, "creating session directory")
	}
	defer os.RemoveAll(workDir)

	// The connection file is unused in foreground mode but anchors the
	// session sockets.
	a, err := newSessionAdaptor(c.initData, workDir+"/connection.json", c.host)
	if err != nil {
		return err
	}

	if err := a.OnStart(); err != nil {
		a.OnCleanup()
		return err
	}
	defer a.OnCleanup()

	for _, arg := range c.runData {
		var run adaptor.RunData
		if err := adaptor.ParseDataArg(arg, &run); err != nil {
			return errors.Wrap(err, "parsing run data")
		}
		if err := a.OnRun(run); err != nil {
			return err
		}
	}
	return a.OnStop()
}

type versionCmd struct{}

func (c *versionCmd) registerFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
	}
}

func (c *versionCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	fmt.Println(version.Version)
	return nil
}
