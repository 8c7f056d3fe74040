package adaptorcli

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openjd-adaptors/max-openjd/adaptor"
	"github.com/openjd-adaptors/max-openjd/adaptor/daemon"
)

// daemonStartCmd launches the detached backend and waits for the session to
// come up, so the job's onEnter action returns only once 3ds Max is ready.
type daemonStartCmd struct {
	connFile string
	initData string
	timeout  time.Duration
	host     hostFlags
}

func (c *daemonStartCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a background render session",
	}
	cmd.Flags().StringVar(&c.connFile, "connection-file", "", "connection file the session advertises itself in")
	cmd.Flags().StringVar(&c.initData, "init-data", "", "init data: inline YAML/JSON or a file:// URI")
	cmd.Flags().DurationVar(&c.timeout, "timeout", adaptor.DefaultStartTimeout, "how long to wait for the session to come up")
	c.host.register(cmd.Flags())
	cmd.MarkFlagRequired("connection-file")
	cmd.MarkFlagRequired("init-data")
	return cmd
}

func (c *daemonStartCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	self, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "locating own executable")
	}

	serveArgs := append([]string{
		"_serve",
		"--connection-file", c.connFile,
		"--init-data", c.initData,
		"--log-level", cl.logLevel,
	}, c.host.passthrough()...)

	backend := exec.Command(self, serveArgs...)
	backend.Stdout = os.Stdout
	backend.Stderr = os.Stderr
	// New session so the backend outlives this command and ignores the
	// terminal's signals.
	backend.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := backend.Start(); err != nil {
		return errors.Wrap(err, "launching daemon backend")
	}
	go backend.Wait() // reap

	log.WithFields(log.Fields{"pid": backend.Process.Pid}).Info("Launched daemon backend")
	if err := daemon.WaitReady(c.connFile, c.timeout); err != nil {
		return errors.Wrap(err, "daemon did not become ready")
	}
	return nil
}

// daemonRunCmd renders one task through a running backend.
type daemonRunCmd struct {
	connFile string
	runData  string
}

func (c *daemonRunCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render one task in the running session",
	}
	cmd.Flags().StringVar(&c.connFile, "connection-file", "", "connection file of the session")
	cmd.Flags().StringVar(&c.runData, "run-data", "", "run data: inline YAML/JSON or a file:// URI")
	cmd.MarkFlagRequired("connection-file")
	cmd.MarkFlagRequired("run-data")
	return cmd
}

func (c *daemonRunCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	var run adaptor.RunData
	if err := adaptor.ParseDataArg(c.runData, &run); err != nil {
		return errors.Wrap(err, "parsing run data")
	}
	return daemon.Run(c.connFile, run)
}

// daemonStopCmd shuts the backend down.
type daemonStopCmd struct {
	connFile string
}

func (c *daemonStopCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running session",
	}
	cmd.Flags().StringVar(&c.connFile, "connection-file", "", "connection file of the session")
	cmd.MarkFlagRequired("connection-file")
	return cmd
}

func (c *daemonStopCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	return daemon.Stop(c.connFile)
}
