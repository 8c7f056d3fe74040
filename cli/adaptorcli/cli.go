// Package adaptorcli implements the max-openjd command line: the daemon
// subcommands the job actions invoke, the hidden backend and host-client
// modes, and a foreground run mode for local debugging.
package adaptorcli

import (
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

// CLI wires the max-openjd command tree.
type CLI struct {
	rootCmd  *cobra.Command
	logLevel string
}

// New builds the command tree.
func New() *CLI {
	c := &CLI{}
	c.rootCmd = &cobra.Command{
		Use:   "max-openjd",
		Short: "max-openjd runs 3ds Max render sessions for Open Job Description jobs",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := log.ParseLevel(c.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		SilenceUsage: true,
	}
	c.rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "error|warn|info|debug")

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage a background render session",
	}
	c.addCmd(daemonCmd, &daemonStartCmd{})
	c.addCmd(daemonCmd, &daemonRunCmd{})
	c.addCmd(daemonCmd, &daemonStopCmd{})
	c.rootCmd.AddCommand(daemonCmd)

	c.addCmd(c.rootCmd, &serveCmd{})
	c.addCmd(c.rootCmd, &clientCmd{})
	c.addCmd(c.rootCmd, &runCmd{})
	c.addCmd(c.rootCmd, &versionCmd{})
	return c
}

// Exec runs the CLI.
func (c *CLI) Exec() error {
	return c.rootCmd.Execute()
}

type command interface {
	registerFlags() *cobra.Command
	run(cl *CLI, cmd *cobra.Command, args []string) error
}

func (c *CLI) addCmd(parent *cobra.Command, cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	parent.AddCommand(cobraCmd)
}
