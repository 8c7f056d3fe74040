// Package submittercli implements the max-submitter command line.
package submittercli

import (
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

// CLI wires the max-submitter command tree.
type CLI struct {
	rootCmd  *cobra.Command
	logLevel string
}

// New builds the command tree.
func New() *CLI {
	c := &CLI{}
	c.rootCmd = &cobra.Command{
		Use:   "max-submitter",
		Short: "max-submitter builds Open Job Description bundles from 3ds Max scenes",
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

	c.addCmd(&submitCmd{})
	c.addCmd(&installMenuCmd{})
	c.addCmd(&versionCmd{})
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

func (c *CLI) addCmd(cmd command) {
	cobraCmd := cmd.registerFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.run(c, innerCmd, args)
	}
	c.rootCmd.AddCommand(cobraCmd)
}
