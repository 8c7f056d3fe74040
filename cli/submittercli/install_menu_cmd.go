package submittercli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/openjd-adaptors/max-openjd/common/version"
	"github.com/openjd-adaptors/max-openjd/submitter"
)

// installMenuCmd writes the submit menu MaxScript into the host's startup
// scripts directory.
type installMenuCmd struct {
	startupDir string
	executable string
	developer  bool
}

func (c *installMenuCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-menu",
		Short: "Install the submit menu into 3ds Max",
	}
	cmd.Flags().StringVar(&c.startupDir, "startup-dir", "", "3ds Max startup scripts directory")
	cmd.Flags().StringVar(&c.executable, "executable", "", "submitter executable the menu launches (default: this binary)")
	cmd.Flags().BoolVar(&c.developer, "developer", false, "install with developer options enabled")
	cmd.MarkFlagRequired("startup-dir")
	return cmd
}

func (c *installMenuCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	exe := c.executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return errors.Wrap(err, "locating own executable")
		}
		exe = self
	}
	if !c.developer && os.Getenv(submitter.DeveloperModeEnv) != "" {
		c.developer = true
	}

	path, err := submitter.InstallMenu(afero.NewOsFs(), c.startupDir, exe, c.developer)
	if err != nil {
		return err
	}
	color.Green("Installed %s", path)
	fmt.Println("Restart 3ds Max to pick up the menu entry.")
	return nil
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
