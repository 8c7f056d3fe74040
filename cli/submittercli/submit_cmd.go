package submittercli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/openjd-adaptors/max-openjd/submitter"
)

// submitCmd validates the submission and writes the job bundle, optionally
// uploading it to a queue endpoint.
type submitCmd struct {
	manifestPath string
	bundleDir    string
	endpoint     string
	force        bool
	developer    bool
	queueParams  []string

	settings submitter.Settings
	noSticky bool
}

func (c *submitCmd) registerFlags() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Build a job bundle from the open scene",
	}
	f := cmd.Flags()
	f.StringVar(&c.manifestPath, "scene-manifest", "", "scene manifest JSON exported by the in-host menu")
	f.StringVar(&c.bundleDir, "bundle-dir", "", "directory to write the bundle into (default: next to the scene)")
	f.StringVar(&c.endpoint, "endpoint", "", "queue endpoint to upload the bundle to")
	f.BoolVar(&c.force, "force", false, "overwrite an existing bundle directory")
	f.BoolVar(&c.developer, "developer", false, "enable developer options")
	f.BoolVar(&c.noSticky, "no-sticky", false, "ignore saved sticky settings")
	f.StringArrayVar(&c.queueParams, "queue-parameter", nil, "queue parameter as name=value (repeatable)")

	s := &c.settings
	f.StringVar(&s.Name, "name", "", "job name (default: scene file name)")
	f.StringVar(&s.Description, "description", "", "job description")
	f.BoolVar(&s.FrameOverride, "override-frames", false, "override the scene frame ranges")
	f.StringVar(&s.Frames, "frames", "", "frame range, e.g. 1-3,8,11-15")
	f.StringVar(&s.StateSetSelection, "state-set", submitter.AllStateSets, "state set to render")
	f.StringVar(&s.CameraSelection, "camera", submitter.AllCamerasSelection, "camera to render")
	f.StringVar(&s.OutputDir, "output-dir", "", "override the render output directory")
	f.StringVar(&s.OutputName, "output-name", "", "override the output file name, e.g. beauty_###")
	f.StringVar(&s.OutputFormat, "output-format", "", "override the output format, e.g. .png")
	f.BoolVar(&s.StrictErrorChecking, "strict-error-checking", false, "fail tasks on renderer errors and warnings")
	f.StringArrayVar(&s.InputFilenames, "attach-file", nil, "additional input file (repeatable)")
	f.StringArrayVar(&s.InputDirectories, "attach-dir", nil, "additional input directory (repeatable)")
	f.StringArrayVar(&s.OutputDirectories, "output-attach-dir", nil, "additional output directory (repeatable)")
	f.StringVar(&s.AdaptorOverridePath, "override-adaptor-path", "", "developer: directory with an adaptor build to use instead of the installed one")

	cmd.MarkFlagRequired("scene-manifest")
	return cmd
}

// applySticky overlays the scene's saved settings onto the fields whose
// flags were not given on this invocation. Explicit flags always win.
func (c *submitCmd) applySticky(fs afero.Fs, cmd *cobra.Command, sceneFile string) error {
	sticky := c.settings
	if err := submitter.LoadSticky(fs, sceneFile, &sticky); err != nil {
		return err
	}
	changed := cmd.Flags().Changed
	if !changed("description") {
		c.settings.Description = sticky.Description
	}
	if !changed("override-frames") {
		c.settings.FrameOverride = sticky.FrameOverride
	}
	if !changed("frames") {
		c.settings.Frames = sticky.Frames
	}
	if !changed("state-set") {
		c.settings.StateSetSelection = sticky.StateSetSelection
	}
	if !changed("camera") {
		c.settings.CameraSelection = sticky.CameraSelection
	}
	if !changed("strict-error-checking") {
		c.settings.StrictErrorChecking = sticky.StrictErrorChecking
	}
	if !changed("attach-file") {
		c.settings.InputFilenames = sticky.InputFilenames
	}
	if !changed("attach-dir") {
		c.settings.InputDirectories = sticky.InputDirectories
	}
	if !changed("output-attach-dir") {
		c.settings.OutputDirectories = sticky.OutputDirectories
	}
	return nil
}

func (c *submitCmd) run(cl *CLI, cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()
	manifest, err := submitter.ReadSceneManifest(fs, c.manifestPath)
	if err != nil {
		return err
	}

	if !c.developer && os.Getenv(submitter.DeveloperModeEnv) != "" {
		c.developer = true
	}
	if !c.developer {
		c.settings.AdaptorOverridePath = ""
	}

	if !c.noSticky {
		if err := c.applySticky(fs, cmd, manifest.SceneFile); err != nil {
			return err
		}
	}
	if c.settings.Name == "" {
		c.settings.Name = strings.TrimSuffix(filepath.Base(manifest.SceneFile), filepath.Ext(manifest.SceneFile))
	}
	if c.bundleDir == "" {
		c.bundleDir = filepath.Join(filepath.Dir(manifest.SceneFile), c.settings.Name+"_bundle")
	}

	queue, err := submitter.ParseQueueParameters(c.queueParams)
	if err != nil {
		return err
	}

	sub := submitter.New()
	sub.Force(c.force)

	in, err := sub.Prepare(c.settings, manifest)
	if err != nil {
		if check, ok := err.(*submitter.CheckError); ok {
			color.Red("The submission is not valid:")
			for _, p := range check.Problems {
				fmt.Printf("  %s %s\n", color.RedString("✗"), p)
			}
			return errors.New("fix the problems above and submit again")
		}
		return err
	}

	if err := sub.WriteBundle(c.bundleDir, c.settings, manifest, queue); err != nil {
		return err
	}

	color.Green("Job bundle written")
	fmt.Print(submitter.Summary(in, c.bundleDir))

	if c.endpoint != "" {
		if err := sub.Upload(c.endpoint, c.bundleDir); err != nil {
			return err
		}
		color.Green("Submitted to %s", c.endpoint)
	}
	return nil
}
