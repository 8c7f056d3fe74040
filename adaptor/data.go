package adaptor

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// InitData configures a render session. It arrives through the daemon's
// --init-data argument as YAML or JSON, either inline or as a file:// URI.
type InitData struct {
	Renderer            string `yaml:"renderer" json:"renderer"`
	SceneFile           string `yaml:"scene_file" json:"scene_file"`
	StateSet            string `yaml:"state_set,omitempty" json:"state_set,omitempty"`
	Camera              string `yaml:"camera,omitempty" json:"camera,omitempty"`
	OutputFilePath      string `yaml:"output_file_path,omitempty" json:"output_file_path,omitempty"`
	OutputFileName      string `yaml:"output_file_name,omitempty" json:"output_file_name,omitempty"`
	OutputFileFormat    string `yaml:"output_file_format,omitempty" json:"output_file_format,omitempty"`
	ImageWidth          int    `yaml:"image_width,omitempty" json:"image_width,omitempty"`
	ImageHeight         int    `yaml:"image_height,omitempty" json:"image_height,omitempty"`
	StrictErrorChecking bool   `yaml:"strict_error_checking,omitempty" json:"strict_error_checking,omitempty"`
}

// RunData parameterizes one task: the frame to render and optionally the
// camera, when the job renders every camera in the scene.
type RunData struct {
	Frame  *int   `yaml:"frame" json:"frame"`
	Camera string `yaml:"camera,omitempty" json:"camera,omitempty"`
}

// Validate checks the init data the way the adaptor schema does.
func (d InitData) Validate() error {
	if d.Renderer == "" {
		return errors.New("init data is missing the renderer")
	}
	if d.SceneFile == "" {
		return errors.New("init data is missing the scene file")
	}
	if _, err := os.Stat(d.SceneFile); err != nil {
		return errors.Wrapf(err, "scene file %s is not readable", d.SceneFile)
	}
	// Zero means the key was omitted and the scene's resolution stands.
	if d.ImageWidth < 0 || d.ImageHeight < 0 {
		return errors.Errorf("image dimensions must not be negative, got %dx%d", d.ImageWidth, d.ImageHeight)
	}
	return nil
}

// Validate checks the run data for a task.
func (d RunData) Validate() error {
	if d.Frame == nil {
		return errors.New("run data is missing the frame")
	}
	return nil
}

// ParseDataArg resolves a --init-data or --run-data argument. The value is
// either an inline YAML/JSON document or a file:// URI pointing at one.
func ParseDataArg(arg string, out interface{}) error {
	if strings.TrimSpace(arg) == "" {
		return nil
	}
	doc := []byte(arg)
	if strings.HasPrefix(arg, "file://") {
		b, err := os.ReadFile(strings.TrimPrefix(arg, "file://"))
		if err != nil {
			return errors.Wrap(err, "reading data file")
		}
		doc = b
	}
	if err := yaml.Unmarshal(doc, out); err != nil {
		return errors.Wrap(err, "parsing data document")
	}
	return nil
}
