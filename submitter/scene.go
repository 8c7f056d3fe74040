package submitter

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SceneCamera is one renderable camera of the scene.
type SceneCamera struct {
	Name   string `json:"name"`
	Stereo bool   `json:"stereo"`
}

// SceneStateSet carries the render configuration of one state set as read
// from the scene.
type SceneStateSet struct {
	Name         string `json:"name"`
	Renderer     string `json:"renderer"`
	Frames       string `json:"frames"`
	OutputDir    string `json:"output_dir"`
	OutputName   string `json:"output_name"`
	OutputFormat string `json:"output_format"`
	ImageWidth   int    `json:"image_width"`
	ImageHeight  int    `json:"image_height"`
}

// SceneManifest is the scene inventory the in-host menu script exports
// before launching the submitter.
type SceneManifest struct {
	SceneFile   string `json:"scene_file"`
	ProjectPath string `json:"project_path"`
	Saved       bool   `json:"saved"`
	// Renderer is the scene's active renderer, used for state sets that
	// do not override it and for scenes without state sets.
	Renderer  string          `json:"renderer"`
	Cameras   []SceneCamera   `json:"cameras"`
	StateSets []SceneStateSet `json:"state_sets"`
}

// ReadSceneManifest parses the manifest JSON written by the menu script.
func ReadSceneManifest(fs afero.Fs, path string) (SceneManifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return SceneManifest{}, errors.Wrap(err, "reading scene manifest")
	}
	var m SceneManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return SceneManifest{}, errors.Wrapf(err, "parsing scene manifest %s", path)
	}
	if m.SceneFile == "" {
		return SceneManifest{}, errors.Errorf("scene manifest %s names no scene file", path)
	}
	return m, nil
}

// CameraNames returns the names of the cameras matching the selection:
// every camera, only the stereo cameras, or the single named one.
func (m SceneManifest) CameraNames(selection string) []string {
	var names []string
	for _, c := range m.Cameras {
		switch selection {
		case AllCamerasSelection:
			names = append(names, c.Name)
		case AllStereoCamerasSelection:
			if c.Stereo {
				names = append(names, c.Name)
			}
		default:
			if c.Name == selection {
				names = append(names, c.Name)
			}
		}
	}
	return names
}

// HasCamera reports whether the scene contains the named camera.
func (m SceneManifest) HasCamera(name string) bool {
	for _, c := range m.Cameras {
		if c.Name == name {
			return true
		}
	}
	return false
}
