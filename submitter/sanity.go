package submitter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/openjd-adaptors/max-openjd/frames"
)

// Renderers the render handlers support. V-Ray and Corona class names embed
// version suffixes, so those match by prefix.
var supportedRenderers = []string{
	"Default_Scanline_Renderer",
	"ART_Renderer",
}

var supportedRendererPrefixes = []string{
	"Corona",
	"V_Ray_6",
	"V_Ray_GPU_6",
}

// RendererSupported reports whether a render handler exists for the class.
func RendererSupported(name string) bool {
	for _, r := range supportedRenderers {
		if name == r {
			return true
		}
	}
	for _, p := range supportedRendererPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// CheckError collects everything wrong with a submission so the user sees
// all problems at once.
type CheckError struct {
	Problems []string
}

func (e *CheckError) Error() string {
	return "the submission failed validation:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// SanityCheck validates the settings against the scene before any bundle is
// written.
func SanityCheck(fs afero.Fs, s Settings, m SceneManifest) error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, errors.Errorf(format, args...).Error())
	}

	if s.Name == "" {
		add("no job name was given")
	}
	if m.SceneFile == "" {
		add("no scene file is open")
	} else if exists, _ := afero.Exists(fs, m.SceneFile); !exists {
		add("the scene file %s does not exist on disk", m.SceneFile)
	}
	if !m.Saved {
		add("the scene has unsaved changes, save it before submitting")
	}

	if s.FrameOverride {
		if err := frames.Validate(s.Frames); err != nil {
			add("invalid frame range %q: %v", s.Frames, err)
		}
	}

	sets, err := selectStateSets(s, m)
	if err != nil {
		add("%v", err)
		sets = nil
	}
	for _, set := range sets {
		if !RendererSupported(set.Renderer) {
			add("state set %s uses the unsupported renderer %s", set.Name, set.Renderer)
		}
		if !s.FrameOverride {
			if err := frames.Validate(set.Frames); err != nil {
				add("state set %s has an invalid frame range %q: %v", set.Name, set.Frames, err)
			}
		}
		if set.ImageWidth <= 0 || set.ImageHeight <= 0 {
			add("state set %s has a non-positive resolution %dx%d", set.Name, set.ImageWidth, set.ImageHeight)
		}
		if set.OutputDir == "" {
			add("state set %s has no output path", set.Name)
		}
		if set.OutputName == "" {
			add("state set %s has no output file name", set.Name)
		}
	}

	switch s.CameraSelection {
	case AllCamerasSelection:
		if len(m.Cameras) == 0 {
			add("the scene has no cameras")
		}
	case AllStereoCamerasSelection:
		if len(m.CameraNames(AllStereoCamerasSelection)) == 0 {
			add("the scene has no stereo cameras")
		}
	default:
		if !m.HasCamera(s.CameraSelection) {
			add("the scene has no camera named %s", s.CameraSelection)
		}
	}

	if len(problems) > 0 {
		return &CheckError{Problems: problems}
	}
	return nil
}

// selectStateSets resolves the state-set selection against the scene,
// applying the submitter's output and frame overrides. A scene without state
// sets yields one synthetic set so the job always has a step.
func selectStateSets(s Settings, m SceneManifest) ([]SceneStateSet, error) {
	sets := m.StateSets
	if len(sets) == 0 {
		sets = []SceneStateSet{{Name: "Main"}}
	}

	if s.StateSetSelection != "" && s.StateSetSelection != AllStateSets {
		var found *SceneStateSet
		for i := range sets {
			if sets[i].Name == s.StateSetSelection {
				found = &sets[i]
				break
			}
		}
		if found == nil {
			return nil, errors.Errorf("the scene has no state set named %s", s.StateSetSelection)
		}
		sets = []SceneStateSet{*found}
	}

	resolved := make([]SceneStateSet, len(sets))
	for i, set := range sets {
		if set.Renderer == "" {
			set.Renderer = m.Renderer
		}
		if s.FrameOverride || set.Frames == "" {
			set.Frames = s.Frames
		}
		if s.OutputDir != "" {
			set.OutputDir = s.OutputDir
		}
		if s.OutputName != "" {
			set.OutputName = s.OutputName
		}
		if s.OutputFormat != "" {
			set.OutputFormat = s.OutputFormat
		}
		resolved[i] = set
	}
	return resolved, nil
}
