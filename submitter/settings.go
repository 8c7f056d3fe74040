// Package submitter collects render settings, validates them against the
// scene and assembles the job bundle for submission.
package submitter

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/openjd-adaptors/max-openjd/bundle"
)

// Sentinel selections shared with the job template builder.
const (
	AllStateSets              = bundle.AllStateSets
	AllCamerasSelection       = bundle.AllCameras
	AllStereoCamerasSelection = bundle.AllStereoCameras
)

// Settings are the submission parameters collected from flags and sticky
// settings.
type Settings struct {
	Name        string
	Description string

	// FrameOverride replaces the per-state-set frame ranges with Frames.
	FrameOverride bool
	Frames        string

	StateSetSelection string
	CameraSelection   string

	OutputDir    string
	OutputName   string
	OutputFormat string

	StrictErrorChecking bool

	InputFilenames    []string
	InputDirectories  []string
	OutputDirectories []string

	// AdaptorOverridePath is a developer option, empty in normal use.
	AdaptorOverridePath string
}

// stickySettings are the fields persisted beside the scene between
// submissions. Everything scene-independent (job name defaults to the scene
// name and is recomputed) stays out.
type stickySettings struct {
	Description         string   `json:"description"`
	FrameOverride       bool     `json:"override_frame_range"`
	Frames              string   `json:"frame_list"`
	StateSetSelection   string   `json:"state_set_selection"`
	CameraSelection     string   `json:"camera_selection"`
	StrictErrorChecking bool     `json:"strict_error_checking"`
	InputFilenames      []string `json:"input_filenames"`
	InputDirectories    []string `json:"input_directories"`
	OutputDirectories   []string `json:"output_directories"`
}

// StickyPath is the sticky settings file for a scene, stored beside it.
func StickyPath(sceneFile string) string {
	base := strings.TrimSuffix(sceneFile, filepath.Ext(sceneFile))
	return base + ".render_settings.json"
}

// LoadSticky overlays the scene's saved settings onto s. A missing file is
// not an error, the defaults stand.
func LoadSticky(fs afero.Fs, sceneFile string, s *Settings) error {
	path := StickyPath(sceneFile)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if exists, _ := afero.Exists(fs, path); !exists {
			return nil
		}
		return errors.Wrap(err, "reading sticky settings")
	}
	var sticky stickySettings
	if err := json.Unmarshal(data, &sticky); err != nil {
		return errors.Wrapf(err, "parsing sticky settings %s", path)
	}

	s.Description = sticky.Description
	s.FrameOverride = sticky.FrameOverride
	s.Frames = sticky.Frames
	if sticky.StateSetSelection != "" {
		s.StateSetSelection = sticky.StateSetSelection
	}
	if sticky.CameraSelection != "" {
		s.CameraSelection = sticky.CameraSelection
	}
	s.StrictErrorChecking = sticky.StrictErrorChecking
	s.InputFilenames = sticky.InputFilenames
	s.InputDirectories = sticky.InputDirectories
	s.OutputDirectories = sticky.OutputDirectories

	log.WithFields(log.Fields{"file": path}).Debug("Loaded sticky settings")
	return nil
}

// SaveSticky persists the sticky fields of s beside the scene.
func SaveSticky(fs afero.Fs, sceneFile string, s Settings) error {
	sticky := stickySettings{
		Description:         s.Description,
		FrameOverride:       s.FrameOverride,
		Frames:              s.Frames,
		StateSetSelection:   s.StateSetSelection,
		CameraSelection:     s.CameraSelection,
		StrictErrorChecking: s.StrictErrorChecking,
		InputFilenames:      s.InputFilenames,
		InputDirectories:    s.InputDirectories,
		OutputDirectories:   s.OutputDirectories,
	}
	data, err := json.MarshalIndent(sticky, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling sticky settings")
	}
	path := StickyPath(sceneFile)
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing sticky settings %s", path)
	}
	return nil
}
