package bundle

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Camera and state set selection sentinels shared with the submitter UI.
const (
	AllCameras       = "All Cameras"
	AllStereoCameras = "All Stereo Cameras"
	AllStateSets     = "All State Sets"
)

// UIGroupLabel groups the 3dsMax parameters in the submitter dialog.
const UIGroupLabel = "3dsMax Settings"

// AdaptorCommand is the adaptor binary the job actions invoke.
const AdaptorCommand = "max-openjd"

// AllowedExtensions are the output image formats offered by the submitter.
var AllowedExtensions = []string{
	".avi", ".bmp", ".cin", ".eps", ".exr", ".hdr", ".jpg",
	".png", ".rla", ".rpf", ".tga", ".tif", ".dds",
}

// StateSet carries the per-state-set render configuration. Scenes without
// state sets submit a single synthetic entry.
type StateSet struct {
	Name         string
	Renderer     string
	Frames       string
	OutputDir    string
	OutputName   string
	OutputFormat string
	ImageWidth   int
	ImageHeight  int
	GroupLabel   string
}

// BuildInput is everything the template builder needs for one submission.
type BuildInput struct {
	Name        string
	Description string

	// CameraSelection is a camera name, AllCameras or AllStereoCameras.
	CameraSelection string
	// Cameras are the scene cameras matching the selection.
	Cameras []string

	StateSets           []StateSet
	StrictErrorChecking bool

	// AdaptorOverridePath enables the developer adaptor-override
	// environment when non-empty.
	AdaptorOverridePath string
}

func (in BuildInput) specificCamera() bool {
	return in.CameraSelection != AllCameras && in.CameraSelection != AllStereoCameras
}

func (in BuildInput) validate() error {
	if in.Name == "" {
		return errors.New("no job name was given")
	}
	if len(in.StateSets) == 0 {
		return errors.New("at least one state set is required")
	}
	return nil
}

// multiples reports whether the state sets disagree on the given field.
func multiples(sets []StateSet, get func(StateSet) string) bool {
	for _, s := range sets[1:] {
		if get(s) != get(sets[0]) {
			return true
		}
	}
	return false
}

// The per-state-set parameters: field accessor, parameter name and the init
// data key the parameter feeds.
var stepParams = []struct {
	get      func(StateSet) string
	param    string
	initKey  string
	dataType string
}{
	{func(s StateSet) string { return s.OutputDir }, "OutputFilePath", "output_file_path", "PATH"},
	{func(s StateSet) string { return s.OutputFormat }, "OutputFileFormat", "output_file_format", "STRING"},
	{func(s StateSet) string { return fmt.Sprint(s.ImageWidth) }, "ImageWidth", "image_width", "INT"},
	{func(s StateSet) string { return fmt.Sprint(s.ImageHeight) }, "ImageHeight", "image_height", "INT"},
}

// BuildTemplate assembles the job template for a submission: the parameter
// definitions, one step per state set and, for developer builds, the adaptor
// override environment.
func BuildTemplate(in BuildInput) (Template, error) {
	if err := in.validate(); err != nil {
		return Template{}, err
	}

	t := Template{
		SpecificationVersion: SpecificationVersion,
		Name:                 in.Name,
		Description:          in.Description,
		ParameterDefinitions: defaultParameterDefinitions(in),
	}

	multiFrames := multiples(in.StateSets, func(s StateSet) string { return s.Frames })
	if multiFrames {
		t.ParameterDefinitions = splitPerStateSet(t.ParameterDefinitions, "Frames", in.StateSets)
	}
	for _, sp := range stepParams {
		if multiples(in.StateSets, sp.get) {
			t.ParameterDefinitions = splitPerStateSet(t.ParameterDefinitions, sp.param, in.StateSets)
		}
	}

	if in.specificCamera() {
		t.ParameterDefinitions = append(t.ParameterDefinitions, ParameterDefinition{
			Name: "Camera",
			Type: "STRING",
			UserInterface: &UserInterface{
				Control:    "DROPDOWN_LIST",
				GroupLabel: UIGroupLabel,
			},
			Description:   "The camera to render.",
			AllowedValues: in.Cameras,
		})
	}

	for _, set := range in.StateSets {
		t.Steps = append(t.Steps, buildStep(in, set, multiFrames))
	}

	if in.AdaptorOverridePath != "" {
		t.ParameterDefinitions = append(t.ParameterDefinitions, ParameterDefinition{
			Name:        "OverrideAdaptorPath",
			Type:        "PATH",
			ObjectType:  "DIRECTORY",
			DataFlow:    "IN",
			Description: "Directory containing an adaptor build that overrides the installed one.",
			Default:     in.AdaptorOverridePath,
		})
		t.JobEnvironments = append(t.JobEnvironments, Environment{
			Name:        "OverrideAdaptor",
			Description: "Puts the developer adaptor build first on the PATH.",
			Variables: map[string]string{
				"PATH": "{{Param.OverrideAdaptorPath}}:{{Env.PATH}}",
			},
		})
	}

	return t, nil
}

func defaultParameterDefinitions(in BuildInput) []ParameterDefinition {
	strict := "false"
	if in.StrictErrorChecking {
		strict = "true"
	}
	return []ParameterDefinition{
		{
			Name:       "MaxSceneFile",
			Type:       "PATH",
			ObjectType: "FILE",
			DataFlow:   "IN",
			UserInterface: &UserInterface{
				Control:    "CHOOSE_INPUT_FILE",
				Label:      "Max Scene File",
				GroupLabel: UIGroupLabel,
				FileFilters: []FileFilter{
					{Label: "Max Scene Files", Patterns: []string{"*.max"}},
					{Label: "All Files", Patterns: []string{"*"}},
				},
			},
			Description: "The Max scene file to render.",
		},
		{
			Name:        "Frames",
			Type:        "STRING",
			Description: "The frames to render. E.g. 1-3,8,11-15",
			UserInterface: &UserInterface{
				Control:    "LINE_EDIT",
				Label:      "Frames",
				GroupLabel: UIGroupLabel,
			},
		},
		{
			Name:       "OutputFilePath",
			Type:       "PATH",
			ObjectType: "DIRECTORY",
			DataFlow:   "OUT",
			UserInterface: &UserInterface{
				Control:    "CHOOSE_DIRECTORY",
				Label:      "Output File Path",
				GroupLabel: UIGroupLabel,
			},
			Description: "The render output path.",
		},
		{
			Name:        "OutputFileFormat",
			Type:        "STRING",
			Description: "The file format of the output.",
			UserInterface: &UserInterface{
				Control:    "DROPDOWN_LIST",
				Label:      "Output File Format",
				GroupLabel: UIGroupLabel,
			},
			AllowedValues: AllowedExtensions,
		},
		{
			Name:        "ImageWidth",
			Type:        "INT",
			MinValue:    1,
			Description: "The image width of the output.",
			UserInterface: &UserInterface{
				Control:    "SPIN_BOX",
				Label:      "Image Width",
				GroupLabel: UIGroupLabel,
			},
		},
		{
			Name:        "ImageHeight",
			Type:        "INT",
			MinValue:    1,
			Description: "The image height of the output.",
			UserInterface: &UserInterface{
				Control:    "SPIN_BOX",
				Label:      "Image Height",
				GroupLabel: UIGroupLabel,
			},
		},
		{
			Name:        "StrictErrorChecking",
			Type:        "STRING",
			Description: "Fail the render when Max reports errors or warnings.",
			Default:     strict,
			AllowedValues: []string{
				"true", "false",
			},
			UserInterface: &UserInterface{
				Control:    "DROPDOWN_LIST",
				Label:      "Strict Error Checking",
				GroupLabel: UIGroupLabel,
			},
		},
	}
}

// splitPerStateSet replaces one shared parameter definition with a copy per
// state set, named <StateSet><Param> and grouped under the state set's label.
func splitPerStateSet(defs []ParameterDefinition, name string, sets []StateSet) []ParameterDefinition {
	var single ParameterDefinition
	kept := defs[:0]
	for _, d := range defs {
		if d.Name == name {
			single = d
			continue
		}
		kept = append(kept, d)
	}
	for _, set := range sets {
		dup := single
		dup.Name = set.Name + name
		if single.UserInterface != nil {
			ui := *single.UserInterface
			ui.GroupLabel = set.GroupLabel
			dup.UserInterface = &ui
		}
		kept = append(kept, dup)
	}
	return kept
}

func buildStep(in BuildInput, set StateSet, multiFrames bool) Step {
	frameRange := "{{Param.Frames}}"
	if multiFrames {
		frameRange = "{{Param." + set.Name + "Frames}}"
	}

	taskParams := []TaskParameter{
		{Name: "Frame", Type: "INT", Range: frameRange},
	}
	runData := "frame: {{Task.Param.Frame}}\n"
	if !in.specificCamera() {
		taskParams = append(taskParams, TaskParameter{Name: "Camera", Type: "STRING", Range: in.Cameras})
		runData += "camera: '{{Task.Param.Camera}}'\n"
	}

	initData := initDataDocument(in, set)

	connectionFile := "{{Session.WorkingDirectory}}/connection.json"
	return Step{
		Name: set.Name,
		ParameterSpace: ParameterSpace{
			TaskParameterDefinitions: taskParams,
		},
		StepEnvironments: []Environment{
			{
				Name:        "3dsMax",
				Description: "Runs 3ds Max in the background with the scene loaded.",
				Script: &Script{
					EmbeddedFiles: []EmbeddedFile{
						{Name: "initData", Filename: "init-data.yaml", Type: "TEXT", Data: initData},
					},
					Actions: Actions{
						OnEnter: &Action{
							Command: AdaptorCommand,
							Args: []string{
								"daemon", "start",
								"--connection-file", connectionFile,
								"--init-data", "file://{{Env.File.initData}}",
							},
							Cancelation: &Cancelation{Mode: "NOTIFY_THEN_TERMINATE"},
						},
						OnExit: &Action{
							Command: AdaptorCommand,
							Args: []string{
								"daemon", "stop",
								"--connection-file", connectionFile,
							},
							Cancelation: &Cancelation{Mode: "NOTIFY_THEN_TERMINATE"},
						},
					},
				},
			},
		},
		Script: Script{
			EmbeddedFiles: []EmbeddedFile{
				{Name: "runData", Filename: "run-data.yaml", Type: "TEXT", Data: runData},
			},
			Actions: Actions{
				OnRun: &Action{
					Command: AdaptorCommand,
					Args: []string{
						"daemon", "run",
						"--connection-file", connectionFile,
						"--run-data", "file://{{Task.File.runData}}",
					},
					Cancelation: &Cancelation{Mode: "NOTIFY_THEN_TERMINATE"},
				},
			},
		},
	}
}

// initDataDocument renders the init data embedded file for one step. Values
// that never differ between state sets are written literally; the rest
// reference job parameters, split per state set when they disagree.
func initDataDocument(in BuildInput, set StateSet) string {
	var b strings.Builder
	b.WriteString("scene_file: '{{Param.MaxSceneFile}}'\n")
	b.WriteString("strict_error_checking: {{Param.StrictErrorChecking}}\n")
	fmt.Fprintf(&b, "renderer: %s\n", set.Renderer)
	if set.Name != "" {
		fmt.Fprintf(&b, "state_set: %s\n", set.Name)
	}
	fmt.Fprintf(&b, "output_file_name: %s\n", set.OutputName)

	for _, sp := range stepParams {
		param := sp.param
		if multiples(in.StateSets, sp.get) {
			param = set.Name + sp.param
		}
		if sp.dataType == "INT" {
			fmt.Fprintf(&b, "%s: {{Param.%s}}\n", sp.initKey, param)
		} else {
			fmt.Fprintf(&b, "%s: '{{Param.%s}}'\n", sp.initKey, param)
		}
	}

	if in.specificCamera() {
		b.WriteString("camera: '{{Param.Camera}}'\n")
	}
	return b.String()
}

// BuildParameterValues produces the parameter values document matching the
// template from BuildTemplate.
func BuildParameterValues(in BuildInput, sceneFile string) (ParameterValues, error) {
	if err := in.validate(); err != nil {
		return ParameterValues{}, err
	}

	strict := "false"
	if in.StrictErrorChecking {
		strict = "true"
	}

	pv := ParameterValues{}
	pv.ParameterValues = append(pv.ParameterValues, ParameterValue{Name: "MaxSceneFile", Value: sceneFile})

	appendSplit := func(name string, get func(StateSet) interface{}, differ bool) {
		if differ {
			for _, set := range in.StateSets {
				pv.ParameterValues = append(pv.ParameterValues,
					ParameterValue{Name: set.Name + name, Value: get(set)})
			}
		} else {
			pv.ParameterValues = append(pv.ParameterValues,
				ParameterValue{Name: name, Value: get(in.StateSets[0])})
		}
	}

	appendSplit("Frames",
		func(s StateSet) interface{} { return s.Frames },
		multiples(in.StateSets, func(s StateSet) string { return s.Frames }))
	appendSplit("OutputFilePath",
		func(s StateSet) interface{} { return s.OutputDir },
		multiples(in.StateSets, func(s StateSet) string { return s.OutputDir }))
	appendSplit("OutputFileFormat",
		func(s StateSet) interface{} { return s.OutputFormat },
		multiples(in.StateSets, func(s StateSet) string { return s.OutputFormat }))

	appendSplit("ImageWidth",
		func(s StateSet) interface{} { return s.ImageWidth },
		multiples(in.StateSets, func(s StateSet) string { return fmt.Sprint(s.ImageWidth) }))
	appendSplit("ImageHeight",
		func(s StateSet) interface{} { return s.ImageHeight },
		multiples(in.StateSets, func(s StateSet) string { return fmt.Sprint(s.ImageHeight) }))

	pv.ParameterValues = append(pv.ParameterValues, ParameterValue{Name: "StrictErrorChecking", Value: strict})

	if in.specificCamera() {
		pv.ParameterValues = append(pv.ParameterValues, ParameterValue{Name: "Camera", Value: in.CameraSelection})
	}
	return pv, nil
}

// MergeQueueParameters appends the queue's shared parameters, rejecting any
// that collide with the job's own parameters. A collision means the two
// settings tabs were not kept in sync, so it is an error rather than a
// silent override.
func MergeQueueParameters(pv *ParameterValues, queue []ParameterValue) error {
	names := map[string]bool{}
	for _, p := range pv.ParameterValues {
		names[p.Name] = true
	}
	var overlap []string
	for _, p := range queue {
		if names[p.Name] {
			overlap = append(overlap, p.Name)
		}
	}
	if len(overlap) > 0 {
		return errors.Errorf(
			"the following queue parameters conflict with the Max job parameters: %s",
			strings.Join(overlap, ", "))
	}
	pv.ParameterValues = append(pv.ParameterValues, queue...)
	return nil
}
