package bundle

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func singleSetInput() BuildInput {
	return BuildInput{
		Name:            "scene.max",
		CameraSelection: AllCameras,
		Cameras:         []string{"Cam01", "Cam02"},
		StateSets: []StateSet{
			{
				Name:         "State01",
				Renderer:     "Default_Scanline_Renderer",
				Frames:       "1-10",
				OutputDir:    "/renders",
				OutputName:   "beauty_###",
				OutputFormat: ".png",
				ImageWidth:   1920,
				ImageHeight:  1080,
				GroupLabel:   "State01 Settings",
			},
		},
	}
}

func multiSetInput() BuildInput {
	in := singleSetInput()
	in.StateSets = append(in.StateSets, StateSet{
		Name:         "State02",
		Renderer:     "ART_Renderer",
		Frames:       "20-30",
		OutputDir:    "/renders",
		OutputName:   "beauty_###",
		OutputFormat: ".exr",
		ImageWidth:   1920,
		ImageHeight:  1080,
		GroupLabel:   "State02 Settings",
	})
	return in
}

func paramNames(t Template) []string {
	names := make([]string, 0, len(t.ParameterDefinitions))
	for _, d := range t.ParameterDefinitions {
		names = append(names, d.Name)
	}
	return names
}

func findParam(t Template, name string) *ParameterDefinition {
	for i := range t.ParameterDefinitions {
		if t.ParameterDefinitions[i].Name == name {
			return &t.ParameterDefinitions[i]
		}
	}
	return nil
}

func TestBuildTemplateSingleStateSet(t *testing.T) {
	tmpl, err := BuildTemplate(singleSetInput())
	if err != nil {
		t.Fatalf("BuildTemplate failed: %v", err)
	}

	if tmpl.SpecificationVersion != SpecificationVersion {
		t.Fatalf("Wrong specification version %q", tmpl.SpecificationVersion)
	}
	want := []string{
		"MaxSceneFile", "Frames", "OutputFilePath", "OutputFileFormat",
		"ImageWidth", "ImageHeight", "StrictErrorChecking",
	}
	if diff := cmp.Diff(want, paramNames(tmpl)); diff != "" {
		t.Fatalf("Unexpected parameters (-want +got):\n%s", diff)
	}
	if len(tmpl.Steps) != 1 {
		t.Fatalf("Expected one step, got %d", len(tmpl.Steps))
	}

	step := tmpl.Steps[0]
	if step.Name != "State01" {
		t.Fatalf("Step should be named after the state set, got %q", step.Name)
	}
	frame := step.ParameterSpace.TaskParameterDefinitions[0]
	if frame.Range != "{{Param.Frames}}" {
		t.Fatalf("Frame range should reference the shared parameter, got %v", frame.Range)
	}
}

func TestBuildTemplatePerStateSetParameters(t *testing.T) {
	tmpl, err := BuildTemplate(multiSetInput())
	if err != nil {
		t.Fatalf("BuildTemplate failed: %v", err)
	}

	// Frames and OutputFileFormat differ between the sets, the rest are
	// shared.
	for _, name := range []string{"State01Frames", "State02Frames", "State01OutputFileFormat", "State02OutputFileFormat"} {
		if findParam(tmpl, name) == nil {
			t.Fatalf("Expected per-state-set parameter %s, have %v", name, paramNames(tmpl))
		}
	}
	for _, name := range []string{"Frames", "OutputFileFormat"} {
		if findParam(tmpl, name) != nil {
			t.Fatalf("Shared parameter %s should have been split", name)
		}
	}
	if findParam(tmpl, "OutputFilePath") == nil || findParam(tmpl, "ImageWidth") == nil {
		t.Fatalf("Matching settings should stay shared, have %v", paramNames(tmpl))
	}

	if p := findParam(tmpl, "State02Frames"); p.UserInterface.GroupLabel != "State02 Settings" {
		t.Fatalf("Split parameter should use the state set group label, got %q", p.UserInterface.GroupLabel)
	}

	if got := tmpl.Steps[1].ParameterSpace.TaskParameterDefinitions[0].Range; got != "{{Param.State02Frames}}" {
		t.Fatalf("Second step should use its own frame range, got %v", got)
	}
}

func TestBuildTemplateInitData(t *testing.T) {
	tmpl, err := BuildTemplate(multiSetInput())
	if err != nil {
		t.Fatalf("BuildTemplate failed: %v", err)
	}

	env := tmpl.Steps[1].StepEnvironments[0]
	if env.Script == nil || len(env.Script.EmbeddedFiles) != 1 {
		t.Fatalf("Step environment should embed the init data")
	}
	data := env.Script.EmbeddedFiles[0].Data
	for _, want := range []string{
		"renderer: ART_Renderer",
		"state_set: State02",
		"scene_file: '{{Param.MaxSceneFile}}'",
		"output_file_format: '{{Param.State02OutputFileFormat}}'",
		"output_file_path: '{{Param.OutputFilePath}}'",
		"image_width: {{Param.ImageWidth}}",
	} {
		if !strings.Contains(data, want) {
			t.Fatalf("Init data missing %q:\n%s", want, data)
		}
	}

	enter := env.Script.Actions.OnEnter
	if enter == nil || enter.Command != AdaptorCommand {
		t.Fatalf("onEnter should start the adaptor daemon, got %+v", enter)
	}
	joined := strings.Join(enter.Args, " ")
	if !strings.Contains(joined, "daemon start") || !strings.Contains(joined, "connection.json") {
		t.Fatalf("Unexpected onEnter args: %v", enter.Args)
	}
}

func TestBuildTemplateCameraSelection(t *testing.T) {
	in := singleSetInput()
	tmpl, err := BuildTemplate(in)
	if err != nil {
		t.Fatalf("BuildTemplate failed: %v", err)
	}
	// All cameras: camera is a task parameter and part of the run data.
	params := tmpl.Steps[0].ParameterSpace.TaskParameterDefinitions
	if len(params) != 2 || params[1].Name != "Camera" {
		t.Fatalf("Expected a Camera task parameter, got %+v", params)
	}
	if data := tmpl.Steps[0].Script.EmbeddedFiles[0].Data; !strings.Contains(data, "camera: '{{Task.Param.Camera}}'") {
		t.Fatalf("Run data should carry the task camera, got %q", data)
	}

	in.CameraSelection = "Cam01"
	tmpl, err = BuildTemplate(in)
	if err != nil {
		t.Fatalf("BuildTemplate failed: %v", err)
	}
	if p := findParam(tmpl, "Camera"); p == nil || len(p.AllowedValues) != 2 {
		t.Fatalf("Specific camera should become a job parameter, got %+v", p)
	}
	if params := tmpl.Steps[0].ParameterSpace.TaskParameterDefinitions; len(params) != 1 {
		t.Fatalf("Specific camera should not add a task parameter, got %+v", params)
	}
	if data := tmpl.Steps[0].StepEnvironments[0].Script.EmbeddedFiles[0].Data; !strings.Contains(data, "camera: '{{Param.Camera}}'") {
		t.Fatalf("Init data should carry the job camera, got %q", data)
	}
}

func TestBuildTemplateAdaptorOverride(t *testing.T) {
	in := singleSetInput()
	in.AdaptorOverridePath = "/home/dev/adaptor/bin"
	tmpl, err := BuildTemplate(in)
	if err != nil {
		t.Fatalf("BuildTemplate failed: %v", err)
	}
	if len(tmpl.JobEnvironments) != 1 {
		t.Fatalf("Expected the override environment, got %+v", tmpl.JobEnvironments)
	}
	env := tmpl.JobEnvironments[0]
	if env.Script != nil || env.Variables["PATH"] == "" {
		t.Fatalf("Override environment should only set PATH, got %+v", env)
	}
	if p := findParam(tmpl, "OverrideAdaptorPath"); p == nil || p.Default != "/home/dev/adaptor/bin" {
		t.Fatalf("Override path parameter missing or wrong, got %+v", p)
	}
}

func TestBuildTemplateRequiresNameAndStateSets(t *testing.T) {
	in := singleSetInput()
	in.Name = ""
	if _, err := BuildTemplate(in); err == nil {
		t.Fatalf("Expected error for missing job name")
	}
	in = singleSetInput()
	in.StateSets = nil
	if _, err := BuildTemplate(in); err == nil {
		t.Fatalf("Expected error for missing state sets")
	}
}

func TestBuildParameterValues(t *testing.T) {
	pv, err := BuildParameterValues(multiSetInput(), "/projects/scene.max")
	if err != nil {
		t.Fatalf("BuildParameterValues failed: %v", err)
	}

	values := map[string]interface{}{}
	for _, p := range pv.ParameterValues {
		values[p.Name] = p.Value
	}
	if values["MaxSceneFile"] != "/projects/scene.max" {
		t.Fatalf("Wrong scene file value: %v", values["MaxSceneFile"])
	}
	if values["State01Frames"] != "1-10" || values["State02Frames"] != "20-30" {
		t.Fatalf("Per-state-set frame values missing: %v", values)
	}
	if values["OutputFilePath"] != "/renders" {
		t.Fatalf("Shared output path should stay shared: %v", values)
	}
	if values["ImageWidth"] != 1920 {
		t.Fatalf("Wrong image width: %v", values["ImageWidth"])
	}
	if values["StrictErrorChecking"] != "false" {
		t.Fatalf("Wrong strict error checking value: %v", values["StrictErrorChecking"])
	}
}

func TestMergeQueueParameters(t *testing.T) {
	pv, err := BuildParameterValues(singleSetInput(), "/projects/scene.max")
	if err != nil {
		t.Fatalf("BuildParameterValues failed: %v", err)
	}

	if err := MergeQueueParameters(&pv, []ParameterValue{{Name: "CondaPackages", Value: "3dsmax"}}); err != nil {
		t.Fatalf("MergeQueueParameters failed: %v", err)
	}
	last := pv.ParameterValues[len(pv.ParameterValues)-1]
	if last.Name != "CondaPackages" {
		t.Fatalf("Queue parameter was not appended, got %+v", last)
	}

	err = MergeQueueParameters(&pv, []ParameterValue{{Name: "Frames", Value: "1"}})
	if err == nil || !strings.Contains(err.Error(), "Frames") {
		t.Fatalf("Expected collision error naming the parameter, got %v", err)
	}
}
