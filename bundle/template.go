// Package bundle models Open Job Description job bundles: the declarative
// job template, the per-submission parameter values and the asset
// references, plus a writer that lays them out as a bundle directory.
package bundle

// SpecificationVersion is the job template revision this bundle targets.
const SpecificationVersion = "jobtemplate-2023-09"

// Template is an OpenJD job template.
type Template struct {
	SpecificationVersion string                `yaml:"specificationVersion"`
	Name                 string                `yaml:"name"`
	Description          string                `yaml:"description,omitempty"`
	ParameterDefinitions []ParameterDefinition `yaml:"parameterDefinitions"`
	JobEnvironments      []Environment         `yaml:"jobEnvironments,omitempty"`
	Steps                []Step                `yaml:"steps"`
}

// ParameterDefinition declares one job parameter with its UI hints.
type ParameterDefinition struct {
	Name          string         `yaml:"name"`
	Type          string         `yaml:"type"`
	ObjectType    string         `yaml:"objectType,omitempty"`
	DataFlow      string         `yaml:"dataFlow,omitempty"`
	Description   string         `yaml:"description,omitempty"`
	UserInterface *UserInterface `yaml:"userInterface,omitempty"`
	Default       interface{}    `yaml:"default,omitempty"`
	AllowedValues []string       `yaml:"allowedValues,omitempty"`
	MinValue      interface{}    `yaml:"minValue,omitempty"`
}

// UserInterface carries the widget hints for a parameter.
type UserInterface struct {
	Control     string       `yaml:"control"`
	Label       string       `yaml:"label,omitempty"`
	GroupLabel  string       `yaml:"groupLabel,omitempty"`
	FileFilters []FileFilter `yaml:"fileFilters,omitempty"`
}

// FileFilter restricts a file chooser control.
type FileFilter struct {
	Label    string   `yaml:"label"`
	Patterns []string `yaml:"patterns"`
}

// Step is one render step with its task parameter space.
type Step struct {
	Name             string         `yaml:"name"`
	ParameterSpace   ParameterSpace `yaml:"parameterSpace"`
	StepEnvironments []Environment  `yaml:"stepEnvironments,omitempty"`
	Script           Script         `yaml:"script"`
}

// ParameterSpace declares the per-task parameters of a step.
type ParameterSpace struct {
	TaskParameterDefinitions []TaskParameter `yaml:"taskParameterDefinitions"`
}

// TaskParameter is one task parameter. Range is either a range expression
// string (for INT ranges) or a list of values.
type TaskParameter struct {
	Name  string      `yaml:"name"`
	Type  string      `yaml:"type"`
	Range interface{} `yaml:"range"`
}

// Environment wraps enter/exit actions, or a set of environment variables,
// around a step or job.
type Environment struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Script      *Script           `yaml:"script,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"`
}

// Script groups embedded files with the actions that use them.
type Script struct {
	EmbeddedFiles []EmbeddedFile `yaml:"embeddedFiles,omitempty"`
	Actions       Actions        `yaml:"actions"`
}

// EmbeddedFile is a data file materialized into the session directory.
type EmbeddedFile struct {
	Name     string `yaml:"name"`
	Filename string `yaml:"filename,omitempty"`
	Type     string `yaml:"type"`
	Data     string `yaml:"data"`
}

// Actions are the commands a script runs.
type Actions struct {
	OnEnter *Action `yaml:"onEnter,omitempty"`
	OnExit  *Action `yaml:"onExit,omitempty"`
	OnRun   *Action `yaml:"onRun,omitempty"`
}

// Action is one external command invocation.
type Action struct {
	Command     string       `yaml:"command"`
	Args        []string     `yaml:"args,omitempty"`
	Cancelation *Cancelation `yaml:"cancelation,omitempty"`
}

// Cancelation selects how a running action is stopped.
type Cancelation struct {
	Mode string `yaml:"mode"`
}

// ParameterValue is one submission-time value.
type ParameterValue struct {
	Name  string      `yaml:"name"`
	Value interface{} `yaml:"value"`
}

// ParameterValues is the parameter_values.yaml document.
type ParameterValues struct {
	ParameterValues []ParameterValue `yaml:"parameterValues"`
}

// AssetReferences is the asset_references.yaml document.
type AssetReferences struct {
	AssetReferences AssetReferenceSet `yaml:"assetReferences"`
}

// AssetReferenceSet lists job attachments.
type AssetReferenceSet struct {
	Inputs  AssetInputs  `yaml:"inputs"`
	Outputs AssetOutputs `yaml:"outputs"`
}

type AssetInputs struct {
	Filenames   []string `yaml:"filenames"`
	Directories []string `yaml:"directories"`
}

type AssetOutputs struct {
	Directories []string `yaml:"directories"`
}
