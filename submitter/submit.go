package submitter

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/openjd-adaptors/max-openjd/bundle"
)

// Submitter turns validated settings into a job bundle on disk and
// optionally ships it to a queue endpoint.
type Submitter struct {
	fs     afero.Fs
	writer *bundle.Writer
	httpc  *pester.Client
}

// New returns a Submitter on the OS filesystem with a retrying HTTP client.
func New() *Submitter {
	c := pester.New()
	c.MaxRetries = 5
	c.Backoff = pester.ExponentialBackoff
	return &Submitter{fs: afero.NewOsFs(), writer: bundle.NewWriter(), httpc: c}
}

// NewFs returns a Submitter on the given filesystem, used by tests.
func NewFs(fs afero.Fs) *Submitter {
	s := New()
	s.fs = fs
	s.writer = bundle.NewWriterFs(fs)
	return s
}

// Force allows overwriting a non-empty bundle directory.
func (s *Submitter) Force(force bool) {
	s.writer.Force = force
}

// Prepare validates the submission and resolves it into the template
// builder's input.
func (s *Submitter) Prepare(settings Settings, m SceneManifest) (bundle.BuildInput, error) {
	if err := SanityCheck(s.fs, settings, m); err != nil {
		return bundle.BuildInput{}, err
	}
	sets, err := selectStateSets(settings, m)
	if err != nil {
		return bundle.BuildInput{}, err
	}

	in := bundle.BuildInput{
		Name:                settings.Name,
		Description:         settings.Description,
		CameraSelection:     settings.CameraSelection,
		Cameras:             m.CameraNames(AllCamerasSelection),
		StrictErrorChecking: settings.StrictErrorChecking,
		AdaptorOverridePath: settings.AdaptorOverridePath,
	}
	if settings.CameraSelection == AllStereoCamerasSelection {
		in.Cameras = m.CameraNames(AllStereoCamerasSelection)
	}
	for _, set := range sets {
		in.StateSets = append(in.StateSets, bundle.StateSet{
			Name:         set.Name,
			Renderer:     set.Renderer,
			Frames:       set.Frames,
			OutputDir:    set.OutputDir,
			OutputName:   set.OutputName,
			OutputFormat: set.OutputFormat,
			ImageWidth:   set.ImageWidth,
			ImageHeight:  set.ImageHeight,
			GroupLabel:   set.Name + " Settings",
		})
	}
	return in, nil
}

// WriteBundle validates the submission, writes the bundle into dir and
// saves the sticky settings beside the scene. Queue parameters are shared
// values the target queue defines; a queue parameter clashing with one of
// the job's own parameters fails the submission.
func (s *Submitter) WriteBundle(dir string, settings Settings, m SceneManifest, queue []bundle.ParameterValue) error {
	in, err := s.Prepare(settings, m)
	if err != nil {
		return err
	}

	tmpl, err := bundle.BuildTemplate(in)
	if err != nil {
		return err
	}
	pv, err := bundle.BuildParameterValues(in, m.SceneFile)
	if err != nil {
		return err
	}
	if err := bundle.MergeQueueParameters(&pv, queue); err != nil {
		return err
	}

	ar := s.assetReferences(settings, m, in)
	if err := s.writer.Write(dir, tmpl, pv, ar); err != nil {
		return err
	}
	if err := SaveSticky(s.fs, m.SceneFile, settings); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"bundle": dir,
		"steps":  len(tmpl.Steps),
	}).Info("Wrote job bundle")
	return nil
}

// ParseQueueParameters parses queue parameter arguments of the form
// name=value, as passed on the submit command line.
func ParseQueueParameters(args []string) ([]bundle.ParameterValue, error) {
	var out []bundle.ParameterValue
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, errors.Errorf("queue parameter %q is not in name=value form", arg)
		}
		out = append(out, bundle.ParameterValue{Name: name, Value: value})
	}
	return out, nil
}

func (s *Submitter) assetReferences(settings Settings, m SceneManifest, in bundle.BuildInput) bundle.AssetReferences {
	inputs := append([]string{m.SceneFile}, settings.InputFilenames...)
	inputDirs := settings.InputDirectories
	if m.ProjectPath != "" {
		inputDirs = append([]string{m.ProjectPath}, inputDirs...)
	}
	outputDirs := settings.OutputDirectories
	for _, set := range in.StateSets {
		outputDirs = appendUnique(outputDirs, set.OutputDir)
	}
	return bundle.AssetReferences{
		AssetReferences: bundle.AssetReferenceSet{
			Inputs:  bundle.AssetInputs{Filenames: inputs, Directories: inputDirs},
			Outputs: bundle.AssetOutputs{Directories: outputDirs},
		},
	}
}

func appendUnique(list []string, v string) []string {
	for _, have := range list {
		if have == v {
			return list
		}
	}
	return append(list, v)
}

// Upload streams the bundle directory as a gzipped tar to the queue
// endpoint. Transient failures retry with exponential backoff through the
// HTTP client.
func (s *Submitter) Upload(endpoint, dir string) error {
	var buf bytes.Buffer
	if err := s.tarBundle(&buf, dir); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, &buf)
	if err != nil {
		return errors.Wrap(err, "building upload request")
	}
	req.Header.Set("Content-Type", "application/gzip")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "uploading bundle to %s", endpoint)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("the queue rejected the bundle: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	log.WithFields(log.Fields{"endpoint": endpoint}).Info("Uploaded job bundle")
	return nil
}

func (s *Submitter) tarBundle(w io.Writer, dir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, name := range []string{bundle.TemplateFile, bundle.ParameterValuesFile, bundle.AssetReferencesFile} {
		data, err := afero.ReadFile(s.fs, filepath.Join(dir, name))
		if err != nil {
			return errors.Wrapf(err, "reading %s", name)
		}
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			return errors.Wrapf(err, "archiving %s", name)
		}
		if _, err := tw.Write(data); err != nil {
			return errors.Wrapf(err, "archiving %s", name)
		}
	}

	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "closing bundle archive")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "closing bundle archive")
	}
	return nil
}

// Summary renders a short human-readable description of the submission.
func Summary(in bundle.BuildInput, dir string) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Job:        %s\n", in.Name)
	fmt.Fprintf(&b, "Bundle:     %s\n", dir)
	fmt.Fprintf(&b, "Camera:     %s\n", in.CameraSelection)
	for _, set := range in.StateSets {
		fmt.Fprintf(&b, "Step:       %s (%s, frames %s)\n", set.Name, set.Renderer, set.Frames)
	}
	return b.String()
}
