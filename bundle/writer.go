package bundle

import (
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// File names of the documents inside a bundle directory.
const (
	TemplateFile        = "template.yaml"
	ParameterValuesFile = "parameter_values.yaml"
	AssetReferencesFile = "asset_references.yaml"
)

// Writer lays a job bundle out on a filesystem.
type Writer struct {
	fs afero.Fs

	// Force allows writing into a directory that already has entries.
	Force bool
}

// NewWriter returns a Writer backed by the OS filesystem.
func NewWriter() *Writer {
	return &Writer{fs: afero.NewOsFs()}
}

// NewWriterFs returns a Writer backed by the given filesystem.
func NewWriterFs(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// Write creates dir and writes the three bundle documents into it. A
// non-empty directory is refused unless Force is set, so a stale bundle is
// never silently mixed with a new one.
func (w *Writer) Write(dir string, t Template, pv ParameterValues, ar AssetReferences) error {
	if err := w.checkDir(dir); err != nil {
		return err
	}
	if err := w.fs.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating bundle directory")
	}

	docs := []struct {
		name string
		data interface{}
	}{
		{TemplateFile, t},
		{ParameterValuesFile, pv},
		{AssetReferencesFile, ar},
	}
	for _, doc := range docs {
		out, err := yaml.Marshal(doc.data)
		if err != nil {
			return errors.Wrapf(err, "marshaling %s", doc.name)
		}
		path := filepath.Join(dir, doc.name)
		if err := afero.WriteFile(w.fs, path, out, 0644); err != nil {
			return errors.Wrapf(err, "writing %s", doc.name)
		}
		log.WithFields(log.Fields{"file": path, "bytes": len(out)}).Debug("Wrote bundle document")
	}
	return nil
}

func (w *Writer) checkDir(dir string) error {
	exists, err := afero.DirExists(w.fs, dir)
	if err != nil {
		return errors.Wrap(err, "checking bundle directory")
	}
	if !exists || w.Force {
		return nil
	}
	entries, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		return errors.Wrap(err, "reading bundle directory")
	}
	if len(entries) > 0 {
		return errors.Errorf("bundle directory %s is not empty", dir)
	}
	return nil
}

// ReadTemplate parses a template.yaml, used by tests and by the developer
// tooling to inspect generated bundles.
func ReadTemplate(fs afero.Fs, dir string) (Template, error) {
	data, err := afero.ReadFile(fs, filepath.Join(dir, TemplateFile))
	if err != nil {
		return Template{}, errors.Wrap(err, "reading template")
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, errors.Wrap(err, "parsing template")
	}
	return t, nil
}
