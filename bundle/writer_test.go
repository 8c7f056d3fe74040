package bundle

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestWriterRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriterFs(fs)

	in := singleSetInput()
	// A specific camera keeps every task parameter range a plain string,
	// which survives the YAML round trip unchanged.
	in.CameraSelection = "Cam01"

	tmpl, err := BuildTemplate(in)
	if err != nil {
		t.Fatalf("BuildTemplate failed: %v", err)
	}
	pv, err := BuildParameterValues(in, "/projects/scene.max")
	if err != nil {
		t.Fatalf("BuildParameterValues failed: %v", err)
	}
	ar := AssetReferences{
		AssetReferences: AssetReferenceSet{
			Inputs:  AssetInputs{Filenames: []string{"/projects/scene.max"}, Directories: []string{}},
			Outputs: AssetOutputs{Directories: []string{"/renders"}},
		},
	}

	dir := "/bundles/job"
	if err := w.Write(dir, tmpl, pv, ar); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for _, name := range []string{TemplateFile, ParameterValuesFile, AssetReferencesFile} {
		if ok, _ := afero.Exists(fs, filepath.Join(dir, name)); !ok {
			t.Fatalf("Missing bundle file %s", name)
		}
	}

	got, err := ReadTemplate(fs, dir)
	if err != nil {
		t.Fatalf("ReadTemplate failed: %v", err)
	}
	if diff := cmp.Diff(tmpl, got); diff != "" {
		t.Fatalf("Template did not survive the round trip (-want +got):\n%s", diff)
	}
}

func TestWriterRefusesNonEmptyDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/bundles/job"
	if err := afero.WriteFile(fs, filepath.Join(dir, "leftover.yaml"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tmpl, _ := BuildTemplate(singleSetInput())
	pv, _ := BuildParameterValues(singleSetInput(), "/projects/scene.max")

	w := NewWriterFs(fs)
	if err := w.Write(dir, tmpl, pv, AssetReferences{}); err == nil {
		t.Fatalf("Expected error for non-empty directory")
	}

	w.Force = true
	if err := w.Write(dir, tmpl, pv, AssetReferences{}); err != nil {
		t.Fatalf("Force write failed: %v", err)
	}
}
