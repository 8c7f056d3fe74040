package submitter

import (
	"bytes"
	_ "embed"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

//go:embed scripts/submit_menu.ms.tmpl
var menuScript string

// MenuScriptName is the startup script the installer writes.
const MenuScriptName = "openjd_submit_menu.ms"

// DeveloperModeEnv switches the installed menu to developer options.
const DeveloperModeEnv = "MAX_OPENJD_DEVELOPER"

// InstallMenu renders the submit menu MaxScript into the host's startup
// scripts directory so the entry appears on the next launch.
func InstallMenu(fs afero.Fs, startupDir, executable string, developerMode bool) (string, error) {
	if startupDir == "" {
		return "", errors.New("no startup scripts directory was given")
	}
	tmpl, err := template.New("menu").Parse(menuScript)
	if err != nil {
		return "", errors.Wrap(err, "parsing menu script template")
	}

	var out bytes.Buffer
	data := struct {
		Executable    string
		DeveloperMode bool
	}{
		// MaxScript string literals use backslash escapes, so the path
		// is written with forward slashes.
		Executable:    filepath.ToSlash(executable),
		DeveloperMode: developerMode,
	}
	if err := tmpl.Execute(&out, data); err != nil {
		return "", errors.Wrap(err, "rendering menu script")
	}

	if err := fs.MkdirAll(startupDir, 0755); err != nil {
		return "", errors.Wrap(err, "creating startup scripts directory")
	}
	path := filepath.Join(startupDir, MenuScriptName)
	if err := afero.WriteFile(fs, path, out.Bytes(), 0644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	log.WithFields(log.Fields{"script": path, "developer": developerMode}).Info("Installed submit menu")
	return path, nil
}
