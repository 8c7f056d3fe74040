package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ConnectionFile describes a running adaptor backend. `daemon start` writes
// it once the backend is ready; `daemon run` and `daemon stop` read it to
// find the control socket.
type ConnectionFile struct {
	Socket  string `json:"socket"`
	PID     int    `json:"pid"`
	Session string `json:"session"`
}

// WriteConnectionFile writes the connection file. It refuses to overwrite an
// existing file: a leftover file means another daemon may still own the
// session.
func WriteConnectionFile(path string, cf ConnectionFile) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Errorf("connection file %s already exists; is another daemon running?", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "creating connection file directory")
	}
	b, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding connection file")
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return errors.Wrap(err, "writing connection file")
	}
	return nil
}

// ReadConnectionFile reads and validates a connection file.
func ReadConnectionFile(path string) (ConnectionFile, error) {
	var cf ConnectionFile
	b, err := os.ReadFile(path)
	if err != nil {
		return cf, errors.Wrapf(err, "reading connection file %s", path)
	}
	if err := json.Unmarshal(b, &cf); err != nil {
		return cf, errors.Wrapf(err, "parsing connection file %s", path)
	}
	if cf.Socket == "" {
		return cf, errors.Errorf("connection file %s has no socket path", path)
	}
	return cf, nil
}

// RemoveConnectionFile deletes the connection file, ignoring a file that is
// already gone.
func RemoveConnectionFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing connection file %s", path)
	}
	return nil
}
