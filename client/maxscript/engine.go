// Package maxscript drives a 3ds Max process through its scripting listener.
// The process is started once and kept open; each script is written to its
// stdin and the output read back until a sentinel line, which is what makes
// sticky rendering possible.
package maxscript

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openjd-adaptors/max-openjd/process"
)

// Engine executes MAXScript in a running host application.
type Engine interface {
	// Execute runs a script and returns the listener output.
	Execute(script string) (string, error)
	// Close shuts the host down.
	Close() error
}

const sentinel = "__openjd_mxs_done__"

// Script error prefixes printed by the MAXScript listener.
var errorPrefixes = []string{
	"-- Syntax error",
	"-- Runtime error",
	"-- Unknown property",
	"-- Unable to convert",
}

// PipeEngine talks to the host's script listener over stdin/stdout.
type PipeEngine struct {
	mu    sync.Mutex
	proc  *process.Process
	stdin io.WriteCloser
	lines chan string
	echo  io.Writer
}

type pipeSink struct {
	lines chan string
	echo  io.Writer
	mu    sync.Mutex
}

func (s *pipeSink) HandleLine(line string, isStderr bool) {
	if s.echo != nil && !strings.Contains(line, sentinel) {
		s.mu.Lock()
		fmt.Fprintln(s.echo, line)
		s.mu.Unlock()
	}
	if !isStderr {
		select {
		case s.lines <- line:
		default:
			// Listener chatter while no script is in flight is log only.
		}
	}
}

// StartPipeEngine launches the host application with argv and attaches to
// its listener. Output lines are echoed to echo (normally the client's
// stdout, where the adaptor's regex handlers watch them).
func StartPipeEngine(argv []string, echo io.Writer) (*PipeEngine, error) {
	lines := make(chan string, 256)
	sink := &pipeSink{lines: lines, echo: echo}

	cmd := process.Command{Argv: argv}
	proc, stdin, err := process.StartWithStdin(cmd, sink)
	if err != nil {
		return nil, errors.Wrap(err, "launching host application")
	}
	return &PipeEngine{proc: proc, stdin: stdin, lines: lines, echo: echo}, nil
}

// Execute writes the script followed by a sentinel print and collects output
// until the sentinel comes back. Listener error lines fail the script.
func (e *PipeEngine) Execute(script string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.proc.IsRunning() {
		return "", errors.New("host application is not running")
	}

	// Drain lines left over from a previous script.
	for {
		select {
		case <-e.lines:
			continue
		default:
		}
		break
	}

	if _, err := fmt.Fprintf(e.stdin, "%s\nprint \"%s\"\n", script, sentinel); err != nil {
		return "", errors.Wrap(err, "writing script to listener")
	}

	var out []string
	for {
		select {
		case line := <-e.lines:
			if strings.Contains(line, sentinel) {
				return strings.Join(out, "\n"), scriptError(out)
			}
			out = append(out, line)
		case <-time.After(24 * time.Hour):
			return strings.Join(out, "\n"), errors.New("timed out waiting for the listener")
		}
	}
}

func scriptError(lines []string) error {
	for _, line := range lines {
		for _, prefix := range errorPrefixes {
			if strings.HasPrefix(line, prefix) {
				return errors.Errorf("MAXScript error: %s", line)
			}
		}
	}
	return nil
}

// Close quits the host and reaps the process.
func (e *PipeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc.IsRunning() {
		fmt.Fprintln(e.stdin, "quitmax #noprompt")
		e.stdin.Close()
		if !e.proc.Wait(30 * time.Second) {
			log.Error("Host did not quit, terminating")
			e.proc.Terminate(0)
		}
	}
	return nil
}
