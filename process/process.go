// Package process supervises the host application subprocess. It is a
// logging subprocess: stdout and stderr are scanned line by line, fed to the
// registered line handlers, and mirrored into the log.
package process

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LineHandler receives one line of subprocess output. Stderr lines are
// flagged so handlers can treat them differently.
type LineHandler interface {
	HandleLine(line string, isStderr bool)
}

// Command describes the subprocess to launch.
type Command struct {
	Argv    []string
	Dir     string
	EnvVars map[string]string
}

// Process wraps a started command. Output scanning runs on background
// goroutines until both pipes close.
type Process struct {
	cmd *exec.Cmd
	wg  sync.WaitGroup

	mu       sync.Mutex
	waitErr  error
	finished bool
}

// Start launches the command with its own process group and wires the output
// pipes through handler.
func Start(command Command, handler LineHandler) (*Process, error) {
	p, _, err := start(command, handler, false)
	return p, err
}

// StartWithStdin is Start with the subprocess stdin exposed as a pipe, for
// callers that feed the subprocess a command stream.
func StartWithStdin(command Command, handler LineHandler) (*Process, io.WriteCloser, error) {
	return start(command, handler, true)
}

func start(command Command, handler LineHandler, withStdin bool) (*Process, io.WriteCloser, error) {
	if len(command.Argv) == 0 {
		return nil, nil, errors.New("no command specified")
	}

	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Dir

	// Parent environment plus whatever the caller provides.
	cmd.Env = os.Environ()
	for k, v := range command.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Sets pgid of all child processes to cmd's pid so a kill reaches the
	// whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating stderr pipe")
	}
	var stdin io.WriteCloser
	if withStdin {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, nil, errors.Wrap(err, "creating stdin pipe")
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, errors.Wrapf(err, "starting %s", command.Argv[0])
	}

	p := &Process{cmd: cmd}
	p.wg.Add(2)
	go p.scan(stdout, handler, false)
	go p.scan(stderr, handler, true)
	go p.reap()

	log.WithFields(log.Fields{"pid": cmd.Process.Pid, "argv": command.Argv}).Info("Started subprocess")
	return p, stdin, nil
}

func (p *Process) scan(r io.Reader, handler LineHandler, isStderr bool) {
	defer p.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	stream := "stdout"
	if isStderr {
		stream = "stderr"
	}
	for scanner.Scan() {
		line := scanner.Text()
		log.WithFields(log.Fields{"pid": p.cmd.Process.Pid, "stream": stream}).Debug(line)
		if handler != nil {
			handler.HandleLine(line, isStderr)
		}
	}
}

// reap waits for the pipes to drain, then for the process itself, and records
// the result.
func (p *Process) reap() {
	p.wg.Wait()
	err := p.cmd.Wait()
	p.mu.Lock()
	p.finished = true
	p.waitErr = err
	p.mu.Unlock()
	log.WithFields(log.Fields{"pid": p.cmd.Process.Pid, "exitCode": p.exitCodeLocked()}).Info("Subprocess finished")
}

// Pid returns the subprocess pid.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// IsRunning reports whether the subprocess has not yet exited.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.finished
}

// Wait blocks until the subprocess exits or timeout elapses. A zero timeout
// waits forever. Returns false on timeout.
func (p *Process) Wait(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if !p.IsRunning() {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// ExitCode returns the exit code of a finished subprocess, or -1 if it is
// still running or exited abnormally without a code.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCodeLocked()
}

func (p *Process) exitCodeLocked() int {
	if !p.finished {
		return -1
	}
	if p.waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Terminate sends SIGTERM to the process group and escalates to SIGKILL if
// the subprocess is still alive after grace. A zero grace kills immediately.
func (p *Process) Terminate(grace time.Duration) {
	if !p.IsRunning() {
		return
	}
	pgid, err := syscall.Getpgid(p.cmd.Process.Pid)
	if err != nil {
		log.WithFields(log.Fields{"pid": p.cmd.Process.Pid, "error": err}).Error("Error finding pgid")
		pgid = p.cmd.Process.Pid
	}
	if grace > 0 {
		log.WithFields(log.Fields{"pgid": pgid}).Info("Sending SIGTERM to subprocess group")
		syscall.Kill(-pgid, syscall.SIGTERM)
		if p.Wait(grace) {
			return
		}
	}
	log.WithFields(log.Fields{"pgid": pgid}).Info("Sending SIGKILL to subprocess group")
	syscall.Kill(-pgid, syscall.SIGKILL)
}
