// Package daemon implements the background half of the max-openjd daemon
// subcommands. `daemon start` launches a backend process that owns the render
// session; `daemon run` and `daemon stop` are short lived clients that find
// the backend through the connection file.
package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/openjd-adaptors/max-openjd/adaptor"
	"github.com/openjd-adaptors/max-openjd/adaptor/ipc"
)

// Control protocol: one JSON request per connection, one reply.
type controlRequest struct {
	Op      string           `json:"op"` // "ping", "run" or "stop"
	RunData *adaptor.RunData `json:"run_data,omitempty"`
}

type controlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Backend owns a render session and serves control requests for it.
type Backend struct {
	adaptor  *adaptor.Adaptor
	connFile string
	socket   string
	listener net.Listener

	mu      sync.Mutex
	stopped bool
}

// NewBackend creates a backend serving the given session. The control socket
// lives next to the action socket in workDir.
func NewBackend(a *adaptor.Adaptor, workDir, connFile string) *Backend {
	return &Backend{
		adaptor:  a,
		connFile: connFile,
		socket:   filepath.Join(workDir, "daemon.sock"),
	}
}

// Serve starts the session and then serves control requests until a stop
// request arrives. The connection file is written only once the host
// application finished initializing, so `daemon start` does not return until
// the session is ready for tasks.
func (b *Backend) Serve() error {
	l, err := net.Listen("unix", b.socket)
	if err != nil {
		return errors.Wrapf(err, "listening on control socket %s", b.socket)
	}
	b.listener = l

	if err := b.adaptor.OnStart(); err != nil {
		l.Close()
		b.adaptor.OnCleanup()
		return errors.Wrap(err, "starting render session")
	}

	session := ""
	if u, err := uuid.NewV4(); err == nil {
		session = u.String()
	}
	cf := ipc.ConnectionFile{Socket: b.socket, PID: os.Getpid(), Session: session}
	if err := ipc.WriteConnectionFile(b.connFile, cf); err != nil {
		l.Close()
		b.adaptor.OnCleanup()
		return err
	}
	log.WithFields(log.Fields{"socket": b.socket, "session": session}).Info("Daemon ready")

	// Control requests are handled one at a time: the session renders one
	// frame at a time by construction.
	for {
		conn, err := l.Accept()
		if err != nil {
			if b.isStopped() {
				return nil
			}
			// The control socket died out from under a live session.
			// Tear everything down so 3ds Max and the connection file
			// do not outlive the backend.
			log.WithFields(log.Fields{"error": err}).Error("Control socket failed; shutting session down")
			b.adaptor.OnCleanup()
			ipc.RemoveConnectionFile(b.connFile)
			return errors.Wrap(err, "accepting control connection")
		}
		if stop := b.handle(conn); stop {
			return nil
		}
	}
}

func (b *Backend) setStopped() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
}

func (b *Backend) isStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// handle serves a single control connection. Returns true when the backend
// should shut down.
func (b *Backend) handle(conn net.Conn) bool {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return false
	}
	var req controlRequest
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		json.NewEncoder(conn).Encode(controlReply{Error: "malformed request"})
		return false
	}

	switch req.Op {
	case "ping":
		json.NewEncoder(conn).Encode(controlReply{OK: true})
		return false
	case "run":
		var run adaptor.RunData
		if req.RunData != nil {
			run = *req.RunData
		}
		err := b.adaptor.OnRun(run)
		rep := controlReply{OK: err == nil}
		if err != nil {
			rep.Error = err.Error()
			log.WithFields(log.Fields{"error": err}).Error("Render task failed")
		}
		json.NewEncoder(conn).Encode(rep)
		return false
	case "stop":
		err := b.adaptor.OnStop()
		b.adaptor.OnCleanup()
		rep := controlReply{OK: err == nil}
		if err != nil {
			rep.Error = err.Error()
		}
		json.NewEncoder(conn).Encode(rep)
		b.setStopped()
		b.listener.Close()
		ipc.RemoveConnectionFile(b.connFile)
		return true
	default:
		json.NewEncoder(conn).Encode(controlReply{Error: "unknown op " + req.Op})
		return false
	}
}

// Cancel aborts the in-flight render. Wired to SIGTERM in the serve command.
func (b *Backend) Cancel() {
	b.adaptor.OnCancel()
}

func roundTrip(socket string, req controlRequest) (controlReply, error) {
	conn, err := net.DialTimeout("unix", socket, 5*time.Second)
	if err != nil {
		return controlReply{}, errors.Wrapf(err, "connecting to daemon at %s", socket)
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return controlReply{}, errors.Wrap(err, "sending request")
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return controlReply{}, errors.New("daemon closed the connection")
	}
	var rep controlReply
	if err := json.Unmarshal(scanner.Bytes(), &rep); err != nil {
		return controlReply{}, errors.Wrap(err, "decoding reply")
	}
	return rep, nil
}

// WaitReady blocks until the connection file appears and the backend answers
// a ping, or maxWait elapses.
func WaitReady(connFile string, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = maxWait
	return backoff.Retry(func() error {
		cf, err := ipc.ReadConnectionFile(connFile)
		if err != nil {
			return err
		}
		rep, err := roundTrip(cf.Socket, controlRequest{Op: "ping"})
		if err != nil {
			return err
		}
		if !rep.OK {
			return errors.Errorf("daemon ping failed: %s", rep.Error)
		}
		return nil
	}, b)
}

// Run asks the daemon to render one task and blocks until it finishes.
func Run(connFile string, run adaptor.RunData) error {
	cf, err := ipc.ReadConnectionFile(connFile)
	if err != nil {
		return err
	}
	rep, err := roundTrip(cf.Socket, controlRequest{Op: "run", RunData: &run})
	if err != nil {
		return err
	}
	if !rep.OK {
		return errors.New(rep.Error)
	}
	return nil
}

// Stop shuts the daemon down. A backend that already died is tolerated: the
// stale connection file is removed and the stop succeeds.
func Stop(connFile string) error {
	cf, err := ipc.ReadConnectionFile(connFile)
	if err != nil {
		return err
	}
	rep, err := roundTrip(cf.Socket, controlRequest{Op: "stop"})
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warn("Daemon is already gone; removing stale connection file")
		return ipc.RemoveConnectionFile(connFile)
	}
	if !rep.OK {
		return errors.New(rep.Error)
	}
	return nil
}
